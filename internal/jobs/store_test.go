package jobs

import (
	"testing"
	"time"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()
	job := s.Create(models.TypeProcessBatch, "Vol 1", 12)

	snap := s.Get(job.ID)
	if snap == nil {
		t.Fatalf("job not found after Create")
	}
	if snap.Status != models.StatusInQueue || snap.TotalPages != 12 || snap.Title != "Vol 1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	s.Start(job.ID)
	if got := s.Get(job.ID).Status; got != models.StatusInProgress {
		t.Fatalf("status after Start = %s", got)
	}

	s.Complete(job.ID, models.BatchOutput{Status: "success"}, []byte(`{}`), "")
	snap = s.Get(job.ID)
	if snap.Status != models.StatusCompleted || snap.Progress != 100 {
		t.Fatalf("unexpected completed snapshot: %+v", snap)
	}
	if snap.CurrentPage != 12 {
		t.Fatalf("current_page = %d, want 12", snap.CurrentPage)
	}
}

func TestStoreProgressIsMonotonic(t *testing.T) {
	s := NewStore()
	job := s.Create(models.TypeProcessBatch, "", 5)

	s.SetProgress(job.ID, 40, "ocr", 2)
	s.SetProgress(job.ID, 25, "ocr", 1) // a stale monitor tick must not rewind
	snap := s.Get(job.ID)
	if snap.Progress != 40 || snap.CurrentPage != 2 {
		t.Fatalf("progress rewound: %+v", snap)
	}
}

func TestStoreFail(t *testing.T) {
	s := NewStore()
	job := s.Create(models.TypeProcessSingle, "", 1)
	s.Start(job.ID)
	s.Fail(job.ID, "engine exited with code 1", "stack")

	snap := s.Get(job.ID)
	if snap.Status != models.StatusFailed || snap.Error != "engine exited with code 1" || snap.Traceback != "stack" {
		t.Fatalf("unexpected failed snapshot: %+v", snap)
	}
}

func TestStoreArtifactOnlyWhenCompleted(t *testing.T) {
	s := NewStore()
	job := s.Create(models.TypeProcessBatch, "", 2)

	if _, _, ok := s.Artifact(job.ID); ok {
		t.Fatalf("artifact available before completion")
	}
	s.Complete(job.ID, nil, []byte(`{"pages":[]}`), "https://example/jobs/x")
	data, url, ok := s.Artifact(job.ID)
	if !ok || string(data) != `{"pages":[]}` || url != "https://example/jobs/x" {
		t.Fatalf("artifact = %q %q %v", data, url, ok)
	}
	if _, _, ok := s.Artifact("missing"); ok {
		t.Fatalf("unknown id should have no artifact")
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	job := s.Create(models.TypeProcessBatch, "", 1)

	if snap := s.Delete(job.ID); snap == nil || snap.ID != job.ID {
		t.Fatalf("Delete returned %+v", snap)
	}
	if s.Get(job.ID) != nil {
		t.Fatalf("job still present after Delete")
	}
	if s.Delete(job.ID) != nil {
		t.Fatalf("second Delete should report missing")
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	s := NewStore()
	first := s.Create(models.TypeProcessBatch, "a", 1)
	time.Sleep(2 * time.Millisecond)
	second := s.Create(models.TypeProcessBatch, "b", 1)

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list not newest first: %s, %s", list[0].ID, list[1].ID)
	}
}

func TestStoreCounts(t *testing.T) {
	s := NewStore()
	a := s.Create(models.TypeProcessBatch, "", 1)
	b := s.Create(models.TypeProcessBatch, "", 1)
	s.Create(models.TypeProcessBatch, "", 1)

	s.Complete(a.ID, nil, nil, "")
	s.Fail(b.ID, "boom", "")

	completed, active, total := s.Counts()
	if completed != 1 || active != 1 || total != 3 {
		t.Fatalf("counts = %d %d %d", completed, active, total)
	}
}
