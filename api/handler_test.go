package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FrederickIge/sentence-samurai-backend/internal/jobs"
	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/volume"
)

const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// stubEngine answers every volume with one synthetic block per page.
type stubEngine struct{}

func (stubEngine) Name() string                 { return "stub" }
func (stubEngine) Device() string               { return "cpu" }
func (stubEngine) Available() error             { return nil }
func (stubEngine) Warmup(context.Context) error { return nil }

func (stubEngine) ProcessVolume(ctx context.Context, vol *volume.Volume) error {
	agg := &volume.Aggregate{Version: "stub", Title: vol.Title}
	for _, p := range vol.Pages {
		idx := volume.PageIndexFromName(p)
		agg.Pages = append(agg.Pages, volume.AggregatePage{
			ImgPath: filepath.Base(p),
			Blocks: []models.TextBlock{{
				Box:   []float64{0, 0, 10, 10},
				Lines: []string{fmt.Sprintf("line-%d", idx)},
			}},
		})
	}
	return vol.WriteAggregate(agg)
}

func newTestServer(t *testing.T) (*httptest.Server, *jobs.Store) {
	t.Helper()
	var cfg models.Config
	cfg.ApplyDefaults()
	store := jobs.NewStore()
	runner := jobs.NewRunner(stubEngine{}, store, cfg)
	srv := httptest.NewServer(NewHandler(&cfg, runner, store).SetupRoutes())
	t.Cleanup(srv.Close)
	return srv, store
}

func postEnvelope(t *testing.T, url string, input models.JobInput) (*http.Response, models.JobResponse) {
	t.Helper()
	body, err := json.Marshal(models.JobRequest{Input: input})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out models.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestRunSyncSingle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postEnvelope(t, srv.URL+"/runsync", models.JobInput{
		Type:      models.TypeProcessSingle,
		Image:     tinyPNG,
		PageIndex: 3,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.Status != models.StatusCompleted {
		t.Fatalf("job status = %s, error = %s", out.Status, out.Error)
	}
	if out.ID == "" {
		t.Fatalf("response missing job id")
	}

	// Output round-trips through JSON as a map.
	output := out.Output.(map[string]interface{})
	result := output["result"].(map[string]interface{})
	if idx := int(result["page_index"].(float64)); idx != 3 {
		t.Fatalf("page_index = %d, want 3", idx)
	}
}

func TestRunSyncHealthJob(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postEnvelope(t, srv.URL+"/runsync", models.JobInput{Type: models.TypeHealth})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.Status != models.StatusCompleted {
		t.Fatalf("job status = %s", out.Status)
	}
	output := out.Output.(map[string]interface{})
	if output["engine"] != "stub" {
		t.Fatalf("engine = %v", output["engine"])
	}
}

func TestRunSyncBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postEnvelope(t, srv.URL+"/runsync", models.JobInput{Type: models.TypeProcessBatch})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if out.Status != models.StatusFailed || out.Code != http.StatusBadRequest {
		t.Fatalf("envelope = %+v", out)
	}
	if !strings.Contains(out.Error, "no images") {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestRunRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/run", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST /run: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRunThenPoll(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postEnvelope(t, srv.URL+"/run", models.JobInput{
		Type:   models.TypeProcessBatch,
		Images: []string{tinyPNG, tinyPNG},
		Title:  "Polled",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.ID == "" {
		t.Fatalf("no job id in /run response")
	}

	deadline := time.After(5 * time.Second)
	for {
		r, err := http.Get(srv.URL + "/job/" + out.ID)
		if err != nil {
			t.Fatalf("GET job: %v", err)
		}
		var snap models.JobStatus
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		r.Body.Close()

		if snap.Status == models.StatusCompleted {
			if snap.Progress != 100 || snap.Title != "Polled" {
				t.Fatalf("unexpected snapshot: %+v", snap)
			}
			return
		}
		if snap.Status == models.StatusFailed {
			t.Fatalf("job failed: %s", snap.Error)
		}
		select {
		case <-deadline:
			t.Fatalf("job stuck at %s", snap.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestJobStatusUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/job/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDownloadArtifact(t *testing.T) {
	srv, _ := newTestServer(t)

	_, out := postEnvelope(t, srv.URL+"/runsync", models.JobInput{
		Type:   models.TypeProcessBatch,
		Images: []string{tinyPNG},
	})
	if out.Status != models.StatusCompleted {
		t.Fatalf("job status = %s, error = %s", out.Status, out.Error)
	}

	resp, err := http.Get(srv.URL + "/job/" + out.ID + "/download")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".mokuro") {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	var agg volume.Aggregate
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		t.Fatalf("artifact is not aggregate JSON: %v", err)
	}
	if len(agg.Pages) != 1 {
		t.Fatalf("artifact pages = %d", len(agg.Pages))
	}
}

func TestDownloadMissingArtifact(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/job/nope/download")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteJob(t *testing.T) {
	srv, store := newTestServer(t)

	_, out := postEnvelope(t, srv.URL+"/runsync", models.JobInput{
		Type:   models.TypeProcessBatch,
		Images: []string{tinyPNG},
	})

	req, _ := http.NewRequest("DELETE", srv.URL+"/job/"+out.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if store.Get(out.ID) != nil {
		t.Fatalf("job still present after delete")
	}
}

func TestListJobsAndStats(t *testing.T) {
	srv, _ := newTestServer(t)

	postEnvelope(t, srv.URL+"/runsync", models.JobInput{
		Type:   models.TypeProcessBatch,
		Images: []string{tinyPNG},
	})

	resp, err := http.Get(srv.URL + "/jobs")
	if err != nil {
		t.Fatalf("GET /jobs: %v", err)
	}
	var list struct {
		Success bool               `json:"success"`
		Jobs    []models.JobStatus `json:"jobs"`
		Count   int                `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode /jobs: %v", err)
	}
	resp.Body.Close()
	if !list.Success || list.Count != 1 || len(list.Jobs) != 1 {
		t.Fatalf("jobs list = %+v", list)
	}

	resp, err = http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode /stats: %v", err)
	}
	resp.Body.Close()
	if stats["engine"] != "stub" || stats["jobs_completed"].(float64) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || !health.Engine.Available || health.Engine.Name != "stub" {
		t.Fatalf("health = %+v", health)
	}
	if health.Database.Available || health.Storage.Available {
		t.Fatalf("optional services should be unavailable in tests: %+v", health)
	}
}
