package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
)

// Job is the live state of one submitted request. All mutation goes through
// the Store so pollers always see a consistent snapshot.
type Job struct {
	ID          string
	Type        string
	Status      string
	Progress    int
	Stage       string
	CurrentPage int
	TotalPages  int
	Title       string
	Output      interface{}
	Error       string
	Traceback   string
	ArtifactURL string
	Artifact    []byte // aggregate JSON kept for inline downloads
	CreatedAt   time.Time
	StartedAt   time.Time
	Elapsed     float64
}

// Store is the in-memory job registry. Jobs live here for their whole
// lifecycle; Postgres persistence, when configured, is a write-behind copy.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Create registers a new queued job and returns its id.
func (s *Store) Create(jobType, title string, totalPages int) *Job {
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     models.StatusInQueue,
		Stage:      "upload",
		Title:      title,
		TotalPages: totalPages,
		CreatedAt:  time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// Start marks a job as picked up by a worker.
func (s *Store) Start(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.StatusInProgress
		job.StartedAt = time.Now()
	}
}

// SetProgress updates the progress view pollers see.
func (s *Store) SetProgress(id string, progress int, stage string, currentPage int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		if progress > job.Progress {
			job.Progress = progress
		}
		if stage != "" {
			job.Stage = stage
		}
		if currentPage > job.CurrentPage {
			job.CurrentPage = currentPage
		}
	}
}

// Complete finalizes a successful job.
func (s *Store) Complete(id string, output interface{}, artifact []byte, artifactURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.StatusCompleted
		job.Progress = 100
		job.Stage = "complete"
		job.CurrentPage = job.TotalPages
		job.Output = output
		job.Artifact = artifact
		job.ArtifactURL = artifactURL
		if !job.StartedAt.IsZero() {
			job.Elapsed = time.Since(job.StartedAt).Seconds()
		}
	}
}

// Fail finalizes a failed job with a message and, when available, a stack
// trace.
func (s *Store) Fail(id string, errMsg, traceback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.StatusFailed
		job.Progress = 0
		job.Error = errMsg
		job.Traceback = traceback
		if !job.StartedAt.IsZero() {
			job.Elapsed = time.Since(job.StartedAt).Seconds()
		}
	}
}

// Get returns a snapshot of a job, or nil if unknown.
func (s *Store) Get(id string) *models.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	return snapshot(job)
}

// Artifact returns the stored aggregate JSON for a completed job.
func (s *Store) Artifact(id string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.StatusCompleted {
		return nil, "", false
	}
	return job.Artifact, job.ArtifactURL, true
}

// Delete removes a job, returning its snapshot for artifact cleanup.
func (s *Store) Delete(id string) *models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	delete(s.jobs, id)
	return snapshot(job)
}

// List snapshots all jobs, newest first.
func (s *Store) List() []models.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *snapshot(job))
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Counts reports completed and active job totals for /stats.
func (s *Store) Counts() (completed, active, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		switch job.Status {
		case models.StatusCompleted:
			completed++
		case models.StatusInQueue, models.StatusInProgress:
			active++
		}
	}
	return completed, active, len(s.jobs)
}

func snapshot(job *Job) *models.JobStatus {
	return &models.JobStatus{
		ID:          job.ID,
		Type:        job.Type,
		Status:      job.Status,
		Progress:    job.Progress,
		Stage:       job.Stage,
		CurrentPage: job.CurrentPage,
		TotalPages:  job.TotalPages,
		Title:       job.Title,
		Output:      job.Output,
		Error:       job.Error,
		Traceback:   job.Traceback,
		CreatedAt:   job.CreatedAt,
		ElapsedTime: job.Elapsed,
		ArtifactURL: job.ArtifactURL,
	}
}
