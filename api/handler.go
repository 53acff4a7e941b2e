package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/FrederickIge/sentence-samurai-backend/internal/auth"
	"github.com/FrederickIge/sentence-samurai-backend/internal/db"
	"github.com/FrederickIge/sentence-samurai-backend/internal/jobs"
	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/storage"
)

const Version = "1.3.0"

// Handler handles HTTP requests for OCR job processing
type Handler struct {
	config *models.Config
	runner *jobs.Runner
	store  *jobs.Store
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, runner *jobs.Runner, store *jobs.Store) *Handler {
	return &Handler{
		config: config,
		runner: runner,
		store:  store,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Job submission
	router.HandleFunc("/run", h.Run).Methods("POST")
	router.HandleFunc("/runsync", h.RunSync).Methods("POST")

	// Job lifecycle
	router.HandleFunc("/job/{id}", h.JobStatus).Methods("GET")
	router.HandleFunc("/job/{id}/download", h.Download).Methods("GET")
	router.HandleFunc("/job/{id}", h.DeleteJob).Methods("DELETE")
	router.HandleFunc("/jobs", h.ListJobs).Methods("GET")

	// Statistics
	router.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	// Token exchange
	router.HandleFunc("/api/token", auth.TokenHandler).Methods("POST")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Engine    EngineStatus  `json:"engine"`
	GPU       ServiceStatus `json:"gpu"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EngineStatus describes the configured OCR engine.
type EngineStatus struct {
	Available bool   `json:"available"`
	Name      string `json:"name"`
	Device    string `json:"device"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	engineStatus := h.checkEngine()
	gpuStatus := h.checkGPU()
	databaseStatus := h.checkDatabase()
	storageStatus := h.checkStorage()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Engine:   engineStatus,
		GPU:      gpuStatus,
		Database: databaseStatus,
		Storage:  storageStatus,
	}

	// The engine is the one critical dependency; database and storage are
	// optional extras.
	if !engineStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkEngine verifies the OCR engine is ready to take jobs
func (h *Handler) checkEngine() EngineStatus {
	health := h.runner.Health()
	status := EngineStatus{
		Available: true,
		Name:      health.Engine,
		Device:    health.Device,
	}
	if err := h.runner.Available(); err != nil {
		status.Available = false
		status.Error = err.Error()
	}
	return status
}

// checkGPU verifies an NVIDIA GPU is visible
func (h *Handler) checkGPU() ServiceStatus {
	cmd := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	output, err := cmd.CombinedOutput()

	if err != nil {
		return ServiceStatus{
			Available: false,
			Error:     "nvidia-smi not found or no GPU visible",
		}
	}

	name := "unknown"
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		name = strings.TrimSpace(lines[0])
	}

	return ServiceStatus{
		Available: true,
		Version:   name,
	}
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// Run accepts a job envelope and queues it, returning immediately with the
// job id so the client can poll /job/{id}.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	input, ok := h.decodeEnvelope(w, r)
	if !ok {
		return
	}

	if input.Type == models.TypeHealth {
		h.sendHealthJob(w)
		return
	}

	snap, err := h.runner.Submit(*input)
	if err != nil {
		h.sendEnvelopeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.JobResponse{
		ID:     snap.ID,
		Status: snap.Status,
	})
}

// RunSync accepts a job envelope and blocks until the job finishes, returning
// the full result in one round trip.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	input, ok := h.decodeEnvelope(w, r)
	if !ok {
		return
	}

	if input.Type == models.TypeHealth {
		h.sendHealthJob(w)
		return
	}

	snap, err := h.runner.RunSync(r.Context(), *input)
	if err != nil {
		h.sendEnvelopeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.JobResponse{
		ID:            snap.ID,
		Status:        snap.Status,
		Output:        snap.Output,
		Error:         snap.Error,
		Traceback:     snap.Traceback,
		ExecutionTime: snap.ElapsedTime,
	})
}

// decodeEnvelope reads and validates the {"input": {...}} request body.
func (h *Handler) decodeEnvelope(w http.ResponseWriter, r *http.Request) (*models.JobInput, bool) {
	maxUpload := int64(h.config.Processing.MaxUploadMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

	var req models.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Input.Type == "" {
		h.sendError(w, http.StatusBadRequest, "missing input.type")
		return nil, false
	}
	return &req.Input, true
}

// sendHealthJob answers a health-type job inline; it never enters the queue.
func (h *Handler) sendHealthJob(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.JobResponse{
		ID:     uuid.New().String(),
		Status: models.StatusCompleted,
		Output: h.runner.Health(),
	})
}

// sendEnvelopeError maps submission failures onto the response envelope:
// malformed inputs get 400, everything else 500.
func (h *Handler) sendEnvelopeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, jobs.ErrBadInput) {
		code = http.StatusBadRequest
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.JobResponse{
		Status: models.StatusFailed,
		Error:  err.Error(),
		Code:   code,
	})
}

// JobStatus returns the poll view of a job
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	vars := mux.Vars(r)
	snap := h.store.Get(vars["id"])
	if snap == nil {
		h.sendError(w, http.StatusNotFound, "job not found")
		return
	}

	json.NewEncoder(w).Encode(snap)
}

// Download streams the aggregate JSON artifact of a completed job
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]

	artifact, artifactURL, ok := h.store.Artifact(jobID)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusNotFound, "no artifact for this job")
		return
	}

	// Prefer redirecting to object storage when the artifact lives there.
	if artifactURL != "" && storage.Client != nil {
		if presignedURL, err := storage.GetPresignedURL(r.Context(), artifactURL); err == nil {
			http.Redirect(w, r, presignedURL, http.StatusTemporaryRedirect)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+".mokuro"))
	w.WriteHeader(http.StatusOK)
	w.Write(artifact)
}

// DeleteJob removes a job and its stored artifact
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	vars := mux.Vars(r)
	jobID := vars["id"]

	snap := h.store.Delete(jobID)
	if snap == nil {
		h.sendError(w, http.StatusNotFound, "job not found")
		return
	}

	// Clean up the stored artifact and record (ignore errors)
	if storage.Client != nil && snap.ArtifactURL != "" {
		_ = storage.DeleteArtifact(ctx, snap.ArtifactURL)
	}
	if db.Pool != nil {
		if _, err := uuid.Parse(jobID); err == nil {
			_ = db.DeleteJobRecord(ctx, jobID)
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "job deleted",
	})
}

// ListJobs returns all known jobs, newest first
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	list := h.store.List()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"jobs":    list,
		"count":   len(list),
	})
}

// GetStats returns service statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	completed, active, total := h.store.Counts()
	health := h.runner.Health()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":        true,
		"jobs_total":     total,
		"jobs_active":    active,
		"jobs_completed": completed,
		"engine":         health.Engine,
		"device":         health.Device,
		"uptime":         time.Since(startTime).String(),
	})
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
