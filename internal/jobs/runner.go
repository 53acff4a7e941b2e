package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FrederickIge/sentence-samurai-backend/internal/db"
	"github.com/FrederickIge/sentence-samurai-backend/internal/imaging"
	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/ocr"
	"github.com/FrederickIge/sentence-samurai-backend/internal/pdfsplit"
	"github.com/FrederickIge/sentence-samurai-backend/internal/storage"
	"github.com/FrederickIge/sentence-samurai-backend/internal/volume"
)

// ErrBadInput marks request-shaped failures (missing images, unknown types)
// so the API layer can answer 400 instead of 500.
var ErrBadInput = errors.New("bad input")

// Runner turns decoded job inputs into engine invocations and reassembled
// results.
type Runner struct {
	engine  ocr.Engine
	store   *Store
	cfg     models.Config
	workDir string
}

// NewRunner wires a runner to an engine and a job store.
func NewRunner(engine ocr.Engine, store *Store, cfg models.Config) *Runner {
	return &Runner{
		engine:  engine,
		store:   store,
		cfg:     cfg,
		workDir: os.TempDir(),
	}
}

// Available reports whether the engine can take jobs.
func (r *Runner) Available() error {
	return r.engine.Available()
}

// Health reports engine and device status without touching the store.
func (r *Runner) Health() models.HealthOutput {
	device := r.engine.Device()
	return models.HealthOutput{
		Status:       "healthy",
		Device:       device,
		GPUAvailable: device != "cpu",
		Engine:       r.engine.Name(),
	}
}

// preparedInput is a request payload decoded down to raw page bytes.
type preparedInput struct {
	title      string
	startIndex int
	images     [][]byte
}

// Submit validates and enqueues a job, returning immediately. The job runs
// in the background; pollers follow it through the store.
func (r *Runner) Submit(input models.JobInput) (*models.JobStatus, error) {
	prepared, err := r.prepare(input)
	if err != nil {
		return nil, err
	}

	job := r.store.Create(input.Type, prepared.title, len(prepared.images))
	go r.run(context.Background(), job.ID, input.Type, prepared)
	return r.store.Get(job.ID), nil
}

// RunSync executes a job to completion in the caller's context.
func (r *Runner) RunSync(ctx context.Context, input models.JobInput) (*models.JobStatus, error) {
	prepared, err := r.prepare(input)
	if err != nil {
		return nil, err
	}

	job := r.store.Create(input.Type, prepared.title, len(prepared.images))
	r.run(ctx, job.ID, input.Type, prepared)
	return r.store.Get(job.ID), nil
}

// prepare decodes the discriminated payload into page image bytes.
func (r *Runner) prepare(input models.JobInput) (*preparedInput, error) {
	switch input.Type {
	case models.TypeProcessSingle:
		if input.Image == "" {
			return nil, fmt.Errorf("%w: no image data provided", ErrBadInput)
		}
		data, err := decodeBase64Image(input.Image)
		if err != nil {
			return nil, err
		}
		return &preparedInput{startIndex: input.PageIndex, images: [][]byte{data}}, nil

	case models.TypeProcessBatch:
		if len(input.Images) == 0 {
			return nil, fmt.Errorf("%w: no images provided", ErrBadInput)
		}
		images := make([][]byte, 0, len(input.Images))
		for i, b64 := range input.Images {
			data, err := decodeBase64Image(b64)
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			images = append(images, data)
		}
		return &preparedInput{title: input.Title, images: images}, nil

	case models.TypeProcessPDF:
		if input.PDF == "" {
			return nil, fmt.Errorf("%w: no pdf data provided", ErrBadInput)
		}
		data, err := decodeBase64Image(input.PDF)
		if err != nil {
			return nil, err
		}
		pages, err := pdfsplit.ExtractPages(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
		}
		return &preparedInput{title: input.Title, images: pages}, nil

	default:
		return nil, fmt.Errorf("%w: unknown request type: %s", ErrBadInput, input.Type)
	}
}

// run drives one job to COMPLETED or FAILED. Engine panics are converted to
// job failures carrying the stack, never process crashes.
func (r *Runner) run(ctx context.Context, jobID, jobType string, prepared *preparedInput) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Job %s: panic: %v", jobID, rec)
			r.store.Fail(jobID, fmt.Sprintf("panic: %v", rec), string(debug.Stack()))
			r.persist(jobID)
		}
	}()

	r.store.Start(jobID)
	title := prepared.title
	if title == "" {
		title = "Manga " + jobID[:8]
	}
	total := len(prepared.images)
	log.Printf("Job %s: starting %s (%d pages, title=%q, engine=%s)", jobID, jobType, total, title, r.engine.Name())

	// Preprocessing stage (0-10%): optimize pages and note blank ones.
	var blanks []int
	opts := imaging.Options{
		MaxHeight:   r.cfg.Processing.MaxImageHeight,
		JPEGQuality: r.cfg.Processing.JPEGQuality,
	}
	for i := range prepared.images {
		prepared.images[i] = imaging.Optimize(prepared.images[i], opts)
		if !r.cfg.Processing.SkipBlankCheck && imaging.IsBlank(prepared.images[i], r.cfg.Processing.BlankVariance) {
			blanks = append(blanks, prepared.startIndex+i)
		}
	}
	if len(blanks) > 0 {
		log.Printf("Job %s: %d blank page(s) detected: %v", jobID, len(blanks), blanks)
	}
	r.store.SetProgress(jobID, 10, "ocr", 0)

	results, missing, artifact, err := r.processVolumes(ctx, jobID, title, prepared.startIndex, prepared.images)
	if err != nil {
		log.Printf("Job %s: failed: %v", jobID, err)
		r.store.Fail(jobID, err.Error(), "")
		r.persist(jobID)
		return
	}
	if len(missing) > 0 {
		log.Printf("Job %s: engine produced no output for page(s) %v", jobID, missing)
	}

	r.store.SetProgress(jobID, 90, "finalize", total)

	var artifactURL string
	if storage.Client != nil {
		url, err := storage.UploadArtifact(ctx, jobID, artifact)
		if err != nil {
			// Artifact storage is optional; the response still carries results.
			log.Printf("Warning: job %s: failed to upload artifact: %v", jobID, err)
		} else {
			artifactURL = url
		}
	}

	var output interface{}
	switch jobType {
	case models.TypeProcessSingle:
		results[0].Success = true
		output = models.SingleOutput{Status: "success", Result: &results[0]}
	default:
		output = models.BatchOutput{
			Status:       "success",
			Title:        title,
			Pages:        results,
			BlankPages:   blanks,
			MissingPages: missing,
		}
	}

	r.store.Complete(jobID, output, artifact, artifactURL)
	r.persist(jobID)

	snap := r.store.Get(jobID)
	log.Printf("Job %s: complete in %.2fs (%d pages)", jobID, snap.ElapsedTime, total)
}

// processVolumes splits the pages into chunk volumes, runs them through the
// engine with bounded parallelism, and merges per-chunk aggregates back into
// request order.
func (r *Runner) processVolumes(ctx context.Context, jobID, title string, startIndex int, images [][]byte) ([]models.PageResult, []int, []byte, error) {
	parent, err := os.MkdirTemp(r.workDir, "ocrjob-")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(parent)

	chunkSize := r.cfg.Processing.ChunkSize
	if chunkSize <= 0 || chunkSize > len(images) {
		chunkSize = len(images)
	}

	var vols []*volume.Volume
	for ci, off := 0, 0; off < len(images); ci, off = ci+1, off+chunkSize {
		end := off + chunkSize
		if end > len(images) {
			end = len(images)
		}
		vol, err := volume.NewVolume(parent, fmt.Sprintf("chunk_%03d", ci), title, startIndex+off, images[off:end])
		if err != nil {
			return nil, nil, nil, err
		}
		vols = append(vols, vol)
	}

	done := make(chan struct{})
	go r.monitorProgress(jobID, vols, len(images), done)
	defer close(done)

	maxParallel := r.cfg.Processing.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	aggs := make([]*volume.Aggregate, len(vols))
	chunkResults := make([][]models.PageResult, len(vols))
	chunkMissing := make([][]int, len(vols))

	for ci, vol := range vols {
		g.Go(func() error {
			if err := r.engine.ProcessVolume(gctx, vol); err != nil {
				return err
			}
			path, err := vol.LocateAggregate()
			if err != nil {
				return err
			}
			agg, err := volume.ParseAggregate(path)
			if err != nil {
				return err
			}
			first := volume.PageIndexFromName(vol.Pages[0])
			results, missing := volume.Reassemble(agg, first, len(vol.Pages))
			aggs[ci] = agg
			chunkResults[ci] = results
			chunkMissing[ci] = missing
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	merged := &volume.Aggregate{Title: title}
	var results []models.PageResult
	var missing []int
	for ci := range vols {
		if merged.Version == "" {
			merged.Version = aggs[ci].Version
		}
		merged.Pages = append(merged.Pages, aggs[ci].Pages...)
		results = append(results, chunkResults[ci]...)
		missing = append(missing, chunkMissing[ci]...)
	}

	artifact, err := json.Marshal(merged)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode artifact: %w", err)
	}
	return results, missing, artifact, nil
}

// monitorProgress advances the job's OCR progress (10-89%) by counting the
// per-page cache files the engine leaves behind. It is the only progress
// signal the engine offers.
func (r *Runner) monitorProgress(jobID string, vols []*volume.Volume, total int, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			processed := 0
			for _, vol := range vols {
				processed += vol.ProcessedPageCount()
			}
			if processed == 0 || total == 0 {
				continue
			}
			progress := 10 + processed*80/total
			if progress > 89 {
				progress = 89
			}
			r.store.SetProgress(jobID, progress, "ocr", processed)
		}
	}
}

// persist mirrors a finished job into Postgres when configured.
func (r *Runner) persist(jobID string) {
	if db.Pool == nil {
		return
	}
	snap := r.store.Get(jobID)
	if snap == nil {
		return
	}
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return
	}
	now := time.Now()
	rec := &db.JobRecord{
		ID:          id,
		Status:      snap.Status,
		Type:        snap.Type,
		Title:       snap.Title,
		TotalPages:  snap.TotalPages,
		ElapsedSecs: snap.ElapsedTime,
		Error:       snap.Error,
		ArtifactURL: snap.ArtifactURL,
		CreatedAt:   snap.CreatedAt,
		FinishedAt:  &now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.SaveJobRecord(ctx, rec); err != nil {
		log.Printf("Warning: failed to save job record %s: %v", snap.ID, err)
	}
}

// decodeBase64Image decodes a base64 payload, tolerating data-URL prefixes
// ("data:image/png;base64,....") the way browser clients send them.
func decodeBase64Image(s string) ([]byte, error) {
	if i := strings.Index(s, ","); i >= 0 && strings.Contains(s[:i], ";base64") {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image data: %v", ErrBadInput, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrBadInput)
	}
	return data, nil
}
