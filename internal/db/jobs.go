package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobRecord is the persisted trace of a completed or failed job. The live job
// state stays in memory; rows here exist for history and billing queries.
type JobRecord struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	TotalPages  int        `json:"total_pages"`
	ElapsedSecs float64    `json:"elapsed_secs"`
	Error       string     `json:"error,omitempty"`
	ArtifactURL string     `json:"artifact_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// SaveJobRecord inserts a finished job's record.
func SaveJobRecord(ctx context.Context, rec *JobRecord) error {
	query := `
		INSERT INTO ocr_jobs (
			id, status, type, title, total_pages, elapsed_secs,
			error, artifact_url, created_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := Pool.Exec(ctx, query,
		rec.ID, rec.Status, rec.Type, rec.Title, rec.TotalPages, rec.ElapsedSecs,
		rec.Error, rec.ArtifactURL, rec.CreatedAt, rec.FinishedAt,
	)
	return err
}

// GetJobRecords returns the most recent job records.
func GetJobRecords(ctx context.Context, limit int) ([]JobRecord, error) {
	query := `
		SELECT id, status, type, COALESCE(title, ''), total_pages, elapsed_secs,
		       COALESCE(error, ''), COALESCE(artifact_url, ''), created_at, finished_at
		FROM ocr_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		var rec JobRecord
		err := rows.Scan(
			&rec.ID, &rec.Status, &rec.Type, &rec.Title, &rec.TotalPages, &rec.ElapsedSecs,
			&rec.Error, &rec.ArtifactURL, &rec.CreatedAt, &rec.FinishedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// DeleteJobRecord removes a job record.
func DeleteJobRecord(ctx context.Context, jobID string) error {
	_, err := Pool.Exec(ctx, `DELETE FROM ocr_jobs WHERE id = $1`, jobID)
	return err
}
