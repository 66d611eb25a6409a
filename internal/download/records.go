package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/store"
)

// Key prefixes in the status store
const (
	keyJob   = "download:"
	keyBatch = "batch:"
)

// JobKey returns the status store key of a job record.
func JobKey(id string) string { return keyJob + id }

// BatchKey returns the status store key of a batch record.
func BatchKey(id string) string { return keyBatch + id }

// Records reads and writes job and batch records.
type Records struct {
	store *store.StatusStore
	now   func() time.Time
}

// NewRecords wraps a status store.
func NewRecords(s *store.StatusStore) *Records {
	return &Records{store: s, now: time.Now}
}

// Store returns the underlying status store.
func (r *Records) Store() *store.StatusStore { return r.store }

// SaveJob writes the record, stamping UpdatedAt.
func (r *Records) SaveJob(ctx context.Context, job *JobRecord) error {
	job.UpdatedAt = r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := r.store.Put(ctx, JobKey(job.ID), job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns the job record or a NOT_FOUND app error.
func (r *Records) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	var job JobRecord
	if err := r.store.Get(ctx, JobKey(id), &job); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("job").WithDetails(map[string]any{"job_id": id})
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if job.ID == "" {
		job.ID = id
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.Progress == "" {
		job.Progress = progressStart
	}
	return &job, nil
}

// JobExists reports whether a job record is still stored.
func (r *Records) JobExists(ctx context.Context, id string) (bool, error) {
	_, err := r.GetJob(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case apperrors.HasCode(err, apperrors.CodeNotFound):
		return false, nil
	default:
		return false, err
	}
}

// DeleteJob removes the job record.
func (r *Records) DeleteJob(ctx context.Context, id string) error {
	return r.store.Delete(ctx, JobKey(id))
}

// SaveBatch writes the batch record.
func (r *Records) SaveBatch(ctx context.Context, batch *BatchRecord) error {
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = r.now()
	}
	if err := r.store.Put(ctx, BatchKey(batch.ID), batch); err != nil {
		return fmt.Errorf("failed to save batch %s: %w", batch.ID, err)
	}
	return nil
}

// GetBatch returns the batch record or a NOT_FOUND app error.
func (r *Records) GetBatch(ctx context.Context, id string) (*BatchRecord, error) {
	var batch BatchRecord
	if err := r.store.Get(ctx, BatchKey(id), &batch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("batch").WithDetails(map[string]any{"batch_id": id})
		}
		return nil, fmt.Errorf("failed to get batch %s: %w", id, err)
	}
	if batch.ID == "" {
		batch.ID = id
	}
	if batch.Total == 0 {
		batch.Total = len(batch.JobIDs)
	}
	return &batch, nil
}

// DeleteBatch removes the batch record.
func (r *Records) DeleteBatch(ctx context.Context, id string) error {
	return r.store.Delete(ctx, BatchKey(id))
}

// transition moves job to status, applying mutate, and persists it.
// Backward moves are refused.
func (r *Records) transition(ctx context.Context, job *JobRecord, to Status, mutate func(*JobRecord)) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", job.ID, job.Status, to)
	}
	job.Status = to
	if mutate != nil {
		mutate(job)
	}
	job.Ready = to == StatusCompleted
	return r.SaveJob(ctx, job)
}
