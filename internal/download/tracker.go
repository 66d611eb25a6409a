package download

import (
	"context"
	"time"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

// BatchStatus is the derived state of a batch. Completed, Failed and
// InProgress always sum to Total.
type BatchStatus struct {
	BatchID    string       `json:"batch_id"`
	Total      int          `json:"total"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	InProgress int          `json:"in_progress"`
	CreatedAt  time.Time    `json:"created_at"`
	Downloads  []*JobRecord `json:"-"`
}

// Done reports whether every member reached a terminal state.
func (b *BatchStatus) Done() bool {
	return b.InProgress == 0
}

// Tracker aggregates member job records into batch counts.
type Tracker struct {
	records *Records
}

// NewTracker creates a Tracker.
func NewTracker(records *Records) *Tracker {
	return &Tracker{records: records}
}

// Status reads the batch and every member record. Members whose record has
// expired count as failed.
func (t *Tracker) Status(ctx context.Context, batchID string) (*BatchStatus, error) {
	batch, err := t.records.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	status := &BatchStatus{
		BatchID:   batch.ID,
		Total:     len(batch.JobIDs),
		CreatedAt: batch.CreatedAt,
		Downloads: make([]*JobRecord, 0, len(batch.JobIDs)),
	}

	for _, id := range batch.JobIDs {
		job, err := t.records.GetJob(ctx, id)
		if err != nil {
			if !apperrors.HasCode(err, apperrors.CodeNotFound) {
				return nil, err
			}
			job = &JobRecord{
				ID:       id,
				Status:   StatusFailed,
				Progress: progressStart,
				Error:    "job record expired",
				BatchID:  batch.ID,
			}
		}
		status.Downloads = append(status.Downloads, job)

		switch job.Status {
		case StatusCompleted:
			status.Completed++
		case StatusFailed:
			status.Failed++
		default:
			status.InProgress++
		}
	}
	return status, nil
}
