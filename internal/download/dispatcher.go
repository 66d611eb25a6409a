package download

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yudee-19/video-downloader/internal/backend"
	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/validators"
)

// SubmitRequest is a single download request.
type SubmitRequest struct {
	URL       string `json:"url"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	AudioOnly bool   `json:"audio_only,omitempty"`
}

// BatchItem is one entry of a per-item batch.
type BatchItem struct {
	URL       string `json:"url"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// BatchRequest is either a list of items or a list of URLs sharing one
// trim window. Items win when both are present.
type BatchRequest struct {
	Items     []BatchItem `json:"items,omitempty"`
	URLs      []string    `json:"urls,omitempty"`
	StartTime string      `json:"start_time,omitempty"`
	EndTime   string      `json:"end_time,omitempty"`
	AudioOnly bool        `json:"audio_only,omitempty"`
}

// normalize flattens the request into per-item form.
func (r BatchRequest) normalize() []BatchItem {
	if len(r.Items) > 0 {
		return r.Items
	}
	items := make([]BatchItem, 0, len(r.URLs))
	for _, u := range r.URLs {
		items = append(items, BatchItem{URL: u, StartTime: r.StartTime, EndTime: r.EndTime})
	}
	return items
}

// DurableExecutor is an executor whose queued work outlives this process.
type DurableExecutor interface {
	backend.Executor
	Ping(ctx context.Context) error
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Records    *Records
	Validators *validators.Registry
	// Single runs single-job submissions
	Single backend.Executor
	// Fallback takes single jobs Single refused; nil fails them instead
	Fallback backend.Executor
	// Durable runs batch items; nil rejects batches
	Durable DurableExecutor
	// BatchPersistLocal keeps batch artifacts on disk instead of uploading
	BatchPersistLocal bool
}

// Dispatcher creates job records and hands jobs to execution backends.
type Dispatcher struct {
	records           *Records
	validators        *validators.Registry
	single            backend.Executor
	fallback          backend.Executor
	durable           DurableExecutor
	batchPersistLocal bool
	log               *logger.Logger
	newID             func() string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Validators == nil {
		cfg.Validators = validators.DefaultRegistry()
	}
	return &Dispatcher{
		records:           cfg.Records,
		validators:        cfg.Validators,
		single:            cfg.Single,
		fallback:          cfg.Fallback,
		durable:           cfg.Durable,
		batchPersistLocal: cfg.BatchPersistLocal,
		log:               logger.Default().WithComponent("dispatcher"),
		newID:             func() string { return uuid.New().String() },
	}
}

// validate checks url and returns the detected platform.
func (d *Dispatcher) validate(url string) (validators.ValidationResult, error) {
	if strings.TrimSpace(url) == "" {
		return validators.ValidationResult{}, apperrors.InvalidInput("url is required")
	}
	res := d.validators.Validate(url)
	if !res.Valid {
		return res, apperrors.InvalidInput(fmt.Sprintf("invalid url: %s", res.Error)).
			WithDetails(map[string]any{"url": url, "platform": res.Platform})
	}
	return res, nil
}

func (d *Dispatcher) newRecord(v validators.ValidationResult, item BatchItem, audioOnly bool, batchID string) *JobRecord {
	return &JobRecord{
		ID:        d.newID(),
		Status:    StatusQueued,
		Progress:  progressStart,
		SourceURL: v.URL,
		StartTime: item.StartTime,
		EndTime:   item.EndTime,
		AudioOnly: audioOnly,
		Platform:  string(v.Platform),
		BatchID:   batchID,
	}
}

func taskFor(ctx context.Context, job *JobRecord, persistLocal bool) backend.Task {
	return backend.Task{
		JobID:        job.ID,
		URL:          job.SourceURL,
		StartTime:    job.StartTime,
		EndTime:      job.EndTime,
		AudioOnly:    job.AudioOnly,
		PersistLocal: persistLocal,
		BatchID:      job.BatchID,
		RequestID:    apperrors.GetRequestID(ctx),
		EnqueuedAt:   time.Now(),
	}
}

// SubmitSingle records a queued job and hands it to the single-job
// backend. The artifact stays on local disk.
func (d *Dispatcher) SubmitSingle(ctx context.Context, req SubmitRequest) (string, error) {
	v, err := d.validate(req.URL)
	if err != nil {
		return "", err
	}

	job := d.newRecord(v, BatchItem{StartTime: req.StartTime, EndTime: req.EndTime}, req.AudioOnly, "")
	if err := d.records.SaveJob(ctx, job); err != nil {
		return "", apperrors.InternalError("failed to record job").WithCause(err)
	}

	task := taskFor(ctx, job, true)
	runner := d.single
	if _, err := runner.Submit(ctx, task); err != nil {
		if d.fallback == nil {
			d.markUndispatched(ctx, job, err)
			return "", apperrors.BackendUnavailable(runner.Name() + " backend").WithCause(err)
		}

		d.log.Warn(ctx, "single backend unavailable, running job in process", map[string]interface{}{
			"job_id":   job.ID,
			"backend":  runner.Name(),
			"fallback": d.fallback.Name(),
			"error":    err.Error(),
		})
		runner = d.fallback
		if _, err := runner.Submit(ctx, task); err != nil {
			d.markUndispatched(ctx, job, err)
			return "", apperrors.BackendUnavailable(runner.Name() + " backend").WithCause(err)
		}
	}

	d.log.Info(ctx, "job submitted", map[string]interface{}{
		"job_id":   job.ID,
		"backend":  runner.Name(),
		"platform": job.Platform,
	})
	return job.ID, nil
}

// SubmitBatch records and enqueues one job per item on the durable
// backend, then writes the batch record.
func (d *Dispatcher) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchRecord, error) {
	items := req.normalize()
	if len(items) == 0 {
		return nil, apperrors.InvalidInput("No items or urls provided for batch download")
	}

	validated := make([]validators.ValidationResult, len(items))
	for i, item := range items {
		v, err := d.validate(item.URL)
		if err != nil {
			if appErr, ok := apperrors.AsAppError(err); ok {
				details := map[string]any{"index": i, "url": item.URL}
				return nil, appErr.WithDetails(details)
			}
			return nil, err
		}
		validated[i] = v
	}

	if d.durable == nil {
		return nil, apperrors.BackendUnavailable("durable queue")
	}
	if err := d.durable.Ping(ctx); err != nil {
		return nil, apperrors.BackendUnavailable("durable queue").WithCause(err)
	}

	batch := &BatchRecord{
		ID:        d.newID(),
		JobIDs:    make([]string, 0, len(items)),
		AudioOnly: req.AudioOnly,
	}

	enqueued := 0
	var lastErr error
	for i, item := range items {
		job := d.newRecord(validated[i], item, req.AudioOnly, batch.ID)
		if err := d.records.SaveJob(ctx, job); err != nil {
			return nil, apperrors.InternalError("failed to record job").WithCause(err)
		}
		batch.JobIDs = append(batch.JobIDs, job.ID)

		if _, err := d.durable.Submit(ctx, taskFor(ctx, job, d.batchPersistLocal)); err != nil {
			d.markUndispatched(ctx, job, err)
			lastErr = err
			continue
		}
		enqueued++
	}

	if enqueued == 0 {
		return nil, apperrors.BackendUnavailable("durable queue").WithCause(lastErr)
	}

	batch.Total = len(batch.JobIDs)
	if err := d.records.SaveBatch(ctx, batch); err != nil {
		return nil, apperrors.InternalError("failed to record batch").WithCause(err)
	}

	d.log.Info(ctx, "batch submitted", map[string]interface{}{
		"batch_id": batch.ID,
		"total":    batch.Total,
		"enqueued": enqueued,
	})
	return batch, nil
}

func (d *Dispatcher) markUndispatched(ctx context.Context, job *JobRecord, cause error) {
	if err := d.records.transition(ctx, job, StatusFailed, func(j *JobRecord) {
		j.Error = "failed to dispatch job: " + cause.Error()
	}); err != nil {
		d.log.Error(ctx, "failed to record dispatch failure", err, map[string]interface{}{"job_id": job.ID})
	}
}
