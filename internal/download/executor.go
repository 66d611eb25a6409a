package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Yudee-19/video-downloader/internal/backend"
	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
	"github.com/Yudee-19/video-downloader/internal/storage"
	"github.com/Yudee-19/video-downloader/internal/ytdlp"
)

// MediaResolver resolves or downloads a source URL.
type MediaResolver interface {
	Resolve(ctx context.Context, req ytdlp.Request) (*ytdlp.Resolution, error)
}

// Trimmer produces a stream-copied, time-bounded copy of a file.
type Trimmer interface {
	Trim(ctx context.Context, in, start, end string) (string, error)
}

// ExecutorConfig wires the collaborators of an Executor.
type ExecutorConfig struct {
	Records  *Records
	Resolver MediaResolver
	Trimmer  Trimmer
	// Objects receives artifacts of jobs that do not persist locally; nil
	// keeps every artifact on disk
	Objects    storage.ObjectStore
	ScratchDir string
	Retry      *apperrors.RetryConfig
	Metrics    *metrics.Metrics
}

// Executor runs one job end to end and records every step.
type Executor struct {
	records    *Records
	resolver   MediaResolver
	trimmer    Trimmer
	objects    storage.ObjectStore
	scratchDir string
	retry      *apperrors.RetryConfig
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Retry == nil {
		cfg.Retry = apperrors.UploadRetryConfig()
	}
	return &Executor{
		records:    cfg.Records,
		resolver:   cfg.Resolver,
		trimmer:    cfg.Trimmer,
		objects:    cfg.Objects,
		scratchDir: cfg.ScratchDir,
		retry:      cfg.Retry,
		log:        logger.Default().WithComponent("executor"),
		metrics:    cfg.Metrics,
	}
}

// Handler adapts Execute to the backend handler signature.
func (e *Executor) Handler() backend.Handler {
	return e.Execute
}

// errJobRemoved stops a job whose record was cleaned up while it ran.
var errJobRemoved = errors.New("job record removed")

// JobDir is the scratch directory owned by a job.
func JobDir(scratchDir, jobID string) string {
	return filepath.Join(scratchDir, jobID)
}

// Execute downloads, optionally trims and uploads the job's media. Every
// failure is recorded on the job; the returned error is informational.
func (e *Executor) Execute(ctx context.Context, task backend.Task) error {
	started := time.Now()
	fields := map[string]interface{}{"job_id": task.JobID, "url": task.URL}

	job := e.load(ctx, task)

	err := e.execute(ctx, job, task)
	if errors.Is(err, errJobRemoved) {
		if rmErr := os.RemoveAll(JobDir(e.scratchDir, job.ID)); rmErr != nil {
			e.log.Warn(ctx, "failed to delete job directory", map[string]interface{}{"job_id": job.ID, "error": rmErr.Error()})
		}
		e.log.Info(ctx, "job cleaned up while running, discarding output", fields)
		return nil
	}
	if err == nil {
		e.metrics.JobFinished(string(StatusCompleted), time.Since(started))
		e.log.Info(ctx, "job completed", fields)
		return nil
	}

	e.metrics.JobFinished(string(StatusFailed), time.Since(started))
	e.log.Error(ctx, "job failed", err, fields)
	return err
}

// load fetches the queued record so batch metadata survives; a missing
// record is rebuilt from the task.
func (e *Executor) load(ctx context.Context, task backend.Task) *JobRecord {
	job, err := e.records.GetJob(ctx, task.JobID)
	if err == nil {
		return job
	}
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		e.log.Warn(ctx, "failed to load job record, rebuilding from task", map[string]interface{}{
			"job_id": task.JobID,
			"error":  err.Error(),
		})
	}
	return &JobRecord{
		ID:        task.JobID,
		Status:    StatusQueued,
		Progress:  progressStart,
		SourceURL: task.URL,
		StartTime: task.StartTime,
		EndTime:   task.EndTime,
		AudioOnly: task.AudioOnly,
		BatchID:   task.BatchID,
	}
}

func (e *Executor) execute(ctx context.Context, job *JobRecord, task backend.Task) error {
	if job.IsTerminal() {
		e.log.Warn(ctx, "job already finished, skipping", map[string]interface{}{
			"job_id": job.ID,
			"status": string(job.Status),
		})
		return nil
	}

	if err := e.records.transition(ctx, job, StatusDownloading, func(j *JobRecord) {
		j.Progress = progressStart
	}); err != nil {
		return e.fail(ctx, job, err)
	}

	jobDir := JobDir(e.scratchDir, job.ID)
	res, err := e.resolver.Resolve(ctx, ytdlp.Request{
		URL:       job.SourceURL,
		Mode:      ytdlp.ModeDownload,
		AudioOnly: job.AudioOnly,
		OutputDir: jobDir,
	})
	if err != nil {
		os.RemoveAll(jobDir)
		return e.fail(ctx, job, err)
	}
	path := res.FilePath
	job.Title = res.Title

	if job.WantsTrim() {
		if path, err = e.trim(ctx, job, path); err != nil {
			return err
		}
	}

	if !task.PersistLocal && e.objects != nil {
		return e.upload(ctx, job, path)
	}

	if err := e.advance(ctx, job, StatusCompleted, func(j *JobRecord) {
		j.Progress = progressDone
		j.Filename = filepath.Base(path)
		j.LocalPath = path
		j.Error = ""
	}); err != nil {
		return e.fail(ctx, job, err)
	}
	return nil
}

// advance is transition for a job already under way: a record deleted by
// cleanup is not written back.
func (e *Executor) advance(ctx context.Context, job *JobRecord, to Status, mutate func(*JobRecord)) error {
	exists, err := e.records.JobExists(ctx, job.ID)
	if err == nil && !exists {
		return errJobRemoved
	}
	return e.records.transition(ctx, job, to, mutate)
}

// trim returns the trimmed artifact path, or the original path when
// trimming fails.
func (e *Executor) trim(ctx context.Context, job *JobRecord, path string) (string, error) {
	if err := e.advance(ctx, job, StatusTrimming, func(j *JobRecord) {
		j.Progress = progressTrimming
	}); errors.Is(err, errJobRemoved) {
		return "", err
	} else if err != nil {
		e.log.Warn(ctx, "failed to record trimming status", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
	}

	trimmed, err := e.trimmer.Trim(ctx, path, job.StartTime, job.EndTime)
	if err != nil {
		e.log.Warn(ctx, "trimming failed, keeping untrimmed artifact", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return path, nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.Warn(ctx, "failed to remove pre-trim artifact", map[string]interface{}{"path": path, "error": err.Error()})
	}
	return trimmed, nil
}

func (e *Executor) upload(ctx context.Context, job *JobRecord, path string) error {
	if err := e.advance(ctx, job, StatusUploading, func(j *JobRecord) {
		j.Progress = progressUpload
		j.Filename = filepath.Base(path)
	}); err != nil {
		return e.fail(ctx, job, err)
	}

	key := storage.ObjectKey(job.ID, path)
	url, err := apperrors.RetryWithResult(ctx, e.retry, func(ctx context.Context) (string, error) {
		return e.objects.Upload(ctx, path, key)
	})
	if err != nil {
		// the artifact stays on disk for manual recovery
		job.LocalPath = path
		if !apperrors.HasCode(err, apperrors.CodeUploadError) {
			err = apperrors.UploadError("upload failed").WithCause(err)
		}
		return e.fail(ctx, job, err)
	}

	if err := e.advance(ctx, job, StatusCompleted, func(j *JobRecord) {
		j.Progress = progressDone
		j.RemoteURL = url
		j.LocalPath = ""
		j.Error = ""
	}); err != nil {
		return e.fail(ctx, job, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.Warn(ctx, "failed to remove uploaded artifact", map[string]interface{}{"path": path, "error": err.Error()})
	}
	os.Remove(filepath.Dir(path))
	return nil
}

// fail records the terminal failure. It writes with a context detached from
// ctx so jobs that hit their timeout are still recorded.
func (e *Executor) fail(ctx context.Context, job *JobRecord, cause error) error {
	if errors.Is(cause, errJobRemoved) {
		return cause
	}
	msg := failureMessage(ctx, cause)

	writeCtx, cancel := context.WithTimeout(apperrors.Detach(ctx), 10*time.Second)
	defer cancel()

	if err := e.advance(writeCtx, job, StatusFailed, func(j *JobRecord) {
		j.Progress = progressStart
		j.Error = msg
	}); errors.Is(err, errJobRemoved) {
		return err
	} else if err != nil {
		e.log.Error(ctx, "failed to record job failure", err, map[string]interface{}{"job_id": job.ID})
	}
	return cause
}

func failureMessage(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "job timed out"
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		if appErr.Cause != nil && appErr.Code != apperrors.CodeResolutionError {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Cause)
		}
		return appErr.Message
	}
	return err.Error()
}
