// Package backend provides the execution backends jobs run on: a detached
// goroutine per task, a bounded in-process pool, and a Redis list consumed
// by separate worker processes.
package backend

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/logger"
)

// Backend names
const (
	NameBackground = "background"
	NamePool       = "pool"
	NameQueue      = "queue"
)

// DefaultJobTimeout bounds the wall-clock time of a single task.
const DefaultJobTimeout = time.Hour

var (
	ErrNotRunning = errors.New("backend is not running")
	ErrQueueEmpty = errors.New("queue is empty")
)

// Task is one unit of work handed to a backend.
type Task struct {
	JobID        string    `json:"job_id"`
	URL          string    `json:"url"`
	StartTime    string    `json:"start_time,omitempty"`
	EndTime      string    `json:"end_time,omitempty"`
	AudioOnly    bool      `json:"audio_only"`
	PersistLocal bool      `json:"persist_local"`
	BatchID      string    `json:"batch_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Handler runs a task. Returned errors are logged only; the handler is
// responsible for recording job failures.
type Handler func(ctx context.Context, task Task) error

// Handle identifies a submitted task. Callers usually discard it.
type Handle struct {
	JobID       string
	Backend     string
	SubmittedAt time.Time
}

// Executor accepts tasks for asynchronous execution.
type Executor interface {
	Name() string
	Submit(ctx context.Context, task Task) (*Handle, error)
}

// run executes handler under the job timeout and converts panics into errors.
func run(log *logger.Logger, handler Handler, task Task, timeout time.Duration) (err error) {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	base := apperrors.WithRequestID(context.Background(), task.RequestID)
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", task.JobID, r)
			log.Error(base, "job panicked", err, map[string]interface{}{
				"job_id": task.JobID,
				"stack":  string(debug.Stack()),
			})
		}
	}()

	err = handler(ctx, task)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn(base, "job abandoned after timeout", map[string]interface{}{
			"job_id":  task.JobID,
			"timeout": timeout.String(),
		})
	}
	if err != nil {
		log.Error(base, "job handler returned error", err, map[string]interface{}{
			"job_id": task.JobID,
		})
	}
	return err
}
