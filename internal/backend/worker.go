package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
)

// dequeueBackoff is how long a worker waits after a failed dequeue.
const dequeueBackoff = time.Second

// Dequeuer is the consuming side of a durable queue.
type Dequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	Length(ctx context.Context) (int64, error)
}

// WorkerConfig holds configuration for a queue worker
type WorkerConfig struct {
	Concurrency    int
	JobTimeout     time.Duration
	DequeueTimeout time.Duration
}

// Worker consumes a durable queue in a dedicated process. Coordination with
// the API process happens only through the queue and the status store.
type Worker struct {
	queue   Dequeuer
	handler Handler
	config  WorkerConfig
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewWorker creates a worker for the queue
func NewWorker(queue Dequeuer, handler Handler, config WorkerConfig, m *metrics.Metrics) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultPoolSize
	}
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = defaultBlockTimeout
	}
	return &Worker{
		queue:   queue,
		handler: handler,
		config:  config,
		log:     logger.Default().WithComponent("backend.worker"),
		metrics: m,
	}
}

// Start launches the consumer loops
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(loopCtx, i)
	}

	w.log.Info(ctx, "queue worker started", map[string]interface{}{"concurrency": w.config.Concurrency})
}

// Stop stops dequeuing and waits for in-flight jobs.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info(ctx, "queue worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.log.Warn(ctx, "queue worker shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		task, err := w.queue.Dequeue(ctx, w.config.DequeueTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error(ctx, "failed to dequeue job", err, map[string]interface{}{"worker": id})
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}

		w.log.Info(ctx, "processing job", map[string]interface{}{
			"worker":     id,
			"job_id":     task.JobID,
			"batch_id":   task.BatchID,
			"queued_for": time.Since(task.EnqueuedAt).String(),
		})
		if _, err := w.queue.Length(ctx); err != nil {
			w.log.Debug(ctx, "failed to read queue length", map[string]interface{}{"error": err.Error()})
		}

		// In-flight jobs finish even when the worker is stopping.
		run(w.log, w.handler, *task, w.config.JobTimeout)
	}
}
