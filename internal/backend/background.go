package backend

import (
	"context"
	"sync"
	"time"

	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
)

// Background runs every task on its own goroutine. Tasks are lost if the
// process exits before they finish.
type Background struct {
	handler Handler
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewBackground creates a Background executor.
func NewBackground(handler Handler, timeout time.Duration, m *metrics.Metrics) *Background {
	return &Background{
		handler: handler,
		timeout: timeout,
		log:     logger.Default().WithComponent("backend.background"),
		metrics: m,
	}
}

func (b *Background) Name() string { return NameBackground }

// Submit starts the task and returns immediately.
func (b *Background) Submit(_ context.Context, task Task) (*Handle, error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		run(b.log, b.handler, task, b.timeout)
	}()

	b.metrics.JobSubmitted(NameBackground)
	return &Handle{JobID: task.JobID, Backend: NameBackground, SubmittedAt: time.Now()}, nil
}

// Wait blocks until running tasks finish or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
