package backend

import (
	"context"
	"sync"
	"time"

	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
)

// DefaultPoolSize is the number of pool workers when none is configured.
const DefaultPoolSize = 3

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	Size       int
	JobTimeout time.Duration
}

// Pool runs tasks on a fixed number of goroutines. Tasks submitted while
// all workers are busy wait in an in-memory FIFO.
type Pool struct {
	handler    Handler
	size       int
	jobTimeout time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	pending  []Task
	notify   chan struct{}
	stopChan chan struct{}
	running  bool
	wg       sync.WaitGroup
}

// NewPool creates a new worker pool
func NewPool(handler Handler, config PoolConfig, m *metrics.Metrics) *Pool {
	size := config.Size
	if size <= 0 {
		size = DefaultPoolSize
	}

	return &Pool{
		handler:    handler,
		size:       size,
		jobTimeout: config.JobTimeout,
		log:        logger.Default().WithComponent("backend.pool"),
		metrics:    m,
		notify:     make(chan struct{}, 1),
	}
}

func (p *Pool) Name() string { return NamePool }

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches the workers
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.stopChan = make(chan struct{})

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i, p.stopChan)
	}

	p.log.Info(context.Background(), "worker pool started", map[string]interface{}{"workers": p.size})
}

// Stop stops accepting tasks and waits for in-flight tasks to complete.
// Tasks still waiting in the FIFO are dropped.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopChan)
	dropped := len(p.pending)
	p.pending = nil
	p.mu.Unlock()

	if dropped > 0 {
		p.log.Warn(ctx, "worker pool stopped with pending tasks", map[string]interface{}{"dropped": dropped})
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info(ctx, "worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.log.Warn(ctx, "worker pool shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the worker pool is currently running
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Pending returns the number of tasks waiting for a free worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Submit queues the task for the next free worker.
func (p *Pool) Submit(_ context.Context, task Task) (*Handle, error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, ErrNotRunning
	}
	p.pending = append(p.pending, task)
	p.mu.Unlock()

	p.signal()
	p.metrics.JobSubmitted(NamePool)
	return &Handle{JobID: task.JobID, Backend: NamePool, SubmittedAt: time.Now()}, nil
}

func (p *Pool) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return Task{}, false
	}
	task := p.pending[0]
	p.pending = p.pending[1:]
	if len(p.pending) > 0 {
		p.signal()
	}
	return task, true
}

// worker is the main loop for a single worker
func (p *Pool) worker(id int, stop <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		task, ok := p.next()
		if !ok {
			select {
			case <-stop:
				return
			case <-p.notify:
			}
			continue
		}

		p.log.Debug(context.Background(), "worker picked up job", map[string]interface{}{
			"worker": id,
			"job_id": task.JobID,
		})
		run(p.log, p.handler, task, p.jobTimeout)
	}
}
