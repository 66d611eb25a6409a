package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/Yudee-19/video-downloader/internal/logger"
)

// Process is a running ffmpeg whose stdout is read through Read.
// Terminate and Close are safe to call more than once and after exit.
type Process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr io.WriteCloser
	grace  time.Duration
	log    *logger.Logger

	done    chan struct{}
	waitErr error

	termOnce   sync.Once
	terminated bool
	mu         sync.Mutex
	stopCtx    func() bool
}

func start(ctx context.Context, c *Command, stderr io.WriteCloser, grace time.Duration, log *logger.Logger) (*Process, error) {
	// os.Pipe instead of StdoutPipe so Wait never closes the read end
	// while the consumer is still draining it.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	cmd := exec.Command(c.Binary, c.Args...)
	cmd.Stdout = w
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		stderr.Close()
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	w.Close()

	p := &Process{
		cmd:    cmd,
		stdout: r,
		stderr: stderr,
		grace:  grace,
		log:    log,
		done:   make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		p.stderr.Close()
		close(p.done)
	}()

	p.stopCtx = context.AfterFunc(ctx, p.Terminate)
	return p, nil
}

// Read reads the next bytes of ffmpeg output.
func (p *Process) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits. A process stopped by Terminate
// reports no error.
func (p *Process) Wait() error {
	<-p.done
	p.mu.Lock()
	terminated := p.terminated
	p.mu.Unlock()
	if terminated {
		return nil
	}
	return p.waitErr
}

// Terminate sends SIGTERM and escalates to SIGKILL after the grace period.
// It does not block.
func (p *Process) Terminate() {
	p.termOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		p.mu.Lock()
		p.terminated = true
		p.mu.Unlock()

		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				return
			}
			p.kill()
			return
		}

		go func() {
			select {
			case <-p.done:
			case <-time.After(p.grace):
				p.log.Warn(context.Background(), "ffmpeg did not exit after SIGTERM, killing", map[string]interface{}{
					"pid": p.cmd.Process.Pid,
				})
				p.kill()
			}
		}()
	})
}

func (p *Process) kill() {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Warn(context.Background(), "failed to kill ffmpeg", map[string]interface{}{"error": err.Error()})
	}
}

// Close terminates the process if still running and releases the pipe.
func (p *Process) Close() error {
	if p.stopCtx != nil {
		p.stopCtx()
	}
	p.Terminate()
	return p.stdout.Close()
}
