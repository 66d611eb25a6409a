// Package stream serves media as a live remux without touching disk: a URL
// is resolved to direct stream URLs, fed to ffmpeg, and ffmpeg's stdout is
// handed to the caller chunk by chunk.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/ffmpeg"
	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
	"github.com/Yudee-19/video-downloader/internal/ytdlp"
)

// DefaultChunkSize is the size of each chunk returned by Session.Next.
const DefaultChunkSize = 32 * 1024

// State is the lifecycle state of a stream session.
type State string

const (
	StateOpened    State = "opened"
	StateResolving State = "resolving"
	StatePiping    State = "piping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// IsFinal reports whether the session has ended.
func (s State) IsFinal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// Resolver turns a page URL into direct stream URLs.
type Resolver interface {
	Resolve(ctx context.Context, req ytdlp.Request) (*ytdlp.Resolution, error)
}

// Source is a running remux whose output is read until EOF.
type Source interface {
	io.Reader
	// Wait reports how the producer exited once its output is drained.
	Wait() error
	// Close stops the producer if it is still running.
	Close() error
}

// Launcher starts a remux of inputs, forwarding headers on every fetch.
type Launcher interface {
	StartStream(ctx context.Context, inputs []string, headers map[string]string) (Source, error)
}

// FFmpegLauncher adapts a Transcoder to Launcher.
type FFmpegLauncher struct {
	Transcoder *ffmpeg.Transcoder
}

func (l FFmpegLauncher) StartStream(ctx context.Context, inputs []string, headers map[string]string) (Source, error) {
	p, err := l.Transcoder.StartStream(ctx, inputs, headers)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Config wires a Pipeline.
type Config struct {
	Resolver  Resolver
	Launcher  Launcher
	ChunkSize int
	Metrics   *metrics.Metrics
}

// Pipeline opens stream sessions.
type Pipeline struct {
	resolver  Resolver
	launcher  Launcher
	chunkSize int
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Pipeline{
		resolver:  cfg.Resolver,
		launcher:  cfg.Launcher,
		chunkSize: cfg.ChunkSize,
		metrics:   cfg.Metrics,
		log:       logger.Default().WithComponent("stream"),
	}
}

// Open resolves url and starts the remux. Nothing has been produced when
// Open returns an error, so callers can still answer with a normal error
// response. Cancelling ctx terminates the remux.
func (p *Pipeline) Open(ctx context.Context, url string) (*Session, error) {
	s := &Session{
		url:      url,
		state:    StateOpened,
		buf:      make([]byte, p.chunkSize),
		metrics:  p.metrics,
		log:      p.log,
		ctx:      ctx,
		openedAt: time.Now(),
	}

	s.setState(StateResolving)
	res, err := p.resolver.Resolve(ctx, ytdlp.Request{URL: url, Mode: ytdlp.ModeSimulate})
	if err != nil {
		s.setState(StateFailed)
		if _, ok := apperrors.AsAppError(err); !ok {
			err = apperrors.ResolutionError("failed to resolve media").WithCause(err)
		}
		return nil, err
	}

	inputs := res.StreamURLs
	if len(inputs) == 0 {
		s.setState(StateFailed)
		return nil, apperrors.NoStreamFound()
	}
	if len(inputs) > 2 {
		inputs = inputs[:2]
	}
	s.Title = res.Title

	src, err := p.launcher.StartStream(ctx, inputs, res.Headers)
	if err != nil {
		s.setState(StateFailed)
		return nil, apperrors.TranscodeError("failed to start transcoder").WithCause(err)
	}
	s.src = src

	s.setState(StatePiping)
	p.metrics.StreamStarted()
	p.log.Info(ctx, "stream started", map[string]interface{}{
		"url":    url,
		"inputs": len(inputs),
		"title":  s.Title,
	})
	return s, nil
}

// Session is one single-pass stream. It is not safe for concurrent Next
// calls; Close may be called from any goroutine.
type Session struct {
	// Title of the resolved media
	Title string

	url      string
	src      Source
	buf      []byte
	ctx      context.Context
	metrics  *metrics.Metrics
	log      *logger.Logger
	openedAt time.Time

	mu        sync.Mutex
	state     State
	bytes     int64
	finish    sync.Once
	closeOnce sync.Once
	closeErr  error
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Next returns the next chunk of output. The returned slice is only valid
// until the following call. Next returns io.EOF once the transcoder has
// exited cleanly and its output is drained.
func (s *Session) Next() ([]byte, error) {
	if st := s.State(); st != StatePiping {
		if st == StateCompleted {
			return nil, io.EOF
		}
		return nil, errSessionClosed(st)
	}

	n, err := s.src.Read(s.buf)
	if n > 0 {
		s.mu.Lock()
		s.bytes += int64(n)
		s.mu.Unlock()
		return s.buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}

	if s.ctx.Err() != nil {
		s.end(StateCanceled)
		return nil, s.ctx.Err()
	}
	if !errors.Is(err, io.EOF) {
		// the pipe was closed under us by Close
		if st := s.State(); st.IsFinal() {
			return nil, errSessionClosed(st)
		}
		s.end(StateFailed)
		return nil, apperrors.TranscodeError("failed to read transcoder output").WithCause(err)
	}

	if werr := s.src.Wait(); werr != nil {
		s.end(StateFailed)
		return nil, apperrors.TranscodeError("transcoder exited with an error").WithCause(werr)
	}
	s.end(StateCompleted)
	return nil, io.EOF
}

// Close ends the session, terminating the transcoder if it is still
// running. Closing a piping session marks it canceled. Safe to call more
// than once.
func (s *Session) Close() error {
	s.end(StateCanceled)
	return s.release()
}

func (s *Session) release() error {
	s.closeOnce.Do(func() {
		if s.src != nil {
			s.closeErr = s.src.Close()
		}
	})
	return s.closeErr
}

// BytesSent is the number of bytes returned by Next so far.
func (s *Session) BytesSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// end moves a piping session to its final state exactly once.
func (s *Session) end(st State) {
	s.finish.Do(func() {
		s.mu.Lock()
		if s.state != StatePiping {
			s.mu.Unlock()
			return
		}
		s.state = st
		bytes := s.bytes
		s.mu.Unlock()

		if st != StateCompleted {
			s.release()
		}

		s.metrics.StreamFinished(string(st), bytes)
		s.log.Info(context.Background(), "stream finished", map[string]interface{}{
			"url":         s.url,
			"state":       string(st),
			"bytes":       bytes,
			"duration_ms": time.Since(s.openedAt).Milliseconds(),
		})
	})
}

type errSessionClosed State

func (e errSessionClosed) Error() string {
	return "stream session is " + string(e)
}
