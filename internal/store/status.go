package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
)

// DefaultTTL is the retention window of job and batch records.
const DefaultTTL = time.Hour

// StatusStore stores JSON records with a fixed TTL. Failed primary
// operations are served by an in-memory fallback; that fallback is local to
// the process and lost on restart.
type StatusStore struct {
	primary  Backend
	fallback *MemoryBackend
	ttl      time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// Option configures a StatusStore.
type Option func(*StatusStore)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *logger.Logger) Option {
	return func(s *StatusStore) { s.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *StatusStore) { s.metrics = m }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *StatusStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New creates a StatusStore. A nil primary makes the memory map the only backend.
func New(primary Backend, opts ...Option) *StatusStore {
	s := &StatusStore{
		primary:  primary,
		fallback: NewMemoryBackend(),
		ttl:      DefaultTTL,
		log:      logger.Default().WithComponent("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.primary == nil {
		s.primary = s.fallback
	}
	return s
}

// TTL returns the record retention window.
func (s *StatusStore) TTL() time.Duration { return s.ttl }

// Backend returns the name of the primary backend.
func (s *StatusStore) Backend() string { return s.primary.Name() }

// Put serialises v as JSON under key.
func (s *StatusStore) Put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := s.primary.Set(ctx, key, data, s.ttl); err != nil {
		s.degraded(ctx, "set", key, err)
		return s.fallback.Set(ctx, key, data, s.ttl)
	}
	if !s.memoryOnly() {
		// the primary copy is now the newest
		s.fallback.Delete(ctx, key)
	}
	return nil
}

// Get decodes the record stored under key into v. Unknown fields are
// ignored and missing fields keep their zero value. Returns ErrNotFound
// when the key is absent from both the primary and the fallback.
//
// A fallback entry only exists while it is newer than the primary copy, so
// it wins; once the primary answers again it is copied back there.
func (s *StatusStore) Get(ctx context.Context, key string, v any) error {
	var data []byte
	var err error
	if s.memoryOnly() {
		data, err = s.primary.Get(ctx, key)
	} else {
		var fallbackErr error
		data, fallbackErr = s.fallback.Get(ctx, key)
		if fallbackErr == nil {
			s.restore(ctx, key, data)
		} else {
			data, err = s.primary.Get(ctx, key)
			if err != nil && !errors.Is(err, ErrNotFound) {
				s.degraded(ctx, "get", key, err)
				err = fallbackErr
			}
		}
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// restore writes a record kept by the fallback back to the primary.
func (s *StatusStore) restore(ctx context.Context, key string, data []byte) {
	if err := s.primary.Set(ctx, key, data, s.ttl); err != nil {
		return
	}
	s.fallback.Delete(ctx, key)
	s.log.Info(ctx, "status record restored to primary backend", map[string]interface{}{
		"backend": s.primary.Name(),
		"key":     key,
	})
}

func (s *StatusStore) memoryOnly() bool {
	return s.primary == Backend(s.fallback)
}

// Delete removes key from the primary and the fallback.
func (s *StatusStore) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		s.degraded(ctx, "delete", key, err)
	}
	return s.fallback.Delete(ctx, key)
}

// Ping checks the primary backend.
func (s *StatusStore) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}

// Purge removes expired entries from backends that do not expire keys on
// their own.
func (s *StatusStore) Purge(ctx context.Context) (int64, error) {
	removed := int64(s.fallback.Sweep())
	if p, ok := s.primary.(interface {
		PurgeExpired(context.Context) (int64, error)
	}); ok {
		n, err := p.PurgeExpired(ctx)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Close releases the primary backend.
func (s *StatusStore) Close() error {
	return s.primary.Close()
}

func (s *StatusStore) degraded(ctx context.Context, op, key string, err error) {
	s.metrics.StoreFallback(op)
	s.log.Warn(ctx, "status store backend failed, using in-memory fallback", map[string]interface{}{
		"backend": s.primary.Name(),
		"op":      op,
		"key":     key,
		"error":   err.Error(),
	})
}
