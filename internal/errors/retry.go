package errors

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig bounds a network-level retry loop. Jobs themselves are never
// retried; only calls to remote services inside a job are.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// UploadRetryConfig allows three upload attempts in total.
func UploadRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// backoff returns the wait before attempt+1, capped at MaxBackoff with
// +/-25% jitter.
func (c *RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffFactor, float64(attempt))
	if d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	if c.Jitter {
		d += d * 0.25 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// RetryWithResult calls fn until it succeeds, returns a permanent error, or
// the attempts run out. The last error is returned.
func RetryWithResult[T any](ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg == nil {
		cfg = UploadRetryConfig()
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !transient(err) || attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.backoff(attempt)):
		}
	}
	return zero, lastErr
}

// transientMarkers are substrings of S3 and MinIO failures worth another try.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"slowdown",
	"service unavailable",
	"internalerror",
	"requesttimeout",
	"too many requests",
	"status code: 500",
	"status code: 502",
	"status code: 503",
	"status code: 504",
}

func transient(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := AsAppError(err); ok {
		return IsRetryable(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
