package logger

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Flush lets chunked stream responses pass through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingMiddleware writes one line per finished request. Probes and
// metric scrapes are not logged.
func LoggingMiddleware(next http.Handler) http.Handler {
	log := Default().WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.status,
			"duration_ms": time.Since(start).Milliseconds(),
			"bytes":       rw.bytes,
			"remote_ip":   clientIP(r),
			"request_id":  apperrors.GetRequestID(r.Context()),
		}
		if q := redactQuery(r.URL.RawQuery); q != "" {
			fields["query"] = q
		}

		switch {
		case rw.status >= 500:
			log.Warn(r.Context(), "request failed", fields)
		case rw.status >= 400:
			log.Info(r.Context(), "request rejected", fields)
		default:
			log.Info(r.Context(), "request completed", fields)
		}
	})
}

// redactQuery drops signatures and credentials that source URLs sometimes
// carry in their own query string.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparseable]"
	}
	for key, vs := range values {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") || strings.Contains(lower, "sig") || strings.Contains(lower, "key") {
			values[key] = []string{"[REDACTED]"}
			continue
		}
		for i, v := range vs {
			if u, err := url.Parse(v); err == nil && u.RawQuery != "" {
				u.RawQuery = ""
				vs[i] = u.String()
			}
		}
	}
	return values.Encode()
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware(next http.Handler) http.Handler {
	log := Default().WithComponent("recovery")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Error(r.Context(), "panic recovered", fmt.Errorf("panic: %v", v), map[string]interface{}{
					"path":   r.URL.Path,
					"method": r.Method,
					"stack":  string(debug.Stack()),
				})
				apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.InternalError("an unexpected error occurred"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
