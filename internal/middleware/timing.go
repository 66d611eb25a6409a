package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Yudee-19/video-downloader/internal/logger"
)

// SlowRequestThreshold is the handler time after which a request is logged
// as slow. Stream downloads are exempt.
const SlowRequestThreshold = 500 * time.Millisecond

// Timing adds a Server-Timing header measured up to the first response byte
// and logs slow requests.
func Timing(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &timingResponseWriter{ResponseWriter: w, start: time.Now(), statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(wrapped.start)
			if duration > SlowRequestThreshold && r.URL.Path != "/stream-download" {
				log.Warn(r.Context(), "slow request", map[string]interface{}{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      wrapped.statusCode,
					"duration_ms": duration.Milliseconds(),
				})
			}
		})
	}
}

// timingResponseWriter stamps Server-Timing just before the headers go out
type timingResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (w *timingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.statusCode = code
		w.Header().Set("Server-Timing", formatServerTiming(time.Since(w.start)))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush on the underlying writer.
func (w *timingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return "total;dur=" + strconv.FormatFloat(ms, 'f', 2, 64)
}
