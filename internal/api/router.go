// Package api wires the HTTP surface: job submission and status, artifact
// retrieval and cleanup, live streaming, URL validation, health and metrics.
package api

import (
	"mime"
	"net/http"

	"github.com/Yudee-19/video-downloader/internal/download"
	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/health"
	"github.com/Yudee-19/video-downloader/internal/logger"
	"github.com/Yudee-19/video-downloader/internal/metrics"
	"github.com/Yudee-19/video-downloader/internal/middleware"
	"github.com/Yudee-19/video-downloader/internal/stream"
	"github.com/Yudee-19/video-downloader/internal/validators"
)

// Deps are the collaborators behind the router.
type Deps struct {
	Dispatcher  *download.Dispatcher
	Tracker     *download.Tracker
	Service     *download.Service
	Stream      *stream.Handler
	Health      *health.Handler
	Validators  *validators.Registry
	Metrics     *metrics.Metrics
	CORSOrigins []string
	Version     string
}

type Router struct {
	mux        *http.ServeMux
	jobs       *JobHandlers
	stream     *stream.Handler
	health     *health.Handler
	validation *validators.Handlers
	registry   *validators.Registry
	metrics    *metrics.Metrics
	version    string
}

func NewRouter(deps Deps) *Router {
	if deps.Validators == nil {
		deps.Validators = validators.DefaultRegistry()
	}
	r := &Router{
		mux:        http.NewServeMux(),
		jobs:       NewJobHandlers(deps.Dispatcher, deps.Tracker, deps.Service),
		stream:     deps.Stream,
		health:     deps.Health,
		validation: validators.NewHandlers(deps.Validators),
		registry:   deps.Validators,
		metrics:    deps.Metrics,
		version:    deps.Version,
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the router wrapped in the standard middleware chain.
func Handler(deps Deps) http.Handler {
	chain := []func(http.Handler) http.Handler{
		logger.RecoveryMiddleware,
		apperrors.RequestIDMiddleware,
		middleware.CORS(deps.CORSOrigins),
		logger.LoggingMiddleware,
	}
	if deps.Metrics != nil {
		chain = append(chain, metrics.MetricsMiddleware(deps.Metrics))
	}
	chain = append(chain, middleware.Timing(logger.Default().WithComponent("http")))

	return middleware.Chain(NewRouter(deps), chain...)
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("GET /{$}", r.root)

	// Jobs
	r.mux.HandleFunc("POST /download", apperrors.HandleFunc(r.jobs.Submit))
	r.mux.HandleFunc("POST /batch-download", apperrors.HandleFunc(r.jobs.SubmitBatch))
	r.mux.HandleFunc("GET /status/{job_id}", apperrors.HandleFunc(r.jobs.Status))
	r.mux.HandleFunc("GET /batch-status/{batch_id}", apperrors.HandleFunc(r.jobs.BatchStatus))
	r.mux.HandleFunc("GET /video/{job_id}", apperrors.HandleFunc(r.jobs.Video))
	r.mux.HandleFunc("DELETE /cleanup/{job_id}", apperrors.HandleFunc(r.jobs.Cleanup))
	r.mux.HandleFunc("DELETE /batch-cleanup/{batch_id}", apperrors.HandleFunc(r.jobs.BatchCleanup))

	// Live stream, no persistence
	if r.stream != nil {
		r.mux.HandleFunc("GET /stream-download", r.stream.Download)
	}

	// URL validation
	r.mux.HandleFunc("GET /validate", r.validation.ValidateURL)
	r.mux.HandleFunc("GET /validate/platforms", r.validation.GetSupportedPlatforms)

	// Health and metrics
	if r.health != nil {
		r.mux.HandleFunc("GET /health", r.health.HealthHandler)
		r.mux.HandleFunc("GET /health/live", r.health.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", r.health.ReadinessHandler)
	}
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics.Handler())
	}
}

// RootResponse is the service banner.
type RootResponse struct {
	Message            string   `json:"message"`
	Status             string   `json:"status"`
	Version            string   `json:"version,omitempty"`
	SupportedPlatforms []string `json:"supported_platforms"`
}

func (r *Router) root(w http.ResponseWriter, req *http.Request) {
	platforms := make([]string, 0, 2)
	for _, p := range r.registry.SupportedPlatforms() {
		platforms = append(platforms, p.DisplayName())
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(req.Context()), http.StatusOK, RootResponse{
		Message:            "YouTube & Instagram Downloader API",
		Status:             "running",
		Version:            r.version,
		SupportedPlatforms: platforms,
	})
}

// contentDisposition builds an attachment header, RFC 2231-encoding
// non-ASCII names.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return `attachment; filename="` + stream.SafeFilename(filename) + `"`
}
