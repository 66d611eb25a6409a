package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs health checks on various components
type Checker struct {
	store        Pinger
	queue        Pinger
	objects      Pinger
	binaries     map[string]string
	lookPath     func(string) (string, error)
	version      string
	checkTimeout time.Duration
}

// CheckerConfig holds configuration for the health checker
type CheckerConfig struct {
	// Store is the status store. Its failure is degraded: records fall back
	// to memory.
	Store Pinger
	// Queue is the durable queue; nil when not configured.
	Queue Pinger
	// Objects is the object store; nil when uploads are disabled.
	Objects Pinger
	// Binaries maps a component name to an executable that must be present.
	Binaries map[string]string
	Version  string
	Timeout  time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		store:        cfg.Store,
		queue:        cfg.Queue,
		objects:      cfg.Objects,
		binaries:     cfg.Binaries,
		lookPath:     exec.LookPath,
		version:      cfg.Version,
		checkTimeout: timeout,
	}
}

// ping runs p.Ping under the check timeout and maps a failure to onFail.
func (c *Checker) ping(ctx context.Context, p Pinger, onFail Status, failMsg string) ComponentHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:   onFail,
			Message:  failMsg + ": " + err.Error(),
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// CheckStore checks the status store's primary backend
func (c *Checker) CheckStore(ctx context.Context) ComponentHealth {
	if c.store == nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: "status store not configured",
		}
	}
	return c.ping(ctx, c.store, StatusDegraded, "status store unreachable, using in-memory fallback")
}

// CheckQueue checks the durable queue. Without it batches are rejected but
// single jobs still run.
func (c *Checker) CheckQueue(ctx context.Context) ComponentHealth {
	if c.queue == nil {
		return ComponentHealth{
			Status:  StatusDegraded,
			Message: "durable queue not configured",
		}
	}
	return c.ping(ctx, c.queue, StatusDegraded, "durable queue unreachable")
}

// CheckStorage checks S3/MinIO connectivity
func (c *Checker) CheckStorage(ctx context.Context) ComponentHealth {
	return c.ping(ctx, c.objects, StatusUnhealthy, "storage check failed")
}

// CheckBinaries verifies that every required executable is on disk.
func (c *Checker) CheckBinaries(context.Context) ComponentHealth {
	start := time.Now()

	names := make([]string, 0, len(c.binaries))
	for name := range c.binaries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := c.lookPath(c.binaries[name]); err != nil {
			return ComponentHealth{
				Status:   StatusUnhealthy,
				Message:  name + " binary not found: " + c.binaries[name],
				Duration: time.Since(start).String(),
			}
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// DeepCheck performs a comprehensive health check (readiness)
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth),
	}

	// Run checks in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	checks := map[string]func(context.Context) ComponentHealth{
		"store": c.CheckStore,
		"queue": c.CheckQueue,
	}
	if c.objects != nil {
		checks["storage"] = c.CheckStorage
	}
	if len(c.binaries) > 0 {
		checks["binaries"] = c.CheckBinaries
	}

	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch func(context.Context) ComponentHealth) {
			defer wg.Done()
			result := ch(ctx)
			mu.Lock()
			response.Components[n] = result
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()

	// Determine overall status
	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// LivenessHandler handles liveness probe requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles readiness probe requests. Degraded still
// accepts traffic.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.DeepCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// HealthHandler handles GET /health, which is a deep check.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "false" {
		h.LivenessHandler(w, r)
		return
	}
	h.ReadinessHandler(w, r)
}
