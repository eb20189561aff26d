package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-engine/internal/logger"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type checkState struct {
	fn        CheckFunc
	ok        bool
	err       string
	latencyMs float64
	checkedAt time.Time
}

// HealthStatus tracks named dependency checks for /healthz.
type HealthStatus struct {
	mu        sync.RWMutex
	StartedAt time.Time
	checks    map[string]*checkState
}

// NewHealthStatus creates an empty health tracker.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		checks:    make(map[string]*checkState),
	}
}

// Register adds a named check. It reports unhealthy until it first runs.
func (h *HealthStatus) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	h.checks[name] = &checkState{fn: fn, err: "not checked yet"}
	h.mu.Unlock()
}

// RunChecks runs every check once and records latency and outcome.
func (h *HealthStatus) RunChecks(ctx context.Context) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	fns := make([]CheckFunc, 0, len(h.checks))
	for name, c := range h.checks {
		names = append(names, name)
		fns = append(fns, c.fn)
	}
	h.mu.RUnlock()

	for i, fn := range fns {
		start := time.Now()
		err := fn(ctx)
		latency := time.Since(start)

		h.mu.Lock()
		if c, ok := h.checks[names[i]]; ok {
			c.ok = err == nil
			c.err = ""
			if err != nil {
				c.err = err.Error()
			}
			c.latencyMs = float64(latency.Microseconds()) / 1000.0
			c.checkedAt = time.Now()
		}
		h.mu.Unlock()
	}
}

// StartLivenessChecker runs the checks now and then every interval until
// ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		h.RunChecks(probeCtx)
		cancel()
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

type checkReport struct {
	OK        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
	CheckedAt string  `json:"checked_at,omitempty"`
}

type healthReport struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime"`
	Checks map[string]checkReport `json:"checks"`
}

// ServeHTTP handles /healthz: 200 "healthy" when every check passes, 503
// "degraded" when some fail and "unhealthy" when all fail.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	report := healthReport{
		Uptime: time.Since(h.StartedAt).Round(time.Second).String(),
		Checks: make(map[string]checkReport, len(h.checks)),
	}
	failed := 0
	for name, c := range h.checks {
		cr := checkReport{OK: c.ok, Error: c.err, LatencyMs: c.latencyMs}
		if !c.checkedAt.IsZero() {
			cr.CheckedAt = c.checkedAt.UTC().Format(time.RFC3339)
		}
		if !c.ok {
			failed++
		}
		report.Checks[name] = cr
	}
	total := len(h.checks)
	h.mu.RUnlock()

	code := http.StatusOK
	switch {
	case failed == 0:
		report.Status = "healthy"
	case failed == total:
		report.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	default:
		report.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}

// Failing lists the names of failing checks, sorted.
func (h *HealthStatus) Failing() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for name, c := range h.checks {
		if !c.ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server. A nil gatherer uses
// prometheus.DefaultGatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus, l *slog.Logger) *Server {
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: Handler(gatherer, health), ReadHeaderTimeout: 5 * time.Second},
		log:  logger.Component(l, "metrics"),
	}
}

// Handler returns the mux serving /metrics and /healthz.
func Handler(gatherer prometheus.Gatherer, health *HealthStatus) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	return mux
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
