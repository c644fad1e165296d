package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net"
	"net/http"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus is the outcome of a health probe.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// DegradedErrorRate is the crypto error share above which a healthy
// process reports itself degraded.
const DegradedErrorRate = 0.01

// defaultCheckTimeout bounds a single check run.
const defaultCheckTimeout = 2 * time.Second

// CheckFunc probes one dependency. A nil error means it is fine.
type CheckFunc func(ctx context.Context) error

// CheckScope says which probes a check feeds.
type CheckScope int

const (
	// ScopeHealth checks fail /health and /readyz.
	ScopeHealth CheckScope = iota
	// ScopeReadiness checks only fail /readyz. A chat peer waiting for its
	// partner is alive but not ready.
	ScopeReadiness
)

type registeredCheck struct {
	fn    CheckFunc
	scope CheckScope
}

// HealthCheck runs registered checks and folds collector counters into a
// report.
type HealthCheck struct {
	collector *Collector
	version   string
	started   time.Time
	timeout   time.Duration

	mu     sync.RWMutex
	checks map[string]registeredCheck
}

// CheckResult is one check's outcome.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Scope   string       `json:"scope"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency"`
}

// HealthMetrics is the counter excerpt carried by a health report.
type HealthMetrics struct {
	SessionsActive uint64  `json:"sessions_active"`
	SessionsTotal  uint64  `json:"sessions_total"`
	BytesSent      uint64  `json:"bytes_sent"`
	BytesReceived  uint64  `json:"bytes_received"`
	AuthFailures   uint64  `json:"auth_failures"`
	ErrorRate      float64 `json:"error_rate,omitempty"`
}

// HealthResponse is the /health document.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Ready     bool                   `json:"ready"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Metrics   *HealthMetrics         `json:"metrics,omitempty"`
}

// NewHealthCheck creates a HealthCheck. collector may be nil.
func NewHealthCheck(collector *Collector, version string) *HealthCheck {
	return &HealthCheck{
		collector: collector,
		version:   version,
		started:   time.Now(),
		timeout:   defaultCheckTimeout,
		checks:    map[string]registeredCheck{},
	}
}

// AddCheck registers a check that affects overall health.
func (h *HealthCheck) AddCheck(name string, fn CheckFunc) {
	h.register(name, fn, ScopeHealth)
}

// AddReadinessCheck registers a check that only affects readiness.
func (h *HealthCheck) AddReadinessCheck(name string, fn CheckFunc) {
	h.register(name, fn, ScopeReadiness)
}

func (h *HealthCheck) register(name string, fn CheckFunc, scope CheckScope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{fn: fn, scope: scope}
}

// RemoveCheck unregisters name.
func (h *HealthCheck) RemoveCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// Check runs every registered check concurrently and builds a report.
func (h *HealthCheck) Check(ctx context.Context) HealthResponse {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	names := slices.Sorted(maps.Keys(checks))
	results := make([]CheckResult, len(names))

	var g errgroup.Group
	for i, name := range names {
		c := checks[name]
		g.Go(func() error {
			results[i] = h.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Ready:     true,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(names)),
	}
	for i, name := range names {
		r := results[i]
		resp.Checks[name] = r
		if r.Status == HealthStatusHealthy {
			continue
		}
		resp.Ready = false
		if checks[name].scope == ScopeHealth {
			resp.Status = HealthStatusUnhealthy
		}
	}

	if h.collector != nil {
		resp.Metrics = h.healthMetrics()
		if resp.Status == HealthStatusHealthy && resp.Metrics.ErrorRate > DegradedErrorRate {
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

func (h *HealthCheck) run(ctx context.Context, c registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	res := CheckResult{
		Status:  HealthStatusHealthy,
		Scope:   "health",
		Latency: time.Since(start).String(),
	}
	if c.scope == ScopeReadiness {
		res.Scope = "readiness"
	}
	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

// healthMetrics summarises the collector. Frames that fail to open count both
// as an operation and as an error.
func (h *HealthCheck) healthMetrics() *HealthMetrics {
	snap := h.collector.Snapshot()
	m := &HealthMetrics{
		SessionsActive: snap.SessionsActive,
		SessionsTotal:  snap.SessionsTotal,
		BytesSent:      snap.BytesSent,
		BytesReceived:  snap.BytesReceived,
		AuthFailures:   snap.AuthFailures,
	}
	ops := snap.MessagesSent + snap.MessagesDelivered + snap.DecryptErrors
	failed := snap.EncryptErrors + snap.DecryptErrors + snap.ProtocolErrors
	if ops > 0 {
		m.ErrorRate = float64(failed) / float64(ops)
	}
	return m
}

// Handler serves the full report. Degraded still answers 200.
func (h *HealthCheck) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// LivenessHandler answers 200 as long as the process serves HTTP.
func (h *HealthCheck) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
}

// ReadinessHandler answers 200 only when every check passes, readiness-only
// checks included.
func (h *HealthCheck) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		code := http.StatusOK
		if !resp.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": resp.Status, "ready": resp.Ready})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// MemoryCheck fails when the live heap exceeds limit bytes.
func MemoryCheck(limit uint64) CheckFunc {
	return func(context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > limit {
			return fmt.Errorf("heap %d bytes exceeds %d", ms.HeapAlloc, limit)
		}
		return nil
	}
}

// ConnectivityCheck fails when a TCP dial to addr does not succeed.
func ConnectivityCheck(addr string) CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// StateCheck fails while describe reports false. The chat commands use it
// to expose whether a session is up.
func StateCheck(describe func() (string, bool)) CheckFunc {
	return func(context.Context) error {
		if state, ok := describe(); !ok {
			return fmt.Errorf("state %s", state)
		}
		return nil
	}
}
