package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func pass(context.Context) error { return nil }

func TestHealthCheckNoChecks(t *testing.T) {
	h := NewHealthCheck(nil, "0.1.0")
	resp := h.Check(context.Background())

	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, "0.1.0", resp.Version)
	assert.Equal(t, "0s", resp.Uptime)
	assert.Nil(t, resp.Metrics)
}

func TestHealthCheckScopes(t *testing.T) {
	waiting := errors.New("state Listening")

	tests := []struct {
		name       string
		health     CheckFunc
		readiness  CheckFunc
		wantStatus HealthStatus
		wantReady  bool
	}{
		{"all pass", pass, pass, HealthStatusHealthy, true},
		{"readiness fails", pass, StateCheck(func() (string, bool) { return "Listening", false }), HealthStatusHealthy, false},
		{"health fails", func(context.Context) error { return waiting }, pass, HealthStatusUnhealthy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthCheck(nil, "")
			h.AddCheck("memory", tt.health)
			h.AddReadinessCheck("session", tt.readiness)

			resp := h.Check(context.Background())
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, "health", resp.Checks["memory"].Scope)
			assert.Equal(t, "readiness", resp.Checks["session"].Scope)
			assert.NotEmpty(t, resp.Checks["session"].Latency)
		})
	}
}

func TestHealthCheckFailureMessage(t *testing.T) {
	h := NewHealthCheck(nil, "")
	h.AddReadinessCheck("session", StateCheck(func() (string, bool) { return "Connecting", false }))

	res := h.Check(context.Background()).Checks["session"]
	assert.Equal(t, HealthStatusUnhealthy, res.Status)
	assert.Equal(t, "state Connecting", res.Message)
}

func TestHealthCheckRemove(t *testing.T) {
	h := NewHealthCheck(nil, "")
	h.AddCheck("broken", func(context.Context) error { return errors.New("x") })
	h.RemoveCheck("broken")

	resp := h.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHealthCheckTimeout(t *testing.T) {
	h := NewHealthCheck(nil, "")
	h.timeout = 10 * time.Millisecond
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	res := h.Check(context.Background()).Checks["slow"]
	assert.Equal(t, HealthStatusUnhealthy, res.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Message)
}

func TestHealthCheckErrorRate(t *testing.T) {
	c := NewCollector(nil)
	h := NewHealthCheck(c, "")

	for range 200 {
		c.RecordMessageSent()
	}
	c.RecordDecryptError()
	resp := h.Check(context.Background())
	require.NotNil(t, resp.Metrics)
	assert.Equal(t, HealthStatusHealthy, resp.Status, "1 in 201 is under the threshold")

	for range 10 {
		c.RecordDecryptError()
		c.RecordAuthFailure()
	}
	resp = h.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, resp.Status)
	assert.True(t, resp.Ready, "degraded is still ready")
	assert.InDelta(t, 11.0/211.0, resp.Metrics.ErrorRate, 1e-9)
	assert.Equal(t, uint64(10), resp.Metrics.AuthFailures)
}

func TestHealthCheckUnhealthyBeatsDegraded(t *testing.T) {
	c := NewCollector(nil)
	c.RecordEncryptError()
	c.RecordMessageSent()

	h := NewHealthCheck(c, "")
	h.AddCheck("memory", func(context.Context) error { return errors.New("heap") })
	assert.Equal(t, HealthStatusUnhealthy, h.Check(context.Background()).Status)
}

func TestHealthHandlers(t *testing.T) {
	h := NewHealthCheck(NewCollector(nil), "0.1.0")
	h.AddReadinessCheck("session", StateCheck(func() (string, bool) { return "Listening", false }))

	code, body := probe(t, h.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["ready"])

	code, body = probe(t, h.ReadinessHandler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["ready"])

	code, body = probe(t, h.LivenessHandler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])

	h.AddCheck("memory", func(context.Context) error { return errors.New("heap") })
	code, body = probe(t, h.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestMemoryCheck(t *testing.T) {
	assert.NoError(t, MemoryCheck(1<<40)(context.Background()))
	assert.ErrorContains(t, MemoryCheck(1)(context.Background()), "exceeds 1")
}

func TestConnectivityCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	assert.NoError(t, ConnectivityCheck(addr)(context.Background()))

	require.NoError(t, ln.Close())
	assert.Error(t, ConnectivityCheck(addr)(context.Background()))
}

func TestServerRoutes(t *testing.T) {
	c := NewCollector(nil)
	c.SessionStarted()
	s := NewServer(ServerConfig{
		Collector:        c,
		Version:          "0.1.0",
		EnablePrometheus: true,
		EnableHealth:     true,
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "securechat_sessions_active 1\n")

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		code, _ := probe(t, s.Handler(), path)
		assert.Equal(t, http.StatusOK, code, path)
	}

	s.Health().AddReadinessCheck("session", StateCheck(func() (string, bool) { return "Idle", false }))
	code, _ := probe(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServerDisabledRoutes(t *testing.T) {
	s := NewServer(ServerConfig{Collector: NewCollector(nil)})
	assert.Nil(t, s.Health())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerServeShutdown(t *testing.T) {
	s := NewServer(ServerConfig{Collector: NewCollector(nil), EnableHealth: true})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
