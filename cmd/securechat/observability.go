package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/sara-star-quant/securechat/pkg/crypto"
	"github.com/sara-star-quant/securechat/pkg/metrics"
	"github.com/sara-star-quant/securechat/pkg/tunnel"
)

// heapLimit is the live heap size above which /health reports unhealthy.
const heapLimit = 1 << 30

// observability bundles the logger, collector and tracer for one command.
type observability struct {
	logger    *metrics.Logger
	collector *metrics.Collector
	tracer    metrics.Tracer
	logFile   io.Closer
}

func setupObservability(o *options, stderr io.Writer) (*observability, error) {
	level := metrics.ParseLevel(o.logLevel)
	format := metrics.ParseFormat(o.logFormat)

	out := stderr
	var logFile io.Closer
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, f)
		logFile = f
	}

	logger := metrics.NewLogger(
		metrics.WithOutput(out),
		metrics.WithLevel(level),
		metrics.WithFormat(format),
		metrics.WithFields(metrics.Fields{"app": "securechat"}),
	)
	metrics.SetLogger(logger)

	var tracer metrics.Tracer
	switch strings.ToLower(o.tracing) {
	case "none", "":
		tracer = metrics.NoOpTracer{}
	case "simple":
		tracer = metrics.NewSimpleTracer()
	case "otel":
		if !metrics.OTelEnabled() {
			closeQuietly(logFile)
			return nil, fmt.Errorf("otel tracing not enabled (build with -tags otel)")
		}
		tracer = metrics.NewOTelTracer("securechat")
	default:
		closeQuietly(logFile)
		return nil, fmt.Errorf("invalid tracing mode: %s (use none, simple, or otel)", o.tracing)
	}
	metrics.SetTracer(tracer)

	collector := metrics.NewCollector(metrics.Labels{"service": "securechat"})
	metrics.SetGlobal(collector)

	return &observability{
		logger:    logger,
		collector: collector,
		tracer:    tracer,
		logFile:   logFile,
	}, nil
}

// checkSelfTests runs the crypto self tests once and fails on any error.
func (ob *observability) checkSelfTests() error {
	if err := crypto.RunSelfTests(); err != nil {
		ob.logger.Error("crypto self tests failed", metrics.Fields{"error": err.Error()})
		return fmt.Errorf("crypto self tests: %w", err)
	}
	ob.logger.Debug("crypto self tests passed", metrics.Fields{
		"fips":  crypto.FIPSMode(),
		"tests": strings.Join(crypto.SelfTestNames(), ","),
	})
	return nil
}

// wire attaches the observers to cfg.
func (ob *observability) wire(cfg *tunnel.Config) {
	cfg.ObserverFactory = metrics.NewObserverFactory(ob.collector, ob.tracer, ob.logger)
	lifecycle := metrics.NewLifecycleObserver(ob.collector, ob.logger)
	cfg.LifecycleObserver = lifecycle
	cfg.RateLimitObserver = lifecycle
}

// serve runs the metrics and health server until ctx ends. state reports the
// manager state for the readiness check.
func (ob *observability) serve(ctx context.Context, addr string, state func() tunnel.ManagerState) error {
	server := metrics.NewServer(metrics.ServerConfig{
		Collector:        ob.collector,
		Version:          getVersion(),
		Namespace:        "securechat",
		EnablePrometheus: true,
		EnableHealth:     true,
	})
	health := server.Health()
	health.AddCheck("memory", metrics.MemoryCheck(heapLimit))
	health.AddReadinessCheck("session", metrics.StateCheck(func() (string, bool) {
		s := state()
		return s.String(), s == tunnel.StateSessioned
	}))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("observability server: %w", err)
	}
	ob.logger.Info("observability server listening", metrics.Fields{
		"addr":      ln.Addr().String(),
		"endpoints": "/metrics /health /healthz /readyz",
	})
	return server.Serve(ctx, ln)
}

func (ob *observability) close() {
	closeQuietly(ob.logFile)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
