// Package metrics turns tunnel events into logs, counters, histograms and
// spans, and serves them over HTTP.
//
// The tunnel package never logs on its own. It reports through
// tunnel.Observer, tunnel.LifecycleObserver and tunnel.RateLimitObserver, and
// this package implements all three:
//
//	cfg := tunnel.DefaultConfig()
//	cfg.ObserverFactory = metrics.NewObserverFactory(collector, tracer, logger)
//	lifecycle := metrics.NewLifecycleObserver(collector, logger)
//	cfg.LifecycleObserver = lifecycle
//	cfg.RateLimitObserver = lifecycle
//
// Nil arguments fall back to Global(), GetTracer() and GetLogger().
//
// # Collector
//
// A Collector holds atomic counters plus handshake, seal and open latency
// histograms. Snapshot copies them for export:
//
//	collector := metrics.NewCollector(metrics.Labels{"role": "listener"})
//	snap := collector.Snapshot()
//	fmt.Println(snap.MessagesDelivered, snap.AuthFailures)
//
// PrometheusExporter renders a Collector in the text exposition format with
// every name prefixed by a namespace, "securechat" by default.
//
// # Tracing
//
// Tracer is a small span interface. NoOpTracer is the default, SimpleTracer
// records spans in memory, and NewOTelTracer bridges to OpenTelemetry when
// built with -tags otel.
//
//	metrics.SetTracer(metrics.NewSimpleTracer())
//	ctx, end := metrics.StartSpan(ctx, metrics.SpanHandshakeInitiator)
//	defer end(err)
//
// # Logging
//
// Logger wraps logrus with text or JSON output. Session keys are never
// logged; observers log the key fingerprint instead.
//
//	logger := metrics.NewLogger(metrics.WithFormat(metrics.FormatJSON))
//	logger.Named("session").With(metrics.Fields{"conn": 3}).Info("session established")
//
// # Health Checks
//
// Checks registered with AddCheck decide /health. Checks registered with
// AddReadinessCheck only decide /readyz, so a peer still waiting for its
// partner stays alive but not ready.
//
//	health := metrics.NewHealthCheck(collector, "0.1.0")
//	health.AddCheck("memory", metrics.MemoryCheck(512<<20))
//	health.AddReadinessCheck("session", metrics.StateCheck(func() (string, bool) {
//		s := listener.State()
//		return s.String(), s == tunnel.StateSessioned
//	}))
//
// # Observability Server
//
//	server := metrics.NewServer(metrics.ServerConfig{
//		Collector:        collector,
//		EnablePrometheus: true,
//		EnableHealth:     true,
//	})
//	err := server.ListenAndServe(ctx, ":9090")
//
// Routes: /metrics, /health, /healthz and /readyz.
package metrics
