//go:build !otel

package metrics

import "context"

// OTelTracer is inert in builds without the otel tag.
type OTelTracer struct{}

// NewOTelTracer returns an inert tracer. Build with -tags otel for the
// OpenTelemetry adapter.
func NewOTelTracer(string) *OTelTracer {
	return &OTelTracer{}
}

// StartSpan returns ctx unchanged.
func (*OTelTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, SpanEnder) {
	return ctx, func(error) {}
}

// OTelEnabled reports whether the OpenTelemetry adapter is compiled in.
func OTelEnabled() bool { return false }
