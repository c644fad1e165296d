//go:build otel

package metrics

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelTracer sends spans to the globally registered OpenTelemetry provider.
// Exporter setup is left to the embedding program.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer returns an adapter using the instrumentation name
// serviceName, or "securechat" when empty.
func NewOTelTracer(serviceName string) *OTelTracer {
	if serviceName == "" {
		serviceName = "securechat"
	}
	return &OTelTracer{tracer: otel.Tracer(serviceName)}
}

// StartSpan starts an OpenTelemetry span.
func (t *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := newSpanConfig(opts)

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(cfg.kind.otel()),
		trace.WithAttributes(toOTelAttributes(cfg.attrs)...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// OTelEnabled reports whether the OpenTelemetry adapter is compiled in.
func OTelEnabled() bool { return true }

func (k SpanKind) otel() trace.SpanKind {
	switch k {
	case SpanKindServer:
		return trace.SpanKindServer
	case SpanKindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}

func toOTelAttributes(attrs map[string]any) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		key := attribute.Key(k)
		switch val := v.(type) {
		case string:
			kvs = append(kvs, key.String(val))
		case bool:
			kvs = append(kvs, key.Bool(val))
		case int:
			kvs = append(kvs, key.Int(val))
		case int64:
			kvs = append(kvs, key.Int64(val))
		case uint64:
			kvs = append(kvs, key.Int64(int64(min(val, math.MaxInt64))))
		case float64:
			kvs = append(kvs, key.Float64(val))
		case fmt.Stringer:
			kvs = append(kvs, key.String(val.String()))
		default:
			kvs = append(kvs, key.String(fmt.Sprint(val)))
		}
	}
	return kvs
}
