package metrics

import (
	"context"
	"encoding/hex"
	"maps"
	"sync"
	"time"

	"github.com/sara-star-quant/securechat/pkg/crypto"
)

// Span names used by the tunnel observer.
const (
	SpanHandshakeInitiator = "securechat.handshake.initiator"
	SpanHandshakeListener  = "securechat.handshake.listener"
	SpanEncrypt            = "securechat.encrypt"
	SpanDecrypt            = "securechat.decrypt"
)

// Tracer starts spans. Implementations: NoOpTracer, SimpleTracer and
// OTelTracer (build tag otel).
type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder)
}

// SpanEnder ends a span. A non-nil error marks the span failed.
type SpanEnder func(err error)

// SpanKind mirrors the OpenTelemetry span kinds this module uses.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer            // listener side of a handshake
	SpanKindClient            // initiator side of a handshake
)

// String returns the lower-case kind name.
func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "server"
	case SpanKindClient:
		return "client"
	default:
		return "internal"
	}
}

// SpanOption configures a span at start.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  SpanKind
	attrs map[string]any
}

func newSpanConfig(opts []SpanOption) spanConfig {
	cfg := spanConfig{attrs: map[string]any{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(c *spanConfig) { c.kind = kind }
}

// WithAttributes adds attrs to the span. Later options win on key clashes.
func WithAttributes(attrs map[string]any) SpanOption {
	return func(c *spanConfig) { maps.Copy(c.attrs, attrs) }
}

// SpanAttributes are the attributes attached to session spans. Zero fields
// are omitted. Key material is never a span attribute.
type SpanAttributes struct {
	Fingerprint string
	Role        string
	RemoteAddr  string
	CipherSuite string
	KDF         string
	Bytes       int
}

// ToMap returns the non-zero attributes keyed by their span attribute names.
func (a SpanAttributes) ToMap() map[string]any {
	m := map[string]any{}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("session.fingerprint", a.Fingerprint)
	set("session.role", a.Role)
	set("net.peer.address", a.RemoteAddr)
	set("crypto.cipher_suite", a.CipherSuite)
	set("crypto.kdf", a.KDF)
	if a.Bytes > 0 {
		m["message.bytes"] = a.Bytes
	}
	return m
}

// NoOpTracer discards spans.
type NoOpTracer struct{}

// StartSpan returns ctx unchanged.
func (NoOpTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, SpanEnder) {
	return ctx, func(error) {}
}

// RecordedSpan is a span finished under a SimpleTracer.
type RecordedSpan struct {
	Name       string
	Kind       SpanKind
	Attributes map[string]any
	TraceID    string
	SpanID     string
	ParentID   string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Error      error
}

// SimpleTracer keeps finished spans in memory. It is meant for tests and
// for --tracing simple.
type SimpleTracer struct {
	mu    sync.Mutex
	spans []RecordedSpan
}

// NewSimpleTracer creates an empty SimpleTracer.
func NewSimpleTracer() *SimpleTracer {
	return &SimpleTracer{}
}

type activeSpanKey struct{}

// StartSpan starts a span. A span already in ctx becomes its parent.
func (t *SimpleTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := newSpanConfig(opts)
	span := RecordedSpan{
		Name:       name,
		Kind:       cfg.kind,
		Attributes: cfg.attrs,
		SpanID:     randomID(8),
		StartTime:  time.Now(),
	}
	if parent, ok := ctx.Value(activeSpanKey{}).(*RecordedSpan); ok {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = randomID(16)
	}

	var once sync.Once
	return context.WithValue(ctx, activeSpanKey{}, &span), func(err error) {
		once.Do(func() {
			span.EndTime = time.Now()
			span.Duration = span.EndTime.Sub(span.StartTime)
			span.Error = err

			t.mu.Lock()
			t.spans = append(t.spans, span)
			t.mu.Unlock()
		})
	}
}

// Spans returns a copy of the finished spans in end order.
func (t *SimpleTracer) Spans() []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RecordedSpan(nil), t.spans...)
}

// Named returns the finished spans called name.
func (t *SimpleTracer) Named(name string) []RecordedSpan {
	var out []RecordedSpan
	for _, s := range t.Spans() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops all finished spans.
func (t *SimpleTracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = nil
}

func randomID(n int) string {
	b, err := crypto.SecureRandomBytes(n)
	if err != nil {
		return hex.EncodeToString(make([]byte, n))
	}
	return hex.EncodeToString(b)
}

var (
	globalTracerMu sync.RWMutex
	globalTracer   Tracer = NoOpTracer{}
)

// SetTracer replaces the global tracer. A nil tracer restores NoOpTracer.
func SetTracer(t Tracer) {
	if t == nil {
		t = NoOpTracer{}
	}
	globalTracerMu.Lock()
	defer globalTracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer.
func GetTracer() Tracer {
	globalTracerMu.RLock()
	defer globalTracerMu.RUnlock()
	return globalTracer
}

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return GetTracer().StartSpan(ctx, name, opts...)
}
