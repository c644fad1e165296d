package metrics

import (
	"context"
	"time"

	"github.com/sara-star-quant/securechat/internal/constants"
	"github.com/sara-star-quant/securechat/pkg/protocol"
	"github.com/sara-star-quant/securechat/pkg/tunnel"
)

// TunnelObserver implements tunnel.Observer. It records metrics, traces and
// logs for one connection.
type TunnelObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
	conn      tunnel.ConnInfo
}

var _ tunnel.Observer = (*TunnelObserver)(nil)

// TunnelObserverConfig configures a tunnel observer.
type TunnelObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
	Conn      tunnel.ConnInfo
}

// NewTunnelObserver creates a new tunnel observer.
func NewTunnelObserver(cfg TunnelObserverConfig) *TunnelObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	fields := Fields{"role": cfg.Conn.Role.String()}
	if cfg.Conn.RemoteAddr != "" {
		fields["remote"] = cfg.Conn.RemoteAddr
	}
	if cfg.Conn.Seq > 0 {
		fields["conn"] = cfg.Conn.Seq
	}

	return &TunnelObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("tunnel").With(fields),
		conn:      cfg.Conn,
	}
}

// NewObserverFactory returns a tunnel.ObserverFactory that builds one
// TunnelObserver per connection, all feeding the same collector and tracer.
func NewObserverFactory(collector *Collector, tracer Tracer, logger *Logger) tunnel.ObserverFactory {
	return func(info tunnel.ConnInfo) tunnel.Observer {
		return NewTunnelObserver(TunnelObserverConfig{
			Collector: collector,
			Tracer:    tracer,
			Logger:    logger,
			Conn:      info,
		})
	}
}

// OnSessionStart is called when a connection is accepted or dialed.
func (o *TunnelObserver) OnSessionStart() {
	o.collector.SessionStarted()
	o.logger.Debug("connection opened")
}

// OnSessionEnd is called when the peer closed the session or shutdown began.
func (o *TunnelObserver) OnSessionEnd() {
	o.collector.SessionEnded()
	o.logger.Info("session ended")
}

// OnSessionFailed is called when the handshake or session ended with an error.
func (o *TunnelObserver) OnSessionFailed(err error) {
	o.collector.SessionEnded()
	o.collector.SessionFailed()
	o.logger.Warn("session failed", Fields{"error": err.Error()})
}

// OnHandshakeStart returns a context and completion function for handshake tracing.
func (o *TunnelObserver) OnHandshakeStart(ctx context.Context) (context.Context, func(error)) {
	spanName := SpanHandshakeInitiator
	kind := SpanKindClient
	if o.conn.Role == tunnel.RoleListener {
		spanName = SpanHandshakeListener
		kind = SpanKindServer
	}
	attrs := SpanAttributes{Role: o.conn.Role.String(), RemoteAddr: o.conn.RemoteAddr}

	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, spanName, WithSpanKind(kind), WithAttributes(attrs.ToMap()))

	o.logger.Debug("handshake started")

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordHandshakeLatency(duration)

		if err != nil {
			o.logger.Warn("handshake failed", Fields{
				"error":    err.Error(),
				"duration": duration.String(),
			})
		} else {
			o.logger.Debug("handshake completed", Fields{
				"duration": duration.String(),
			})
		}

		endSpan(err)
	}
}

// OnSessionEstablished logs the session parameters. The fingerprint is a
// hash of the key, never the key.
func (o *TunnelObserver) OnSessionEstablished(info tunnel.SessionInfo) {
	o.logger.Info("session established", Fields{
		"fingerprint": info.Fingerprint,
		"cipher":      info.CipherSuite,
		"kdf":         info.KDF,
	})
}

// OnEncrypt records encryption metrics.
func (o *TunnelObserver) OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanEncrypt, WithAttributes(SpanAttributes{Bytes: plaintextLen}.ToMap()))

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordEncryptLatency(duration)

		if err != nil {
			o.collector.RecordEncryptError()
			o.logger.Debug("encrypt failed", Fields{"error": err.Error()})
		} else {
			o.collector.RecordBytesSent(uint64(plaintextLen + constants.FrameHeaderSize))
			o.collector.RecordMessageSent()
		}

		endSpan(err)
	}
}

// OnDecrypt records decryption metrics.
func (o *TunnelObserver) OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanDecrypt, WithAttributes(SpanAttributes{Bytes: ciphertextLen}.ToMap()))

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordDecryptLatency(duration)

		if err != nil {
			o.collector.RecordDecryptError()
		} else {
			o.collector.RecordBytesReceived(uint64(ciphertextLen))
		}

		endSpan(err)
	}
}

// OnMessageDelivered records a delivered message.
func (o *TunnelObserver) OnMessageDelivered(index uint64, size int) {
	o.collector.RecordMessageDelivered()
	o.logger.Debug("message delivered", Fields{"index": index, "size": size})
}

// OnMessageRejected records an outbound message that could not be sent.
func (o *TunnelObserver) OnMessageRejected(err error) {
	o.collector.RecordMessageRejected()
	o.logger.Warn("message not sent", Fields{"error": err.Error()})
}

// OnAuthFailure records an authentication failure.
func (o *TunnelObserver) OnAuthFailure() {
	o.collector.RecordAuthFailure()
	o.logger.Warn("frame failed authentication")
}

// OnControlSignal records RESEND and ERROR traffic in both directions.
func (o *TunnelObserver) OnControlSignal(sig protocol.ControlSignal, outbound bool) {
	if !outbound {
		o.collector.RecordControlReceived()
		o.logger.Warn("peer could not open a message", Fields{"signal": sig.String()})
		return
	}

	switch sig.Kind {
	case protocol.ControlResend:
		o.collector.RecordResendSent()
	case protocol.ControlError:
		o.collector.RecordErrorSent()
	}
	o.logger.Debug("control signal sent", Fields{"signal": sig.String()})
}

// OnTransportError records a transport failure.
func (o *TunnelObserver) OnTransportError(err error) {
	o.collector.RecordTransportError()
	o.logger.Warn("transport error", Fields{"error": err.Error()})
}

// OnProtocolError records a protocol error.
func (o *TunnelObserver) OnProtocolError(err error) {
	o.collector.RecordProtocolError()
	o.logger.Error("protocol error", Fields{"error": err.Error()})
}

// Logger returns the observer's logger for custom logging.
func (o *TunnelObserver) Logger() *Logger {
	return o.logger
}

// LifecycleObserver implements tunnel.LifecycleObserver and
// tunnel.RateLimitObserver. It logs manager state changes and counts retries
// and connections dropped by the handshake limiter.
type LifecycleObserver struct {
	collector *Collector
	logger    *Logger
}

var (
	_ tunnel.LifecycleObserver = (*LifecycleObserver)(nil)
	_ tunnel.RateLimitObserver = (*LifecycleObserver)(nil)
)

// NewLifecycleObserver creates a lifecycle observer.
func NewLifecycleObserver(collector *Collector, logger *Logger) *LifecycleObserver {
	if collector == nil {
		collector = Global()
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &LifecycleObserver{collector: collector, logger: logger.Named("lifecycle")}
}

// OnStateChange logs a manager transition.
func (o *LifecycleObserver) OnStateChange(role tunnel.Role, from, to tunnel.ManagerState) {
	o.logger.Debug("state change", Fields{
		"role": role.String(),
		"from": from.String(),
		"to":   to.String(),
	})
}

// OnRetry counts and logs a backoff wait.
func (o *LifecycleObserver) OnRetry(role tunnel.Role, op string, err error, wait time.Duration) {
	o.collector.RecordRetry()
	fields := Fields{"role": role.String(), "op": op, "wait": wait.String()}
	if err != nil {
		fields["error"] = err.Error()
	}
	o.logger.Info("retrying", fields)
}

// OnHandshakeRateLimit counts a connection dropped before its handshake.
func (o *LifecycleObserver) OnHandshakeRateLimit(remoteAddr string) {
	o.collector.RecordHandshakeRateLimit()
	o.logger.Warn("handshake rate limit exceeded", Fields{"remote": remoteAddr})
}
