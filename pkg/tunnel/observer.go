package tunnel

import (
	"context"
	"time"

	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

// Observer provides hooks for session lifecycle, metrics, and tracing.
// Implementations should be lightweight; callbacks run on the send and
// receive flows and may be called concurrently.
type Observer interface {
	OnSessionStart()
	OnSessionEnd()
	OnSessionFailed(err error)
	OnHandshakeStart(ctx context.Context) (context.Context, func(error))
	OnSessionEstablished(info SessionInfo)
	OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error))
	OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error))
	OnMessageDelivered(index uint64, size int)
	OnMessageRejected(err error)
	OnAuthFailure()
	OnControlSignal(sig protocol.ControlSignal, outbound bool)
	OnTransportError(err error)
	OnProtocolError(err error)
}

// SessionInfo describes an established session. It never carries the key.
type SessionInfo struct {
	Role          Role
	RemoteAddr    string
	Fingerprint   string
	CipherSuite   string
	KDF           string
	EstablishedAt time.Time
}

// ConnInfo describes a connection before its handshake.
type ConnInfo struct {
	Role       Role
	RemoteAddr string

	// Seq numbers connections handled by one manager, starting at 1.
	Seq uint64
}

// ObserverFactory builds a per-connection observer.
type ObserverFactory func(info ConnInfo) Observer

// LifecycleObserver receives connection manager events.
type LifecycleObserver interface {
	// OnStateChange is called on every manager state transition.
	OnStateChange(role Role, from, to ManagerState)

	// OnRetry is called before the manager sleeps after a failed operation
	// ("listen", "accept", "dial", "handshake", "session").
	OnRetry(role Role, op string, err error, wait time.Duration)
}

// RateLimitObserver receives notifications when rate limits are hit.
type RateLimitObserver interface {
	// OnHandshakeRateLimit is called when an inbound connection is dropped
	// before its handshake.
	OnHandshakeRateLimit(remoteAddr string)
}

func observerFromConfig(config Config, info ConnInfo) Observer {
	if config.ObserverFactory != nil {
		if o := config.ObserverFactory(info); o != nil {
			return o
		}
	}
	if config.Observer != nil {
		return config.Observer
	}
	return NopObserver{}
}

// NopObserver ignores every event.
type NopObserver struct{}

var _ Observer = NopObserver{}

func nopDone(error) {}

func (NopObserver) OnSessionStart()           {}
func (NopObserver) OnSessionEnd()             {}
func (NopObserver) OnSessionFailed(err error) {}
func (NopObserver) OnHandshakeStart(ctx context.Context) (context.Context, func(error)) {
	return ctx, nopDone
}
func (NopObserver) OnSessionEstablished(info SessionInfo) {}
func (NopObserver) OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error)) {
	return ctx, nopDone
}
func (NopObserver) OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error)) {
	return ctx, nopDone
}
func (NopObserver) OnMessageDelivered(index uint64, size int)                 {}
func (NopObserver) OnMessageRejected(err error)                               {}
func (NopObserver) OnAuthFailure()                                            {}
func (NopObserver) OnControlSignal(sig protocol.ControlSignal, outbound bool) {}
func (NopObserver) OnTransportError(err error)                                {}
func (NopObserver) OnProtocolError(err error)                                 {}

// reportError routes a session-ending error to the matching observer hook.
func reportError(o Observer, err error) {
	switch qerrors.Classify(err) {
	case qerrors.ClassTransport:
		o.OnTransportError(err)
	case qerrors.ClassProtocol:
		o.OnProtocolError(err)
	}
}
