package tunnel

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// ManagerState is the connection manager state.
type ManagerState int32

const (
	StateIdle ManagerState = iota
	StateListening
	StateConnecting
	StateHandshaking
	StateSessioned
	StateStopped
)

// String returns a human-readable name for the manager state.
func (s ManagerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateSessioned:
		return "Sessioned"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// manager holds the state shared by Listener and Initiator.
type manager struct {
	role   Role
	config Config

	state   atomic.Int32
	seq     atomic.Uint64
	current atomic.Pointer[Session]
}

func newManager(role Role, config Config) (*manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &manager{role: role, config: config.withDefaults()}, nil
}

// State returns the current manager state.
func (m *manager) State() ManagerState {
	return ManagerState(m.state.Load())
}

// Session returns the live session, or nil between sessions.
func (m *manager) Session() *Session {
	return m.current.Load()
}

func (m *manager) setState(to ManagerState) {
	from := ManagerState(m.state.Swap(int32(to)))
	if from != to && m.config.LifecycleObserver != nil {
		m.config.LifecycleObserver.OnStateChange(m.role, from, to)
	}
}

// retry reports err and waits the fixed backoff. It returns false when ctx
// ended first.
func (m *manager) retry(ctx context.Context, op string, err error) bool {
	if m.config.LifecycleObserver != nil {
		m.config.LifecycleObserver.OnRetry(m.role, op, err, m.config.Backoff)
	}

	t := time.NewTimer(m.config.Backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// handle runs the handshake and the session over conn, then closes conn.
// The returned error says why the connection ended.
func (m *manager) handle(ctx context.Context, conn net.Conn, src Source, sink Sink) error {
	sc := wrapConn(conn)
	defer sc.Close()

	// Unblocks handshake IO on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = sc.Close() })
	defer stop()

	info := ConnInfo{Role: m.role, Seq: m.seq.Add(1)}
	if addr := conn.RemoteAddr(); addr != nil {
		info.RemoteAddr = addr.String()
	}
	obs := observerFromConfig(m.config, info)

	obs.OnSessionStart()
	m.setState(StateHandshaking)

	_, done := obs.OnHandshakeStart(ctx)
	result, err := RunHandshake(m.role, sc, m.config.handshakeConfig())
	done(err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reportError(obs, err)
		obs.OnSessionFailed(err)
		return err
	}

	sess, err := NewSession(sc, m.role, result.Key, m.config.sessionConfig(obs))
	result.Zeroize()
	if err != nil {
		obs.OnSessionFailed(err)
		return err
	}

	m.current.Store(sess)
	defer m.current.Store(nil)

	m.setState(StateSessioned)
	obs.OnSessionEstablished(sess.Info())

	err = sess.Run(ctx, src, sink)
	switch {
	case ctx.Err() != nil:
		obs.OnSessionEnd()
		return ctx.Err()
	case errors.Is(err, qerrors.ErrPeerClosed):
		obs.OnSessionEnd()
	default:
		reportError(obs, err)
		obs.OnSessionFailed(err)
	}
	return err
}

// Listener accepts one inbound connection at a time. After every session or
// failed handshake it returns to listening. Bind and accept failures wait
// the backoff and rebind.
type Listener struct {
	*manager

	limiter *HandshakeLimiter

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// NewListener creates a listener for config.Address.
func NewListener(config Config) (*Listener, error) {
	m, err := newManager(RoleListener, config)
	if err != nil {
		return nil, err
	}
	return &Listener{
		manager: m,
		ready:   make(chan struct{}),
		limiter: NewHandshakeLimiter(config.HandshakeRateLimit, config.HandshakeBurst),
	}, nil
}

// Ready is closed once the listener has bound its first socket.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the bound address, or nil before Ready.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

func (l *Listener) setAddr(addr net.Addr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addr == nil {
		close(l.ready)
	}
	l.addr = addr
}

// Run serves until ctx ends and returns ctx.Err().
func (l *Listener) Run(ctx context.Context, src Source, sink Sink) error {
	defer l.setState(StateStopped)

	for ctx.Err() == nil {
		l.setState(StateListening)
		ln, err := l.config.ListenConfig.Listen(ctx, "tcp", l.config.Address)
		if err != nil {
			if !l.retry(ctx, "listen", qerrors.NewTransportError("listen", err)) {
				break
			}
			continue
		}
		l.setAddr(ln.Addr())

		err = l.serve(ctx, ln, src, sink)
		_ = ln.Close()
		if ctx.Err() != nil {
			break
		}
		if !l.retry(ctx, "accept", qerrors.NewTransportError("accept", err)) {
			break
		}
	}
	return ctx.Err()
}

// serve accepts connections on ln until accepting fails.
func (l *Listener) serve(ctx context.Context, ln net.Listener, src Source, sink Sink) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		l.setState(StateListening)
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		if !l.limiter.AllowHandshake() {
			if l.config.RateLimitObserver != nil {
				l.config.RateLimitObserver.OnHandshakeRateLimit(conn.RemoteAddr().String())
			}
			_ = conn.Close()
			continue
		}

		_ = l.handle(ctx, conn, src, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Initiator dials the peer and keeps a session alive. Every dial failure,
// failed handshake and ended session is followed by the backoff and a new
// connection.
type Initiator struct {
	*manager
}

// NewInitiator creates an initiator for the peer at config.Address.
func NewInitiator(config Config) (*Initiator, error) {
	m, err := newManager(RoleInitiator, config)
	if err != nil {
		return nil, err
	}
	return &Initiator{manager: m}, nil
}

// Run connects until ctx ends and returns ctx.Err().
func (i *Initiator) Run(ctx context.Context, src Source, sink Sink) error {
	defer i.setState(StateStopped)

	for ctx.Err() == nil {
		i.setState(StateConnecting)
		conn, err := i.config.Dialer.DialContext(ctx, "tcp", i.config.Address)
		if err != nil {
			if !i.retry(ctx, "dial", qerrors.NewTransportError("dial", err)) {
				break
			}
			continue
		}

		err = i.handle(ctx, conn, src, sink)
		if ctx.Err() != nil {
			break
		}

		op := "session"
		var hsErr *qerrors.HandshakeError
		if errors.As(err, &hsErr) {
			op = "handshake"
		}
		if !i.retry(ctx, op, err) {
			break
		}
	}
	return ctx.Err()
}
