// Package tunnel implements the securechat session layer: the X25519
// handshake, the duplex session that carries encrypted chat messages, and the
// connection managers that keep a session alive across failures.
//
// The tunnel provides:
//   - Ephemeral key agreement per connection (X25519 + scrypt or HKDF)
//   - Authenticated encryption using AES-256-GCM or ChaCha20-Poly1305
//   - Plaintext RESEND/ERROR feedback when a frame fails to open
//   - Automatic relisten (listener) and reconnect (initiator)
package tunnel

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/crypto"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

// SessionState represents the current state of the session.
type SessionState int32

const (
	// SessionStateEstablished indicates the session is ready for data
	SessionStateEstablished SessionState = iota

	// SessionStateClosed indicates the session has been terminated
	SessionStateClosed
)

// String returns a human-readable name for the session state.
func (s SessionState) String() string {
	switch s {
	case SessionStateEstablished:
		return "Established"
	case SessionStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Role indicates whether this endpoint is the initiator or the listener.
type Role int

const (
	RoleInitiator Role = iota
	RoleListener
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleListener:
		return "listener"
	default:
		return "unknown"
	}
}

// SessionConfig holds the per-session settings.
type SessionConfig struct {
	CipherSuite  constants.CipherSuite
	Variant      protocol.Variant
	KDF          crypto.KDF
	WriteTimeout time.Duration
	Observer     Observer

	// MaxFrames caps sealed frames under one key. Zero means
	// constants.MaxFramesPerKey.
	MaxFrames uint64
}

// Session owns one established connection and its session key.
type Session struct {
	// Role of this endpoint
	Role Role

	// Selected cipher suite
	CipherSuite constants.CipherSuite

	// RemoteAddr is the peer address, if known
	RemoteAddr string

	// Current state
	state atomic.Int32

	conn        *sessionConn
	codec       protocol.UnitCodec
	variant     protocol.Variant
	kdf         crypto.KDF
	aead        *crypto.AEAD
	key         []byte
	fingerprint string

	observer     Observer
	writeTimeout time.Duration
	maxFrames    uint64

	// Serializes frames from the send flow with control signals from the
	// receive flow.
	writeMu sync.Mutex

	// Control signals relayed from the receive flow to the send flow.
	feedback chan protocol.ControlSignal

	closeOnce sync.Once

	// Timestamps
	EstablishedAt time.Time

	// Statistics
	BytesSent        atomic.Uint64
	BytesReceived    atomic.Uint64
	MessagesSent     atomic.Uint64
	MessagesReceived atomic.Uint64
	AuthFailures     atomic.Uint64
	ControlSent      atomic.Uint64
	ControlReceived  atomic.Uint64
	framesSealed     atomic.Uint64
}

// NewSession creates an established session over conn with the given key.
// The key is copied; the caller may zeroize its copy.
func NewSession(conn net.Conn, role Role, key []byte, config SessionConfig) (*Session, error) {
	if config.CipherSuite == 0 {
		config.CipherSuite = protocol.PreferredCipherSuite()
	}
	if err := protocol.CheckCipherSuite(config.CipherSuite); err != nil {
		return nil, err
	}
	if err := config.Variant.Validate(); err != nil {
		return nil, err
	}

	keyCopy := append([]byte(nil), key...)
	aead, err := crypto.NewAEAD(config.CipherSuite, keyCopy)
	if err != nil {
		crypto.Zeroize(keyCopy)
		return nil, err
	}

	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	if config.MaxFrames == 0 {
		config.MaxFrames = constants.MaxFramesPerKey
	}

	s := &Session{
		Role:          role,
		CipherSuite:   config.CipherSuite,
		conn:          wrapConn(conn),
		codec:         config.Variant.Codec(),
		variant:       config.Variant,
		kdf:           config.KDF,
		aead:          aead,
		key:           keyCopy,
		fingerprint:   hex.EncodeToString(crypto.Fingerprint(keyCopy)),
		observer:      config.Observer,
		writeTimeout:  config.WriteTimeout,
		maxFrames:     config.MaxFrames,
		feedback:      make(chan protocol.ControlSignal, 1),
		EstablishedAt: time.Now(),
	}
	if addr := conn.RemoteAddr(); addr != nil {
		s.RemoteAddr = addr.String()
	}
	s.state.Store(int32(SessionStateEstablished))
	return s, nil
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Fingerprint returns a short hex identifier of the session key. Two peers
// of one session report the same fingerprint.
func (s *Session) Fingerprint() string {
	return s.fingerprint
}

// Info describes the session for observers.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Role:          s.Role,
		RemoteAddr:    s.RemoteAddr,
		Fingerprint:   s.fingerprint,
		CipherSuite:   s.CipherSuite.String(),
		KDF:           s.kdf.String(),
		EstablishedAt: s.EstablishedAt,
	}
}

// MaxPlaintext returns the largest message Send accepts.
func (s *Session) MaxPlaintext() int {
	return protocol.MaxPlaintext(s.codec.MaxUnit())
}

// Send seals plaintext and writes it as one unit.
//
// ErrMessageTooLarge is returned for oversized plaintext and leaves the
// session usable. Write failures are TransportErrors and ErrNonceExhausted
// means the key must be replaced; both end the session when returned from
// the send flow.
func (s *Session) Send(ctx context.Context, plaintext []byte) error {
	if s.State() == SessionStateClosed {
		return qerrors.ErrSessionClosed
	}
	if len(plaintext) > s.MaxPlaintext() {
		return fmt.Errorf("%w: %d bytes, limit %d", qerrors.ErrMessageTooLarge, len(plaintext), s.MaxPlaintext())
	}
	if s.framesSealed.Add(1) > s.maxFrames {
		return qerrors.ErrNonceExhausted
	}

	_, done := s.observer.OnEncrypt(ctx, len(plaintext))
	frame, err := protocol.Seal(s.aead, plaintext)
	if err == nil {
		err = s.writeUnit(frame.Bytes())
	}
	done(err)
	if err != nil {
		return err
	}

	s.MessagesSent.Add(1)
	s.BytesSent.Add(uint64(frame.Size()))
	return nil
}

// sendControl writes a control signal.
func (s *Session) sendControl(sig protocol.ControlSignal) error {
	if err := s.writeUnit(sig.Bytes()); err != nil {
		return err
	}
	s.ControlSent.Add(1)
	s.observer.OnControlSignal(sig, true)
	return nil
}

func (s *Session) writeUnit(unit []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.codec.WriteUnit(s.conn, unit); err != nil {
		return qerrors.NewTransportError("write", err)
	}
	return nil
}

// Close closes the connection and zeroizes the session key. It is safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(SessionStateClosed))
		err = s.conn.Close()
		crypto.Zeroize(s.key)
	})
	return err
}

// Stats returns session statistics.
type Stats struct {
	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	AuthFailures     uint64
	ControlSent      uint64
	ControlReceived  uint64
	Duration         time.Duration
	State            SessionState
}

// Stats returns current session statistics.
func (s *Session) Stats() Stats {
	return Stats{
		BytesSent:        s.BytesSent.Load(),
		BytesReceived:    s.BytesReceived.Load(),
		MessagesSent:     s.MessagesSent.Load(),
		MessagesReceived: s.MessagesReceived.Load(),
		AuthFailures:     s.AuthFailures.Load(),
		ControlSent:      s.ControlSent.Load(),
		ControlReceived:  s.ControlReceived.Load(),
		Duration:         time.Since(s.EstablishedAt),
		State:            s.State(),
	}
}

// sessionConn wraps a net.Conn so that Close runs once. Later calls are
// no-ops returning nil.
type sessionConn struct {
	net.Conn
	closeOnce sync.Once
}

func wrapConn(conn net.Conn) *sessionConn {
	if sc, ok := conn.(*sessionConn); ok {
		return sc
	}
	return &sessionConn{Conn: conn}
}

// Close closes the underlying connection on the first call.
func (c *sessionConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Conn.Close()
	})
	return err
}
