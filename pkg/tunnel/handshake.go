// handshake.go implements the one-round ephemeral X25519 handshake.
//
// Handshake Protocol:
//
//	Initiator                              Listener (salt owner)
//	    |                                      |
//	    | <------- Hello --------------------- |
//	    |   - X25519 public key (32B)          |
//	    |   - salt (16B, unless disabled)      |
//	    |                                      |
//	    | -------- HelloReply ---------------> |
//	    |   - X25519 public key (32B)          |
//	    |                                      |
//	    |   [Both compute X25519 and KDF]      |
//	    |                                      |
//	    |    === Session Established ===       |
//
// Security Properties:
//   - Forward secrecy: both key pairs are ephemeral, one per handshake
//   - Fresh key per session: the listener draws a new salt every time
//
// There is no key confirmation and no transcript binding. An active attacker
// can substitute public keys, and a mismatched key is only noticed when the
// first frame fails to open.
package tunnel

import (
	"io"
	"time"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/crypto"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

// HandshakeState represents the current state of the handshake.
type HandshakeState int

const (
	HandshakeStateInitial HandshakeState = iota
	HandshakeStateHelloSent
	HandshakeStateReplySent
	HandshakeStateComplete
	HandshakeStateFailed
)

// String returns a human-readable name for the handshake state.
func (s HandshakeState) String() string {
	switch s {
	case HandshakeStateInitial:
		return "Initial"
	case HandshakeStateHelloSent:
		return "HelloSent"
	case HandshakeStateReplySent:
		return "ReplySent"
	case HandshakeStateComplete:
		return "Complete"
	case HandshakeStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// HandshakeConfig parameterizes one handshake. Both peers must agree on
// Variant and KDF.
type HandshakeConfig struct {
	Variant protocol.Variant
	KDF     crypto.KDFParams

	// Timeout bounds the whole exchange on connections that support
	// deadlines. Zero disables it.
	Timeout time.Duration

	// KeyPair overrides the ephemeral key pair. It is zeroized when the
	// handshake ends. Tests only.
	KeyPair *crypto.X25519KeyPair

	// Rand overrides the randomness used for the key pair and salt.
	Rand io.Reader
}

// HandshakeResult is the output of a successful handshake.
type HandshakeResult struct {
	// Key is the 32-byte session key.
	Key []byte

	// Salt is the salt mixed into the KDF.
	Salt []byte

	LocalPublic [constants.X25519PublicKeySize]byte
	PeerPublic  [constants.X25519PublicKeySize]byte
}

// Zeroize erases the session key.
func (r *HandshakeResult) Zeroize() {
	crypto.Zeroize(r.Key)
}

// Handshake manages one handshake for either role.
type Handshake struct {
	role    Role
	config  HandshakeConfig
	state   HandshakeState
	keyPair *crypto.X25519KeyPair
	salt    []byte
	result  *HandshakeResult
}

// NewHandshake creates a handshake for role, generating the ephemeral key pair
// and, for the listener, the salt.
func NewHandshake(role Role, config HandshakeConfig) (*Handshake, error) {
	if config.KDF.Algorithm == crypto.KDFScrypt && config.KDF.N == 0 {
		config.KDF = crypto.DefaultKDFParams()
	}
	rnd := config.Rand
	if rnd == nil {
		rnd = crypto.Reader
	}

	h := &Handshake{role: role, config: config, state: HandshakeStateInitial}

	h.keyPair = config.KeyPair
	if h.keyPair == nil {
		kp, err := crypto.GenerateX25519KeyPairFrom(rnd)
		if err != nil {
			return nil, qerrors.NewHandshakeError("keygen", err)
		}
		h.keyPair = kp
	}

	switch {
	case !config.Variant.IncludeSalt:
		h.salt = crypto.FixedSalt()
	case role == RoleListener:
		h.salt = make([]byte, constants.SaltSize)
		if _, err := io.ReadFull(rnd, h.salt); err != nil {
			return nil, qerrors.NewHandshakeError("keygen", qerrors.NewCryptoError("salt", err))
		}
	}

	return h, nil
}

// CreateHello builds the listener's opening message.
func (h *Handshake) CreateHello() ([]byte, error) {
	if h.role != RoleListener || h.state != HandshakeStateInitial {
		return nil, h.fail(qerrors.NewHandshakeError("hello", qerrors.ErrInvalidState))
	}

	hello := &protocol.Hello{PublicKey: h.keyPair.Public}
	if h.config.Variant.IncludeSalt {
		hello.Salt = h.salt
	}
	h.state = HandshakeStateHelloSent
	return hello.Bytes(), nil
}

// ProcessHello consumes the listener's Hello on the initiator side and
// derives the session key.
func (h *Handshake) ProcessHello(data []byte) error {
	if h.role != RoleInitiator || h.state != HandshakeStateInitial {
		return h.fail(qerrors.NewHandshakeError("hello", qerrors.ErrInvalidState))
	}

	hello, err := protocol.ParseHello(data, h.config.Variant.IncludeSalt)
	if err != nil {
		return h.fail(qerrors.NewHandshakeError("hello", err))
	}
	if hello.Salt != nil {
		h.salt = hello.Salt
	}

	return h.derive(hello.PublicKey)
}

// CreateHelloReply builds the initiator's answer. It is valid only after
// ProcessHello succeeded.
func (h *Handshake) CreateHelloReply() ([]byte, error) {
	if h.role != RoleInitiator || h.result == nil {
		return nil, h.fail(qerrors.NewHandshakeError("reply", qerrors.ErrInvalidState))
	}

	reply := &protocol.HelloReply{PublicKey: h.keyPair.Public}
	h.state = HandshakeStateReplySent
	return reply.Bytes(), nil
}

// ProcessHelloReply consumes the initiator's reply on the listener side and
// derives the session key.
func (h *Handshake) ProcessHelloReply(data []byte) error {
	if h.role != RoleListener || h.state != HandshakeStateHelloSent {
		return h.fail(qerrors.NewHandshakeError("reply", qerrors.ErrInvalidState))
	}

	reply, err := protocol.ParseHelloReply(data)
	if err != nil {
		return h.fail(qerrors.NewHandshakeError("reply", err))
	}

	if err := h.derive(reply.PublicKey); err != nil {
		return err
	}
	h.state = HandshakeStateComplete
	return nil
}

// derive computes the shared secret and session key.
func (h *Handshake) derive(peer [constants.X25519PublicKeySize]byte) error {
	shared, err := crypto.KeyExchange(h.keyPair, peer[:])
	if err != nil {
		return h.fail(qerrors.NewHandshakeError("exchange", err))
	}
	defer crypto.Zeroize(shared)

	key, err := crypto.DeriveSessionKey(shared, h.salt, h.config.KDF)
	if err != nil {
		return h.fail(qerrors.NewHandshakeError("derive", err))
	}

	h.result = &HandshakeResult{
		Key:         key,
		Salt:        append([]byte(nil), h.salt...),
		LocalPublic: h.keyPair.Public,
		PeerPublic:  peer,
	}
	return nil
}

func (h *Handshake) fail(err error) error {
	h.state = HandshakeStateFailed
	h.cleanup()
	return err
}

// cleanup zeroizes the ephemeral private key.
func (h *Handshake) cleanup() {
	if h.keyPair != nil {
		h.keyPair.Zeroize()
	}
}

// Result returns the derived key material, or nil before completion.
func (h *Handshake) Result() *HandshakeResult {
	return h.result
}

// State returns the current handshake state.
func (h *Handshake) State() HandshakeState {
	return h.state
}

// IsComplete returns true if the handshake completed successfully.
func (h *Handshake) IsComplete() bool {
	return h.state == HandshakeStateComplete
}

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// --- High-Level API ---

// RunHandshake performs the complete handshake for role over rw. Handshake
// messages travel in units of the variant's codec.
//
// On success the ephemeral private key has already been zeroized; the caller
// owns the returned key and must zeroize it when the session ends.
func RunHandshake(role Role, rw io.ReadWriter, config HandshakeConfig) (*HandshakeResult, error) {
	h, err := NewHandshake(role, config)
	if err != nil {
		return nil, err
	}

	if d, ok := rw.(deadliner); ok && config.Timeout > 0 {
		_ = d.SetDeadline(time.Now().Add(config.Timeout))
		defer func() { _ = d.SetDeadline(time.Time{}) }()
	}

	codec := config.Variant.Codec()
	if role == RoleListener {
		err = listenerHandshake(h, rw, codec)
	} else {
		err = initiatorHandshake(h, rw, codec)
	}
	if err != nil {
		return nil, err
	}

	h.cleanup()
	return h.result, nil
}

// listenerHandshake sends Hello and awaits the reply.
func listenerHandshake(h *Handshake, rw io.ReadWriter, codec protocol.UnitCodec) error {
	hello, err := h.CreateHello()
	if err != nil {
		return err
	}
	if err := codec.WriteUnit(rw, hello); err != nil {
		return h.fail(qerrors.NewHandshakeError("hello", qerrors.NewTransportError("write", err)))
	}

	reply, err := codec.ReadUnit(rw)
	if err != nil {
		return h.fail(qerrors.NewHandshakeError("reply", qerrors.NewTransportError("read", err)))
	}
	return h.ProcessHelloReply(reply)
}

// initiatorHandshake awaits Hello and answers it.
func initiatorHandshake(h *Handshake, rw io.ReadWriter, codec protocol.UnitCodec) error {
	hello, err := codec.ReadUnit(rw)
	if err != nil {
		return h.fail(qerrors.NewHandshakeError("hello", qerrors.NewTransportError("read", err)))
	}
	if err := h.ProcessHello(hello); err != nil {
		return err
	}

	reply, err := h.CreateHelloReply()
	if err != nil {
		return err
	}
	if err := codec.WriteUnit(rw, reply); err != nil {
		return h.fail(qerrors.NewHandshakeError("reply", qerrors.NewTransportError("write", err)))
	}

	h.state = HandshakeStateComplete
	return nil
}
