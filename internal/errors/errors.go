// Package errors holds the sentinel errors and wrapper types shared by the
// securechat packages. Messages never carry key material.
//
// Failures fall into the classes reported by Classify:
//   - transport: dial, accept, read and write failures; they end a session
//   - auth: a frame failed to open; the peer is told, the session goes on
//   - protocol: malformed handshake data, units or control signals
package errors

import (
	"errors"
	"fmt"
)

// Key agreement and derivation.
var (
	ErrInvalidKeySize      = errors.New("crypto: invalid key size")
	ErrInvalidSaltSize     = errors.New("crypto: invalid salt size")
	ErrKeyGenerationFailed = errors.New("crypto: key generation failed")
	ErrInvalidPublicKey    = errors.New("crypto: invalid public key")
	ErrInvalidPrivateKey   = errors.New("crypto: invalid private key")
	ErrUnsupportedKDF      = errors.New("crypto: unsupported kdf")
)

// Frame sealing and opening.
var (
	ErrAuthenticationFailed = errors.New("aead: authentication failed")
	ErrInvalidNonce         = errors.New("aead: invalid nonce size")
	ErrInvalidTag           = errors.New("aead: invalid tag size")
	// ErrFrameTooShort means the frame cannot even hold nonce and tag.
	ErrFrameTooShort = errors.New("aead: frame too short")
	// ErrNonceExhausted means the key has sealed as many random-nonce frames
	// as it safely can. A new handshake is needed.
	ErrNonceExhausted = errors.New("aead: nonce budget exhausted")
)

// Wire protocol.
var (
	ErrMalformedPeerData      = errors.New("protocol: malformed peer data")
	ErrUnsupportedCipherSuite = errors.New("protocol: unsupported cipher suite")
	ErrInvalidState           = errors.New("protocol: invalid state")
	ErrMessageTooLarge        = errors.New("protocol: message too large")
)

// Session lifecycle.
var (
	ErrSessionClosed = errors.New("session: connection closed")
	ErrPeerClosed    = errors.New("session: peer closed connection")
)

// CryptoError is a failed primitive operation.
type CryptoError struct {
	Op  string
	Err error
}

func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}
func (e *CryptoError) Error() string { return e.Op + ": " + errString(e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// ProtocolError is malformed traffic seen in a session phase such as
// "receive" or "control".
type ProtocolError struct {
	Phase string
	Err   error
}

func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}
func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol %s: %s", e.Phase, errString(e.Err)) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// HandshakeError is a failed handshake step: "hello", "reply", "keygen" or
// "derive". It ends the attempt, not the manager.
type HandshakeError struct {
	Step string
	Err  error
}

func NewHandshakeError(step string, err error) *HandshakeError {
	return &HandshakeError{Step: step, Err: err}
}
func (e *HandshakeError) Error() string { return fmt.Sprintf("handshake %s: %s", e.Step, errString(e.Err)) }
func (e *HandshakeError) Unwrap() error { return e.Err }

// TransportError is a failed "dial", "listen", "accept", "read" or "write".
// It always ends the current session.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}
func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %s", e.Op, errString(e.Err)) }
func (e *TransportError) Unwrap() error { return e.Err }

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// Class groups errors by how a session reacts to them.
type Class int

const (
	ClassNone Class = iota
	ClassTransport
	ClassAuth
	ClassProtocol
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransport:
		return "transport"
	case ClassAuth:
		return "auth"
	case ClassProtocol:
		return "protocol"
	default:
		return "other"
	}
}

var protocolSentinels = []error{
	ErrMalformedPeerData,
	ErrUnsupportedCipherSuite,
	ErrInvalidState,
}

// Classify sorts err into a Class. A transport failure inside a handshake is
// still ClassTransport.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if _, ok := errors.AsType[*TransportError](err); ok {
		return ClassTransport
	}
	if IsAuthFailure(err) {
		return ClassAuth
	}
	if _, ok := errors.AsType[*ProtocolError](err); ok {
		return ClassProtocol
	}
	if _, ok := errors.AsType[*HandshakeError](err); ok {
		return ClassProtocol
	}
	for _, s := range protocolSentinels {
		if errors.Is(err, s) {
			return ClassProtocol
		}
	}
	return ClassOther
}

// IsAuthFailure reports whether err is a frame that failed to open, either
// rejected by the AEAD or too short to try.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrFrameTooShort)
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	return Classify(err) == ClassTransport
}
