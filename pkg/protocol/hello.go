// hello.go defines the two handshake messages.
//
// Hello (listener -> initiator):
//
//	+------------+--------+
//	| PublicKey  | Salt   |
//	| 32B        | 16B    |
//	+------------+--------+
//
// The salt is omitted when the variant disables it; both sides then use the
// fixed salt.
//
// HelloReply (initiator -> listener):
//
//	+------------+
//	| PublicKey  |
//	| 32B        |
//	+------------+
//
// Neither message carries a type or length: a unit of any other length is
// malformed.
package protocol

import (
	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// Hello is the salt owner's opening message.
type Hello struct {
	PublicKey [constants.X25519PublicKeySize]byte

	// Salt is nil when the variant sends no salt.
	Salt []byte
}

// HelloSize returns the expected Hello length.
func HelloSize(includeSalt bool) int {
	if includeSalt {
		return constants.HelloSize
	}
	return constants.X25519PublicKeySize
}

// Bytes serializes the Hello.
func (h *Hello) Bytes() []byte {
	buf := make([]byte, 0, constants.HelloSize)
	buf = append(buf, h.PublicKey[:]...)
	return append(buf, h.Salt...)
}

// Validate checks field sizes.
func (h *Hello) Validate() error {
	if h.Salt != nil && len(h.Salt) != constants.SaltSize {
		return qerrors.ErrInvalidSaltSize
	}
	return nil
}

// ParseHello decodes a Hello. The length must be exact.
func ParseHello(data []byte, includeSalt bool) (*Hello, error) {
	if len(data) != HelloSize(includeSalt) {
		return nil, qerrors.ErrMalformedPeerData
	}

	h := &Hello{}
	copy(h.PublicKey[:], data[:constants.X25519PublicKeySize])
	if includeSalt {
		h.Salt = make([]byte, constants.SaltSize)
		copy(h.Salt, data[constants.X25519PublicKeySize:])
	}
	return h, nil
}

// HelloReply is the initiator's answer.
type HelloReply struct {
	PublicKey [constants.X25519PublicKeySize]byte
}

// Bytes serializes the HelloReply.
func (r *HelloReply) Bytes() []byte {
	out := make([]byte, constants.HelloReplySize)
	copy(out, r.PublicKey[:])
	return out
}

// ParseHelloReply decodes a HelloReply. The length must be exact.
func ParseHelloReply(data []byte) (*HelloReply, error) {
	if len(data) != constants.HelloReplySize {
		return nil, qerrors.ErrMalformedPeerData
	}
	r := &HelloReply{}
	copy(r.PublicKey[:], data)
	return r, nil
}
