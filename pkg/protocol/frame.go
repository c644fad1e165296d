// frame.go implements the encrypted frame carried by every chat message.
//
// Wire Format:
//
//	+--------+-------+------------+
//	| Nonce  | Tag   | Ciphertext |
//	| 12B    | 16B   | Variable   |
//	+--------+-------+------------+
//
// The nonce is drawn at random for every frame. No associated data is bound.
// Frames are self-delimiting only through the unit codec that carries them.
package protocol

import (
	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/crypto"
)

// Frame is one sealed message.
type Frame struct {
	Nonce      [constants.AESNonceSize]byte
	Tag        [constants.AESTagSize]byte
	Ciphertext []byte
}

// Size returns the length of the wire encoding.
func (f *Frame) Size() int {
	return constants.FrameHeaderSize + len(f.Ciphertext)
}

// Bytes returns nonce || tag || ciphertext.
func (f *Frame) Bytes() []byte {
	buf := make([]byte, f.Size())
	copy(buf, f.Nonce[:])
	copy(buf[constants.AESNonceSize:], f.Tag[:])
	copy(buf[constants.FrameHeaderSize:], f.Ciphertext)
	return buf
}

// ParseFrame splits a wire unit into its fields. It copies nothing but the
// fixed-size header; Ciphertext aliases wire.
func ParseFrame(wire []byte) (*Frame, error) {
	if len(wire) < constants.MinFrameSize {
		return nil, qerrors.ErrFrameTooShort
	}
	f := &Frame{Ciphertext: wire[constants.FrameHeaderSize:]}
	copy(f.Nonce[:], wire[:constants.AESNonceSize])
	copy(f.Tag[:], wire[constants.AESNonceSize:constants.FrameHeaderSize])
	return f, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func Seal(aead *crypto.AEAD, plaintext []byte) (*Frame, error) {
	f := &Frame{}
	if err := crypto.SecureRandom(f.Nonce[:]); err != nil {
		return nil, err
	}

	ciphertext, tag, err := aead.Encrypt(f.Nonce[:], plaintext)
	if err != nil {
		return nil, err
	}
	f.Ciphertext = ciphertext
	copy(f.Tag[:], tag)
	return f, nil
}

// Open parses and decrypts a wire frame.
//
// Units shorter than nonce || tag fail with ErrFrameTooShort before the AEAD is
// consulted. Tag mismatches fail with ErrAuthenticationFailed. Both are
// recognized by errors.IsAuthFailure.
func Open(aead *crypto.AEAD, wire []byte) ([]byte, error) {
	f, err := ParseFrame(wire)
	if err != nil {
		return nil, err
	}
	return aead.Decrypt(f.Nonce[:], f.Ciphertext, f.Tag[:])
}

// MaxPlaintext returns the largest plaintext whose frame fits in a unit of
// maxUnit bytes.
func MaxPlaintext(maxUnit int) int {
	return maxUnit - constants.FrameHeaderSize
}
