// aead.go implements Authenticated Encryption with Associated Data (AEAD).
//
// This package supports two AEAD algorithms:
//   - AES-256-GCM: FIPS-approved, hardware-accelerated on modern CPUs
//   - ChaCha20-Poly1305: High performance without hardware support
//
// Both produce a 128-bit tag and take a 96-bit nonce. The channel draws a fresh
// random nonce for every frame, so the number of frames sealed under one key must
// stay well below the birthday bound of the nonce space (see
// constants.MaxFramesPerKey).
//
// The AEAD exposes the tag separately from the ciphertext because the wire frame
// places it before the ciphertext: nonce || tag || ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"slices"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// AEAD represents an authenticated encryption cipher bound to one session key.
// It is safe for concurrent use by the send and receive flows.
type AEAD struct {
	cipher cipher.AEAD
	suite  constants.CipherSuite
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

var aeadConstructors = map[constants.CipherSuite]func([]byte) (cipher.AEAD, error){
	constants.CipherSuiteAES256GCM:        newGCM,
	constants.CipherSuiteChaCha20Poly1305: chacha20poly1305.New,
}

// NewAEAD binds suite to a 32-byte session key.
func NewAEAD(suite constants.CipherSuite, key []byte) (*AEAD, error) {
	if len(key) != constants.SessionKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	construct, ok := aeadConstructors[suite]
	if !ok {
		return nil, qerrors.ErrUnsupportedCipherSuite
	}
	c, err := construct(key)
	if err != nil {
		return nil, qerrors.NewCryptoError("new aead", err)
	}
	return &AEAD{cipher: c, suite: suite}, nil
}

// Encrypt seals plaintext under the given nonce with no associated data.
//
// Returns the ciphertext (same length as plaintext) and the 16-byte tag
// as separate slices.
func (a *AEAD) Encrypt(nonce, plaintext []byte) (ciphertext, tag []byte, err error) {
	if len(nonce) != a.cipher.NonceSize() {
		return nil, nil, qerrors.ErrInvalidNonce
	}

	sealed := a.cipher.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - a.cipher.Overhead()
	return sealed[:split:split], sealed[split:], nil
}

// Decrypt verifies the tag and opens ciphertext.
//
// Any verification failure is reported as ErrAuthenticationFailed; the
// underlying cipher error is not exposed.
func (a *AEAD) Decrypt(nonce, ciphertext, tag []byte) ([]byte, error) {
	if len(nonce) != a.cipher.NonceSize() {
		return nil, qerrors.ErrInvalidNonce
	}
	if len(tag) != a.cipher.Overhead() {
		return nil, qerrors.ErrInvalidTag
	}

	sealed := slices.Concat(ciphertext, tag)
	plaintext, err := a.cipher.Open(sealed[:0], nonce, sealed, nil)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Suite returns the cipher suite identifier.
func (a *AEAD) Suite() constants.CipherSuite {
	return a.suite
}

// Overhead returns the number of bytes of overhead added by one frame.
// This is nonce size + authentication tag size.
func (a *AEAD) Overhead() int {
	return a.cipher.NonceSize() + a.cipher.Overhead()
}

// NonceSize returns the required nonce size in bytes.
func (a *AEAD) NonceSize() int {
	return a.cipher.NonceSize()
}
