// Package crypto holds the primitives a securechat session is built from:
// X25519 key agreement, scrypt and HKDF key derivation, and the AES-256-GCM
// and ChaCha20-Poly1305 AEADs. Randomness always comes from crypto/rand.
package crypto

import (
	"crypto/rand"
	"io"

	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// Reader is the randomness source for key generation and nonces.
var Reader io.Reader = rand.Reader

// SecureRandom fills b from Reader. An error means the system CSPRNG is
// broken and the caller must not continue with a partial buffer.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(Reader, b); err != nil {
		return qerrors.NewCryptoError("read random", err)
	}
	return nil
}

// SecureRandomBytes returns n fresh random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustSecureRandomBytes is SecureRandomBytes for callers that cannot
// recover from a CSPRNG failure.
func MustSecureRandomBytes(n int) []byte {
	b, err := SecureRandomBytes(n)
	if err != nil {
		panic(err)
	}
	return b
}

// Zeroize overwrites each buffer with zeros. Copies made by the runtime are
// not reached.
func Zeroize(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
