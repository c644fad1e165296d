// x25519.go implements X25519 Elliptic Curve Diffie-Hellman operations.
//
// X25519 (RFC 7748) is an elliptic curve Diffie-Hellman function using Curve25519.
// It provides approximately 128 bits of security against classical computers.
//
// Mathematical Foundation:
//
// Curve25519 is a Montgomery curve defined by: y² = x³ + 486662x² + x
// over the prime field F_p where p = 2²⁵⁵ - 19.
//
// The group operation uses x-coordinate-only arithmetic (Montgomery ladder),
// which provides constant-time execution and resistance to timing attacks.
//
// Key pairs are ephemeral: one is generated per handshake and zeroized when the
// session that used it ends.
package crypto

import (
	"io"

	"github.com/cloudflare/circl/dh/x25519"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// X25519KeyPair represents an ephemeral X25519 key pair.
type X25519KeyPair struct {
	// Public is the public component sent to the peer
	Public x25519.Key

	// Private is the secret scalar
	Private x25519.Key
}

// GenerateX25519KeyPair generates a new X25519 key pair from Reader.
//
// The key generation process:
// 1. Read 32 random bytes as the private scalar
// 2. Compute public key as scalar multiplication of basepoint
//    (clamping is applied inside the ladder)
//
// Returns error if the system's CSPRNG fails.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	return GenerateX25519KeyPairFrom(Reader)
}

// GenerateX25519KeyPairFrom generates a key pair reading the scalar from r.
func GenerateX25519KeyPairFrom(r io.Reader) (*X25519KeyPair, error) {
	kp := &X25519KeyPair{}
	if _, err := io.ReadFull(r, kp.Private[:]); err != nil {
		return nil, qerrors.NewCryptoError("X25519KeyPair.Generate", qerrors.ErrKeyGenerationFailed)
	}
	x25519.KeyGen(&kp.Public, &kp.Private)
	return kp, nil
}

// NewX25519KeyPairFromBytes creates an X25519 key pair from a 32-byte private key.
// This is deterministic: the same private key bytes always produce the same key pair.
func NewX25519KeyPairFromBytes(privateKeyBytes []byte) (*X25519KeyPair, error) {
	if len(privateKeyBytes) != constants.X25519PrivateKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}

	kp := &X25519KeyPair{}
	copy(kp.Private[:], privateKeyBytes)
	x25519.KeyGen(&kp.Public, &kp.Private)
	return kp, nil
}

// KeyExchange performs X25519 Diffie-Hellman shared secret computation.
//
// Security Note: The result should never be used directly as a key.
// Always derive the session key with DeriveSessionKey.
//
// Returns ErrInvalidPublicKey if the peer key has the wrong length or is a
// low-order point (the shared secret would be all zeros).
func KeyExchange(kp *X25519KeyPair, peerPublic []byte) ([]byte, error) {
	if kp == nil {
		return nil, qerrors.ErrInvalidPrivateKey
	}
	if len(peerPublic) != constants.X25519PublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}

	var peer, shared x25519.Key
	copy(peer[:], peerPublic)
	if !x25519.Shared(&shared, &kp.Private, &peer) {
		return nil, qerrors.NewCryptoError("X25519", qerrors.ErrInvalidPublicKey)
	}

	out := make([]byte, constants.X25519SharedSecretSize)
	copy(out, shared[:])
	Zeroize(shared[:])
	return out, nil
}

// PublicKeyBytes returns the encoded bytes of the public key.
func (kp *X25519KeyPair) PublicKeyBytes() []byte {
	out := make([]byte, constants.X25519PublicKeySize)
	copy(out, kp.Public[:])
	return out
}

// Zeroize securely erases the private key material.
func (kp *X25519KeyPair) Zeroize() {
	Zeroize(kp.Private[:])
}
