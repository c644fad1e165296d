// Package constants defines security parameters and protocol constants for the
// securechat duplex channel.
//
// The values mirror the deployed chat protocol: X25519 ephemeral keys, a 16-byte
// salt, a 32-byte session key and AES-256-GCM frames laid out as
// nonce || tag || ciphertext.
package constants

import (
	"strings"
	"time"
)

// Protocol identification
const (
	// ProtocolName is used for domain separation in key derivation
	ProtocolName = "securechat-x25519-v1"
)

// X25519 Parameters (RFC 7748)
const (
	// X25519PublicKeySize is the size of X25519 public key in bytes
	X25519PublicKeySize = 32

	// X25519PrivateKeySize is the size of X25519 private key in bytes
	X25519PrivateKeySize = 32

	// X25519SharedSecretSize is the size of the X25519 shared secret in bytes
	X25519SharedSecretSize = 32
)

// Handshake Parameters
const (
	// SaltSize is the size of the per-session KDF salt in bytes
	SaltSize = 16

	// HelloSize is the size of the salt owner's hello: public key || salt
	HelloSize = X25519PublicKeySize + SaltSize

	// HelloReplySize is the size of the peer's reply: public key only
	HelloReplySize = X25519PublicKeySize

	// DefaultHandshakeTimeout bounds a handshake on connections with deadlines
	DefaultHandshakeTimeout = 30 * time.Second
)

// Symmetric Encryption Parameters
const (
	// SessionKeySize is the size of the derived session key in bytes
	SessionKeySize = 32

	// AESKeySize is the size of AES-256 keys in bytes
	AESKeySize = 32

	// AESNonceSize is the size of AES-GCM nonce in bytes (96 bits)
	AESNonceSize = 12

	// AESTagSize is the size of AES-GCM authentication tag in bytes
	AESTagSize = 16

	// ChaCha20KeySize is the size of ChaCha20-Poly1305 keys in bytes
	ChaCha20KeySize = 32

	// ChaCha20NonceSize is the size of ChaCha20-Poly1305 nonce in bytes
	ChaCha20NonceSize = 12
)

// Key Derivation Parameters
const (
	// ScryptN is the scrypt work factor
	ScryptN = 1 << 14

	// ScryptR is the scrypt block size
	ScryptR = 8

	// ScryptP is the scrypt parallelism
	ScryptP = 1

	// FingerprintSize is the size of the printable session key fingerprint
	FingerprintSize = 8

	// DomainSeparatorFixedSalt derives the salt used when the hello carries none
	DomainSeparatorFixedSalt = "securechat-fixed-salt"

	// DomainSeparatorHKDF is the HKDF info string for session keys
	DomainSeparatorHKDF = "securechat-session-key"

	// DomainSeparatorFingerprint is mixed into session key fingerprints
	DomainSeparatorFingerprint = "securechat-fingerprint"
)

// Frame Layout
const (
	// FrameHeaderSize is nonce || tag, the minimum size of a valid frame
	FrameHeaderSize = AESNonceSize + AESTagSize

	// MinFrameSize is the minimum size of a wire frame (empty plaintext)
	MinFrameSize = FrameHeaderSize

	// MaxUnitSize is the read buffer for one inbound wire unit
	MaxUnitSize = 4096

	// MaxPlaintextSize is the largest plaintext that fits in one unit
	MaxPlaintextSize = MaxUnitSize - FrameHeaderSize

	// LengthPrefixSize is the header size of length-prefixed units
	LengthPrefixSize = 4

	// MaxPrefixedUnitSize bounds the body of one length-prefixed unit
	MaxPrefixedUnitSize = 64 * 1024

	// MaxFramesPerKey caps random-nonce frames under one key. With 96-bit
	// random nonces the collision probability stays below 2^-32 up to 2^32
	// frames (NIST SP 800-38D, section 8.3).
	MaxFramesPerKey = 1 << 32
)

// Control Signals
const (
	// ControlResendPrefix starts a retransmission request
	ControlResendPrefix = "RESEND"

	// ControlErrorLiteral reports a local decrypt failure
	ControlErrorLiteral = "ERROR"
)

// Lifecycle Parameters
const (
	// DefaultBackoff is the fixed delay between connection attempts
	DefaultBackoff = 3 * time.Second

	// DefaultListenAddress is the address the listener binds
	DefaultListenAddress = ":65432"

	// DefaultPeerAddress is the address the initiator dials
	DefaultPeerAddress = "localhost:65432"

	// DefaultWriteTimeout bounds a single unit write
	DefaultWriteTimeout = 30 * time.Second
)

// CipherSuite identifies the AEAD that seals frames. Both peers must be
// configured with the same suite; it is never negotiated.
type CipherSuite uint16

const (
	CipherSuiteAES256GCM        CipherSuite = 0x0001
	CipherSuiteChaCha20Poly1305 CipherSuite = 0x0002
)

type suiteInfo struct {
	name    string
	aliases []string
	fips    bool // FIPS 140-3 approved
}

var suiteTable = map[CipherSuite]suiteInfo{
	CipherSuiteAES256GCM:        {name: "AES-256-GCM", aliases: []string{"aes-gcm", "aes"}, fips: true},
	CipherSuiteChaCha20Poly1305: {name: "ChaCha20-Poly1305", aliases: []string{"chacha20", "chacha20-poly1305"}},
}

// String returns the suite name, or "Unknown".
func (cs CipherSuite) String() string {
	if info, ok := suiteTable[cs]; ok {
		return info.name
	}
	return "Unknown"
}

// IsSupported reports whether cs names a known suite.
func (cs CipherSuite) IsSupported() bool {
	_, ok := suiteTable[cs]
	return ok
}

// IsFIPSApproved reports whether cs may be used in a FIPS build.
func (cs CipherSuite) IsFIPSApproved() bool {
	return suiteTable[cs].fips
}

// ParseCipherSuite maps a --cipher value or a suite name to a suite.
// Matching ignores case.
func ParseCipherSuite(name string) (CipherSuite, bool) {
	for cs, info := range suiteTable {
		if strings.EqualFold(name, info.name) {
			return cs, true
		}
		for _, alias := range info.aliases {
			if strings.EqualFold(name, alias) {
				return cs, true
			}
		}
	}
	return 0, false
}
