package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/crypto"
)

// --- Random Tests ---

func TestSecureRandom(t *testing.T) {
	buf := make([]byte, 32)
	require.NoError(t, crypto.SecureRandom(buf))
	assert.NotEqual(t, make([]byte, 32), buf, "SecureRandom returned all zeros")
}

func TestSecureRandomBytes(t *testing.T) {
	for _, size := range []int{16, 32, 64} {
		buf, err := crypto.SecureRandomBytes(size)
		require.NoError(t, err)
		assert.Len(t, buf, size)
	}
}

func TestMustSecureRandomBytes(t *testing.T) {
	assert.Len(t, crypto.MustSecureRandomBytes(24), 24)
}

func TestZeroize(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	crypto.Zeroize(a, b)
	assert.Equal(t, []byte{0, 0, 0}, a)
	assert.Equal(t, []byte{0, 0}, b)
}

// --- X25519 Tests ---

func TestX25519KeyGeneration(t *testing.T) {
	kp1, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)
	kp2, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)

	assert.Len(t, kp1.PublicKeyBytes(), constants.X25519PublicKeySize)
	assert.NotEqual(t, kp1.Public, kp2.Public, "two ephemeral key pairs must differ")
}

func TestX25519KeyExchange(t *testing.T) {
	alice, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)
	bob, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)

	s1, err := crypto.KeyExchange(alice, bob.PublicKeyBytes())
	require.NoError(t, err)
	s2, err := crypto.KeyExchange(bob, alice.PublicKeyBytes())
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Len(t, s1, constants.X25519SharedSecretSize)
}

func TestX25519KeyPairFromBytes(t *testing.T) {
	priv := bytes.Repeat([]byte{0x42}, 32)
	kp1, err := crypto.NewX25519KeyPairFromBytes(priv)
	require.NoError(t, err)
	kp2, err := crypto.NewX25519KeyPairFromBytes(priv)
	require.NoError(t, err)
	assert.Equal(t, kp1.Public, kp2.Public)

	_, err = crypto.NewX25519KeyPairFromBytes(priv[:31])
	assert.ErrorIs(t, err, qerrors.ErrInvalidKeySize)
}

func TestX25519InvalidPeerKey(t *testing.T) {
	kp, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)

	_, err = crypto.KeyExchange(kp, make([]byte, 31))
	assert.ErrorIs(t, err, qerrors.ErrInvalidPublicKey)

	// The all-zero point has small order and yields an all-zero secret.
	_, err = crypto.KeyExchange(kp, make([]byte, 32))
	assert.ErrorIs(t, err, qerrors.ErrInvalidPublicKey)

	_, err = crypto.KeyExchange(nil, kp.PublicKeyBytes())
	assert.ErrorIs(t, err, qerrors.ErrInvalidPrivateKey)
}

func TestX25519GenerateFromFailingReader(t *testing.T) {
	_, err := crypto.GenerateX25519KeyPairFrom(bytes.NewReader(make([]byte, 4)))
	assert.ErrorIs(t, err, qerrors.ErrKeyGenerationFailed)
}

func TestX25519Zeroize(t *testing.T) {
	kp, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)
	kp.Zeroize()
	assert.Equal(t, make([]byte, 32), kp.Private[:])
}

// --- KDF Tests ---

func fastScrypt() crypto.KDFParams {
	p := crypto.DefaultKDFParams()
	p.N = 1 << 4
	return p
}

func TestDefaultKDFParams(t *testing.T) {
	p := crypto.DefaultKDFParams()
	assert.Equal(t, crypto.KDFScrypt, p.Algorithm)
	assert.Equal(t, 16384, p.N)
	assert.Equal(t, 8, p.R)
	assert.Equal(t, 1, p.P)
}

func TestDeriveSessionKey(t *testing.T) {
	shared := bytes.Repeat([]byte{1}, 32)
	salt := bytes.Repeat([]byte{2}, 16)

	for _, params := range []crypto.KDFParams{fastScrypt(), {Algorithm: crypto.KDFHKDF}} {
		t.Run(params.Algorithm.String(), func(t *testing.T) {
			k1, err := crypto.DeriveSessionKey(shared, salt, params)
			require.NoError(t, err)
			k2, err := crypto.DeriveSessionKey(shared, salt, params)
			require.NoError(t, err)
			assert.Len(t, k1, constants.SessionKeySize)
			assert.Equal(t, k1, k2, "derivation must be deterministic")

			otherSalt := bytes.Repeat([]byte{3}, 16)
			k3, err := crypto.DeriveSessionKey(shared, otherSalt, params)
			require.NoError(t, err)
			assert.NotEqual(t, k1, k3, "salt must change the key")
		})
	}
}

func TestDeriveSessionKeyAlgorithmsDiffer(t *testing.T) {
	shared := bytes.Repeat([]byte{9}, 32)
	salt := bytes.Repeat([]byte{7}, 16)

	scryptKey, err := crypto.DeriveSessionKey(shared, salt, fastScrypt())
	require.NoError(t, err)
	hkdfKey, err := crypto.DeriveSessionKey(shared, salt, crypto.KDFParams{Algorithm: crypto.KDFHKDF})
	require.NoError(t, err)
	assert.NotEqual(t, scryptKey, hkdfKey)
}

func TestDeriveSessionKeyErrors(t *testing.T) {
	_, err := crypto.DeriveSessionKey(make([]byte, 10), make([]byte, 16), fastScrypt())
	assert.ErrorIs(t, err, qerrors.ErrInvalidKeySize)

	_, err = crypto.DeriveSessionKey(make([]byte, 32), make([]byte, 15), fastScrypt())
	assert.ErrorIs(t, err, qerrors.ErrInvalidSaltSize)

	_, err = crypto.DeriveSessionKey(make([]byte, 32), make([]byte, 16), crypto.KDFParams{Algorithm: crypto.KDF(9)})
	assert.ErrorIs(t, err, qerrors.ErrUnsupportedKDF)
}

func TestKDFParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  crypto.KDFParams
		wantErr bool
	}{
		{"default", crypto.DefaultKDFParams(), false},
		{"small power of two", crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: 2, R: 1, P: 1}, false},
		{"hkdf ignores cost", crypto.KDFParams{Algorithm: crypto.KDFHKDF}, false},
		{"N not power of two", crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: 1000, R: 8, P: 1}, true},
		{"N one", crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: 1, R: 8, P: 1}, true},
		{"N negative", crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: -16, R: 8, P: 1}, true},
		{"r zero", crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: 16, R: 0, P: 1}, true},
		{"p zero", crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: 16, R: 8, P: 0}, true},
		{"r*p too large", crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: 16, R: 1 << 15, P: 1 << 15}, true},
		{"unknown algorithm", crypto.KDFParams{Algorithm: crypto.KDF(9)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, qerrors.ErrUnsupportedKDF) {
				t.Errorf("Validate() error = %v, want ErrUnsupportedKDF", err)
			}
		})
	}
}

func TestInvalidParamsFailDerivation(t *testing.T) {
	bad := crypto.KDFParams{Algorithm: crypto.KDFScrypt, N: 1000, R: 8, P: 1}
	if bad.Validate() == nil {
		t.Fatal("Validate accepted N=1000")
	}
	if _, err := crypto.DeriveSessionKey(make([]byte, 32), make([]byte, 16), bad); err == nil {
		t.Fatal("DeriveSessionKey accepted parameters Validate rejects")
	}
}

func TestParseKDF(t *testing.T) {
	k, err := crypto.ParseKDF("scrypt")
	require.NoError(t, err)
	assert.Equal(t, crypto.KDFScrypt, k)

	k, err = crypto.ParseKDF("hkdf")
	require.NoError(t, err)
	assert.Equal(t, crypto.KDFHKDF, k)

	_, err = crypto.ParseKDF("pbkdf2")
	assert.True(t, errors.Is(err, qerrors.ErrUnsupportedKDF))
}

func TestFixedSaltAndFingerprint(t *testing.T) {
	assert.Len(t, crypto.FixedSalt(), constants.SaltSize)
	assert.Equal(t, crypto.FixedSalt(), crypto.FixedSalt())

	key := bytes.Repeat([]byte{5}, 32)
	fp := crypto.Fingerprint(key)
	assert.Len(t, fp, constants.FingerprintSize)
	assert.NotEqual(t, fp, crypto.Fingerprint(bytes.Repeat([]byte{6}, 32)))
}

// --- AEAD Tests ---

func TestAEADRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	for _, suite := range []constants.CipherSuite{constants.CipherSuiteAES256GCM, constants.CipherSuiteChaCha20Poly1305} {
		t.Run(suite.String(), func(t *testing.T) {
			aead, err := crypto.NewAEAD(suite, key)
			require.NoError(t, err)
			assert.Equal(t, suite, aead.Suite())
			assert.Equal(t, 12, aead.NonceSize())
			assert.Equal(t, 28, aead.Overhead())

			nonce := make([]byte, aead.NonceSize())
			ct, tag, err := aead.Encrypt(nonce, []byte("hello"))
			require.NoError(t, err)
			assert.Len(t, ct, 5)
			assert.Len(t, tag, 16)

			pt, err := aead.Decrypt(nonce, ct, tag)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), pt)
		})
	}
}

func TestAEADTampered(t *testing.T) {
	aead, err := crypto.NewAEAD(constants.CipherSuiteAES256GCM, bytes.Repeat([]byte{0x22}, 32))
	require.NoError(t, err)

	nonce := make([]byte, 12)
	ct, tag, err := aead.Encrypt(nonce, []byte("attack at dawn"))
	require.NoError(t, err)

	ct[0] ^= 0x01
	_, err = aead.Decrypt(nonce, ct, tag)
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)

	ct[0] ^= 0x01
	tag[15] ^= 0x80
	_, err = aead.Decrypt(nonce, ct, tag)
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)
}

func TestAEADWrongKey(t *testing.T) {
	a1, err := crypto.NewAEAD(constants.CipherSuiteAES256GCM, bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	a2, err := crypto.NewAEAD(constants.CipherSuiteAES256GCM, bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)

	nonce := make([]byte, 12)
	ct, tag, err := a1.Encrypt(nonce, []byte("x"))
	require.NoError(t, err)
	_, err = a2.Decrypt(nonce, ct, tag)
	assert.ErrorIs(t, err, qerrors.ErrAuthenticationFailed)
}

func TestAEADInvalidInputs(t *testing.T) {
	_, err := crypto.NewAEAD(constants.CipherSuiteAES256GCM, make([]byte, 16))
	assert.ErrorIs(t, err, qerrors.ErrInvalidKeySize)

	_, err = crypto.NewAEAD(constants.CipherSuite(0xFF), make([]byte, 32))
	assert.ErrorIs(t, err, qerrors.ErrUnsupportedCipherSuite)

	aead, err := crypto.NewAEAD(constants.CipherSuiteAES256GCM, make([]byte, 32))
	require.NoError(t, err)

	_, _, err = aead.Encrypt(make([]byte, 5), nil)
	assert.ErrorIs(t, err, qerrors.ErrInvalidNonce)

	_, err = aead.Decrypt(make([]byte, 12), nil, make([]byte, 3))
	assert.ErrorIs(t, err, qerrors.ErrInvalidTag)
}
