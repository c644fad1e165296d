package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// FIPSMode reports whether the binary was built with the fips tag. A FIPS
// build offers AES-256-GCM only and panics at load if a self test fails.
func FIPSMode() bool { return fipsBuild }

// selfTest is one known-answer test run before any session key is derived.
type selfTest struct {
	name string
	run  func() error
}

var selfTests = []selfTest{
	{"x25519", x25519KAT},
	{"scrypt", scryptKAT},
	{"hkdf-sha256", hkdfKAT},
	{"aes-256-gcm", aesGCMKAT},
}

// SelfTestNames lists the known-answer tests in run order.
func SelfTestNames() []string {
	names := make([]string, len(selfTests))
	for i, t := range selfTests {
		names[i] = t.name
	}
	return names
}

var selfTestResult = sync.OnceValue(func() error {
	var errs []error
	for _, t := range selfTests {
		if err := t.run(); err != nil {
			errs = append(errs, qerrors.NewCryptoError("self test "+t.name, err))
		}
	}
	return errors.Join(errs...)
})

// RunSelfTests runs the known-answer tests once per process and returns
// every failure joined, or nil.
func RunSelfTests() error {
	return selfTestResult()
}

func init() {
	if err := RunSelfTests(); err != nil && FIPSMode() {
		panic(err)
	}
}

func unhex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func expect(what string, got, want []byte) error {
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%s: got %x, want %x", what, got, want)
	}
	return nil
}

// x25519KAT uses the RFC 7748 section 6.1 vector.
func x25519KAT() error {
	kp, err := NewX25519KeyPairFromBytes(unhex("77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a"))
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	if err := expect("public key", kp.PublicKeyBytes(),
		unhex("8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a")); err != nil {
		return err
	}
	shared, err := KeyExchange(kp, unhex("de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f"))
	if err != nil {
		return err
	}
	return expect("shared secret", shared,
		unhex("4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742"))
}

// scryptKAT uses the cheapest RFC 7914 section 12 vector: empty password and
// salt, N=16, r=1, p=1.
func scryptKAT() error {
	out, err := scrypt.Key(nil, nil, 16, 1, 1, 64)
	if err != nil {
		return err
	}
	return expect("scrypt", out, unhex(
		"77d6576238657b203b19ca42c18a0497f16b4844e3074ae8dfdffa3fede21442"+
			"fcd0069ded0948f8326a753a0fc81f17e8d3e0fb2e0d3628cf35e20c38d18906"))
}

// hkdfKAT uses RFC 5869 test case 1.
func hkdfKAT() error {
	ikm := bytes.Repeat([]byte{0x0b}, 22)
	r := hkdf.New(sha256.New, ikm, unhex("000102030405060708090a0b0c"), unhex("f0f1f2f3f4f5f6f7f8f9"))
	okm := make([]byte, 42)
	if _, err := io.ReadFull(r, okm); err != nil {
		return err
	}
	return expect("hkdf", okm, unhex(
		"3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865"))
}

// aesGCMKAT seals and opens a fixed message through the session AEAD.
func aesGCMKAT() error {
	key := unhex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	nonce := make([]byte, constants.AESNonceSize)
	msg := []byte("POST-KAT-TEST")

	aead, err := NewAEAD(constants.CipherSuiteAES256GCM, key)
	if err != nil {
		return err
	}
	ct, tag, err := aead.Encrypt(nonce, msg)
	if err != nil {
		return err
	}
	if err := expect("seal", append(ct, tag...),
		unhex("5a48b3005aeb1b0a8cd6767b8cded311eb6185c16343d286e3541e9d98")); err != nil {
		return err
	}
	pt, err := aead.Decrypt(nonce, ct, tag)
	if err != nil {
		return err
	}
	return expect("open", pt, msg)
}
