package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sara-star-quant/securechat/pkg/crypto"
)

func TestSelfTestsPass(t *testing.T) {
	assert.NoError(t, crypto.RunSelfTests())
	assert.NoError(t, crypto.RunSelfTests(), "second call returns the cached result")
}

func TestSelfTestNames(t *testing.T) {
	assert.Equal(t, []string{"x25519", "scrypt", "hkdf-sha256", "aes-256-gcm"}, crypto.SelfTestNames())
}
