package protocol_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

func TestHelloRoundTrip(t *testing.T) {
	h := &protocol.Hello{Salt: bytes.Repeat([]byte{0xEE}, 16)}
	for i := range h.PublicKey {
		h.PublicKey[i] = byte(i)
	}
	require.NoError(t, h.Validate())

	wire := h.Bytes()
	assert.Len(t, wire, 48)

	got, err := protocol.ParseHello(wire, true)
	require.NoError(t, err)
	assert.Equal(t, h.PublicKey, got.PublicKey)
	assert.Equal(t, h.Salt, got.Salt)
}

func TestHelloWithoutSalt(t *testing.T) {
	h := &protocol.Hello{}
	h.PublicKey[0] = 9
	wire := h.Bytes()
	assert.Len(t, wire, 32)

	got, err := protocol.ParseHello(wire, false)
	require.NoError(t, err)
	assert.Nil(t, got.Salt)
	assert.Equal(t, h.PublicKey, got.PublicKey)
}

func TestParseHelloWrongLength(t *testing.T) {
	for _, n := range []int{0, 31, 33, 47, 49, 4096} {
		_, err := protocol.ParseHello(make([]byte, n), true)
		assert.ErrorIs(t, err, qerrors.ErrMalformedPeerData, "len=%d", n)
	}

	_, err := protocol.ParseHello(make([]byte, 48), false)
	assert.ErrorIs(t, err, qerrors.ErrMalformedPeerData)
}

func TestHelloValidateSalt(t *testing.T) {
	h := &protocol.Hello{Salt: make([]byte, 15)}
	assert.ErrorIs(t, h.Validate(), qerrors.ErrInvalidSaltSize)
}

func TestHelloReply(t *testing.T) {
	r := &protocol.HelloReply{}
	r.PublicKey[31] = 1

	got, err := protocol.ParseHelloReply(r.Bytes())
	require.NoError(t, err)
	assert.Equal(t, r.PublicKey, got.PublicKey)

	for _, n := range []int{31, 33, 48} {
		_, err := protocol.ParseHelloReply(make([]byte, n))
		assert.ErrorIs(t, err, qerrors.ErrMalformedPeerData, "len=%d", n)
	}
}
