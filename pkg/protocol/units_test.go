package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/crypto"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

// chunkReader returns one chunk per Read, like a socket delivering segments.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestRawUnitsOneReadPerUnit(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{[]byte("first"), []byte("second")}}
	var codec protocol.RawUnits

	u, err := codec.ReadUnit(r)
	require.NoError(t, err)
	assert.Equal(t, "first", string(u))

	u, err = codec.ReadUnit(r)
	require.NoError(t, err)
	assert.Equal(t, "second", string(u))

	_, err = codec.ReadUnit(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRawUnitsCapsAtMaxUnit(t *testing.T) {
	big := bytes.Repeat([]byte{'z'}, constants.MaxUnitSize+10)
	r := &chunkReader{chunks: [][]byte{big}}
	var codec protocol.RawUnits

	u, err := codec.ReadUnit(r)
	require.NoError(t, err)
	assert.Len(t, u, constants.MaxUnitSize)

	u, err = codec.ReadUnit(r)
	require.NoError(t, err)
	assert.Len(t, u, 10)
}

func TestRawUnitsWrite(t *testing.T) {
	var buf bytes.Buffer
	var codec protocol.RawUnits

	require.NoError(t, codec.WriteUnit(&buf, []byte("abc")))
	assert.Equal(t, "abc", buf.String())

	err := codec.WriteUnit(&buf, make([]byte, constants.MaxUnitSize+1))
	assert.ErrorIs(t, err, qerrors.ErrMessageTooLarge)
	assert.Equal(t, constants.MaxUnitSize, codec.MaxUnit())
}

func TestLengthPrefixedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := protocol.LengthPrefixedUnits{}

	units := [][]byte{[]byte("one"), {}, bytes.Repeat([]byte{1}, 5000)}
	for _, u := range units {
		require.NoError(t, codec.WriteUnit(&buf, u))
	}

	// Coalesced writes still come apart at unit boundaries.
	for _, want := range units {
		got, err := codec.ReadUnit(&buf)
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got))
		assert.True(t, bytes.Equal(want, got))
	}

	_, err := codec.ReadUnit(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLengthPrefixedLimits(t *testing.T) {
	codec := protocol.LengthPrefixedUnits{Max: 8}
	assert.Equal(t, 8, codec.MaxUnit())

	var buf bytes.Buffer
	assert.ErrorIs(t, codec.WriteUnit(&buf, make([]byte, 9)), qerrors.ErrMessageTooLarge)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 9)
	_, err := codec.ReadUnit(bytes.NewReader(header))
	assert.ErrorIs(t, err, qerrors.ErrMessageTooLarge)

	binary.BigEndian.PutUint32(header, 4)
	_, err = codec.ReadUnit(bytes.NewReader(append(header, 'a')))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.Equal(t, constants.MaxPrefixedUnitSize, protocol.LengthPrefixedUnits{}.MaxUnit())
}

func TestVariant(t *testing.T) {
	v := protocol.DefaultVariant()
	require.NoError(t, v.Validate())
	assert.True(t, v.IncludeSalt)
	assert.IsType(t, protocol.RawUnits{}, v.Codec())
	assert.Equal(t, "RESEND 5", v.FeedbackSignal(5).String())

	v.Feedback = protocol.FeedbackError
	v.Framing = protocol.FramingLengthPrefixed
	assert.IsType(t, protocol.LengthPrefixedUnits{}, v.Codec())
	assert.Equal(t, "ERROR", v.FeedbackSignal(5).String())

	v.AwaitFeedback = -time.Second
	assert.ErrorIs(t, v.Validate(), qerrors.ErrInvalidState)

	v = protocol.DefaultVariant()
	v.Framing = protocol.Framing(9)
	assert.ErrorIs(t, v.Validate(), qerrors.ErrInvalidState)
}

func TestParseVariantFlags(t *testing.T) {
	f, err := protocol.ParseFeedback("error")
	require.NoError(t, err)
	assert.Equal(t, protocol.FeedbackError, f)
	_, err = protocol.ParseFeedback("nack")
	assert.Error(t, err)

	fr, err := protocol.ParseFraming("length-prefixed")
	require.NoError(t, err)
	assert.Equal(t, protocol.FramingLengthPrefixed, fr)
	assert.Equal(t, "raw", protocol.FramingRaw.String())
	_, err = protocol.ParseFraming("cobs")
	assert.Error(t, err)
}

func TestCheckCipherSuite(t *testing.T) {
	assert.NoError(t, protocol.CheckCipherSuite(constants.CipherSuiteAES256GCM))
	assert.ErrorIs(t, protocol.CheckCipherSuite(constants.CipherSuite(0x77)), qerrors.ErrUnsupportedCipherSuite)
	assert.Equal(t, constants.CipherSuiteAES256GCM, protocol.PreferredCipherSuite())
}

func TestSupportedCipherSuitesFollowBuild(t *testing.T) {
	suites := protocol.SupportedCipherSuites()
	require.NotEmpty(t, suites)
	if crypto.FIPSMode() {
		for _, cs := range suites {
			assert.True(t, cs.IsFIPSApproved(), cs.String())
		}
		return
	}
	assert.Contains(t, suites, constants.CipherSuiteChaCha20Poly1305)
}
