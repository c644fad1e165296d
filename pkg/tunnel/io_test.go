package tunnel

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineSource(t *testing.T) {
	src := NewLineSource(strings.NewReader("hello\nworld\r\n\nlast"))
	ctx := context.Background()

	for _, want := range []string{"hello", "world\r", "", "last"} {
		line, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(line))
	}
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineSourceCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	src := NewLineSource(r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChanSource(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte("x")
	close(ch)

	src := ChanSource(ch)
	msg, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", string(msg))

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, nil)

	require.NoError(t, sink.Deliver(context.Background(), Message{Index: 0, Plaintext: []byte("hello")}))
	require.NoError(t, sink.Deliver(context.Background(), Message{Index: 1, Plaintext: []byte("again")}))
	assert.Equal(t, "[0] hello\n[1] again\n", buf.String())

	buf.Reset()
	custom := NewWriterSink(&buf, func(m Message) string { return string(m.Plaintext) })
	require.NoError(t, custom.Deliver(context.Background(), Message{Plaintext: []byte("plain")}))
	assert.Equal(t, "plain\n", buf.String())
}

func TestSinkFuncAndChanSink(t *testing.T) {
	var got Message
	f := SinkFunc(func(_ context.Context, m Message) error {
		got = m
		return nil
	})
	require.NoError(t, f.Deliver(context.Background(), Message{Index: 7}))
	assert.Equal(t, uint64(7), got.Index)

	ch := make(chan Message)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ChanSink(ch).Deliver(ctx, Message{}), context.Canceled)
}
