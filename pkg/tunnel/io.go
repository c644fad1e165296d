package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sara-star-quant/securechat/internal/constants"
)

// Message is one delivered plaintext.
type Message struct {
	// Index counts messages delivered in this session, starting at 0.
	Index      uint64
	Plaintext  []byte
	ReceivedAt time.Time
}

// Source supplies outbound plaintext. Next blocks until a message is
// available, ctx ends, or the source is exhausted (io.EOF).
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// Sink receives inbound plaintext in stream order.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ChanSource reads messages from a channel. A closed channel is exhausted.
type ChanSource <-chan []byte

// Next returns the next message.
func (c ChanSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-c:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	}
}

// ChanSink writes messages to a channel.
type ChanSink chan<- Message

// Deliver sends msg, blocking until it is taken or ctx ends.
func (c ChanSink) Deliver(ctx context.Context, msg Message) error {
	select {
	case c <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LineSource turns lines of a reader into messages. One goroutine reads the
// reader for the lifetime of the source, so a LineSource can outlive the
// sessions that consume it.
type LineSource struct {
	lines chan []byte
	err   error
}

// NewLineSource starts reading r.
func NewLineSource(r io.Reader) *LineSource {
	ls := &LineSource{lines: make(chan []byte)}
	go ls.scan(r)
	return ls
}

func (ls *LineSource) scan(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, constants.MaxUnitSize), constants.MaxPrefixedUnitSize)
	for sc.Scan() {
		ls.lines <- append([]byte(nil), sc.Bytes()...)
	}
	ls.err = sc.Err()
	close(ls.lines)
}

// Next returns the next line without its terminator.
func (ls *LineSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-ls.lines:
		if !ok {
			if ls.err != nil {
				return nil, ls.err
			}
			return nil, io.EOF
		}
		return line, nil
	}
}

// WriterSink prints messages to a writer, one per line.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format func(Message) string
}

// NewWriterSink creates a sink printing "[index] text". A non-nil format
// replaces the default layout.
func NewWriterSink(w io.Writer, format func(Message) string) *WriterSink {
	if format == nil {
		format = func(m Message) string {
			return fmt.Sprintf("[%d] %s", m.Index, m.Plaintext)
		}
	}
	return &WriterSink{w: w, format: format}
}

// Deliver writes msg.
func (s *WriterSink) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, s.format(msg))
	return err
}
