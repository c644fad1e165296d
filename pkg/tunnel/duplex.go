package tunnel

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	qerrors "github.com/sara-star-quant/securechat/internal/errors"
	"github.com/sara-star-quant/securechat/pkg/protocol"
)

// Run drives the session until either flow ends.
//
// The send flow pulls plaintext from src and writes frames. The receive flow
// reads units, hands control signals to the observer, opens frames and
// delivers them to sink. A frame that fails to open is answered with the
// variant's control signal and does not end the session.
//
// The first flow to exit cancels the other and closes the connection. Run
// returns that flow's error: ErrPeerClosed when the peer closed the stream,
// a TransportError on read or write failure, or ctx.Err() when ctx ended.
// The session cannot be run again.
func (s *Session) Run(ctx context.Context, src Source, sink Sink) error {
	if s.State() == SessionStateClosed {
		return qerrors.ErrSessionClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = s.Close() })
	defer stop()

	g.Go(func() error { return s.sendFlow(gctx, src) })
	g.Go(func() error { return s.receiveFlow(gctx, sink) })

	err := g.Wait()
	_ = s.Close()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// sendFlow forwards messages from src until the session ends. When src is
// exhausted the flow idles so the receive flow keeps running.
func (s *Session) sendFlow(ctx context.Context, src Source) error {
	for {
		msg, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, io.EOF) {
				s.observer.OnMessageRejected(err)
			}
			<-ctx.Done()
			return ctx.Err()
		}

		s.drainFeedback()

		if err := s.Send(ctx, msg); err != nil {
			if errors.Is(err, qerrors.ErrMessageTooLarge) {
				s.observer.OnMessageRejected(err)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if s.variant.AwaitFeedback > 0 {
			s.awaitFeedback(ctx, s.variant.AwaitFeedback)
		}
	}
}

// drainFeedback discards a signal left over from an earlier message.
func (s *Session) drainFeedback() {
	select {
	case <-s.feedback:
	default:
	}
}

// awaitFeedback holds the send flow until the peer answers with a control
// signal, d elapses or ctx ends. The receive flow has already reported the
// signal to the observer.
func (s *Session) awaitFeedback(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.feedback:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// receiveFlow processes inbound units until the stream ends.
func (s *Session) receiveFlow(ctx context.Context, sink Sink) error {
	for {
		unit, err := s.codec.ReadUnit(s.conn)
		if err != nil {
			return s.readError(ctx, err)
		}
		s.BytesReceived.Add(uint64(len(unit)))

		if sig, ok := protocol.ParseControlSignal(unit); ok {
			s.ControlReceived.Add(1)
			s.observer.OnControlSignal(sig, false)
			select {
			case s.feedback <- sig:
			default:
			}
			continue
		}

		_, done := s.observer.OnDecrypt(ctx, len(unit))
		plaintext, err := protocol.Open(s.aead, unit)
		done(err)

		if err != nil {
			if !qerrors.IsAuthFailure(err) {
				return err
			}
			s.AuthFailures.Add(1)
			s.observer.OnAuthFailure()
			if err := s.sendControl(s.variant.FeedbackSignal(s.MessagesReceived.Load())); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			continue
		}

		index := s.MessagesReceived.Load()
		msg := Message{Index: index, Plaintext: plaintext, ReceivedAt: time.Now()}
		if err := sink.Deliver(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.MessagesReceived.Add(1)
		s.observer.OnMessageDelivered(index, len(plaintext))
	}
}

// readError classifies a failed read.
func (s *Session) readError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, io.EOF):
		return qerrors.ErrPeerClosed
	case errors.Is(err, qerrors.ErrMessageTooLarge):
		return qerrors.NewProtocolError("receive", err)
	default:
		return qerrors.NewTransportError("read", err)
	}
}
