package protocol

import (
	"fmt"
	"slices"
	"time"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// Feedback selects the control signal sent after a frame fails to open.
type Feedback int

const (
	// FeedbackResend sends RESEND <delivered count>
	FeedbackResend Feedback = iota
	// FeedbackError sends ERROR
	FeedbackError
)

// String returns the flag name of the feedback mode.
func (f Feedback) String() string {
	switch f {
	case FeedbackResend:
		return "resend"
	case FeedbackError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseFeedback maps a flag value to a Feedback.
func ParseFeedback(name string) (Feedback, error) {
	switch name {
	case "resend":
		return FeedbackResend, nil
	case "error":
		return FeedbackError, nil
	default:
		return 0, fmt.Errorf("unknown feedback mode %q", name)
	}
}

// Framing selects the unit codec.
type Framing int

const (
	// FramingRaw is one transport read per unit
	FramingRaw Framing = iota
	// FramingLengthPrefixed is a 4-byte length header per unit
	FramingLengthPrefixed
)

// String returns the flag name of the framing.
func (f Framing) String() string {
	switch f {
	case FramingRaw:
		return "raw"
	case FramingLengthPrefixed:
		return "length-prefixed"
	default:
		return "unknown"
	}
}

// ParseFraming maps a flag value to a Framing.
func ParseFraming(name string) (Framing, error) {
	switch name {
	case "raw":
		return FramingRaw, nil
	case "length-prefixed", "prefixed":
		return FramingLengthPrefixed, nil
	default:
		return 0, fmt.Errorf("unknown framing %q", name)
	}
}

// Variant collects the wire options both peers must agree on.
type Variant struct {
	// IncludeSalt sends the salt in the Hello. When false both sides use
	// crypto.FixedSalt.
	IncludeSalt bool

	// Feedback is the control signal sent after a failed open.
	Feedback Feedback

	// Framing selects the unit codec for handshake and session traffic.
	Framing Framing

	// AwaitFeedback, when positive, makes the send flow wait up to this long
	// after each message for a control signal from the peer.
	AwaitFeedback time.Duration
}

// DefaultVariant returns the deployed protocol's options.
func DefaultVariant() Variant {
	return Variant{
		IncludeSalt: true,
		Feedback:    FeedbackResend,
		Framing:     FramingRaw,
	}
}

// Codec returns the unit codec for the variant.
func (v Variant) Codec() UnitCodec {
	if v.Framing == FramingLengthPrefixed {
		return LengthPrefixedUnits{}
	}
	return RawUnits{}
}

// FeedbackSignal returns the control signal to send after a failed open,
// given the number of messages delivered so far.
func (v Variant) FeedbackSignal(delivered uint64) ControlSignal {
	if v.Feedback == FeedbackError {
		return ErrorSignal()
	}
	return ResendSignal(delivered)
}

// Validate checks the enumerations.
func (v Variant) Validate() error {
	if v.Feedback != FeedbackResend && v.Feedback != FeedbackError {
		return fmt.Errorf("%w: feedback %d", qerrors.ErrInvalidState, v.Feedback)
	}
	if v.Framing != FramingRaw && v.Framing != FramingLengthPrefixed {
		return fmt.Errorf("%w: framing %d", qerrors.ErrInvalidState, v.Framing)
	}
	if v.AwaitFeedback < 0 {
		return fmt.Errorf("%w: negative feedback wait", qerrors.ErrInvalidState)
	}
	return nil
}

// CheckCipherSuite returns ErrUnsupportedCipherSuite unless cs is available in
// this build.
func CheckCipherSuite(cs constants.CipherSuite) error {
	if !slices.Contains(SupportedCipherSuites(), cs) {
		return fmt.Errorf("%w: %s", qerrors.ErrUnsupportedCipherSuite, cs)
	}
	return nil
}
