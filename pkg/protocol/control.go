// control.go implements the plaintext control sub-protocol.
//
// Control signals travel unencrypted in their own wire unit:
//
//	RESEND <n>   the receiver failed to open a frame; n is its count of
//	             messages delivered so far (decimal ASCII)
//	ERROR        the receiver failed to open a frame
//
// Signals are recognized by prefix, so trailing bytes after the keyword are
// tolerated. They are advisory: nothing is retransmitted.
package protocol

import (
	"bytes"
	"strconv"

	"github.com/sara-star-quant/securechat/internal/constants"
)

// ControlKind identifies a control signal.
type ControlKind uint8

const (
	// ControlResend requests retransmission
	ControlResend ControlKind = iota + 1
	// ControlError reports a decrypt failure
	ControlError
)

// String returns the wire keyword of the kind.
func (k ControlKind) String() string {
	switch k {
	case ControlResend:
		return constants.ControlResendPrefix
	case ControlError:
		return constants.ControlErrorLiteral
	default:
		return "UNKNOWN"
	}
}

// ControlSignal is a parsed control unit.
type ControlSignal struct {
	Kind ControlKind

	// Index is the sender's delivered-message count. Only meaningful when
	// HasIndex is set.
	Index    uint64
	HasIndex bool
}

// ResendSignal builds RESEND <index>.
func ResendSignal(index uint64) ControlSignal {
	return ControlSignal{Kind: ControlResend, Index: index, HasIndex: true}
}

// ErrorSignal builds ERROR.
func ErrorSignal() ControlSignal {
	return ControlSignal{Kind: ControlError}
}

// Bytes returns the wire encoding.
func (c ControlSignal) Bytes() []byte {
	switch c.Kind {
	case ControlResend:
		if !c.HasIndex {
			return []byte(constants.ControlResendPrefix)
		}
		return strconv.AppendUint([]byte(constants.ControlResendPrefix+" "), c.Index, 10)
	default:
		return []byte(constants.ControlErrorLiteral)
	}
}

// String implements fmt.Stringer.
func (c ControlSignal) String() string {
	return string(c.Bytes())
}

var (
	resendPrefix = []byte(constants.ControlResendPrefix)
	errorPrefix  = []byte(constants.ControlErrorLiteral)
)

// ParseControlSignal reports whether unit is a control signal and decodes it.
// A RESEND whose index does not parse is still a RESEND, without an index.
func ParseControlSignal(unit []byte) (ControlSignal, bool) {
	switch {
	case bytes.HasPrefix(unit, resendPrefix):
		sig := ControlSignal{Kind: ControlResend}
		rest := bytes.TrimSpace(unit[len(resendPrefix):])
		if n, err := strconv.ParseUint(string(rest), 10, 64); err == nil {
			sig.Index = n
			sig.HasIndex = true
		}
		return sig, true

	case bytes.HasPrefix(unit, errorPrefix):
		return ErrorSignal(), true

	default:
		return ControlSignal{}, false
	}
}
