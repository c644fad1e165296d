// units.go implements the transport units that carry frames, control signals
// and handshake messages.
//
// Two codecs exist:
//
//   - RawUnits: one transport read is one unit, up to 4096 bytes. This is the
//     deployed wire protocol. TCP may merge or split writes, so a unit boundary
//     is only preserved while the peer is not sending faster than it is read.
//   - LengthPrefixedUnits: every unit carries a 4-byte big-endian length.
//
//	+--------+----------+
//	| Length | Payload  |
//	| 4B BE  | Variable |
//	+--------+----------+
package protocol

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/sara-star-quant/securechat/internal/constants"
	qerrors "github.com/sara-star-quant/securechat/internal/errors"
)

// UnitCodec reads and writes transport units.
type UnitCodec interface {
	// ReadUnit reads the next unit. It returns io.EOF when the peer has
	// closed the stream.
	ReadUnit(r io.Reader) ([]byte, error)

	// WriteUnit writes one unit.
	WriteUnit(w io.Writer, unit []byte) error

	// MaxUnit is the largest unit the codec carries.
	MaxUnit() int
}

// unitPool holds read buffers for raw units.
var unitPool = sync.Pool{
	New: func() any {
		buf := make([]byte, constants.MaxUnitSize)
		return &buf
	},
}

// RawUnits treats each Read as one unit.
type RawUnits struct{}

// ReadUnit performs a single Read of up to MaxUnitSize bytes. A zero-byte
// read is peer closure.
func (RawUnits) ReadUnit(r io.Reader) ([]byte, error) {
	bufPtr := unitPool.Get().(*[]byte)
	defer unitPool.Put(bufPtr)

	n, err := r.Read(*bufPtr)
	if n > 0 {
		unit := make([]byte, n)
		copy(unit, (*bufPtr)[:n])
		return unit, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// WriteUnit writes unit in one call.
func (RawUnits) WriteUnit(w io.Writer, unit []byte) error {
	if len(unit) > constants.MaxUnitSize {
		return qerrors.ErrMessageTooLarge
	}
	_, err := w.Write(unit)
	return err
}

// MaxUnit returns MaxUnitSize.
func (RawUnits) MaxUnit() int {
	return constants.MaxUnitSize
}

// LengthPrefixedUnits delimits units with a length header.
type LengthPrefixedUnits struct {
	// Max bounds the payload; zero means MaxPrefixedUnitSize.
	Max int
}

func (c LengthPrefixedUnits) max() int {
	if c.Max > 0 {
		return c.Max
	}
	return constants.MaxPrefixedUnitSize
}

// ReadUnit reads a complete unit.
func (c LengthPrefixedUnits) ReadUnit(r io.Reader) ([]byte, error) {
	header := make([]byte, constants.LengthPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	payloadLen := binary.BigEndian.Uint32(header)
	if payloadLen > uint32(c.max()) {
		return nil, qerrors.ErrMessageTooLarge
	}

	unit := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, unit); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return unit, nil
}

// WriteUnit writes header and payload in a single Write.
func (c LengthPrefixedUnits) WriteUnit(w io.Writer, unit []byte) error {
	if len(unit) > c.max() {
		return qerrors.ErrMessageTooLarge
	}

	buf := make([]byte, constants.LengthPrefixSize+len(unit))
	binary.BigEndian.PutUint32(buf, uint32(len(unit)))
	copy(buf[constants.LengthPrefixSize:], unit)
	_, err := w.Write(buf)
	return err
}

// MaxUnit returns the payload bound.
func (c LengthPrefixedUnits) MaxUnit() int {
	return c.max()
}
