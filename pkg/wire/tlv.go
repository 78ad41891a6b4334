// Package wire implements the tagged-union binary envelope that carries
// every message between the simulator and the streaming coordinator.
//
// The wire format is a length-prefixed tagged-union encoding with explicit
// per-field numeric identifiers, built on the standard library's binary
// primitives rather than a generated schema compiler, with field IDs
// documented alongside each message in fields.go.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"p9candles/internal/errs"
)

// fieldWriter builds a sequence of tag/length/value fields.
type fieldWriter struct {
	buf bytes.Buffer
}

func newFieldWriter() *fieldWriter {
	return &fieldWriter{}
}

func (w *fieldWriter) putBytes(id uint8, v []byte) {
	w.buf.WriteByte(id)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(v)
}

func (w *fieldWriter) putString(id uint8, v string) { w.putBytes(id, []byte(v)) }

func (w *fieldWriter) putUint16(id uint8, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.putBytes(id, b[:])
}

func (w *fieldWriter) putUint32(id uint8, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.putBytes(id, b[:])
}

func (w *fieldWriter) putUint64(id uint8, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.putBytes(id, b[:])
}

func (w *fieldWriter) putInt64(id uint8, v int64) { w.putUint64(id, uint64(v)) }

func (w *fieldWriter) putBool(id uint8, v bool) {
	if v {
		w.putBytes(id, []byte{1})
	} else {
		w.putBytes(id, []byte{0})
	}
}

func (w *fieldWriter) bytes() []byte { return w.buf.Bytes() }

// fieldReader walks a sequence of tag/length/value fields produced by
// fieldWriter.
type fieldReader struct {
	data []byte
}

func newFieldReader(b []byte) *fieldReader { return &fieldReader{data: b} }

// next returns the next field's id and payload. ok is false once the buffer
// is exhausted.
func (r *fieldReader) next() (id uint8, payload []byte, ok bool, err error) {
	if len(r.data) == 0 {
		return 0, nil, false, nil
	}
	if len(r.data) < 5 {
		return 0, nil, false, fmt.Errorf("%w: truncated field header", errs.ErrProtocol)
	}
	id = r.data[0]
	length := binary.BigEndian.Uint32(r.data[1:5])
	rest := r.data[5:]
	if uint64(length) > uint64(len(rest)) {
		return 0, nil, false, fmt.Errorf("%w: truncated field payload", errs.ErrProtocol)
	}
	payload = rest[:length]
	r.data = rest[length:]
	return id, payload, true, nil
}

func parseUint16(payload []byte) (uint16, error) {
	if len(payload) != 2 {
		return 0, fmt.Errorf("%w: expected 2-byte field, got %d", errs.ErrProtocol, len(payload))
	}
	return binary.BigEndian.Uint16(payload), nil
}

func parseUint32(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: expected 4-byte field, got %d", errs.ErrProtocol, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

func parseUint64(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("%w: expected 8-byte field, got %d", errs.ErrProtocol, len(payload))
	}
	return binary.BigEndian.Uint64(payload), nil
}

func parseInt64(payload []byte) (int64, error) {
	v, err := parseUint64(payload)
	return int64(v), err
}

func parseBool(payload []byte) (bool, error) {
	if len(payload) != 1 {
		return false, fmt.Errorf("%w: expected 1-byte field, got %d", errs.ErrProtocol, len(payload))
	}
	return payload[0] != 0, nil
}

func float64Bits(v float64) uint64 { return math.Float64bits(v) }
func bitsFloat64(v uint64) float64 { return math.Float64frombits(v) }
