package wire

import (
	"encoding/binary"
	"fmt"

	"p9candles/internal/errs"
	"p9candles/pkg/candle"
)

// candleWireSize is the fixed-width encoding of one Candle: an int64
// millisecond timestamp followed by four float64 OHLC values and one
// float64 volume, all big-endian. Candles are common enough, and fixed
// enough in shape, that nesting them in the general TLV scheme would only
// add overhead; a flat array of these blocks is cheaper to scan and still
// trivially versioned by bumping WireSchemaVersion.
const candleWireSize = 8 + 8*5

func encodeCandle(c candle.Candle, out []byte) {
	binary.BigEndian.PutUint64(out[0:8], uint64(candle.ToWireMillis(c.Timestamp)))
	binary.BigEndian.PutUint64(out[8:16], float64Bits(c.Open))
	binary.BigEndian.PutUint64(out[16:24], float64Bits(c.High))
	binary.BigEndian.PutUint64(out[24:32], float64Bits(c.Low))
	binary.BigEndian.PutUint64(out[32:40], float64Bits(c.Close))
	binary.BigEndian.PutUint64(out[40:48], float64Bits(c.Volume))
}

func decodeCandle(in []byte) candle.Candle {
	tsMs := int64(binary.BigEndian.Uint64(in[0:8]))
	return candle.Candle{
		Timestamp: candle.FromWireMillis(tsMs),
		Open:      bitsFloat64(binary.BigEndian.Uint64(in[8:16])),
		High:      bitsFloat64(binary.BigEndian.Uint64(in[16:24])),
		Low:       bitsFloat64(binary.BigEndian.Uint64(in[24:32])),
		Close:     bitsFloat64(binary.BigEndian.Uint64(in[32:40])),
		Volume:    bitsFloat64(binary.BigEndian.Uint64(in[40:48])),
	}
}

// encodeCandles packs a slice of candles as a 4-byte count followed by
// that many fixed-width candle blocks.
func encodeCandles(cs []candle.Candle) []byte {
	out := make([]byte, 4+len(cs)*candleWireSize)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(cs)))
	for i, c := range cs {
		off := 4 + i*candleWireSize
		encodeCandle(c, out[off:off+candleWireSize])
	}
	return out
}

func decodeCandles(in []byte) ([]candle.Candle, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("%w: truncated candle array count", errs.ErrProtocol)
	}
	count := binary.BigEndian.Uint32(in[0:4])
	rest := in[4:]
	if uint64(count)*candleWireSize != uint64(len(rest)) {
		return nil, fmt.Errorf("%w: candle array length mismatch", errs.ErrProtocol)
	}
	out := make([]candle.Candle, count)
	for i := range out {
		off := i * candleWireSize
		out[i] = decodeCandle(rest[off : off+candleWireSize])
		if err := out[i].Validate(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
	}
	return out, nil
}

func encodeStreamKey(k candle.Key) []byte {
	w := newFieldWriter()
	w.putString(fieldStreamKeySourceID, k.SourceID)
	w.putString(fieldStreamKeySymbol, k.Symbol)
	w.putString(fieldStreamKeyInterval, k.Interval)
	return w.bytes()
}

func decodeStreamKey(data []byte) (candle.Key, error) {
	var k candle.Key
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return candle.Key{}, err
		}
		if !ok {
			break
		}
		switch id {
		case fieldStreamKeySourceID:
			k.SourceID = string(payload)
		case fieldStreamKeySymbol:
			k.Symbol = string(payload)
		case fieldStreamKeyInterval:
			k.Interval = string(payload)
		}
	}
	return k, nil
}
