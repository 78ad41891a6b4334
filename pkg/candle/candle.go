// Package candle defines the OHLCV candle type shared by the store, the
// wire codec, the simulator, and the coordinator.
package candle

import (
	"fmt"
	"math"
	"time"

	"p9candles/internal/errs"
)

// Candle is an immutable OHLCV bar. Once constructed it is never mutated in
// place; callers that need to change a value produce a new Candle.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks the low <= min(open,close) <= max(open,close) <= high
// invariant, plus that every OHLCV field is finite. It is cheap enough to
// call on every decoded or generated candle, and is the gate a batch off
// the wire must pass before it reaches a store or consumer: the returned
// error wraps errs.ErrInvalidNumber or errs.ErrInvertedRange so callers can
// match it with errors.Is.
func (c Candle) Validate() error {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite OHLCV value %v", errs.ErrInvalidNumber, v)
		}
	}
	lo := min(c.Open, c.Close)
	hi := max(c.Open, c.Close)
	if c.Low > lo {
		return fmt.Errorf("%w: low=%v exceeds min(open,close)=%v", errs.ErrInvertedRange, c.Low, lo)
	}
	if hi > c.High {
		return fmt.Errorf("%w: max(open,close)=%v exceeds high=%v", errs.ErrInvertedRange, hi, c.High)
	}
	return nil
}

// ToWireMillis returns the timestamp as signed milliseconds since the Unix
// epoch, the resolution used on the wire.
func ToWireMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromWireMillis is the inverse of ToWireMillis. In-memory candles carry
// nanosecond precision, but none is introduced by the round trip since the
// wire format never carried it to begin with.
func FromWireMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
