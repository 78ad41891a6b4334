package coordinator

import (
	"strconv"

	"p9candles/internal/store"
	"p9candles/pkg/candle"
)

// Restore reads the persisted cursor and candle history for key from s,
// so the caller can seed its in-memory view and start the Coordinator at
// lastApplied+1 rather than redelivering everything from sequence 1. A
// missing or unparseable cursor resolves to 0.
func Restore(s store.Store, key candle.Key) (lastApplied uint64, history []candle.Candle, err error) {
	raw, ok, err := s.GetSessionValue(key.CursorKey())
	if err != nil {
		return 0, nil, err
	}
	if ok {
		if v, parseErr := strconv.ParseUint(raw, 10, 64); parseErr == nil {
			lastApplied = v
		}
	}

	history, err = s.LoadCandles(key.Symbol, nil)
	if err != nil {
		return 0, nil, err
	}
	return lastApplied, history, nil
}

// PersistApplied writes candles to s and advances the stream's cursor to
// the last candle's sequence only after the write succeeds, so the cursor
// is never ahead of durable data.
func PersistApplied(s store.Store, key candle.Key, startSequence uint64, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if err := s.AppendCandles(key.Symbol, candles); err != nil {
		return err
	}
	lastSeq := startSequence + uint64(len(candles)) - 1
	return s.SetSessionValue(key.CursorKey(), strconv.FormatUint(lastSeq, 10))
}
