package candle

import "fmt"

// Key identifies one logical candle stream: a source, a symbol, and an
// interval string such as "1s" or "1m".
type Key struct {
	SourceID string
	Symbol   string
	Interval string
}

// Topic returns the canonical pub/sub topic string for the key:
// "candles.<source_id>.<symbol>.<interval>".
func (k Key) Topic() string {
	return fmt.Sprintf("candles.%s.%s.%s", k.SourceID, k.Symbol, k.Interval)
}

// CursorKey returns the session-table key under which the last-applied
// sequence for this stream is persisted.
func (k Key) CursorKey() string {
	return fmt.Sprintf("live_cursor.%s.%s.%s", k.SourceID, k.Symbol, k.Interval)
}

// Batch is a contiguous run of candles for one stream: the i-th candle's
// sequence is StartSequence+i.
type Batch struct {
	Key           Key
	StartSequence uint64
	Candles       []Candle
}

// Cursor is the server's view of the highest sequence it has ever produced
// for a key.
type Cursor struct {
	LatestSequence uint64
	LatestTsMs     int64
}
