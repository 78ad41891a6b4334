// Package simulator implements the server-side replay/fault-injection
// service: it binds a PUB endpoint for broadcast and a REP endpoint for
// backfill/cursor queries, generating a deterministic pseudo-random walk
// of candles.
package simulator

import (
	"sync"

	"p9candles/pkg/candle"
)

// StreamState is the simulator's per-key mutable state: the next sequence
// and timestamp to assign, the last close (the random walk's seed price),
// and the full append-only history backfill reads from. Guarded by a
// single RWMutex — write lock while publishing a tick, read lock while
// answering cursor/backfill queries — never nested.
type StreamState struct {
	mu sync.RWMutex

	nextSequence uint64
	nextTsMs     int64
	lastClose    float64
	history      []candle.Candle
}

func newStreamState(startTsMs int64, startPrice float64) *StreamState {
	return &StreamState{
		nextSequence: 1,
		nextTsMs:     startTsMs,
		lastClose:    startPrice,
	}
}

// Len reports how many candles the stream has ever produced.
func (s *StreamState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
