package coordinator

import "p9candles/pkg/candle"

// DefaultBackfillLimit caps how many candles a single backfill request
// asks for when the gap size is unknown or unbounded.
const DefaultBackfillLimit = 10_000

// shouldBackfillGap reports whether the lowest buffered batch is still
// ahead of expectedNext, meaning a hole remains between what's applied and
// what's buffered.
func shouldBackfillGap(expectedNext uint64, buf *orderedBuffer) bool {
	start, ok := buf.peekMin()
	return ok && start > expectedNext
}

// gapBackfillBounds computes the (endTsMs, limit) pair for a backfill
// request covering [expectedNext, nextBatchStart). endTsMs is nil when
// nextBatch is empty (no known upper bound yet); otherwise it is set one
// interval before the first candle already known, so the response never
// re-delivers a candle the coordinator already has.
func gapBackfillBounds(intervalMs int64, expectedNext, nextBatchStart uint64, nextBatch []candle.Candle) (endTsMs *int64, limit uint32) {
	missing := nextBatchStart - expectedNext
	limit = uint32(missing)
	if limit > DefaultBackfillLimit {
		limit = DefaultBackfillLimit
	}
	if limit < 1 {
		limit = 1
	}
	if len(nextBatch) > 0 {
		first := candle.ToWireMillis(nextBatch[0].Timestamp) - intervalMs
		endTsMs = &first
	}
	return endTsMs, limit
}

// bufferedGapBackfillBounds is gapBackfillBounds specialized to "the
// lowest currently-buffered batch", used once a gap persists after
// draining.
func bufferedGapBackfillBounds(intervalMs int64, expectedNext uint64, buf *orderedBuffer) (endTsMs *int64, limit uint32) {
	start, ok := buf.peekMin()
	if !ok {
		return nil, DefaultBackfillLimit
	}
	candles, _ := buf.peekMinCandles()
	return gapBackfillBounds(intervalMs, expectedNext, start, candles)
}

// drainBufferedBatches pops every buffered batch that is no longer ahead
// of expectedNext, trimming any leading overlap, and calls emit for each
// surviving run in order. expectedNext is advanced past each emitted run.
func drainBufferedBatches(buf *orderedBuffer, expectedNext *uint64, emit func(startSequence uint64, candles []candle.Candle)) {
	for {
		start, ok := buf.peekMin()
		if !ok || start > *expectedNext {
			return
		}
		_, candles, _ := buf.removeMin()
		if len(candles) == 0 {
			continue
		}
		if start < *expectedNext {
			skip := *expectedNext - start
			if skip >= uint64(len(candles)) {
				continue
			}
			candles = candles[skip:]
		}
		if len(candles) == 0 {
			continue
		}
		n := uint64(len(candles))
		emit(*expectedNext, candles)
		*expectedNext += n
	}
}

// trimLeadingOverlap drops the leading candles of a freshly received batch
// that duplicate sequences already applied, returning the candles still
// needing emission and whether any remain.
func trimLeadingOverlap(expectedNext, startSequence uint64, candles []candle.Candle) ([]candle.Candle, bool) {
	if startSequence >= expectedNext {
		return candles, len(candles) > 0
	}
	skip := expectedNext - startSequence
	if skip >= uint64(len(candles)) {
		return nil, false
	}
	trimmed := candles[skip:]
	return trimmed, len(trimmed) > 0
}
