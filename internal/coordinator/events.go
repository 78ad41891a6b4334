package coordinator

import "p9candles/pkg/candle"

// Event is one of StatusEvent, CandleBatchEvent, or ErrorEvent, delivered
// on Coordinator.Events() in the order the coordinator produces them.
type Event interface {
	isEvent()
}

// StatusEvent reports a Status transition.
type StatusEvent struct {
	Status Status
}

func (StatusEvent) isEvent() {}

// CandleBatchEvent is a contiguous, gap-free, duplicate-free run of
// candles ready for the consumer to persist. StartSequence is always
// exactly the sequence the consumer last expected.
type CandleBatchEvent struct {
	StartSequence uint64
	Candles       []candle.Candle
}

func (CandleBatchEvent) isEvent() {}

// ErrorEvent reports a non-fatal protocol or transport error. The
// coordinator continues running after emitting one.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) isEvent() {}
