package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"p9candles/internal/errs"
	"p9candles/internal/metrics"
	"p9candles/pkg/candle"
	"p9candles/pkg/transport"
	"p9candles/pkg/wire"
)

// Subscriber is the receive side of the PUB/SUB transport, satisfied by
// *transport.SubClient. Abstracted so tests can feed the coordinator a
// scripted fake instead of a real WebSocket.
type Subscriber interface {
	Recv() ([]transport.Message, error)
	Close() error
}

// Requester is the REQ/REP transport, satisfied by *transport.ReqClient.
type Requester interface {
	Call(body []byte) ([]byte, error)
}

// Config parameterizes one Coordinator instance: which stream it follows
// and where to reach the simulator.
type Config struct {
	Key        candle.Key
	IntervalMs int64
	PubURL     string
	ReqURL     string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

// Coordinator runs the per-stream event loop: subscribe, detect gaps,
// backfill exactly one at a time, emit a strictly ordered candle sequence,
// and reconnect with exponential backoff on failure.
type Coordinator struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Registry

	dialSub      func(url string, log *zap.Logger) (Subscriber, error)
	newRequester func(url string, log *zap.Logger) Requester

	events chan Event
}

// New constructs a Coordinator that dials real WebSocket transports.
func New(cfg Config, log *zap.Logger, reg *metrics.Registry) *Coordinator {
	return &Coordinator{
		cfg:     cfg.withDefaults(),
		log:     log.Named("coordinator"),
		metrics: reg,
		dialSub: func(url string, log *zap.Logger) (Subscriber, error) {
			return transport.DialSub(url, log)
		},
		newRequester: func(url string, log *zap.Logger) Requester {
			return transport.NewReqClient(url, log)
		},
		events: make(chan Event, 256),
	}
}

// Events returns the channel the coordinator publishes StatusEvent,
// CandleBatchEvent, and ErrorEvent values on. The channel holds 256
// events and does not grow: when it is full the event loop blocks until
// the caller reads, so the caller must keep draining it. Run closes it on
// return.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

func (c *Coordinator) emit(e Event) {
	c.events <- e
	if se, ok := e.(StatusEvent); ok && c.metrics != nil {
		c.metrics.SetCoordinatorStatus(c.cfg.Key.SourceID, c.cfg.Key.Symbol, int(se.Status))
	}
}

// Run drives the reconnect-with-backoff loop until ctx is cancelled.
// lastApplied is the highest sequence the caller has already persisted
// (0 if none); the coordinator resumes at lastApplied+1.
func (c *Coordinator) Run(ctx context.Context, lastApplied uint64) {
	defer close(c.events)

	backoff := c.cfg.InitialBackoff
	expectedNext := lastApplied + 1
	if expectedNext == 0 {
		expectedNext = 1
	}

	for {
		if ctx.Err() != nil {
			return
		}

		nextExpected, err := c.runOnce(ctx, expectedNext, func() { backoff = c.cfg.InitialBackoff })
		expectedNext = nextExpected

		if ctx.Err() != nil {
			return
		}

		c.log.Warn("coordinator disconnected, backing off", zap.Error(err), zap.Duration("backoff", backoff))
		if c.metrics != nil {
			c.metrics.RecordReconnect(c.cfg.Key.SourceID, c.cfg.Key.Symbol, "disconnect")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// runOnce runs one connect/subscribe/stream session until it fails or ctx
// is cancelled, returning the sequence the caller should resume at next.
func (c *Coordinator) runOnce(ctx context.Context, expectedNext uint64, resetBackoff func()) (uint64, error) {
	c.emit(StatusEvent{StatusConnecting})

	sub, err := c.dialSub(c.cfg.PubURL, c.log)
	if err != nil {
		return expectedNext, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	defer sub.Close()

	c.emit(StatusEvent{StatusSubscribed})
	resetBackoff()

	recvCh := make(chan transport.Message, 256)
	recvErrCh := make(chan error, 1)
	go func() {
		for {
			msgs, err := sub.Recv()
			if err != nil {
				select {
				case recvErrCh <- err:
				case <-ctx.Done():
				}
				return
			}
			for _, m := range msgs {
				select {
				case recvCh <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	req := c.newRequester(c.cfg.ReqURL, c.log)
	buffered := newOrderedBuffer()
	var backfillCh chan backfillResult

	topic := c.cfg.Key.Topic()

	for {
		select {
		case <-ctx.Done():
			return expectedNext, ctx.Err()

		case err := <-recvErrCh:
			c.emit(ErrorEvent{fmt.Errorf("%w: %v", errs.ErrTransport, err)})
			c.emit(StatusEvent{StatusDisconnected})
			return expectedNext, err

		case m := <-recvCh:
			if m.Topic != topic {
				continue
			}
			batch, err := decodeCandleBatchEnvelope(m.Payload)
			if err != nil {
				c.emit(ErrorEvent{err})
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordMessageProcessed("coordinator", "candle_batch")
			}
			if len(batch.Candles) == 0 {
				continue
			}

			if batch.StartSequence > expectedNext {
				buffered.insert(batch.StartSequence, batch.Candles)
				if c.metrics != nil {
					c.metrics.RecordGapDetected(c.cfg.Key.SourceID, c.cfg.Key.Symbol, int64(batch.StartSequence-expectedNext))
				}
				if backfillCh == nil {
					endTsMs, limit := gapBackfillBounds(c.cfg.IntervalMs, expectedNext, batch.StartSequence, batch.Candles)
					backfillCh = c.startBackfill(ctx, req, expectedNext, endTsMs, limit)
				}
				continue
			}

			if trimmed, ok := trimLeadingOverlap(expectedNext, batch.StartSequence, batch.Candles); ok {
				c.emit(CandleBatchEvent{StartSequence: expectedNext, Candles: trimmed})
				expectedNext += uint64(len(trimmed))
			}

			drainBufferedBatches(buffered, &expectedNext, func(start uint64, candles []candle.Candle) {
				c.emit(CandleBatchEvent{StartSequence: start, Candles: candles})
			})

			if backfillCh == nil && shouldBackfillGap(expectedNext, buffered) {
				endTsMs, limit := bufferedGapBackfillBounds(c.cfg.IntervalMs, expectedNext, buffered)
				backfillCh = c.startBackfill(ctx, req, expectedNext, endTsMs, limit)
			}

		case res := <-backfillCh:
			backfillCh = nil
			if res.err != nil {
				c.emit(ErrorEvent{res.err})
				if c.metrics != nil {
					c.metrics.RecordBackfillRequest(c.cfg.Key.SourceID, c.cfg.Key.Symbol, "error")
				}
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordBackfillRequest(c.cfg.Key.SourceID, c.cfg.Key.Symbol, "ok")
			}

			resp := res.resp
			if len(resp.Candles) > 0 {
				if resp.StartSequence > expectedNext {
					buffered.insert(resp.StartSequence, resp.Candles)
				} else if trimmed, ok := trimLeadingOverlap(expectedNext, resp.StartSequence, resp.Candles); ok {
					c.emit(CandleBatchEvent{StartSequence: expectedNext, Candles: trimmed})
					expectedNext += uint64(len(trimmed))
				}
			}

			drainBufferedBatches(buffered, &expectedNext, func(start uint64, candles []candle.Candle) {
				c.emit(CandleBatchEvent{StartSequence: start, Candles: candles})
			})

			if shouldBackfillGap(expectedNext, buffered) {
				endTsMs, limit := bufferedGapBackfillBounds(c.cfg.IntervalMs, expectedNext, buffered)
				backfillCh = c.startBackfill(ctx, req, expectedNext, endTsMs, limit)
			} else {
				c.emit(StatusEvent{StatusSubscribed})
			}
		}
	}
}

// decodeCandleBatchEnvelope unwraps a PUB/SUB payload's Envelope and
// requires it to carry a CandleBatch, matching live.rs's decode_candle_batch
// (schema check first, then a message_type check, not a bare CandleBatch
// decode).
func decodeCandleBatchEnvelope(payload []byte) (wire.CandleBatch, error) {
	env, err := wire.DecodeEnvelope(payload)
	if err != nil {
		return wire.CandleBatch{}, err
	}
	msg, err := wire.Unpack(env)
	if err != nil {
		return wire.CandleBatch{}, err
	}
	batch, ok := msg.(wire.CandleBatch)
	if !ok {
		return wire.CandleBatch{}, fmt.Errorf("%w: expected CandleBatch, got %T", errs.ErrProtocol, msg)
	}
	return batch, nil
}

type backfillResult struct {
	resp wire.BackfillCandlesResponse
	err  error
}

// startBackfill issues exactly one BackfillCandlesRequest in its own
// goroutine and returns the channel its result will arrive on. Callers
// must not call this again until the previous channel has produced a
// result — the "exactly one backfill in flight" invariant is enforced by
// runOnce only ever holding one non-nil backfillCh at a time.
func (c *Coordinator) startBackfill(ctx context.Context, req Requester, expectedNext uint64, endTsMs *int64, limit uint32) chan backfillResult {
	c.emit(StatusEvent{StatusBackfilling})

	var fromExclusive uint64
	hasFrom := false
	if expectedNext > 1 {
		fromExclusive = expectedNext - 1
		hasFrom = true
	}

	ch := make(chan backfillResult, 1)
	go func() {
		body := wire.EncodeBackfillCandlesRequest(wire.BackfillCandlesRequest{
			Key:                   c.cfg.Key,
			HasFromSequence:       hasFrom,
			FromSequenceExclusive: fromExclusive,
			HasEndTsMs:            endTsMs != nil,
			EndTsMs:               derefInt64(endTsMs),
			Limit:                 limit,
		})
		env := wire.Pack(wire.MessageBackfillCandlesRequest, 0, body)

		respBytes, err := req.Call(wire.EncodeEnvelope(env))
		if err != nil {
			ch <- backfillResult{err: fmt.Errorf("%w: %v", errs.ErrTransport, err)}
			return
		}
		respEnv, err := wire.DecodeEnvelope(respBytes)
		if err != nil {
			ch <- backfillResult{err: err}
			return
		}
		msg, err := wire.Unpack(respEnv)
		if err != nil {
			ch <- backfillResult{err: err}
			return
		}
		switch v := msg.(type) {
		case wire.BackfillCandlesResponse:
			ch <- backfillResult{resp: v}
		case wire.ErrorResponse:
			ch <- backfillResult{err: v}
		default:
			ch <- backfillResult{err: fmt.Errorf("%w: unexpected backfill response type", errs.ErrProtocol)}
		}
	}()
	return ch
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
