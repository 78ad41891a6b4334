package simulator

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"p9candles/internal/metrics"
	"p9candles/pkg/candle"
	"p9candles/pkg/transport"
	"p9candles/pkg/wire"
)

// Config parameterizes one simulated stream: its identity, tick cadence,
// and fault-injection knobs. Mirrors internal/config.SimulatorConfig plus
// the stream key and interval the coordinator needs to agree on.
type Config struct {
	Key        candle.Key
	IntervalMs int64

	TickMs      int
	JitterMs    int
	BatchSize   int
	DropPercent float64
	GapEvery    int
	Seed        int64

	StartPrice float64
	StartTsMs  int64
}

func (c Config) withDefaults() Config {
	if c.TickMs <= 0 {
		c.TickMs = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.StartPrice <= 0 {
		c.StartPrice = 100
	}
	return c
}

// Simulator is the replay/fault-injection service: it publishes a
// synthetic candle stream on a PUB endpoint and answers
// GetCursorRequest/BackfillCandlesRequest on a REP endpoint, the same pair
// of transports the Coordinator consumes.
type Simulator struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Registry

	pub   *transport.PubServer
	rep   *transport.RepServer
	state *StreamState
	walk  *walker
}

// New builds a Simulator. The PUB server is constructed with batching
// enabled by default.
func New(cfg Config, log *zap.Logger, reg *metrics.Registry) *Simulator {
	cfg = cfg.withDefaults()
	log = log.Named("simulator")

	s := &Simulator{
		cfg:     cfg,
		log:     log,
		metrics: reg,
		state:   newStreamState(cfg.StartTsMs, cfg.StartPrice),
		walk:    newWalker(cfg.Seed),
	}
	s.pub = transport.NewPubServer(log, true)
	s.rep = transport.NewRepServer(s.handleRequest, log)
	return s
}

// Handlers returns the HTTP handlers to mount for the PUB and REP
// endpoints respectively.
func (s *Simulator) Handlers() (pub http.Handler, rep http.Handler) {
	return s.pub, s.rep
}

// SubscriberCount reports how many subscribers are currently connected.
func (s *Simulator) SubscriberCount() int {
	return s.pub.SubscriberCount()
}

// Run drives the PUB server's broadcast loop and the publish ticker until
// ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	go s.pub.Run()

	jitterRnd := newWalker(s.cfg.Seed ^ 0x5bd1e995)
	timer := time.NewTimer(s.nextTickDelay(jitterRnd))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.publishTick()
			timer.Reset(s.nextTickDelay(jitterRnd))
		}
	}
}

func (s *Simulator) nextTickDelay(jitterRnd *walker) time.Duration {
	d := s.cfg.TickMs
	if s.cfg.JitterMs > 0 {
		d += int(jitterRnd.rnd.Int63n(int64(2*s.cfg.JitterMs+1))) - s.cfg.JitterMs
	}
	if d < 1 {
		d = 1
	}
	return time.Duration(d) * time.Millisecond
}

type producedCandle struct {
	seq uint64
	c   candle.Candle
}

// publishTick generates BatchSize candles, applies the drop/gap fault
// filters (the suppressed candles still land in history, so faults are
// invisible to backfill and only affect the live feed), groups the
// survivors into contiguous runs, and publishes one CandleBatch envelope
// per run.
func (s *Simulator) publishTick() {
	s.state.mu.Lock()
	produced := make([]producedCandle, 0, s.cfg.BatchSize)
	for i := 0; i < s.cfg.BatchSize; i++ {
		seq := s.state.nextSequence
		c := s.walk.next(s.state.lastClose, s.state.nextTsMs)

		s.state.history = append(s.state.history, c)
		s.state.lastClose = c.Close
		s.state.nextSequence++
		s.state.nextTsMs += s.cfg.IntervalMs

		dropped := s.cfg.DropPercent > 0 && s.walk.rnd.Float64()*100 < s.cfg.DropPercent
		gapped := s.cfg.GapEvery > 0 && seq%uint64(s.cfg.GapEvery) == 0
		if !dropped && !gapped {
			produced = append(produced, producedCandle{seq: seq, c: c})
		}
	}
	s.state.mu.Unlock()

	var runStart uint64
	var run []candle.Candle
	flush := func() {
		if len(run) == 0 {
			return
		}
		body := wire.EncodeCandleBatch(wire.CandleBatch{Key: s.cfg.Key, StartSequence: runStart, Candles: run})
		env := wire.Pack(wire.MessageCandleBatch, 0, body)
		s.pub.Publish(s.cfg.Key.Topic(), wire.EncodeEnvelope(env))
		if s.metrics != nil {
			s.metrics.RecordMessageProcessed("simulator", "candle_batch")
		}
		run = nil
	}
	for _, p := range produced {
		if len(run) == 0 {
			runStart = p.seq
			run = append(run, p.c)
			continue
		}
		if p.seq == runStart+uint64(len(run)) {
			run = append(run, p.c)
			continue
		}
		flush()
		runStart = p.seq
		run = append(run, p.c)
	}
	flush()
}

// handleRequest answers one REQ/REP round trip: GetCursorRequest or
// BackfillCandlesRequest.
func (s *Simulator) handleRequest(body []byte) []byte {
	env, err := wire.DecodeEnvelope(body)
	if err != nil {
		return s.errorEnvelope("bad_envelope", err.Error())
	}
	msg, err := wire.Unpack(env)
	if err != nil {
		return s.errorEnvelope("bad_request", err.Error())
	}

	switch req := msg.(type) {
	case wire.GetCursorRequest:
		return s.handleGetCursor(req)
	case wire.BackfillCandlesRequest:
		return s.handleBackfill(req)
	default:
		return s.errorEnvelope("unexpected_type", fmt.Sprintf("unexpected request type %T", msg))
	}
}

func (s *Simulator) errorEnvelope(code, message string) []byte {
	body := wire.EncodeErrorResponse(wire.ErrorResponse{Code: code, Message: message})
	env := wire.Pack(wire.MessageErrorResponse, 0, body)
	return wire.EncodeEnvelope(env)
}

func (s *Simulator) handleGetCursor(req wire.GetCursorRequest) []byte {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	var latestTsMs int64
	if n := len(s.state.history); n > 0 {
		latestTsMs = candle.ToWireMillis(s.state.history[n-1].Timestamp)
	}
	resp := wire.GetCursorResponse{
		Key:            req.Key,
		LatestSequence: s.state.nextSequence - 1,
		LatestTsMs:     latestTsMs,
	}
	env := wire.Pack(wire.MessageGetCursorResponse, 0, wire.EncodeGetCursorResponse(resp))
	return wire.EncodeEnvelope(env)
}

// handleBackfill returns history[F : min(end_by_ts, F+L)], where F is
// FromSequenceExclusive (0 if absent), end_by_ts is the partition point of
// candles with ts_ms <= EndTsMs (end of history if EndTsMs absent), and L
// is Limit. has_more/next_sequence report whether end_by_ts was reached.
func (s *Simulator) handleBackfill(req wire.BackfillCandlesRequest) []byte {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	history := s.state.history

	var fromExclusive uint64
	if req.HasFromSequence {
		fromExclusive = req.FromSequenceExclusive
	}
	startIdx := int(fromExclusive)
	if startIdx > len(history) {
		startIdx = len(history)
	}

	endByTs := len(history)
	if req.HasEndTsMs {
		endByTs = sort.Search(len(history), func(i int) bool {
			return candle.ToWireMillis(history[i].Timestamp) > req.EndTsMs
		})
	}

	limit := int(req.Limit)
	if limit < 1 {
		limit = 1
	}
	capIdx := startIdx + limit
	if capIdx > endByTs {
		capIdx = endByTs
	}
	if capIdx < startIdx {
		capIdx = startIdx
	}

	slice := append([]candle.Candle(nil), history[startIdx:capIdx]...)
	resp := wire.BackfillCandlesResponse{
		Key:           req.Key,
		StartSequence: uint64(startIdx) + 1,
		Candles:       slice,
		HasMore:       capIdx < endByTs,
	}
	if resp.HasMore {
		resp.NextSequence = uint64(capIdx) + 1
	}
	env := wire.Pack(wire.MessageBackfillCandlesResponse, 0, wire.EncodeBackfillCandlesResponse(resp))
	return wire.EncodeEnvelope(env)
}
