package simulator

import (
	"testing"

	"go.uber.org/zap"

	"p9candles/pkg/candle"
	"p9candles/pkg/wire"
)

func testConfig() Config {
	return Config{
		Key:        candle.Key{SourceID: "SIM", Symbol: "BTC-USD", Interval: "1s"},
		IntervalMs: 1000,
		TickMs:     10,
		BatchSize:  10,
		Seed:       42,
		StartPrice: 100,
	}
}

func decodeBackfillResponse(t *testing.T, raw []byte) wire.BackfillCandlesResponse {
	t.Helper()
	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	msg, err := wire.Unpack(env)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	resp, ok := msg.(wire.BackfillCandlesResponse)
	if !ok {
		t.Fatalf("unexpected response type %T", msg)
	}
	return resp
}

func decodeGetCursorResponse(t *testing.T, raw []byte) wire.GetCursorResponse {
	t.Helper()
	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	msg, err := wire.Unpack(env)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	resp, ok := msg.(wire.GetCursorResponse)
	if !ok {
		t.Fatalf("unexpected response type %T", msg)
	}
	return resp
}

// TestSimulator_NoFaults checks that with drop_percent=0 and gap_every=0
// two ticks store all 20 generated candles in history, and every candle
// satisfies the OHLC invariant.
func TestSimulator_NoFaults(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, zap.NewNop(), nil)

	s.publishTick()
	s.publishTick()

	if got := s.state.Len(); got != 20 {
		t.Fatalf("history length = %d, want 20", got)
	}
	for i, c := range s.state.history {
		if err := c.Validate(); err != nil {
			t.Fatalf("candle %d failed invariant: %v", i, err)
		}
	}
}

// TestSimulator_GapEvery checks that with gap_every=N the candles at
// sequences that are multiples of N are still stored in history (backfill
// must see the full history). It checks the history side only; the live
// feed is not observed here.
func TestSimulator_GapEvery(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 20
	cfg.GapEvery = 5
	s := New(cfg, zap.NewNop(), nil)

	s.publishTick()

	if got := s.state.Len(); got != 20 {
		t.Fatalf("history length = %d, want 20 (gaps are stored, not dropped)", got)
	}
}

// TestSimulator_GetCursor returns the last sequence and timestamp the
// simulator has ever produced, independent of any faults.
func TestSimulator_GetCursor(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, zap.NewNop(), nil)
	s.publishTick()
	s.publishTick()

	req := wire.GetCursorRequest{Key: cfg.Key}
	raw := s.handleRequest(wire.EncodeEnvelope(wire.Pack(wire.MessageGetCursorRequest, 0, wire.EncodeGetCursorRequest(req))))
	resp := decodeGetCursorResponse(t, raw)

	if resp.LatestSequence != 20 {
		t.Fatalf("LatestSequence = %d, want 20", resp.LatestSequence)
	}
}

// TestSimulator_BackfillSlicing exercises the exact slicing contract:
// history[F : min(end_by_ts, F+L)], with has_more/next_sequence set when
// the response was truncated by the limit.
func TestSimulator_BackfillSlicing(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 50
	s := New(cfg, zap.NewNop(), nil)
	s.publishTick()

	req := wire.BackfillCandlesRequest{
		Key:                   cfg.Key,
		HasFromSequence:       true,
		FromSequenceExclusive: 10,
		Limit:                 5,
	}
	raw := s.handleRequest(wire.EncodeEnvelope(wire.Pack(wire.MessageBackfillCandlesRequest, 0, wire.EncodeBackfillCandlesRequest(req))))
	resp := decodeBackfillResponse(t, raw)

	if resp.StartSequence != 11 {
		t.Fatalf("StartSequence = %d, want 11", resp.StartSequence)
	}
	if len(resp.Candles) != 5 {
		t.Fatalf("len(Candles) = %d, want 5", len(resp.Candles))
	}
	if !resp.HasMore {
		t.Fatalf("HasMore = false, want true (35 more candles remain past sequence 15)")
	}
	if resp.NextSequence != 16 {
		t.Fatalf("NextSequence = %d, want 16", resp.NextSequence)
	}
}

// TestSimulator_BackfillEndTsMs checks the end_ts_ms partition point: only
// candles timestamped at or before EndTsMs are returned, regardless of
// Limit.
func TestSimulator_BackfillEndTsMs(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 20
	s := New(cfg, zap.NewNop(), nil)
	s.publishTick()

	endTsMs := candle.ToWireMillis(s.state.history[9].Timestamp) // ts of sequence 10

	req := wire.BackfillCandlesRequest{
		Key:        cfg.Key,
		HasEndTsMs: true,
		EndTsMs:    endTsMs,
		Limit:      1000,
	}
	raw := s.handleRequest(wire.EncodeEnvelope(wire.Pack(wire.MessageBackfillCandlesRequest, 0, wire.EncodeBackfillCandlesRequest(req))))
	resp := decodeBackfillResponse(t, raw)

	if len(resp.Candles) != 10 {
		t.Fatalf("len(Candles) = %d, want 10 (sequences 1..10)", len(resp.Candles))
	}
	if resp.HasMore {
		t.Fatalf("HasMore = true, want false (end_ts_ms reached exactly)")
	}
}

// TestSimulator_BackfillUnknownType checks that a malformed request body
// is answered with an ErrorResponse, not a panic or a silently empty reply.
func TestSimulator_BackfillUnknownType(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, zap.NewNop(), nil)

	raw := s.handleRequest([]byte{0xff, 0xff, 0xff})
	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	msg, err := wire.Unpack(env)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if _, ok := msg.(wire.ErrorResponse); !ok {
		t.Fatalf("unexpected response type %T, want wire.ErrorResponse", msg)
	}
}
