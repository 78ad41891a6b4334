package coordinator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"p9candles/pkg/candle"
	"p9candles/pkg/transport"
	"p9candles/pkg/wire"
)

func testKey() candle.Key {
	return candle.Key{SourceID: "SIM", Symbol: "BTC-USD", Interval: "1s"}
}

func makeCandles(fromSeq uint64, n int) []candle.Candle {
	base := time.Unix(0, 0).UTC()
	out := make([]candle.Candle, n)
	for i := range out {
		seq := fromSeq + uint64(i)
		ts := base.Add(time.Duration(seq) * time.Second)
		out[i] = candle.Candle{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1}
	}
	return out
}

func envelopeBatch(key candle.Key, start uint64, candles []candle.Candle) []byte {
	body := wire.EncodeCandleBatch(wire.CandleBatch{Key: key, StartSequence: start, Candles: candles})
	return wire.EncodeEnvelope(wire.Pack(wire.MessageCandleBatch, 0, body))
}

// fakeSub feeds a scripted sequence of (messages, error) results to Recv.
type fakeSub struct {
	ch chan fakeRecv
}

type fakeRecv struct {
	msgs []transport.Message
	err  error
}

func newFakeSub() *fakeSub {
	return &fakeSub{ch: make(chan fakeRecv, 32)}
}

func (f *fakeSub) pushBatch(key candle.Key, start uint64, candles []candle.Candle) {
	f.ch <- fakeRecv{msgs: []transport.Message{{Topic: key.Topic(), Payload: envelopeBatch(key, start, candles)}}}
}

func (f *fakeSub) Recv() ([]transport.Message, error) {
	r := <-f.ch
	return r.msgs, r.err
}

func (f *fakeSub) Close() error { return nil }

// fakeReq answers every Call with handle.
type fakeReq struct {
	handle func(body []byte) ([]byte, error)
}

func (f *fakeReq) Call(body []byte) ([]byte, error) { return f.handle(body) }

func newTestCoordinator(t *testing.T, sub Subscriber, req Requester) *Coordinator {
	t.Helper()
	cfg := Config{Key: testKey(), IntervalMs: 1000, PubURL: "ws://unused/pub", ReqURL: "ws://unused/req"}
	c := New(cfg, zap.NewNop(), nil)
	c.dialSub = func(string, *zap.Logger) (Subscriber, error) { return sub, nil }
	c.newRequester = func(string, *zap.Logger) Requester { return req }
	return c
}

// collectCandleEvents drains events until it has seen at least want total
// candles across CandleBatchEvent values, or the context expires.
func collectCandleEvents(t *testing.T, c *Coordinator, want int, timeout time.Duration) []candle.Candle {
	t.Helper()
	var got []candle.Candle
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return got
			}
			if cb, ok := ev.(CandleBatchEvent); ok {
				got = append(got, cb.Candles...)
				if len(got) >= want {
					return got
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d candles, got %d", want, len(got))
		}
	}
}

// TestCoordinator_PublisherGap is scenario S2: the publisher skips sequences
// 7 and 15. The coordinator must backfill both and emit a contiguous 1..20
// with no duplicates and no gaps.
func TestCoordinator_PublisherGap(t *testing.T) {
	sub := newFakeSub()
	key := testKey()

	req := &fakeReq{handle: func(body []byte) ([]byte, error) {
		env, err := wire.DecodeEnvelope(body)
		if err != nil {
			t.Errorf("decode request envelope: %v", err)
			return nil, err
		}
		msg, err := wire.Unpack(env)
		if err != nil {
			t.Errorf("unpack request: %v", err)
			return nil, err
		}
		reqMsg, ok := msg.(wire.BackfillCandlesRequest)
		if !ok {
			t.Errorf("unexpected request type %T", msg)
			return nil, nil
		}
		// Serve exactly the requested range: sequences 7 and 15 are the
		// holes in this scenario, each requested as a one-candle backfill.
		start := reqMsg.FromSequenceExclusive + 1
		resp := wire.BackfillCandlesResponse{
			Key:           reqMsg.Key,
			StartSequence: start,
			Candles:       makeCandles(start, int(reqMsg.Limit)),
			HasMore:       false,
		}
		respEnv := wire.Pack(wire.MessageBackfillCandlesResponse, 0, wire.EncodeBackfillCandlesResponse(resp))
		return wire.EncodeEnvelope(respEnv), nil
	}}

	c := newTestCoordinator(t, sub, req)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx, 0)

	sub.pushBatch(key, 1, makeCandles(1, 6))
	sub.pushBatch(key, 8, makeCandles(8, 7))  // 8..14
	sub.pushBatch(key, 16, makeCandles(16, 5)) // 16..20

	got := collectCandleEvents(t, c, 20, 2*time.Second)
	if len(got) != 20 {
		t.Fatalf("got %d candles, want 20", len(got))
	}
	for i, cd := range got {
		wantSeq := uint64(i + 1)
		wantTs := time.Unix(0, 0).UTC().Add(time.Duration(wantSeq) * time.Second)
		if !cd.Timestamp.Equal(wantTs) {
			t.Fatalf("candle %d: timestamp = %v, want %v (sequence mismatch)", i, cd.Timestamp, wantTs)
		}
	}
}

// TestCoordinator_DuplicateBatch is scenario S5: the same batch is
// delivered twice. The coordinator must not emit its candles twice.
func TestCoordinator_DuplicateBatch(t *testing.T) {
	sub := newFakeSub()
	key := testKey()
	req := &fakeReq{handle: func(body []byte) ([]byte, error) {
		t.Errorf("no backfill should be requested in this scenario")
		return nil, nil
	}}

	c := newTestCoordinator(t, sub, req)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx, 0)

	sub.pushBatch(key, 1, makeCandles(1, 5))
	sub.pushBatch(key, 1, makeCandles(1, 5)) // exact duplicate redelivery
	sub.pushBatch(key, 6, makeCandles(6, 5))

	got := collectCandleEvents(t, c, 10, 2*time.Second)
	if len(got) != 10 {
		t.Fatalf("got %d candles, want 10 (duplicates must be dropped)", len(got))
	}
	for i, cd := range got {
		wantTs := time.Unix(0, 0).UTC().Add(time.Duration(i+1) * time.Second)
		if !cd.Timestamp.Equal(wantTs) {
			t.Fatalf("candle %d: timestamp = %v, want %v (duplicate or missing sequence)", i, cd.Timestamp, wantTs)
		}
	}
}

// TestCoordinator_SchemaMismatch is scenario S6: a message with the wrong
// schema version is dropped (reported as an ErrorEvent) without killing the
// stream or corrupting subsequent sequencing.
func TestCoordinator_SchemaMismatch(t *testing.T) {
	sub := newFakeSub()
	key := testKey()
	req := &fakeReq{handle: func(body []byte) ([]byte, error) {
		t.Errorf("no backfill should be requested in this scenario")
		return nil, nil
	}}

	c := newTestCoordinator(t, sub, req)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx, 0)

	badEnv := wire.Envelope{SchemaVersion: wire.WireSchemaVersion + 1, Type: wire.MessageCandleBatch,
		Body: wire.EncodeCandleBatch(wire.CandleBatch{Key: key, StartSequence: 1, Candles: makeCandles(1, 3)})}
	sub.ch <- fakeRecv{msgs: []transport.Message{{Topic: key.Topic(), Payload: wire.EncodeEnvelope(badEnv)}}}

	sub.pushBatch(key, 1, makeCandles(1, 3))

	var sawError bool
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			switch v := ev.(type) {
			case ErrorEvent:
				sawError = true
			case CandleBatchEvent:
				if v.StartSequence != 1 || len(v.Candles) != 3 {
					t.Fatalf("unexpected candle batch: %+v", v)
				}
				if !sawError {
					t.Fatalf("expected schema-mismatch ErrorEvent before the valid batch")
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for schema-mismatch recovery")
		}
	}
}
