package p9candles_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"p9candles/internal/coordinator"
	"p9candles/internal/simulator"
	"p9candles/pkg/candle"
)

// newLoopbackServers starts the simulator's PUB and REP handlers on
// in-process httptest servers and returns their ws:// URLs.
func newLoopbackServers(t *testing.T, sim *simulator.Simulator) (pubURL, repURL string) {
	t.Helper()
	pubHandler, repHandler := sim.Handlers()

	pubSrv := httptest.NewServer(pubHandler)
	repSrv := httptest.NewServer(repHandler)
	t.Cleanup(func() {
		pubSrv.Close()
		repSrv.Close()
	})

	toWS := func(u string) string { return "ws" + strings.TrimPrefix(u, "http") }
	return toWS(pubSrv.URL), toWS(repSrv.URL)
}

func collectUntil(t *testing.T, c *coordinator.Coordinator, want int, timeout time.Duration) []candle.Candle {
	t.Helper()
	var got []candle.Candle
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return got
			}
			if cb, ok := ev.(coordinator.CandleBatchEvent); ok {
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

// TestIntegration_NoFaults is scenario S1: a clean simulator run with no
// fault injection must be received strictly in order, with no gaps and no
// duplicates.
func TestIntegration_NoFaults(t *testing.T) {
	log := zap.NewNop()
	key := candle.Key{SourceID: "SIM", Symbol: "BTC-USD", Interval: "1s"}

	sim := simulator.New(simulator.Config{
		Key:        key,
		IntervalMs: 1000,
		TickMs:     20,
		BatchSize:  10,
		Seed:       7,
		StartPrice: 100,
	}, log, nil)

	pubURL, repURL := newLoopbackServers(t, sim)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sim.Run(ctx)

	c := coordinator.New(coordinator.Config{
		Key:        key,
		IntervalMs: 1000,
		PubURL:     pubURL,
		ReqURL:     repURL,
	}, log, nil)

	coordCtx, coordCancel := context.WithCancel(context.Background())
	defer coordCancel()
	go c.Run(coordCtx, 0)

	got := collectUntil(t, c, 100, 10*time.Second)
	if len(got) < 100 {
		t.Fatalf("got %d candles, want at least 100", len(got))
	}
	for i, cd := range got {
		if err := cd.Validate(); err != nil {
			t.Fatalf("candle %d failed OHLC invariant: %v", i, err)
		}
	}
	for i := 1; i < len(got); i++ {
		if d := got[i].Timestamp.Sub(got[i-1].Timestamp); d != time.Second {
			t.Fatalf("candle %d timestamp advanced by %v, want exactly one 1s interval: %v -> %v", i, d, got[i-1].Timestamp, got[i].Timestamp)
		}
	}
}

// TestIntegration_Restart is scenario S3: the coordinator is restarted
// mid-stream with a lastApplied cursor from a prior run; it must resume
// exactly at lastApplied+1, backfilling anything the simulator produced in
// between, so its first candle is the one right after the first run's last.
func TestIntegration_Restart(t *testing.T) {
	log := zap.NewNop()
	key := candle.Key{SourceID: "SIM", Symbol: "ETH-USD", Interval: "1s"}

	sim := simulator.New(simulator.Config{
		Key:        key,
		IntervalMs: 1000,
		TickMs:     20,
		BatchSize:  10,
		Seed:       11,
		StartPrice: 50,
	}, log, nil)

	pubURL, repURL := newLoopbackServers(t, sim)

	simCtx, simCancel := context.WithCancel(context.Background())
	defer simCancel()
	go sim.Run(simCtx)

	firstCoord := coordinator.New(coordinator.Config{
		Key:        key,
		IntervalMs: 1000,
		PubURL:     pubURL,
		ReqURL:     repURL,
	}, log, nil)

	firstCtx, firstCancel := context.WithCancel(context.Background())
	go firstCoord.Run(firstCtx, 0)

	firstRun := collectUntil(t, firstCoord, 30, 10*time.Second)
	firstCancel()
	if len(firstRun) < 30 {
		t.Fatalf("first run got %d candles, want at least 30", len(firstRun))
	}
	lastApplied := uint64(len(firstRun))

	// Let the simulator keep producing candles the coordinator never saw,
	// simulating a process restart gap.
	time.Sleep(200 * time.Millisecond)

	secondCoord := coordinator.New(coordinator.Config{
		Key:        key,
		IntervalMs: 1000,
		PubURL:     pubURL,
		ReqURL:     repURL,
	}, log, nil)
	secondCtx, secondCancel := context.WithCancel(context.Background())
	defer secondCancel()
	go secondCoord.Run(secondCtx, lastApplied)

	resumed := collectUntil(t, secondCoord, 10, 10*time.Second)
	want := firstRun[len(firstRun)-1].Timestamp.Add(time.Second)
	if !resumed[0].Timestamp.Equal(want) {
		t.Fatalf("resumed stream starts at %v, want %v (sequence lastApplied+1)", resumed[0].Timestamp, want)
	}
}
