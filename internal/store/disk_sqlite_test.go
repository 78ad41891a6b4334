package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"p9candles/pkg/candle"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), fmt.Sprintf("p9candles-store-%d.db", time.Now().UnixNano()))
}

func sampleCandles() []candle.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []candle.Candle{
		{Timestamp: base, Open: 1.0, High: 2.0, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: base.Add(time.Minute), Open: 1.5, High: 2.5, Low: 1.0, Close: 2.0, Volume: 15},
		{Timestamp: base.Add(2 * time.Minute), Open: 2.0, High: 3.0, Low: 1.5, Close: 2.5, Volume: 12},
	}
}

func TestDiskStore_RoundTripCandles(t *testing.T) {
	s, err := NewDiskStore(tempDBPath(t))
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	candles := sampleCandles()
	if err := s.WriteCandles("ABC", candles); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	loaded, err := s.LoadCandles("ABC", nil)
	if err != nil {
		t.Fatalf("LoadCandles: %v", err)
	}
	if len(loaded) != len(candles) {
		t.Fatalf("loaded %d candles, want %d", len(loaded), len(candles))
	}
	if loaded[0].Open != 1.0 || loaded[1].Close != 2.0 {
		t.Fatalf("unexpected candle values: %+v", loaded)
	}
}

func TestDiskStore_AppendCandlesIsWriteCandles(t *testing.T) {
	s, err := NewDiskStore(tempDBPath(t))
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	candles := sampleCandles()
	if err := s.AppendCandles("APPEND", candles); err != nil {
		t.Fatalf("AppendCandles: %v", err)
	}

	loaded, err := s.LoadCandles("APPEND", nil)
	if err != nil {
		t.Fatalf("LoadCandles: %v", err)
	}
	if len(loaded) != len(candles) {
		t.Fatalf("loaded %d candles, want %d", len(loaded), len(candles))
	}
}

func TestDiskStore_RangeFilters(t *testing.T) {
	s, err := NewDiskStore(tempDBPath(t))
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	candles := sampleCandles()
	if err := s.WriteCandles("RANGE", candles); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	from := RangeFrom(candles[1].Timestamp)
	got, err := s.LoadCandles("RANGE", &from)
	if err != nil {
		t.Fatalf("LoadCandles From: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("From: got %d candles, want 2", len(got))
	}

	until := RangeUntil(candles[1].Timestamp)
	got, err = s.LoadCandles("RANGE", &until)
	if err != nil {
		t.Fatalf("LoadCandles Until: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Until: got %d candles, want 2", len(got))
	}

	between := RangeBetween(candles[1].Timestamp, candles[2].Timestamp)
	got, err = s.LoadCandles("RANGE", &between)
	if err != nil {
		t.Fatalf("LoadCandles Between: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Between: got %d candles, want 2", len(got))
	}
}

func TestDiskStore_IndicatorsAndSession(t *testing.T) {
	s, err := NewDiskStore(tempDBPath(t))
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	candles := sampleCandles()
	if err := s.WriteCandles("IND", candles); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	points := []IndicatorPoint{
		{Timestamp: candles[0].Timestamp, Value: 10},
		{Timestamp: candles[1].Timestamp, Value: 11.5},
		{Timestamp: candles[2].Timestamp, Value: 12},
	}
	if err := s.WriteIndicatorValues("IND", "SMA", points); err != nil {
		t.Fatalf("WriteIndicatorValues: %v", err)
	}
	loaded, err := s.LoadIndicatorValues("IND", "SMA", nil)
	if err != nil {
		t.Fatalf("LoadIndicatorValues: %v", err)
	}
	if len(loaded) != 3 || loaded[0].Value != 10 {
		t.Fatalf("unexpected indicator values: %+v", loaded)
	}

	if err := s.SetSessionValue("active_source", "IND"); err != nil {
		t.Fatalf("SetSessionValue: %v", err)
	}
	v, ok, err := s.GetSessionValue("active_source")
	if err != nil {
		t.Fatalf("GetSessionValue: %v", err)
	}
	if !ok || v != "IND" {
		t.Fatalf("got (%q, %v), want (\"IND\", true)", v, ok)
	}

	_, ok, err = s.GetSessionValue("missing")
	if err != nil {
		t.Fatalf("GetSessionValue missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to be absent")
	}
}

func TestParseStorageMode(t *testing.T) {
	cases := map[string]StorageMode{"memory": ModeMemory, "disk": ModeDisk, "both": ModeBoth}
	for s, want := range cases {
		got, ok := ParseStorageMode(s)
		if !ok || got != want {
			t.Fatalf("ParseStorageMode(%q) = (%v, %v), want (%v, true)", s, got, ok, want)
		}
	}
	if _, ok := ParseStorageMode("bogus"); ok {
		t.Fatalf("ParseStorageMode(bogus) should fail")
	}
}

func TestNew_MissingDiskPathFails(t *testing.T) {
	if _, err := New(Config{Mode: ModeDisk, DiskPath: ""}); err == nil {
		t.Fatalf("expected error for missing disk path")
	}
	if _, err := New(Config{Mode: ModeBoth, DiskPath: ""}); err == nil {
		t.Fatalf("expected error for missing disk path in Both mode")
	}
}
