// Package store implements the candle store: a Memory backend (Redis), a
// Disk backend (SQLite via mattn/go-sqlite3), and a Both wrapper that fans
// out writes and reads memory-first, falling through to disk.
package store

import (
	"time"

	"p9candles/pkg/candle"
)

// StorageMode selects which backend(s) a Store instance uses.
type StorageMode int

const (
	ModeMemory StorageMode = iota
	ModeDisk
	ModeBoth
)

func (m StorageMode) String() string {
	switch m {
	case ModeMemory:
		return "memory"
	case ModeDisk:
		return "disk"
	case ModeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseStorageMode parses the config.yaml "storage.mode" string.
func ParseStorageMode(s string) (StorageMode, bool) {
	switch s {
	case "memory":
		return ModeMemory, true
	case "disk":
		return ModeDisk, true
	case "both":
		return ModeBoth, true
	default:
		return 0, false
	}
}

// DataRange bounds a LoadCandles/LoadIndicatorValues query.
type DataRange struct {
	kind  rangeKind
	start time.Time
	end   time.Time
}

type rangeKind int

const (
	rangeAll rangeKind = iota
	rangeFrom
	rangeUntil
	rangeBetween
)

func RangeAll() DataRange                       { return DataRange{kind: rangeAll} }
func RangeFrom(start time.Time) DataRange       { return DataRange{kind: rangeFrom, start: start} }
func RangeUntil(end time.Time) DataRange        { return DataRange{kind: rangeUntil, end: end} }
func RangeBetween(start, end time.Time) DataRange {
	return DataRange{kind: rangeBetween, start: start, end: end}
}

// IndicatorPoint is one (timestamp, value) sample of a named indicator
// series.
type IndicatorPoint struct {
	Timestamp time.Time
	Value     float64
}

// Store is the candle store's full surface: candle history, indicator
// series, and session key/value state used by session restore.
type Store interface {
	Mode() StorageMode

	WriteCandles(symbol string, candles []candle.Candle) error
	LoadCandles(symbol string, r *DataRange) ([]candle.Candle, error)

	// AppendCandles is the name the live-stream write path uses: the
	// coordinator calls it once per applied batch, after that batch has
	// already been through gap detection and (if needed) backfill. It is
	// the same write as WriteCandles; the separate name exists so a
	// backend or a caller can tell "bulk/backfill write" and "one more
	// batch off the live feed" apart if it ever needs to, without a
	// different wire shape for either.
	AppendCandles(symbol string, candles []candle.Candle) error

	WriteIndicatorValues(symbol, indicator string, points []IndicatorPoint) error
	LoadIndicatorValues(symbol, indicator string, r *DataRange) ([]IndicatorPoint, error)

	SetSessionValue(key, value string) error
	GetSessionValue(key string) (string, bool, error)

	Close() error
}
