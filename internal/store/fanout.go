package store

import (
	"p9candles/internal/errs"
	"p9candles/pkg/candle"
)

// BothStore fans writes out to both backends and reads memory-first,
// falling through to disk only when memory returns nothing. Both writes
// are attempted even if the first fails; the first error is returned.
type BothStore struct {
	memory *MemoryStore
	disk   *DiskStore
}

func NewBothStore(memory *MemoryStore, disk *DiskStore) *BothStore {
	return &BothStore{memory: memory, disk: disk}
}

func (s *BothStore) Mode() StorageMode { return ModeBoth }

// WriteCandles writes to both backends unconditionally, returning the
// first error encountered but still attempting both — not transactional.
func (s *BothStore) WriteCandles(symbol string, candles []candle.Candle) error {
	errMem := s.memory.WriteCandles(symbol, candles)
	errDisk := s.disk.WriteCandles(symbol, candles)
	if errMem != nil {
		return errMem
	}
	return errDisk
}

// AppendCandles is WriteCandles under the name the live-stream write path
// uses.
func (s *BothStore) AppendCandles(symbol string, candles []candle.Candle) error {
	return s.WriteCandles(symbol, candles)
}

func (s *BothStore) LoadCandles(symbol string, r *DataRange) ([]candle.Candle, error) {
	out, err := s.memory.LoadCandles(symbol, r)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out, nil
	}
	return s.disk.LoadCandles(symbol, r)
}

func (s *BothStore) WriteIndicatorValues(symbol, indicator string, points []IndicatorPoint) error {
	errMem := s.memory.WriteIndicatorValues(symbol, indicator, points)
	errDisk := s.disk.WriteIndicatorValues(symbol, indicator, points)
	if errMem != nil {
		return errMem
	}
	return errDisk
}

func (s *BothStore) LoadIndicatorValues(symbol, indicator string, r *DataRange) ([]IndicatorPoint, error) {
	out, err := s.memory.LoadIndicatorValues(symbol, indicator, r)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out, nil
	}
	return s.disk.LoadIndicatorValues(symbol, indicator, r)
}

func (s *BothStore) SetSessionValue(key, value string) error {
	errMem := s.memory.SetSessionValue(key, value)
	errDisk := s.disk.SetSessionValue(key, value)
	if errMem != nil {
		return errMem
	}
	return errDisk
}

func (s *BothStore) GetSessionValue(key string) (string, bool, error) {
	v, ok, err := s.memory.GetSessionValue(key)
	if err != nil {
		return "", false, err
	}
	if ok {
		return v, true, nil
	}
	return s.disk.GetSessionValue(key)
}

func (s *BothStore) Close() error {
	errMem := s.memory.Close()
	errDisk := s.disk.Close()
	if errMem != nil {
		return errMem
	}
	return errDisk
}

// Config bundles the settings New needs to construct any backend.
type Config struct {
	Mode     StorageMode
	Redis    RedisOptions
	DiskPath string
}

// New constructs the Store backend matching cfg.Mode.
func New(cfg Config) (Store, error) {
	switch cfg.Mode {
	case ModeMemory:
		return NewMemoryStore(cfg.Redis)
	case ModeDisk:
		if cfg.DiskPath == "" {
			return nil, errs.ErrMissingDiskPath
		}
		return NewDiskStore(cfg.DiskPath)
	case ModeBoth:
		if cfg.DiskPath == "" {
			return nil, errs.ErrMissingDiskPath
		}
		mem, err := NewMemoryStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		disk, err := NewDiskStore(cfg.DiskPath)
		if err != nil {
			mem.Close()
			return nil, err
		}
		return NewBothStore(mem, disk), nil
	default:
		return nil, errs.ErrInvalidMode
	}
}
