package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"p9candles/pkg/candle"
)

// MemoryStore is the Redis-backed backend. Candles for a symbol live in a
// sorted set "candles:{symbol}" scored by Unix-ms timestamp. Indicator
// series use "indicators:{symbol}:{indicator}" sorted sets; session values
// are plain strings under "session:{key}".
type MemoryStore struct {
	rdb *redis.Client
	ctx context.Context
}

// RedisOptions configures the underlying go-redis client.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func NewMemoryStore(opts RedisOptions) (*MemoryStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis at %s: %w", opts.Addr, err)
	}

	return &MemoryStore{rdb: rdb, ctx: context.Background()}, nil
}

func (s *MemoryStore) Mode() StorageMode { return ModeMemory }

type candleRecord struct {
	TsMs   int64   `json:"ts_ms"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func candleKey(symbol string) string    { return fmt.Sprintf("candles:%s", symbol) }
func indicatorKey(symbol, ind string) string {
	return fmt.Sprintf("indicators:%s:%s", symbol, ind)
}
func sessionKey(key string) string { return fmt.Sprintf("session:%s", key) }

// AppendCandles is WriteCandles under the name the live-stream write path
// uses.
func (s *MemoryStore) AppendCandles(symbol string, candles []candle.Candle) error {
	return s.WriteCandles(symbol, candles)
}

func (s *MemoryStore) WriteCandles(symbol string, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	key := candleKey(symbol)
	for _, c := range candles {
		rec := candleRecord{
			TsMs:   candle.ToWireMillis(c.Timestamp),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal candle: %w", err)
		}
		pipe.ZAdd(s.ctx, key, redis.Z{Score: float64(rec.TsMs), Member: data})
	}
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("write candles to redis: %w", err)
	}
	return nil
}

func (s *MemoryStore) LoadCandles(symbol string, r *DataRange) ([]candle.Candle, error) {
	min, max := rangeScoreBounds(r)
	vals, err := s.rdb.ZRangeByScore(s.ctx, candleKey(symbol), &redis.ZRangeBy{
		Min: min, Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("load candles from redis: %w", err)
	}

	out := make([]candle.Candle, 0, len(vals))
	for _, v := range vals {
		var rec candleRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal candle: %w", err)
		}
		out = append(out, candle.Candle{
			Timestamp: candle.FromWireMillis(rec.TsMs),
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
		})
	}
	return out, nil
}

type indicatorRecord struct {
	TsMs  int64   `json:"ts_ms"`
	Value float64 `json:"value"`
}

func (s *MemoryStore) WriteIndicatorValues(symbol, indicator string, points []IndicatorPoint) error {
	if len(points) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	key := indicatorKey(symbol, indicator)
	for _, p := range points {
		rec := indicatorRecord{TsMs: candle.ToWireMillis(p.Timestamp), Value: p.Value}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal indicator point: %w", err)
		}
		pipe.ZAdd(s.ctx, key, redis.Z{Score: float64(rec.TsMs), Member: data})
	}
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("write indicator values to redis: %w", err)
	}
	return nil
}

func (s *MemoryStore) LoadIndicatorValues(symbol, indicator string, r *DataRange) ([]IndicatorPoint, error) {
	min, max := rangeScoreBounds(r)
	vals, err := s.rdb.ZRangeByScore(s.ctx, indicatorKey(symbol, indicator), &redis.ZRangeBy{
		Min: min, Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("load indicator values from redis: %w", err)
	}

	out := make([]IndicatorPoint, 0, len(vals))
	for _, v := range vals {
		var rec indicatorRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal indicator point: %w", err)
		}
		out = append(out, IndicatorPoint{Timestamp: candle.FromWireMillis(rec.TsMs), Value: rec.Value})
	}
	return out, nil
}

func (s *MemoryStore) SetSessionValue(key, value string) error {
	if err := s.rdb.Set(s.ctx, sessionKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set session value %s: %w", key, err)
	}
	return nil
}

func (s *MemoryStore) GetSessionValue(key string) (string, bool, error) {
	v, err := s.rdb.Get(s.ctx, sessionKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session value %s: %w", key, err)
	}
	return v, true, nil
}

func (s *MemoryStore) Close() error {
	return s.rdb.Close()
}

func rangeScoreBounds(r *DataRange) (string, string) {
	if r == nil {
		return "-inf", "+inf"
	}
	switch r.kind {
	case rangeFrom:
		return fmt.Sprintf("%d", candle.ToWireMillis(r.start)), "+inf"
	case rangeUntil:
		return "-inf", fmt.Sprintf("%d", candle.ToWireMillis(r.end))
	case rangeBetween:
		return fmt.Sprintf("%d", candle.ToWireMillis(r.start)), fmt.Sprintf("%d", candle.ToWireMillis(r.end))
	default:
		return "-inf", "+inf"
	}
}
