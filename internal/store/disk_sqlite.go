package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"p9candles/internal/errs"
	"p9candles/pkg/candle"
)

// DiskStore is the SQLite-backed backend, with a three-table schema
// (candles, indicator_values, session_state) and RFC3339 string
// timestamps.
type DiskStore struct {
	db *sql.DB
}

const diskSchema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	open DOUBLE NOT NULL,
	high DOUBLE NOT NULL,
	low DOUBLE NOT NULL,
	close DOUBLE NOT NULL,
	volume DOUBLE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_candles_symbol_ts ON candles(symbol, timestamp);

CREATE TABLE IF NOT EXISTS indicator_values (
	symbol TEXT NOT NULL,
	indicator TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	value DOUBLE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_indicator_symbol_ts ON indicator_values(symbol, indicator, timestamp);

CREATE TABLE IF NOT EXISTS session_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewDiskStore opens (creating if absent) a SQLite database at path and
// ensures the schema exists.
func NewDiskStore(path string) (*DiskStore, error) {
	if path == "" {
		return nil, errs.ErrMissingDiskPath
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	if _, err := db.Exec(diskSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &DiskStore{db: db}, nil
}

func (s *DiskStore) Mode() StorageMode { return ModeDisk }

// AppendCandles is WriteCandles under the name the live-stream write path
// uses.
func (s *DiskStore) AppendCandles(symbol string, candles []candle.Candle) error {
	return s.WriteCandles(symbol, candles)
}

func (s *DiskStore) WriteCandles(symbol string, candles []candle.Candle) error {
	stmt, err := s.db.Prepare(`INSERT INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert candles: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		ts := c.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.Exec(symbol, ts, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("insert candle: %w", err)
		}
	}
	return nil
}

func (s *DiskStore) LoadCandles(symbol string, r *DataRange) ([]candle.Candle, error) {
	query, args := buildRangeQuery(
		"SELECT timestamp, open, high, low, close, volume FROM candles", symbol, r, "timestamp")
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []candle.Candle
	for rows.Next() {
		var tsStr string
		var c candle.Candle
		if err := rows.Scan(&tsStr, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", errs.ErrUnsupportedTimestamp, tsStr, err)
		}
		c.Timestamp = ts.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *DiskStore) WriteIndicatorValues(symbol, indicator string, points []IndicatorPoint) error {
	stmt, err := s.db.Prepare(`INSERT INTO indicator_values (symbol, indicator, timestamp, value)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert indicator_values: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		ts := p.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.Exec(symbol, indicator, ts, p.Value); err != nil {
			return fmt.Errorf("insert indicator value: %w", err)
		}
	}
	return nil
}

func (s *DiskStore) LoadIndicatorValues(symbol, indicator string, r *DataRange) ([]IndicatorPoint, error) {
	conditions := []string{"symbol = ?", "indicator = ?"}
	args := []any{symbol, indicator}

	if r != nil {
		switch r.kind {
		case rangeFrom:
			conditions = append(conditions, "timestamp >= ?")
			args = append(args, r.start.UTC().Format(time.RFC3339Nano))
		case rangeUntil:
			conditions = append(conditions, "timestamp <= ?")
			args = append(args, r.end.UTC().Format(time.RFC3339Nano))
		case rangeBetween:
			conditions = append(conditions, "timestamp >= ?", "timestamp <= ?")
			args = append(args, r.start.UTC().Format(time.RFC3339Nano), r.end.UTC().Format(time.RFC3339Nano))
		}
	}

	query := fmt.Sprintf(
		"SELECT timestamp, value FROM indicator_values WHERE %s ORDER BY timestamp ASC",
		strings.Join(conditions, " AND "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query indicator_values: %w", err)
	}
	defer rows.Close()

	var out []IndicatorPoint
	for rows.Next() {
		var tsStr string
		var p IndicatorPoint
		if err := rows.Scan(&tsStr, &p.Value); err != nil {
			return nil, fmt.Errorf("scan indicator row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", errs.ErrUnsupportedTimestamp, tsStr, err)
		}
		p.Timestamp = ts.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *DiskStore) SetSessionValue(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO session_state(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set session value %s: %w", key, err)
	}
	return nil
}

func (s *DiskStore) GetSessionValue(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM session_state WHERE key = ? LIMIT 1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session value %s: %w", key, err)
	}
	return value, true, nil
}

func (s *DiskStore) Close() error {
	return s.db.Close()
}

// buildRangeQuery appends "WHERE symbol = ? [AND timestamp >= ?] [AND
// timestamp <= ?] ORDER BY <col> ASC" to base, returning the args in the
// same order as the generated placeholders.
func buildRangeQuery(base, symbol string, r *DataRange, col string) (string, []any) {
	conditions := []string{"symbol = ?"}
	args := []any{symbol}

	if r != nil {
		switch r.kind {
		case rangeFrom:
			conditions = append(conditions, col+" >= ?")
			args = append(args, r.start.UTC().Format(time.RFC3339Nano))
		case rangeUntil:
			conditions = append(conditions, col+" <= ?")
			args = append(args, r.end.UTC().Format(time.RFC3339Nano))
		case rangeBetween:
			conditions = append(conditions, col+" >= ?", col+" <= ?")
			args = append(args, r.start.UTC().Format(time.RFC3339Nano), r.end.UTC().Format(time.RFC3339Nano))
		}
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s ASC", base, strings.Join(conditions, " AND "), col)
	return query, args
}
