package transport

import (
	"strconv"

	"go.uber.org/zap"
)

var intervalUnitMs = map[byte]int64{
	's': 1_000,
	'm': 60_000,
	'h': 3_600_000,
	'd': 86_400_000,
}

const defaultIntervalMs = 1_000

// ParseIntervalMs parses a "<number><unit>" interval string (unit one of
// s, m, h, d) into milliseconds. Anything unparseable — empty, unknown
// unit, non-numeric prefix, or an overflowing multiplication — resolves to
// the 1000ms default with a warning log rather than a fatal error.
func ParseIntervalMs(interval string, log *zap.Logger) int64 {
	if len(interval) < 2 {
		log.Warn("unrecognized interval, defaulting to 1000ms", zap.String("interval", interval))
		return defaultIntervalMs
	}
	unit := interval[len(interval)-1]
	unitMs, ok := intervalUnitMs[unit]
	if !ok {
		log.Warn("unrecognized interval unit, defaulting to 1000ms", zap.String("interval", interval))
		return defaultIntervalMs
	}
	n, err := strconv.ParseInt(interval[:len(interval)-1], 10, 64)
	if err != nil {
		log.Warn("unrecognized interval number, defaulting to 1000ms", zap.String("interval", interval))
		return defaultIntervalMs
	}
	ms := n * unitMs
	if unitMs != 0 && ms/unitMs != n {
		log.Warn("interval overflows, defaulting to 1000ms", zap.String("interval", interval))
		return defaultIntervalMs
	}
	return ms
}
