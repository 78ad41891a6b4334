package simulator

import (
	"math"
	"math/rand"

	"p9candles/pkg/candle"
)

// walker generates a deterministic pseudo-random walk of candles from a
// seeded source, so a simulator run with the same seed reproduces the same
// sequence of prices every time. Adapted from
// internal/analytics/ohlcv_candle_generator.go's CandleBuilder: open seeds
// from the prior close, high/low track the extremes touched during the
// bar, close is the bar's final print.
type walker struct {
	rnd *rand.Rand
}

func newWalker(seed int64) *walker {
	return &walker{rnd: rand.New(rand.NewSource(seed))}
}

// next produces one candle opening at openPrice and timestamped tsMs.
func (w *walker) next(openPrice float64, tsMs int64) candle.Candle {
	if openPrice <= 0 {
		openPrice = 1
	}

	move := (w.rnd.Float64() - 0.5) * 0.02 * openPrice
	closePrice := openPrice + move
	if closePrice <= 0 {
		closePrice = openPrice * 0.999
	}

	lo := math.Min(openPrice, closePrice)
	hi := math.Max(openPrice, closePrice)

	wickUp := w.rnd.Float64() * 0.01 * hi
	wickDown := w.rnd.Float64() * 0.01 * lo

	volume := 1 + w.rnd.Float64()*99

	return candle.Candle{
		Timestamp: candle.FromWireMillis(tsMs),
		Open:      openPrice,
		High:      hi + wickUp,
		Low:       lo - wickDown,
		Close:     closePrice,
		Volume:    volume,
	}
}
