package candle

import (
	"errors"
	"math"
	"testing"

	"p9candles/internal/errs"
)

func TestCandle_Validate(t *testing.T) {
	cases := []struct {
		name    string
		c       Candle
		wantErr error
	}{
		{"flat", Candle{Open: 10, High: 10, Low: 10, Close: 10}, nil},
		{"normal", Candle{Open: 10, High: 12, Low: 9, Close: 11}, nil},
		{"down candle", Candle{Open: 11, High: 12, Low: 9, Close: 10}, nil},
		{"low above min", Candle{Open: 10, High: 12, Low: 10.5, Close: 11}, errs.ErrInvertedRange},
		{"high below max", Candle{Open: 10, High: 10.5, Low: 9, Close: 11}, errs.ErrInvertedRange},
		{"NaN close", Candle{Open: 10, High: 12, Low: 9, Close: math.NaN()}, errs.ErrInvalidNumber},
		{"infinite volume", Candle{Open: 10, High: 12, Low: 9, Close: 11, Volume: math.Inf(1)}, errs.ErrInvalidNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate() = %v, want errors.Is(_, %v)", err, tc.wantErr)
			}
		})
	}
}

func TestWireMillisRoundTrip(t *testing.T) {
	ms := int64(1_700_000_000_123)
	t1 := FromWireMillis(ms)
	if got := ToWireMillis(t1); got != ms {
		t.Fatalf("round trip = %d, want %d", got, ms)
	}
}
