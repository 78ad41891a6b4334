package wire

import (
	"errors"
	"math"
	"testing"

	"p9candles/internal/errs"
)

func TestDecodeCandles_InvertedRangeIsDropped(t *testing.T) {
	cs := sampleCandles(3)
	cs[1].Low = cs[1].High + 1 // violates low <= min(open,close) <= max(open,close) <= high

	_, err := decodeCandles(encodeCandles(cs))
	if !errors.Is(err, errs.ErrInvertedRange) {
		t.Fatalf("decodeCandles err = %v, want ErrInvertedRange", err)
	}
}

func TestDecodeCandles_NonFiniteIsDropped(t *testing.T) {
	cs := sampleCandles(2)
	cs[0].Volume = math.NaN()

	_, err := decodeCandles(encodeCandles(cs))
	if !errors.Is(err, errs.ErrInvalidNumber) {
		t.Fatalf("decodeCandles err = %v, want ErrInvalidNumber", err)
	}
}

// TestEnvelopeRoundTrip_CandleBatchDropsInvalidCandle exercises the same
// rejection through the full envelope path a subscriber actually uses:
// one bad candle anywhere in the batch must fail the whole Unpack, not
// just the offending element.
func TestEnvelopeRoundTrip_CandleBatchDropsInvalidCandle(t *testing.T) {
	cs := sampleCandles(4)
	cs[3].High = cs[3].Low - 1

	batch := CandleBatch{Key: sampleKey(), StartSequence: 1, Candles: cs}
	env := Pack(MessageCandleBatch, 0, EncodeCandleBatch(batch))
	raw := EncodeEnvelope(env)

	decodedEnv, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	_, err = Unpack(decodedEnv)
	if !errors.Is(err, errs.ErrInvertedRange) {
		t.Fatalf("Unpack err = %v, want ErrInvertedRange", err)
	}
}
