package indicators

import (
	"math"
	"testing"
	"time"

	"NiftyPulse/internal/domain/models"
)

func candlesFromCloses(closes []float64, volume float64) []models.Candle {
	start := time.Date(2025, 8, 4, 9, 15, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			WindowStart: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:        c, High: c, Low: c, Close: c,
			Volume: volume, TickCount: 1,
		}
	}
	return out
}

func TestRound(t *testing.T) {
	if got := Round(112.5, 0); got != 113 {
		t.Fatalf("unexpected %v", got)
	}
	if got := Round(-2.345678, 3); got != -2.346 {
		t.Fatalf("unexpected %v", got)
	}
}

func TestCorrelationPerfect(t *testing.T) {
	a := candlesFromCloses([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0)
	b := candlesFromCloses([]float64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20}, 0)
	r := Correlation(a, b)
	if r == nil || *r != 1 {
		t.Fatalf("expected 1, got %v", r)
	}
}

func TestCorrelationNeedsTenAndVariance(t *testing.T) {
	short := candlesFromCloses([]float64{1, 2, 3}, 0)
	full := candlesFromCloses([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0)
	if Correlation(short, full) != nil {
		t.Fatalf("expected nil for short series")
	}
	flat := candlesFromCloses([]float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, 0)
	if Correlation(flat, full) != nil {
		t.Fatalf("expected nil for flat series")
	}
}

func TestVolatilityIndex(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	v := VolatilityIndex(candlesFromCloses(closes, 0))
	if v == nil || *v != 0 {
		t.Fatalf("expected zero volatility, got %v", v)
	}
	if VolatilityIndex(candlesFromCloses(closes[:19], 0)) != nil {
		t.Fatalf("expected nil below 20 candles")
	}
}

func TestVWAP(t *testing.T) {
	cs := candlesFromCloses([]float64{100, 100, 100, 100, 110}, 10)
	cs[4].Volume = 30
	since := cs[0].WindowStart
	v := VWAP(cs, since)
	if v == nil {
		t.Fatalf("expected vwap")
	}
	want := (100.0*40 + 110*30) / 70
	if math.Abs(*v-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, *v)
	}
	if VWAP(cs[:4], since) != nil {
		t.Fatalf("expected nil with fewer than 5 candles")
	}
	if VWAP(candlesFromCloses([]float64{1, 2, 3, 4, 5}, 0), since) != nil {
		t.Fatalf("expected nil with zero volume")
	}
}

func TestVWAPAligned(t *testing.T) {
	if !VWAPAligned(models.BuyCall, 99.6, 100, 0.005) {
		t.Fatalf("call within deviation should pass")
	}
	if VWAPAligned(models.BuyCall, 99, 100, 0.005) {
		t.Fatalf("call below deviation should fail")
	}
	if !VWAPAligned(models.BuyPut, 99, 100, 0.005) {
		t.Fatalf("put below vwap should pass")
	}
}

func TestVolumeConfirmed(t *testing.T) {
	few := candlesFromCloses([]float64{1, 2}, 5)
	if !VolumeConfirmed(few, few, 10000) {
		t.Fatalf("insufficient data should allow")
	}
	zero := candlesFromCloses([]float64{1, 2, 3, 4, 5}, 0)
	if !VolumeConfirmed(zero, zero, 10000) {
		t.Fatalf("zero volume with ticks should allow")
	}
	high := candlesFromCloses([]float64{1, 2, 3, 4, 5}, 20000)
	if !VolumeConfirmed(high, high, 10000) {
		t.Fatalf("high volume should pass")
	}
	drop := candlesFromCloses([]float64{1, 2, 3, 4, 5}, 20000)
	drop[4].Volume = 11000
	if !VolumeConfirmed(drop, high, 10000) {
		t.Fatalf("volume above half the average should pass")
	}
	drop[4].Volume = 5000
	if VolumeConfirmed(drop, high, 10000) {
		t.Fatalf("volume below threshold should fail")
	}
	low := candlesFromCloses([]float64{1, 2, 3, 4, 5}, 200)
	if !VolumeConfirmed(low, low, 10000) {
		t.Fatalf("low volume regime should use the reduced threshold")
	}
}

func TestSentiment(t *testing.T) {
	cases := []struct {
		idx, fut float64
		want     models.Sentiment
	}{
		{101, 102, models.VeryBullish},
		{97, 99, models.Bullish},
		{89, 88, models.VeryBearish},
		{92, 93, models.Bearish},
		{97, 92, models.Neutral},
	}
	for _, c := range cases {
		if got := Sentiment(c.idx, c.fut, 100, 90); got != c.want {
			t.Fatalf("Sentiment(%v,%v) = %s, want %s", c.idx, c.fut, got, c.want)
		}
	}
}
