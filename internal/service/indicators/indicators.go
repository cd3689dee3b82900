package indicators

import (
	"math"
	"time"

	"NiftyPulse/internal/domain/models"
)

const (
	vwapMinCandles        = 5
	correlationWindow     = 10
	volatilityWindow      = 20
	volumeWindow          = 5
	volumeMinCandles      = 3
	lowVolumeThreshold    = 100
	volumeAverageFraction = 0.5
)

// Round rounds v half away from zero to the given decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Closes extracts close prices.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// PctChanges returns (p[i]-p[i-1])/p[i-1]. Non-positive previous values yield 0.
func PctChanges(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}

// SampleStdDev is the n-1 standard deviation; ok is false for fewer than two values.
func SampleStdDev(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1)), true
}

// Pearson returns the correlation of equal-length series, or false when undefined.
func Pearson(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	n := float64(len(a))
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= n
	mb /= n
	var num, sa, sb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		num += da * db
		sa += da * da
		sb += db * db
	}
	den := math.Sqrt(sa * sb)
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// Correlation is Pearson over the last 10 closes of each series, rounded to 3 places.
// Nil when either series is shorter than 10 or is flat.
func Correlation(index, futures []models.Candle) *float64 {
	if len(index) < correlationWindow || len(futures) < correlationWindow {
		return nil
	}
	a := Closes(index[len(index)-correlationWindow:])
	b := Closes(futures[len(futures)-correlationWindow:])
	r, ok := Pearson(a, b)
	if !ok {
		return nil
	}
	r = Round(r, 3)
	return &r
}

// VolatilityIndex is the sample stdev of percentage changes over the last 20 closes,
// in percent, rounded to 2 places. Nil with fewer than 20 candles.
func VolatilityIndex(candles []models.Candle) *float64 {
	if len(candles) < volatilityWindow {
		return nil
	}
	changes := PctChanges(Closes(candles[len(candles)-volatilityWindow:]))
	sd, ok := SampleStdDev(changes)
	if !ok {
		return nil
	}
	v := Round(sd*100, 2)
	return &v
}

// VWAP weights the typical price of candles starting at or after since by volume.
// Nil with fewer than 5 candles of history or zero total volume.
func VWAP(candles []models.Candle, since time.Time) *float64 {
	if len(candles) < vwapMinCandles {
		return nil
	}
	var pv, vol float64
	for _, c := range candles {
		if c.WindowStart.Before(since) {
			continue
		}
		pv += c.TypicalPrice() * c.Volume
		vol += c.Volume
	}
	if vol <= 0 {
		return nil
	}
	v := pv / vol
	return &v
}

// VWAPAligned reports whether price sits on the favorable side of vwap for the direction,
// allowing a fractional deviation against it.
func VWAPAligned(signal models.SignalType, price, vwap, deviation float64) bool {
	if vwap == 0 {
		return true
	}
	if signal == models.BuyCall {
		return (price-vwap)/vwap >= -deviation
	}
	return (vwap-price)/vwap >= -deviation
}

// VolumeConfirmed checks that the latest candle volume of both instruments is meaningful.
// Missing or all-zero volume data is treated as a pass.
func VolumeConfirmed(index, futures []models.Candle, threshold float64) bool {
	iv := lastVolumes(index)
	fv := lastVolumes(futures)
	if len(iv) < volumeMinCandles || len(fv) < volumeMinCandles {
		return true
	}
	if sum(iv) == 0 && sum(fv) == 0 && tickCount(index) > 0 {
		return true
	}
	curI, curF := iv[len(iv)-1], fv[len(fv)-1]
	avgI := mean(iv[:len(iv)-1])
	avgF := mean(fv[:len(fv)-1])
	if avgI < threshold/10 {
		threshold = lowVolumeThreshold
	}
	return curI >= threshold && curF >= threshold &&
		curI >= avgI*volumeAverageFraction && curF >= avgF*volumeAverageFraction
}

// Sentiment classifies both prices against the midpoint of the session range.
func Sentiment(indexPrice, futuresPrice, high, low float64) models.Sentiment {
	if indexPrice == 0 || futuresPrice == 0 || high == 0 || low == 0 {
		return models.Neutral
	}
	mid := (high + low) / 2
	switch {
	case indexPrice > mid && futuresPrice > mid:
		if indexPrice > high && futuresPrice > high {
			return models.VeryBullish
		}
		return models.Bullish
	case indexPrice < mid && futuresPrice < mid:
		if indexPrice < low && futuresPrice < low {
			return models.VeryBearish
		}
		return models.Bearish
	default:
		return models.Neutral
	}
}

// Stats summarises c; nil when c is nil.
func Stats(c *models.Candle) *models.CandleStats {
	if c == nil {
		return nil
	}
	change := c.Close - c.Open
	pct := 0.0
	if c.Open != 0 {
		pct = change / c.Open * 100
	}
	return &models.CandleStats{
		Open:      c.Open,
		Close:     c.Close,
		Volume:    c.Volume,
		Change:    Round(change, 2),
		ChangePct: Round(pct, 2),
	}
}

func lastVolumes(candles []models.Candle) []float64 {
	if len(candles) > volumeWindow {
		candles = candles[len(candles)-volumeWindow:]
	}
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func tickCount(candles []models.Candle) int {
	if len(candles) > volumeWindow {
		candles = candles[len(candles)-volumeWindow:]
	}
	n := 0
	for _, c := range candles {
		n += c.TickCount
	}
	return n
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}
