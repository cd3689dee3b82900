package usecase

import (
	"context"
	"time"

	domrepo "NiftyPulse/internal/domain/repository"
)

// PriceSource tells which step of the fallback chain produced a price.
type PriceSource string

const (
	SourceTick        PriceSource = "tick"
	SourceProxyTick   PriceSource = "proxy_tick"
	SourceCandle      PriceSource = "candle"
	SourceProxyCandle PriceSource = "proxy_candle"
	SourceNone        PriceSource = "none"
)

// PriceResolver finds the best current price of a symbol: a recent tick, the index's
// recent tick for non-index symbols, the last candle close, then the index's last close.
type PriceResolver struct {
	ticks    domrepo.TickStore
	history  *CandleHistory
	index    string
	lookback time.Duration
}

func NewPriceResolver(ticks domrepo.TickStore, history *CandleHistory, index string, lookback time.Duration) *PriceResolver {
	return &PriceResolver{ticks: ticks, history: history, index: index, lookback: lookback}
}

// Current returns SourceNone with a zero price when nothing is available; callers must
// treat that as "cannot evaluate this cycle". Store errors are returned as-is.
func (r *PriceResolver) Current(ctx context.Context, symbol string, now time.Time) (float64, PriceSource, error) {
	since := now.Add(-r.lookback)
	t, err := r.ticks.Latest(ctx, symbol, since)
	if err != nil {
		return 0, SourceNone, err
	}
	if t != nil {
		return t.Price, SourceTick, nil
	}
	proxy := symbol != r.index
	if proxy {
		t, err = r.ticks.Latest(ctx, r.index, since)
		if err != nil {
			return 0, SourceNone, err
		}
		if t != nil {
			return t.Price, SourceProxyTick, nil
		}
	}
	if c := r.history.Last(symbol); c != nil {
		return c.Close, SourceCandle, nil
	}
	if proxy {
		if c := r.history.Last(r.index); c != nil {
			return c.Close, SourceProxyCandle, nil
		}
	}
	return 0, SourceNone, nil
}
