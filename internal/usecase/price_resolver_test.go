package usecase

import (
	"context"
	"testing"
	"time"

	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/repository"
)

func TestPriceResolverChain(t *testing.T) {
	loc := ist(t)
	now := monday(loc, 10, 0, 0)
	ctx := context.Background()

	store := repository.NewMemoryTickStore()
	history := NewCandleHistory(10)
	r := NewPriceResolver(store, history, idx, 5*time.Minute)

	check := func(symbol string, wantPrice float64, wantSrc PriceSource) {
		t.Helper()
		p, src, err := r.Current(ctx, symbol, now)
		if err != nil {
			t.Fatalf("%s: %v", symbol, err)
		}
		if p != wantPrice || src != wantSrc {
			t.Fatalf("%s: got %v/%s, want %v/%s", symbol, p, src, wantPrice, wantSrc)
		}
	}

	check(idx, 0, SourceNone)
	check(fut, 0, SourceNone)

	history.Upsert(models.Candle{Symbol: idx, WindowStart: monday(loc, 9, 40, 0), Close: 24950})
	check(fut, 24950, SourceProxyCandle)
	check(idx, 24950, SourceCandle)

	history.Upsert(models.Candle{Symbol: fut, WindowStart: monday(loc, 9, 40, 0), Close: 25010})
	check(fut, 25010, SourceCandle)

	put(t, store, idx, 24900, monday(loc, 9, 50, 0))
	check(idx, 24950, SourceCandle)

	put(t, store, idx, 24980, monday(loc, 9, 58, 0))
	check(idx, 24980, SourceTick)
	check(fut, 24980, SourceProxyTick)

	put(t, store, fut, 25040, monday(loc, 9, 59, 0))
	check(fut, 25040, SourceTick)
}
