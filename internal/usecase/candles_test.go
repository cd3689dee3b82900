package usecase

import (
	"context"
	"testing"
	"time"

	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/repository"
)

func TestBuildCandle(t *testing.T) {
	at := time.Date(2025, 8, 4, 9, 30, 0, 0, time.UTC)
	ticks := []models.Tick{
		{Price: 100, Volume: 1, ReceivedAt: at},
		{Price: 105, Volume: 2, ReceivedAt: at.Add(time.Second)},
		{Price: 98, ReceivedAt: at.Add(2 * time.Second)},
		{Price: 101, Volume: 3, ReceivedAt: at.Add(3 * time.Second)},
	}
	c := BuildCandle(idx, at, ticks)
	if c.Open != 100 || c.High != 105 || c.Low != 98 || c.Close != 101 {
		t.Fatalf("unexpected OHLC %+v", c)
	}
	if c.Volume != 6 || c.TickCount != 4 {
		t.Fatalf("unexpected volume/count %+v", c)
	}
	if BuildCandle(idx, at, nil) != nil {
		t.Fatalf("no ticks must give no candle")
	}
}

func TestAggregateFallsBackToIndex(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemoryTickStore()
	start, end := monday(loc, 9, 45, 0), monday(loc, 9, 55, 0)
	put(t, store, idx, 45, monday(loc, 9, 46, 0))
	put(t, store, idx, 50, monday(loc, 9, 47, 0))
	put(t, store, idx, 40, monday(loc, 9, 50, 0))

	agg := NewCandleAggregator(store, idx)
	ctx := context.Background()
	ic, err := agg.Aggregate(ctx, idx, start, end)
	if err != nil || ic == nil {
		t.Fatalf("index candle: %v %v", ic, err)
	}
	fc, err := agg.Aggregate(ctx, fut, start, end)
	if err != nil || fc == nil {
		t.Fatalf("futures candle: %v %v", fc, err)
	}
	if !fc.Proxy || fc.Symbol != fut {
		t.Fatalf("expected proxy candle for futures, got %+v", fc)
	}
	if fc.High != 50 || fc.Low != 40 || fc.High != ic.High || fc.Low != ic.Low {
		t.Fatalf("proxy levels must equal index levels: %+v vs %+v", fc, ic)
	}

	none, err := agg.Aggregate(ctx, fut, end, end.Add(time.Minute))
	if err != nil || none != nil {
		t.Fatalf("no data anywhere must give nil, got %+v %v", none, err)
	}
}

func TestAggregateRejectsEmptyWindow(t *testing.T) {
	at := time.Now()
	if _, err := NewCandleAggregator(repository.NewMemoryTickStore(), idx).Aggregate(context.Background(), idx, at, at); err == nil {
		t.Fatalf("expected error for empty window")
	}
}

func TestCandleHistoryUpsert(t *testing.T) {
	h := NewCandleHistory(3)
	base := time.Date(2025, 8, 4, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Upsert(models.Candle{Symbol: idx, WindowStart: base.Add(time.Duration(i) * 5 * time.Minute), Close: float64(i)})
	}
	h.Upsert(models.Candle{Symbol: idx, WindowStart: base.Add(20 * time.Minute), Close: 42})

	s := h.Series(idx)
	if len(s) != 3 {
		t.Fatalf("expected capped history of 3, got %d", len(s))
	}
	if s[0].Close != 2 || s[2].Close != 42 {
		t.Fatalf("unexpected series %+v", s)
	}
	if h.Last(idx).Close != 42 || h.Last(fut) != nil {
		t.Fatalf("unexpected last")
	}
	h.Upsert(models.Candle{Symbol: idx, WindowStart: base, Close: -1})
	if h.Series(idx)[0].Close != 2 {
		t.Fatalf("older windows must be ignored")
	}
}
