package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/repository"
	"NiftyPulse/pkg/config"
)

func newRegistry(t *testing.T, sessions ...config.SessionConfig) *SessionRegistry {
	t.Helper()
	r, err := NewSessionRegistry(sessions, testMarket(t), idx, fut)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestRegistryRejectsOverlap(t *testing.T) {
	_, err := NewSessionRegistry([]config.SessionConfig{
		{Name: "A", Start: "09:30", End: "09:40"},
		{Name: "B", Start: "09:35", End: "09:50"},
	}, testMarket(t), idx, fut)
	if !errors.Is(err, config.ErrSessionOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemoryTickStore()
	agg := NewCandleAggregator(store, idx)
	r := newRegistry(t, config.SessionConfig{Name: "Morning Opening", Start: "09:30", End: "09:35"})
	ctx := context.Background()

	r.EnsureDay(monday(loc, 9, 20, 0))
	if tr, _ := r.Advance(ctx, monday(loc, 9, 29, 59), agg, nil); len(tr) != 0 {
		t.Fatalf("no transition expected before start, got %+v", tr)
	}

	tr, err := r.Advance(ctx, monday(loc, 9, 30, 0), agg, map[string]*models.Candle{
		idx: {Symbol: idx, High: 99, Low: 95, TickCount: 2},
	})
	if err != nil || len(tr) != 1 || tr[0].To != models.SessionActive {
		t.Fatalf("expected ACTIVE at the inclusive start, got %+v %v", tr, err)
	}
	s := r.Get("Morning Opening")
	if lv := s.LevelsFor(idx); lv == nil || lv.High != 99 || lv.Low != 95 {
		t.Fatalf("live fold not applied: %+v", lv)
	}

	put(t, store, idx, 97, monday(loc, 9, 30, 30))
	put(t, store, idx, 100, monday(loc, 9, 31, 0))
	put(t, store, idx, 90, monday(loc, 9, 33, 0))
	put(t, store, idx, 120, monday(loc, 9, 35, 0))
	put(t, store, fut, 200, monday(loc, 9, 31, 0))
	put(t, store, fut, 190, monday(loc, 9, 34, 0))

	if tr, _ := r.Advance(ctx, monday(loc, 9, 35, 0), agg, nil); len(tr) != 0 {
		t.Fatalf("session must stay ACTIVE at its end boundary, got %+v", tr)
	}
	tr, err = r.Advance(ctx, monday(loc, 9, 35, 1), agg, nil)
	if err != nil || len(tr) != 1 || tr[0].To != models.SessionCompleted {
		t.Fatalf("expected COMPLETED, got %+v %v", tr, err)
	}
	il, fl := s.LevelsFor(idx), s.LevelsFor(fut)
	if il.High != 100 || il.Low != 90 || il.TickCount != 3 {
		t.Fatalf("final pass must recompute index levels over [start, end): %+v", il)
	}
	if fl.High != 200 || fl.Low != 190 {
		t.Fatalf("unexpected futures levels %+v", fl)
	}

	tr, _ = r.Advance(ctx, monday(loc, 10, 0, 0), agg, map[string]*models.Candle{idx: {High: 500, Low: 1}})
	if len(tr) != 0 || s.Status != models.SessionCompleted || il.High != 100 {
		t.Fatalf("completed session must be frozen: %+v %+v", tr, il)
	}
}

func TestRegistryCascadeWithProxy(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemoryTickStore()
	agg := NewCandleAggregator(store, idx)
	r := newRegistry(t,
		config.SessionConfig{Name: "Morning Opening", Start: "09:30", End: "09:35"},
		config.SessionConfig{Name: "Mid Morning", Start: "09:45", End: "09:55"},
		config.SessionConfig{Name: "Pre Lunch", Start: "10:30", End: "10:45"},
	)
	put(t, store, idx, 50, monday(loc, 9, 46, 0))
	put(t, store, idx, 40, monday(loc, 9, 50, 0))

	now := monday(loc, 10, 0, 0)
	r.EnsureDay(now)
	tr, err := r.Advance(context.Background(), now, agg, nil)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if len(tr) != 4 {
		t.Fatalf("expected two sessions to cascade PENDING->ACTIVE->COMPLETED, got %+v", tr)
	}
	if s := r.Get("Pre Lunch"); s.Status != models.SessionPending {
		t.Fatalf("future session must stay PENDING, got %s", s.Status)
	}
	mid := r.Get("Mid Morning")
	il, fl := mid.LevelsFor(idx), mid.LevelsFor(fut)
	if il == nil || fl == nil || *il != *fl || il.High != 50 || il.Low != 40 {
		t.Fatalf("futures levels must mirror index via proxy: %+v %+v", il, fl)
	}
	if mo := r.Get("Morning Opening"); mo.LevelsFor(idx) != nil {
		t.Fatalf("session without ticks must have no levels")
	}
}

func TestRegistryDayRollover(t *testing.T) {
	loc := ist(t)
	r := newRegistry(t, config.SessionConfig{Name: "Morning Opening", Start: "09:30", End: "09:35"})
	store := repository.NewMemoryTickStore()
	put(t, store, idx, 100, monday(loc, 9, 31, 0))
	agg := NewCandleAggregator(store, idx)

	now := monday(loc, 12, 0, 0)
	r.EnsureDay(now)
	_, _ = r.Advance(context.Background(), now, agg, nil)
	if r.Get("Morning Opening").Status != models.SessionCompleted {
		t.Fatalf("expected completed")
	}
	if r.EnsureDay(now.Add(time.Hour)) {
		t.Fatalf("same day must not reset")
	}
	if !r.EnsureDay(now.AddDate(0, 0, 1)) {
		t.Fatalf("next day must reset")
	}
	s := r.Get("Morning Opening")
	if s.Status != models.SessionPending || len(s.Levels) != 0 || s.TradingDay != "2025-08-05" {
		t.Fatalf("unexpected session after rollover %+v", s)
	}
	if !s.Start.Equal(time.Date(2025, 8, 5, 9, 30, 0, 0, loc)) {
		t.Fatalf("unexpected start %v", s.Start)
	}
}

// windowFailingAggregator fails every window that starts at failStart.
type windowFailingAggregator struct {
	WindowAggregator
	failStart time.Time
}

func (a windowFailingAggregator) Aggregate(ctx context.Context, symbol string, start, end time.Time) (*models.Candle, error) {
	if start.Equal(a.failStart) {
		return nil, errors.New("store timeout")
	}
	return a.WindowAggregator.Aggregate(ctx, symbol, start, end)
}

func TestRegistryFinalizeFailureDoesNotBlockOthers(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemoryTickStore()
	put(t, store, idx, 50, monday(loc, 9, 46, 0))
	agg := windowFailingAggregator{WindowAggregator: NewCandleAggregator(store, idx), failStart: monday(loc, 9, 30, 0)}
	r := newRegistry(t,
		config.SessionConfig{Name: "Morning Opening", Start: "09:30", End: "09:35"},
		config.SessionConfig{Name: "Mid Morning", Start: "09:45", End: "09:55"},
	)

	now := monday(loc, 10, 0, 0)
	r.EnsureDay(now)
	_, err := r.Advance(context.Background(), now, agg, nil)
	if err == nil {
		t.Fatalf("expected the failed final pass to be reported")
	}
	if s := r.Get("Morning Opening"); s.Status != models.SessionActive {
		t.Fatalf("failed session must stay ACTIVE, got %s", s.Status)
	}
	if s := r.Get("Mid Morning"); s.Status != models.SessionCompleted || s.LevelsFor(idx) == nil {
		t.Fatalf("later session must still complete, got %+v", s)
	}

	agg.failStart = time.Time{}
	if _, err := r.Advance(context.Background(), now.Add(time.Second), agg, nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s := r.Get("Morning Opening"); s.Status != models.SessionCompleted {
		t.Fatalf("session must complete on the next call, got %s", s.Status)
	}
}
