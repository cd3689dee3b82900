package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
)

// CandleAggregator builds OHLCV candles from the tick store.
// Symbols other than the index fall back to the index series when they have no ticks.
type CandleAggregator struct {
	ticks domrepo.TickStore
	index string
}

func NewCandleAggregator(ticks domrepo.TickStore, index string) *CandleAggregator {
	return &CandleAggregator{ticks: ticks, index: index}
}

// Aggregate returns the candle of symbol over [start, end), or nil when neither
// symbol nor its proxy has ticks in range.
func (a *CandleAggregator) Aggregate(ctx context.Context, symbol string, start, end time.Time) (*models.Candle, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("aggregate %s: empty window %s..%s", symbol, start, end)
	}
	ticks, err := a.ticks.QueryRange(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", symbol, err)
	}
	if len(ticks) > 0 {
		return BuildCandle(symbol, start, ticks), nil
	}
	if symbol == a.index {
		return nil, nil
	}
	ticks, err = a.ticks.QueryRange(ctx, a.index, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s via %s: %w", symbol, a.index, err)
	}
	if len(ticks) == 0 {
		return nil, nil
	}
	c := BuildCandle(symbol, start, ticks)
	c.Proxy = true
	return c, nil
}

// BuildCandle folds ordered ticks into a candle. Returns nil for no ticks.
func BuildCandle(symbol string, windowStart time.Time, ticks []models.Tick) *models.Candle {
	if len(ticks) == 0 {
		return nil
	}
	c := &models.Candle{
		Symbol:      symbol,
		WindowStart: windowStart,
		Open:        ticks[0].Price,
		Close:       ticks[len(ticks)-1].Price,
		High:        math.Inf(-1),
		Low:         math.Inf(1),
		TickCount:   len(ticks),
	}
	for _, t := range ticks {
		c.High = math.Max(c.High, t.Price)
		c.Low = math.Min(c.Low, t.Price)
		c.Volume += t.Volume
	}
	return c
}

// CandleHistory keeps a bounded, per-symbol series of candles ordered by window start.
type CandleHistory struct {
	mu   sync.RWMutex
	max  int
	data map[string][]models.Candle
}

func NewCandleHistory(max int) *CandleHistory {
	if max <= 0 {
		max = 100
	}
	return &CandleHistory{max: max, data: make(map[string][]models.Candle)}
}

// Upsert replaces the last candle when it covers the same window, otherwise appends
// and evicts the oldest beyond capacity.
func (h *CandleHistory) Upsert(c models.Candle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	series := h.data[c.Symbol]
	if n := len(series); n > 0 {
		last := series[n-1]
		if last.WindowStart.Equal(c.WindowStart) {
			series[n-1] = c
			return
		}
		if c.WindowStart.Before(last.WindowStart) {
			return
		}
	}
	series = append(series, c)
	if len(series) > h.max {
		series = append(series[:0:0], series[len(series)-h.max:]...)
	}
	h.data[c.Symbol] = series
}

// Series returns a copy of the candles of symbol, oldest first.
func (h *CandleHistory) Series(symbol string) []models.Candle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.Candle(nil), h.data[symbol]...)
}

// Last returns the newest candle of symbol, or nil.
func (h *CandleHistory) Last(symbol string) *models.Candle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	series := h.data[symbol]
	if len(series) == 0 {
		return nil
	}
	c := series[len(series)-1]
	return &c
}

// Reset drops all series.
func (h *CandleHistory) Reset() {
	h.mu.Lock()
	h.data = make(map[string][]models.Candle)
	h.mu.Unlock()
}

// retryingAggregator bounds every aggregation with a retry policy.
type retryingAggregator struct {
	agg    WindowAggregator
	policy RetryPolicy
}

func (r retryingAggregator) Aggregate(ctx context.Context, symbol string, start, end time.Time) (*models.Candle, error) {
	var c *models.Candle
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		c, err = r.agg.Aggregate(ctx, symbol, start, end)
		return err
	})
	return c, err
}
