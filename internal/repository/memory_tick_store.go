package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
)

// MemoryTickStore keeps ticks per symbol ordered by received_at.
type MemoryTickStore struct {
	mu    sync.RWMutex
	ticks map[string][]models.Tick
}

var _ domrepo.TickStore = (*MemoryTickStore)(nil)

func NewMemoryTickStore() *MemoryTickStore {
	return &MemoryTickStore{ticks: make(map[string][]models.Tick)}
}

func (s *MemoryTickStore) Append(_ context.Context, t *models.Tick) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.ticks[t.Symbol]
	i := sort.Search(len(series), func(i int) bool { return !series[i].ReceivedAt.Before(t.ReceivedAt) })
	for j := i; j < len(series) && series[j].ReceivedAt.Equal(t.ReceivedAt); j++ {
		if series[j].Price == t.Price {
			return false, nil
		}
	}
	// insert after equal timestamps to keep arrival order stable
	for i < len(series) && series[i].ReceivedAt.Equal(t.ReceivedAt) {
		i++
	}
	series = append(series, models.Tick{})
	copy(series[i+1:], series[i:])
	series[i] = *t
	s.ticks[t.Symbol] = series
	return true, nil
}

func (s *MemoryTickStore) QueryRange(_ context.Context, symbol string, start, end time.Time) ([]models.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.ticks[symbol]
	lo := sort.Search(len(series), func(i int) bool { return !series[i].ReceivedAt.Before(start) })
	hi := sort.Search(len(series), func(i int) bool { return !series[i].ReceivedAt.Before(end) })
	if lo >= hi {
		return nil, nil
	}
	out := make([]models.Tick, hi-lo)
	copy(out, series[lo:hi])
	return out, nil
}

func (s *MemoryTickStore) Latest(_ context.Context, symbol string, since time.Time) (*models.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.ticks[symbol]
	if len(series) == 0 {
		return nil, nil
	}
	last := series[len(series)-1]
	if last.ReceivedAt.Before(since) {
		return nil, nil
	}
	return &last, nil
}

func (s *MemoryTickStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for sym, series := range s.ticks {
		i := sort.Search(len(series), func(i int) bool { return !series[i].ReceivedAt.Before(cutoff) })
		if i == 0 {
			continue
		}
		n += int64(i)
		s.ticks[sym] = append([]models.Tick(nil), series[i:]...)
	}
	return n, nil
}

func (s *MemoryTickStore) Close() error { return nil }
