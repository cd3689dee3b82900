package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"NiftyPulse/internal/domain"
	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
)

// MemorySignalStore enforces the same natural key as the Postgres store.
type MemorySignalStore struct {
	mu    sync.RWMutex
	byKey map[models.SignalKey]string
	byID  map[string]*models.Signal
	order []string
}

var _ domrepo.SignalStore = (*MemorySignalStore)(nil)

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{
		byKey: make(map[models.SignalKey]string),
		byID:  make(map[string]*models.Signal),
	}
}

func (s *MemorySignalStore) Insert(_ context.Context, sig *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sig.Key()
	if _, ok := s.byKey[key]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSignal, key)
	}
	if _, ok := s.byID[sig.ID]; ok {
		return fmt.Errorf("%w: id %s", domain.ErrDuplicateSignal, sig.ID)
	}
	cp := *sig
	s.byKey[key] = sig.ID
	s.byID[sig.ID] = &cp
	s.order = append(s.order, sig.ID)
	return nil
}

func (s *MemorySignalStore) Exists(_ context.Context, key models.SignalKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKey[key]
	return ok, nil
}

func (s *MemorySignalStore) UpdateStatus(_ context.Context, id string, status models.SignalStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	sig.Status = status
	sig.UpdatedAt = at
	return nil
}

func (s *MemorySignalStore) ListActive(_ context.Context, tradingDay string) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, 0)
	for _, id := range s.order {
		sig := s.byID[id]
		if sig.Status != models.SignalActive {
			continue
		}
		if tradingDay != "" && sig.TradingDay != tradingDay {
			continue
		}
		out = append(out, *sig)
	}
	return out, nil
}

func (s *MemorySignalStore) ListRecent(_ context.Context, limit int) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Signal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySignalStore) Close() error { return nil }
