package usecase

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"NiftyPulse/internal/domain/models"
)

// ActiveSignals is the in-memory set of ACTIVE signals keyed by natural key. The
// monitor is its only writer; readers get an immutable snapshot without locking.
type ActiveSignals struct {
	mu   sync.Mutex
	byID map[string]*models.Signal
	snap atomic.Pointer[[]models.Signal]
}

func NewActiveSignals() *ActiveSignals {
	a := &ActiveSignals{byID: make(map[string]*models.Signal)}
	a.publishLocked()
	return a
}

// Has reports whether an ACTIVE signal exists for key.
func (a *ActiveSignals) Has(key models.SignalKey) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.byID {
		if s.Key() == key {
			return true
		}
	}
	return false
}

// Find returns the ACTIVE signal for key, or nil.
func (a *ActiveSignals) Find(key models.SignalKey) *models.Signal {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.byID {
		if s.Key() == key {
			cp := *s
			return &cp
		}
	}
	return nil
}

func (a *ActiveSignals) Put(s models.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID[s.ID] = &s
	a.publishLocked()
}

func (a *ActiveSignals) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byID, id)
	a.publishLocked()
}

// OlderThan returns signals created before cutoff.
func (a *ActiveSignals) OlderThan(cutoff time.Time) []models.Signal {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.Signal
	for _, s := range a.byID {
		if s.CreatedAt.Before(cutoff) {
			out = append(out, *s)
		}
	}
	return out
}

// Snapshot returns the ACTIVE signals, newest first.
func (a *ActiveSignals) Snapshot() []models.Signal {
	return *a.snap.Load()
}

func (a *ActiveSignals) Len() int { return len(a.Snapshot()) }

// Reset replaces the set with signals.
func (a *ActiveSignals) Reset(signals []models.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID = make(map[string]*models.Signal, len(signals))
	for i := range signals {
		s := signals[i]
		a.byID[s.ID] = &s
	}
	a.publishLocked()
}

// publishLocked swaps in a fresh snapshot. Caller holds mu.
func (a *ActiveSignals) publishLocked() {
	out := make([]models.Signal, 0, len(a.byID))
	for _, s := range a.byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	a.snap.Store(&out)
}
