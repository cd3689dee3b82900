package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/service/clock"
	"NiftyPulse/pkg/config"
	"NiftyPulse/pkg/util"
)

type sessionDef struct {
	name       string
	start, end time.Duration
}

// WindowAggregator builds the candle of a symbol over [start, end).
type WindowAggregator interface {
	Aggregate(ctx context.Context, symbol string, start, end time.Time) (*models.Candle, error)
}

// Transition is one status change made by Advance.
type Transition struct {
	Session string               `json:"session"`
	From    models.SessionStatus `json:"from"`
	To      models.SessionStatus `json:"to"`
}

// SessionRegistry owns the trading sessions of the current day and drives their
// PENDING -> ACTIVE -> COMPLETED lifecycle. It is not safe for concurrent use; the
// monitor is its only writer and hands out clones to readers.
type SessionRegistry struct {
	defs     []sessionDef
	market   *clock.Market
	symbols  []string
	day      string
	sessions []*models.TradingSession
}

// NewSessionRegistry validates the windows and orders them by start.
func NewSessionRegistry(cfgs []config.SessionConfig, market *clock.Market, symbols ...string) (*SessionRegistry, error) {
	if err := config.ValidateSessions(cfgs); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("session registry: no symbols")
	}
	defs := make([]sessionDef, 0, len(cfgs))
	for _, c := range cfgs {
		start, _ := util.ParseClock(c.Start)
		end, _ := util.ParseClock(c.End)
		defs = append(defs, sessionDef{name: c.Name, start: start, end: end})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].start < defs[j].start })
	return &SessionRegistry{defs: defs, market: market, symbols: symbols}, nil
}

// Day returns the trading day the sessions belong to, "" before the first reset.
func (r *SessionRegistry) Day() string { return r.day }

// EnsureDay resets all sessions to PENDING when now falls on a new trading day.
// It reports whether a reset happened.
func (r *SessionRegistry) EnsureDay(now time.Time) bool {
	day := r.market.TradingDay(now)
	if day == r.day {
		return false
	}
	r.day = day
	r.sessions = make([]*models.TradingSession, 0, len(r.defs))
	for _, d := range r.defs {
		r.sessions = append(r.sessions, &models.TradingSession{
			Name:       d.name,
			TradingDay: day,
			Start:      r.market.At(now, d.start),
			End:        r.market.At(now, d.end),
			Status:     models.SessionPending,
			Levels:     make(map[string]*models.SessionLevels, len(r.symbols)),
			Emitted:    make(map[models.SignalType]bool, 2),
		})
	}
	return true
}

// Sessions returns the live sessions. Callers outside the monitor must use Snapshot.
func (r *SessionRegistry) Sessions() []*models.TradingSession { return r.sessions }

// Get returns the live session called name, or nil.
func (r *SessionRegistry) Get(name string) *models.TradingSession {
	for _, s := range r.sessions {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Snapshot returns deep copies of all sessions.
func (r *SessionRegistry) Snapshot() []models.TradingSession {
	out := make([]models.TradingSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// Advance moves every session as far along its lifecycle as now allows. A session
// whose window passed entirely cascades to COMPLETED in one call. ACTIVE sessions
// fold the latest candles; completing sessions recompute their levels over the
// whole window. A failed final pass leaves that session ACTIVE for the next call
// while the remaining sessions still advance.
func (r *SessionRegistry) Advance(ctx context.Context, now time.Time, agg WindowAggregator, latest map[string]*models.Candle) ([]Transition, error) {
	var (
		out  []Transition
		errs []error
	)
	for _, s := range r.sessions {
		if s.Status == models.SessionPending && !now.Before(s.Start) {
			out = append(out, r.move(s, models.SessionActive))
		}
		if s.Status != models.SessionActive {
			continue
		}
		if !now.After(s.End) {
			for _, sym := range r.symbols {
				if c := latest[sym]; c != nil {
					foldLevels(s, sym, *c)
				}
			}
			continue
		}
		if err := r.finalize(ctx, s, agg); err != nil {
			errs = append(errs, fmt.Errorf("finalize session %q: %w", s.Name, err))
			continue
		}
		out = append(out, r.move(s, models.SessionCompleted))
	}
	return out, errors.Join(errs...)
}

func (r *SessionRegistry) move(s *models.TradingSession, to models.SessionStatus) Transition {
	t := Transition{Session: s.Name, From: s.Status, To: to}
	if s.Status.CanAdvanceTo(to) {
		s.Status = to
	}
	return t
}

// finalize replaces the running levels with the full-window candle of each symbol.
// Symbols without any ticks keep whatever the live fold recorded.
func (r *SessionRegistry) finalize(ctx context.Context, s *models.TradingSession, agg WindowAggregator) error {
	for _, sym := range r.symbols {
		c, err := agg.Aggregate(ctx, sym, s.Start, s.End)
		if err != nil {
			return err
		}
		if c == nil {
			continue
		}
		s.Levels[sym] = &models.SessionLevels{High: c.High, Low: c.Low, TickCount: c.TickCount}
	}
	return nil
}

func foldLevels(s *models.TradingSession, symbol string, c models.Candle) {
	lv := s.Levels[symbol]
	if lv == nil {
		s.Levels[symbol] = &models.SessionLevels{High: c.High, Low: c.Low, TickCount: c.TickCount}
		return
	}
	lv.Fold(c)
	if c.TickCount > lv.TickCount {
		lv.TickCount = c.TickCount
	}
}
