package models

import "time"

type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
)

func (s SessionStatus) rank() int {
	switch s {
	case SessionActive:
		return 1
	case SessionCompleted:
		return 2
	default:
		return 0
	}
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s SessionStatus) CanAdvanceTo(next SessionStatus) bool {
	return next.rank() >= s.rank()
}

// SessionLevels are the reference levels accumulated for one instrument.
type SessionLevels struct {
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	TickCount int     `json:"tick_count"`
}

// Fold widens the levels to include c. Returns false when nothing changed.
func (l *SessionLevels) Fold(c Candle) bool {
	changed := false
	if c.High > l.High {
		l.High = c.High
		changed = true
	}
	if c.Low < l.Low {
		l.Low = c.Low
		changed = true
	}
	return changed
}

// TradingSession is one named intraday window for one trading day.
type TradingSession struct {
	Name             string                    `json:"name"`
	TradingDay       string                    `json:"trading_day"`
	Start            time.Time                 `json:"start_time"`
	End              time.Time                 `json:"end_time"`
	Status           SessionStatus             `json:"status"`
	Levels           map[string]*SessionLevels `json:"session_data"`
	BreakoutsChecked bool                      `json:"breakouts_checked"`
	// Emitted records the directions this session already produced a signal for.
	Emitted map[SignalType]bool `json:"emitted,omitempty"`
}

// LevelsFor returns the levels of symbol, or nil if none were recorded.
func (s *TradingSession) LevelsFor(symbol string) *SessionLevels {
	if s.Levels == nil {
		return nil
	}
	return s.Levels[symbol]
}

// Clone returns a deep copy safe to hand to readers.
func (s *TradingSession) Clone() TradingSession {
	out := *s
	out.Levels = make(map[string]*SessionLevels, len(s.Levels))
	for k, v := range s.Levels {
		if v == nil {
			continue
		}
		lv := *v
		out.Levels[k] = &lv
	}
	out.Emitted = make(map[SignalType]bool, len(s.Emitted))
	for k, v := range s.Emitted {
		out.Emitted[k] = v
	}
	return out
}
