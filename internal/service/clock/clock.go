package clock

import (
	"fmt"
	"sync"
	"time"

	"NiftyPulse/pkg/config"
	"NiftyPulse/pkg/util"
)

// DayLayout formats trading days.
const DayLayout = "2006-01-02"

// Clock returns the current time in the home timezone.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock and converts it to loc.
type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) *SystemClock {
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time { return time.Now().In(c.loc) }

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(t time.Time) *Manual { return &Manual{now: t} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Market is the trading calendar: open and close times on trading weekdays.
type Market struct {
	loc   *time.Location
	open  time.Duration
	close time.Duration
	days  map[time.Weekday]bool
}

// NewMarket builds a calendar from config. Times outside loc are converted at the boundary.
func NewMarket(cfg config.MarketConfig) (*Market, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	open, err := util.ParseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	closeAt, err := util.ParseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("market close: %w", err)
	}
	days, err := util.ParseWeekdays(cfg.TradingDays)
	if err != nil {
		return nil, err
	}
	return &Market{loc: loc, open: open, close: closeAt, days: days}, nil
}

func (m *Market) Location() *time.Location { return m.loc }

// IsOpen reports whether t falls within trading hours, both bounds inclusive.
func (m *Market) IsOpen(t time.Time) bool {
	t = t.In(m.loc)
	if !m.days[t.Weekday()] {
		return false
	}
	offset := t.Sub(util.Midnight(t))
	return offset >= m.open && offset <= m.close
}

// TradingDay returns t's calendar date in the home timezone.
func (m *Market) TradingDay(t time.Time) string {
	return t.In(m.loc).Format(DayLayout)
}

// At returns the instant at offset from midnight of t's home-timezone day.
func (m *Market) At(t time.Time, offset time.Duration) time.Time {
	return util.Midnight(t.In(m.loc)).Add(offset)
}

// DayOpen returns the market open on t's day.
func (m *Market) DayOpen(t time.Time) time.Time {
	return m.At(t, m.open)
}
