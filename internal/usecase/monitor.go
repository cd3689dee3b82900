package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
	domsvc "NiftyPulse/internal/domain/service"
	"NiftyPulse/internal/service/clock"
	"NiftyPulse/internal/service/indicators"
	applogger "NiftyPulse/pkg/logger"
	"NiftyPulse/pkg/util"
)

// MonitorConfig holds the loop timings and detection thresholds.
type MonitorConfig struct {
	Index           string
	Futures         string
	ActiveInterval  time.Duration
	IdleInterval    time.Duration
	CandleWindow    time.Duration
	Staleness       time.Duration
	SweepInterval   time.Duration
	PriceLookback   time.Duration
	VolumeThreshold float64
	Reads           RetryPolicy
}

// MonitorDeps are the collaborators of the monitor.
type MonitorDeps struct {
	Clock     clock.Clock
	Market    *clock.Market
	Registry  *SessionRegistry
	Ticks     domrepo.TickStore
	Signals   domrepo.SignalStore
	Sink      domrepo.Broadcaster
	Metrics   domrepo.Metrics
	Generator *SignalGenerator
	Active    *ActiveSignals
	History   *CandleHistory
	Gate      *Gate
	Logger    *applogger.Logger
}

// Monitor is the single cooperative loop driving detection: it aggregates candles,
// advances sessions, evaluates completed sessions and expires stale signals.
// Everything mutable is owned by the loop goroutine; readers get snapshots.
type Monitor struct {
	cfg      MonitorConfig
	clock    clock.Clock
	market   *clock.Market
	registry *SessionRegistry
	agg      WindowAggregator
	history  *CandleHistory
	prices   *PriceResolver
	eval     *Evaluator
	gate     *Gate
	gen      *SignalGenerator
	active   *ActiveSignals
	signals  domrepo.SignalStore
	sink     domrepo.Broadcaster
	metrics  domrepo.Metrics
	l        *applogger.Logger

	snapshot   atomic.Pointer[[]models.TradingSession]
	lastRun    atomic.Pointer[time.Time]
	iterations atomic.Int64
	lastSweep  time.Time
	loaded     string

	mu      sync.Mutex
	base    context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

var _ domsvc.SignalService = (*Monitor)(nil)

func NewMonitor(cfg MonitorConfig, d MonitorDeps) *Monitor {
	l := d.Logger
	if l == nil {
		l = applogger.NewNop()
	}
	history := d.History
	if history == nil {
		history = NewCandleHistory(100)
	}
	m := &Monitor{
		cfg:      cfg,
		clock:    d.Clock,
		market:   d.Market,
		registry: d.Registry,
		agg:      retryingAggregator{agg: NewCandleAggregator(d.Ticks, cfg.Index), policy: cfg.Reads},
		history:  history,
		prices:   NewPriceResolver(d.Ticks, history, cfg.Index, cfg.PriceLookback),
		eval:     NewEvaluator(cfg.Index, cfg.Futures),
		gate:     d.Gate,
		gen:      d.Generator,
		active:   d.Active,
		signals:  d.Signals,
		sink:     d.Sink,
		metrics:  d.Metrics,
		l:        l.With(applogger.String("component", "monitor")),
	}
	m.registry.EnsureDay(m.clock.Now())
	m.publishSessions()
	return m
}

// Run starts monitoring and blocks until ctx is cancelled. ctx also serves as the
// parent of loops started later through StartMonitoring.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	m.base = ctx
	m.mu.Unlock()
	m.StartMonitoring()
	<-ctx.Done()
	m.StopMonitoring()
	return nil
}

// StartMonitoring launches the loop unless it is already running.
func (m *Monitor) StartMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	base := m.base
	if base == nil {
		base = context.Background()
	}
	if base.Err() != nil {
		return false
	}
	ctx, cancel := context.WithCancel(base)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx, m.done)
	m.l.Info("monitoring started")
	return true
}

// StopMonitoring cancels the loop and waits for the current iteration to finish.
// Writes already in flight complete on their own detached contexts.
func (m *Monitor) StopMonitoring() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.l.Info("monitoring stopped")
	return true
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		interval := m.Iterate(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Iterate runs one loop iteration and returns the delay before the next one.
// It never panics or fails; problems are logged and the cycle is skipped.
func (m *Monitor) Iterate(ctx context.Context) (next time.Duration) {
	now := m.clock.Now()
	started := time.Now()
	next = m.cfg.IdleInterval
	defer func() {
		if r := recover(); r != nil {
			m.metrics.RecordError("monitor_panic")
			m.l.Error("monitor iteration panicked", applogger.Any("panic", r))
		}
		m.publishSessions()
		m.iterations.Add(1)
		m.lastRun.Store(&now)
		m.metrics.RecordLatency("monitor_iteration", time.Since(started).Seconds())
	}()

	if m.registry.EnsureDay(now) {
		m.history.Reset()
		m.l.Info("new trading day, sessions reset", applogger.String("trading_day", m.registry.Day()))
	}
	m.ensureLoaded(ctx)
	m.sweep(ctx, now)

	if !m.market.IsOpen(now) {
		m.l.Debug("market closed, skipping iteration", applogger.Time("now", now))
		return next
	}
	next = m.cfg.ActiveInterval
	if err := m.step(ctx, now); err != nil {
		m.metrics.RecordError("monitor_iteration")
		m.l.Error("monitor iteration skipped", applogger.Error(err))
	}
	return next
}

// ensureLoaded reloads every ACTIVE signal once per trading day, earlier days
// included, and forces the next sweep so leftovers past staleness expire now.
func (m *Monitor) ensureLoaded(ctx context.Context) {
	day := m.registry.Day()
	if m.loaded == day {
		return
	}
	if err := m.gen.LoadActive(ctx, ""); err != nil {
		m.metrics.RecordError("signal_load")
		m.l.Warn("loading active signals failed", applogger.Error(err))
		return
	}
	m.loaded = day
	m.lastSweep = time.Time{}
	m.l.Info("active signals loaded", applogger.String("trading_day", day), applogger.Int("count", m.active.Len()))
}

func (m *Monitor) step(ctx context.Context, now time.Time) error {
	latest, err := m.aggregateCurrent(ctx, now)
	if err != nil {
		return err
	}

	transitions, err := m.registry.Advance(ctx, now, m.agg, latest)
	for _, t := range transitions {
		m.onTransition(ctx, t)
	}
	if err != nil {
		m.metrics.RecordError("session_advance")
		m.l.Warn("session advance incomplete", applogger.Error(err))
	}

	return m.evaluateCompleted(ctx, now)
}

// aggregateCurrent builds the current window's candle per instrument and records it.
func (m *Monitor) aggregateCurrent(ctx context.Context, now time.Time) (map[string]*models.Candle, error) {
	start := util.AlignWindow(now, m.cfg.CandleWindow)
	end := start.Add(m.cfg.CandleWindow)
	latest := make(map[string]*models.Candle, 2)
	for _, sym := range []string{m.cfg.Index, m.cfg.Futures} {
		c, err := m.agg.Aggregate(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("aggregate current window: %w", err)
		}
		if c == nil {
			continue
		}
		m.history.Upsert(*c)
		latest[sym] = c
	}
	return latest, nil
}

func (m *Monitor) onTransition(ctx context.Context, t Transition) {
	m.metrics.RecordSessionStatus(t.Session, string(t.To))
	fields := []applogger.Field{
		applogger.String("session", t.Session),
		applogger.String("from", string(t.From)),
		applogger.String("to", string(t.To)),
	}
	if s := m.registry.Get(t.Session); s != nil && t.To == models.SessionCompleted {
		if lv := s.LevelsFor(m.cfg.Index); lv != nil {
			fields = append(fields, applogger.Float64("index_high", lv.High), applogger.Float64("index_low", lv.Low))
		}
	}
	m.l.Info("session transition", fields...)

	s := m.registry.Get(t.Session)
	if s == nil {
		return
	}
	wctx, cancel := detached(ctx, m.cfg.Reads.Timeout)
	defer cancel()
	if err := m.sink.Publish(wctx, models.EventSessionUpdate, s.Clone()); err != nil {
		m.metrics.RecordError("broadcast")
		m.l.Warn("session update publish failed", applogger.String("session", t.Session), applogger.Error(err))
	}
}

// evaluateCompleted runs the breakout table for every COMPLETED session still being watched.
func (m *Monitor) evaluateCompleted(ctx context.Context, now time.Time) error {
	var (
		resolved             bool
		indexPrice, futPrice float64
	)
	for _, s := range m.registry.Sessions() {
		if s.Status != models.SessionCompleted || s.BreakoutsChecked {
			continue
		}
		if s.LevelsFor(m.cfg.Index) == nil {
			s.BreakoutsChecked = true
			m.l.Warn("completed session has no index levels, not watching", applogger.String("session", s.Name))
			continue
		}
		if !resolved {
			var ok bool
			var err error
			indexPrice, futPrice, ok, err = m.currentPrices(ctx, now)
			if err != nil {
				return err
			}
			if !ok {
				m.l.Debug("no live prices, cannot evaluate this cycle")
				return nil
			}
			resolved = true
		}
		m.evaluate(ctx, s, indexPrice, futPrice, now)
	}
	return nil
}

func (m *Monitor) currentPrices(ctx context.Context, now time.Time) (float64, float64, bool, error) {
	var ip, fp float64
	var is, fs PriceSource
	err := m.cfg.Reads.Do(ctx, func(ctx context.Context) error {
		var err error
		if ip, is, err = m.prices.Current(ctx, m.cfg.Index, now); err != nil {
			return err
		}
		fp, fs, err = m.prices.Current(ctx, m.cfg.Futures, now)
		return err
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("resolve prices: %w", err)
	}
	if is == SourceNone || fs == SourceNone {
		return 0, 0, false, nil
	}
	if fs != SourceTick {
		m.l.Debug("futures price from fallback", applogger.String("source", string(fs)))
	}
	return ip, fp, true, nil
}

func (m *Monitor) evaluate(ctx context.Context, s *models.TradingSession, indexPrice, futPrice float64, now time.Time) {
	ev, ok := m.eval.Evaluate(s, indexPrice, futPrice)
	if !ok || ev.Outcome == OutcomeNone || s.Emitted[ev.Type] {
		return
	}

	idx := m.history.Series(m.cfg.Index)
	fut := m.history.Series(m.cfg.Futures)
	dayOpen := m.market.DayOpen(now)
	in := SignalInput{
		Session:        s,
		Eval:           ev,
		IndexPrice:     indexPrice,
		FuturesPrice:   futPrice,
		Now:            now,
		IndexCandles:   idx,
		FuturesCandles: fut,
		IndexVWAP:      indicators.VWAP(idx, dayOpen),
		FuturesVWAP:    indicators.VWAP(fut, dayOpen),
		VolumeOK:       indicators.VolumeConfirmed(idx, fut, m.cfg.VolumeThreshold),
	}
	if allowed, why := m.gate.Allow(ev.Type, Confirmation{
		IndexVWAP:    in.IndexVWAP,
		FuturesVWAP:  in.FuturesVWAP,
		VolumeOK:     in.VolumeOK,
		IndexPrice:   indexPrice,
		FuturesPrice: futPrice,
	}); !allowed {
		m.l.Debug("signal vetoed by confirmation gate", applogger.String("session", s.Name), applogger.String("type", string(ev.Type)), applogger.String("why", why))
		return
	}

	sig, err := m.gen.Generate(ctx, in)
	if err != nil {
		m.l.Error("signal generation failed", applogger.String("session", s.Name), applogger.Error(err))
		return
	}
	if sig == nil {
		s.Emitted[ev.Type] = true
	}
	if s.Emitted[models.BuyCall] && s.Emitted[models.BuyPut] {
		s.BreakoutsChecked = true
	}
}

func (m *Monitor) sweep(ctx context.Context, now time.Time) {
	if !m.lastSweep.IsZero() && now.Sub(m.lastSweep) < m.cfg.SweepInterval {
		return
	}
	m.lastSweep = now
	if n := m.gen.ExpireStale(ctx, now, m.cfg.Staleness); n > 0 {
		m.l.Info("stale signals expired", applogger.Int("count", n))
	}
}

func (m *Monitor) publishSessions() {
	snap := m.registry.Snapshot()
	m.snapshot.Store(&snap)
}

// GetActiveSignals reads today's ACTIVE signals from the store, falling back to the
// in-memory set when the store is unavailable.
func (m *Monitor) GetActiveSignals(ctx context.Context) ([]models.Signal, error) {
	day := m.market.TradingDay(m.clock.Now())
	var out []models.Signal
	err := m.cfg.Reads.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = m.signals.ListActive(ctx, day)
		return err
	})
	if err != nil {
		m.l.Warn("active signals from store failed, serving memory", applogger.Error(err))
		return m.active.Snapshot(), nil
	}
	return out, nil
}

// GetSignalHistory returns the newest signals, any status.
func (m *Monitor) GetSignalHistory(ctx context.Context, limit int) ([]models.Signal, error) {
	var out []models.Signal
	err := m.cfg.Reads.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = m.signals.ListRecent(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("signal history: %w", err)
	}
	return out, nil
}

// GetSessionStatus returns the sessions as of the last iteration.
func (m *Monitor) GetSessionStatus(context.Context) []models.TradingSession {
	return *m.snapshot.Load()
}

func (m *Monitor) Status() domsvc.MonitorStatus {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	now := m.clock.Now()
	st := domsvc.MonitorStatus{
		Running:       running,
		MarketOpen:    m.market.IsOpen(now),
		TradingDay:    m.market.TradingDay(now),
		Iterations:    m.iterations.Load(),
		ActiveSignals: m.active.Len(),
		Now:           now,
	}
	if t := m.lastRun.Load(); t != nil {
		st.LastIteration = *t
	}
	return st
}
