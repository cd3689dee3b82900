package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"NiftyPulse/internal/domain"
	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
	"NiftyPulse/internal/service/indicators"
	"NiftyPulse/pkg/cache"
	applogger "NiftyPulse/pkg/logger"
)

const (
	baseConfidence   = 50
	vwapBonus        = 20
	volumeBonus      = 15
	peakHourBonus    = 10
	minConfidence    = 30
	maxConfidence    = 95
	signalTimeLayout = "150405"
)

// SignalInput carries everything needed to build a signal for one evaluation.
type SignalInput struct {
	Session      *models.TradingSession
	Eval         Evaluation
	IndexPrice   float64
	FuturesPrice float64
	Now          time.Time

	IndexCandles   []models.Candle
	FuturesCandles []models.Candle
	IndexVWAP      *float64
	FuturesVWAP    *float64
	VolumeOK       bool
}

// ConfidenceConfig sets the peak trading window, in home-timezone hours inclusive.
type ConfidenceConfig struct {
	PeakHourStart int
	PeakHourEnd   int
}

// Confidence scores a signal in [30, 95].
func Confidence(in SignalInput, cfg ConfidenceConfig) int {
	score := baseConfidence
	if vwapFavorable(in) {
		score += vwapBonus
	}
	if in.VolumeOK {
		score += volumeBonus
	}
	if h := in.Now.Hour(); h >= cfg.PeakHourStart && h <= cfg.PeakHourEnd {
		score += peakHourBonus
	}
	return min(maxConfidence, max(minConfidence, score))
}

func vwapFavorable(in SignalInput) bool {
	if in.IndexVWAP == nil || in.FuturesVWAP == nil {
		return false
	}
	iv, fv := *in.IndexVWAP, *in.FuturesVWAP
	if in.Eval.Type == models.BuyCall {
		return in.IndexPrice > iv && in.FuturesPrice > fv
	}
	return in.IndexPrice < iv && in.FuturesPrice < fv
}

// Levels returns stop-loss and targets for typ from the session range, rounded to 2 places.
func Levels(typ models.SignalType, entry, high, low float64) (stop, t1, t2 float64) {
	r := high - low
	if typ == models.BuyCall {
		return indicators.Round(low, 2), indicators.Round(entry+r/2, 2), indicators.Round(entry+r, 2)
	}
	return indicators.Round(high, 2), indicators.Round(entry-r/2, 2), indicators.Round(entry-r, 2)
}

// SignalID is "<session>_<TYPE>_<HHMMSS>_<microseconds>".
func SignalID(session string, typ models.SignalType, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d", session, typ, at.Format(signalTimeLayout), at.Nanosecond()/1000)
}

// DisplayText describes which instrument broke which level and by how much.
func DisplayText(typ models.SignalType, ev Evaluation, session string) string {
	ia, fa := math.Abs(ev.Index.Amount), math.Abs(ev.Futures.Amount)
	i, f := ev.Index, ev.Futures
	if typ == models.BuyCall {
		switch {
		case i.BreaksHigh && f.BreaksHigh:
			return fmt.Sprintf("BULLISH BREAKOUT - Both crossed session high (NIFTY +%.2f, Future +%.2f)", ia, fa)
		case i.BreaksLow && !f.BreaksLow:
			return fmt.Sprintf("DIVERGENT BREAKOUT - Only NIFTY broke session low (-%.2f), Future held", ia)
		case f.BreaksLow && !i.BreaksLow:
			return fmt.Sprintf("DIVERGENT BREAKOUT - Only Future broke session low (-%.2f), NIFTY held", fa)
		}
		return fmt.Sprintf("CALL Signal - %s breakout detected", session)
	}
	switch {
	case i.BreaksLow && f.BreaksLow:
		return fmt.Sprintf("BEARISH BREAKOUT - Both broke session low (NIFTY -%.2f, Future -%.2f)", ia, fa)
	case i.BreaksHigh && !f.BreaksHigh:
		return fmt.Sprintf("DIVERGENT BREAKOUT - Only NIFTY broke session high (+%.2f), Future held", ia)
	case f.BreaksHigh && !i.BreaksHigh:
		return fmt.Sprintf("DIVERGENT BREAKOUT - Only Future broke session high (+%.2f), NIFTY held", fa)
	}
	return fmt.Sprintf("PUT Signal - %s breakout detected", session)
}

// BuildSignal computes a complete ACTIVE signal. It has no side effects.
func BuildSignal(in SignalInput, cfg ConfidenceConfig) models.Signal {
	typ := in.Eval.Type
	il, fl := in.Eval.IndexLevels, in.Eval.FuturesLevels
	entry := indicators.Round(in.IndexPrice, 2)
	stop, t1, t2 := Levels(typ, entry, il.High, il.Low)

	var lastFut *models.Candle
	if n := len(in.FuturesCandles); n > 0 {
		c := in.FuturesCandles[n-1]
		lastFut = &c
	}

	return models.Signal{
		ID:           SignalID(in.Session.Name, typ, in.Now),
		TradingDay:   in.Session.TradingDay,
		SessionName:  in.Session.Name,
		SignalType:   typ,
		EntryPrice:   entry,
		StopLoss:     stop,
		Target1:      t1,
		Target2:      t2,
		Confidence:   Confidence(in, cfg),
		Status:       models.SignalActive,
		SessionHigh:  il.High,
		SessionLow:   il.Low,
		IndexPrice:   in.IndexPrice,
		FuturesPrice: in.FuturesPrice,
		FuturesHigh:  fl.High,
		FuturesLow:   fl.Low,
		Reason:       in.Eval.Reason,
		DisplayText:  DisplayText(typ, in.Eval, in.Session.Name),
		Details: models.SignalDetails{
			IndexBreakout:   in.Eval.Index,
			FuturesBreakout: in.Eval.Futures,
			Sentiment:       indicators.Sentiment(in.IndexPrice, in.FuturesPrice, il.High, il.Low),
			Correlation:     indicators.Correlation(in.IndexCandles, in.FuturesCandles),
			VolatilityIndex: indicators.VolatilityIndex(in.IndexCandles),
			IndexVWAP:       roundPtr(in.IndexVWAP),
			FuturesVWAP:     roundPtr(in.FuturesVWAP),
			FuturesCandle:   indicators.Stats(lastFut),
		},
		CreatedAt: in.Now,
		UpdatedAt: in.Now,
	}
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := indicators.Round(*v, 2)
	return &r
}

// SignalGenerator turns evaluations into persisted, broadcast signals, at most one
// per trading day, session and direction.
type SignalGenerator struct {
	store   domrepo.SignalStore
	sink    domrepo.Broadcaster
	metrics domrepo.Metrics
	l       *applogger.Logger
	active  *ActiveSignals
	claims  cache.Service
	cfg     ConfidenceConfig

	claimTTL     time.Duration
	writeTimeout time.Duration
	reads        RetryPolicy
}

type GeneratorOption func(*SignalGenerator)

// WithClaims adds a fast-path claim of each natural key before insert.
func WithClaims(c cache.Service, ttl time.Duration) GeneratorOption {
	return func(g *SignalGenerator) {
		g.claims = c
		if ttl > 0 {
			g.claimTTL = ttl
		}
	}
}

// WithWriteTimeout bounds persistence and broadcast calls.
func WithWriteTimeout(d time.Duration) GeneratorOption {
	return func(g *SignalGenerator) { g.writeTimeout = d }
}

// WithReadPolicy sets the retry policy of the existence check.
func WithReadPolicy(p RetryPolicy) GeneratorOption {
	return func(g *SignalGenerator) { g.reads = p }
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *applogger.Logger) GeneratorOption {
	return func(g *SignalGenerator) {
		if l != nil {
			g.l = l
		}
	}
}

func NewSignalGenerator(store domrepo.SignalStore, sink domrepo.Broadcaster, metrics domrepo.Metrics, active *ActiveSignals, cfg ConfidenceConfig, opts ...GeneratorOption) *SignalGenerator {
	g := &SignalGenerator{
		store:        store,
		sink:         sink,
		metrics:      metrics,
		active:       active,
		cfg:          cfg,
		l:            applogger.NewNop(),
		claimTTL:     24 * time.Hour,
		writeTimeout: 5 * time.Second,
		reads:        RetryPolicy{Attempts: 1},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.l = g.l.With(applogger.String("component", "signal_generator"))
	return g
}

// Generate persists and broadcasts a signal for in. It returns nil, nil when the
// signal already exists; only unexpected persistence failures are errors.
func (g *SignalGenerator) Generate(ctx context.Context, in SignalInput) (*models.Signal, error) {
	if !in.Eval.Type.Valid() {
		return nil, fmt.Errorf("generate: invalid signal type %q", in.Eval.Type)
	}
	key := models.SignalKey{TradingDay: in.Session.TradingDay, SessionName: in.Session.Name, SignalType: in.Eval.Type}

	if g.active.Has(key) {
		g.duplicate(key, "memory")
		return nil, nil
	}
	var exists bool
	if err := g.reads.Do(ctx, func(ctx context.Context) error {
		var err error
		exists, err = g.store.Exists(ctx, key)
		return err
	}); err != nil {
		return nil, fmt.Errorf("generate: exists %s: %w", key, err)
	}
	if exists {
		g.duplicate(key, "store")
		return nil, nil
	}

	claimKey := cache.GenerateKey("signal", key.TradingDay, key.SessionName, key.SignalType)
	claimed := false
	if g.claims != nil {
		ok, err := g.claims.TryLock(ctx, claimKey, g.claimTTL)
		switch {
		case err != nil:
			g.l.Warn("signal claim failed, relying on store", applogger.String("key", key.String()), applogger.Error(err))
		case !ok:
			g.duplicate(key, "claim")
			return nil, nil
		default:
			claimed = true
		}
	}

	sig := BuildSignal(in, g.cfg)

	wctx, cancel := detached(ctx, g.writeTimeout)
	defer cancel()

	if err := g.store.Insert(wctx, &sig); err != nil {
		if errors.Is(err, domain.ErrDuplicateSignal) {
			g.duplicate(key, "insert")
			return nil, nil
		}
		if claimed {
			if uerr := g.claims.Unlock(wctx, claimKey); uerr != nil {
				g.l.Warn("release signal claim failed", applogger.String("key", key.String()), applogger.Error(uerr))
			}
		}
		g.metrics.RecordError("signal_insert")
		return nil, fmt.Errorf("generate: insert %s: %w", sig.ID, err)
	}

	g.replaceOpposite(wctx, key, in.Now)
	g.active.Put(sig)
	in.Session.Emitted[sig.SignalType] = true
	g.metrics.RecordSignal(sig.SessionName, string(sig.SignalType))

	if err := g.sink.Publish(wctx, models.EventNewSignal, sig); err != nil {
		g.metrics.RecordError("broadcast")
		g.l.Warn("signal publish failed", applogger.String("signal_id", sig.ID), applogger.Error(err))
	}
	g.l.Info("signal generated",
		applogger.String("signal_id", sig.ID),
		applogger.String("session", sig.SessionName),
		applogger.String("type", string(sig.SignalType)),
		applogger.Float64("entry", sig.EntryPrice),
		applogger.Int("confidence", sig.Confidence),
		applogger.String("reason", sig.Reason),
	)
	return &sig, nil
}

// replaceOpposite marks the session's earlier ACTIVE signal of the other direction REPLACED.
func (g *SignalGenerator) replaceOpposite(ctx context.Context, key models.SignalKey, now time.Time) {
	opp := key
	opp.SignalType = key.SignalType.Opposite()
	prev := g.active.Find(opp)
	if prev == nil {
		return
	}
	g.setStatus(ctx, *prev, models.SignalReplaced, now)
}

// setStatus persists a status change, drops the signal from the active set and broadcasts it.
func (g *SignalGenerator) setStatus(ctx context.Context, s models.Signal, status models.SignalStatus, now time.Time) {
	if err := g.store.UpdateStatus(ctx, s.ID, status, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
		g.metrics.RecordError("signal_update")
		g.l.Error("signal status update failed", applogger.String("signal_id", s.ID), applogger.String("status", string(status)), applogger.Error(err))
	}
	g.active.Remove(s.ID)
	if err := g.sink.Publish(ctx, models.EventSignalUpdate, models.SignalUpdate{ID: s.ID, Status: status, At: now}); err != nil {
		g.metrics.RecordError("broadcast")
		g.l.Warn("signal update publish failed", applogger.String("signal_id", s.ID), applogger.Error(err))
	}
	g.l.Info("signal status changed", applogger.String("signal_id", s.ID), applogger.String("status", string(status)))
}

// ExpireStale marks ACTIVE signals older than staleness EXPIRED and returns how many.
func (g *SignalGenerator) ExpireStale(ctx context.Context, now time.Time, staleness time.Duration) int {
	stale := g.active.OlderThan(now.Add(-staleness))
	if len(stale) == 0 {
		return 0
	}
	wctx, cancel := detached(ctx, g.writeTimeout)
	defer cancel()
	for _, s := range stale {
		g.setStatus(wctx, s, models.SignalExpired, now)
	}
	return len(stale)
}

// LoadActive fills the active set with the ACTIVE signals of tradingDay from the
// store. An empty tradingDay loads every day.
func (g *SignalGenerator) LoadActive(ctx context.Context, tradingDay string) error {
	var signals []models.Signal
	err := g.reads.Do(ctx, func(ctx context.Context) error {
		var err error
		signals, err = g.store.ListActive(ctx, tradingDay)
		return err
	})
	if err != nil {
		return fmt.Errorf("load active signals: %w", err)
	}
	g.active.Reset(signals)
	return nil
}

func (g *SignalGenerator) duplicate(key models.SignalKey, where string) {
	g.metrics.RecordDuplicateSignal(key.SessionName)
	g.l.Warn("duplicate signal suppressed", applogger.String("key", key.String()), applogger.String("guard", where))
}
