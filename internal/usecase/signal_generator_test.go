package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/repository"
	"NiftyPulse/pkg/cache"
	"NiftyPulse/pkg/metrics"
)

func signalInput(t *testing.T, s *models.TradingSession, ip, fp float64, now time.Time) SignalInput {
	t.Helper()
	ev, ok := NewEvaluator(idx, fut).Evaluate(s, ip, fp)
	if !ok || ev.Outcome == OutcomeNone {
		t.Fatalf("expected a breakout, got %+v", ev)
	}
	return SignalInput{Session: s, Eval: ev, IndexPrice: ip, FuturesPrice: fp, Now: now, VolumeOK: true}
}

func daySession() *models.TradingSession {
	s := completedSession()
	s.TradingDay = "2025-08-04"
	return s
}

func newGenerator(store *repository.MemorySignalStore, opts ...GeneratorOption) (*SignalGenerator, *repository.RecordingBroadcaster) {
	sink := repository.NewRecordingBroadcaster(nil)
	g := NewSignalGenerator(store, sink, metrics.Nop{}, NewActiveSignals(), ConfidenceConfig{PeakHourStart: 10, PeakHourEnd: 14}, opts...)
	return g, sink
}

func TestLevels(t *testing.T) {
	stop, t1, t2 := Levels(models.BuyCall, 105, 100, 90)
	if stop != 90 || t1 != 110 || t2 != 115 {
		t.Fatalf("call levels: %v %v %v", stop, t1, t2)
	}
	stop, t1, t2 = Levels(models.BuyPut, 85, 100, 90)
	if stop != 100 || t1 != 80 || t2 != 75 {
		t.Fatalf("put levels: %v %v %v", stop, t1, t2)
	}
	if t1-85 != t2-t1 {
		t.Fatalf("targets must be equally spaced")
	}
}

func TestConfidence(t *testing.T) {
	loc := time.UTC
	cfg := ConfidenceConfig{PeakHourStart: 10, PeakHourEnd: 14}
	iv, fv := 100.0, 200.0
	call := SignalInput{Eval: Evaluation{Type: models.BuyCall}, IndexPrice: 101, FuturesPrice: 201}

	in := call
	in.Now = time.Date(2025, 8, 4, 9, 40, 0, 0, loc)
	if got := Confidence(in, cfg); got != 50 {
		t.Fatalf("bare confidence: %d", got)
	}
	in.IndexVWAP, in.FuturesVWAP, in.VolumeOK = &iv, &fv, true
	in.Now = time.Date(2025, 8, 4, 14, 59, 0, 0, loc)
	if got := Confidence(in, cfg); got != 95 {
		t.Fatalf("full confidence: %d", got)
	}
	in.FuturesVWAP = nil
	if got := Confidence(in, cfg); got != 75 {
		t.Fatalf("vwap bonus needs both instruments: %d", got)
	}
	in.IndexVWAP, in.FuturesVWAP = &iv, &fv
	in.IndexPrice = 99
	in.Now = time.Date(2025, 8, 4, 15, 0, 0, 0, loc)
	if got := Confidence(in, cfg); got != 65 {
		t.Fatalf("unfavourable vwap outside peak hours: %d", got)
	}
}

func TestSignalIDAndDisplayText(t *testing.T) {
	at := time.Date(2025, 8, 4, 9, 36, 5, 123456000, time.UTC)
	if id := SignalID("Morning Opening", models.BuyCall, at); id != "Morning Opening_BUY_CALL_093605_123456" {
		t.Fatalf("unexpected id %q", id)
	}
	in := signalInput(t, daySession(), 105, 205, at)
	txt := DisplayText(models.BuyCall, in.Eval, "Morning Opening")
	if !strings.Contains(txt, "NIFTY +5.00") || !strings.Contains(txt, "Future +5.00") {
		t.Fatalf("unexpected display text %q", txt)
	}
	in = signalInput(t, daySession(), 105, 195, at)
	if txt := DisplayText(models.BuyPut, in.Eval, "Morning Opening"); !strings.Contains(txt, "Only NIFTY broke session high") {
		t.Fatalf("unexpected divergent text %q", txt)
	}
}

func TestGenerateCall(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemorySignalStore()
	g, sink := newGenerator(store)
	s := daySession()
	now := monday(loc, 9, 36, 0)

	sig, err := g.Generate(context.Background(), signalInput(t, s, 105, 205, now))
	if err != nil || sig == nil {
		t.Fatalf("generate: %v %v", sig, err)
	}
	if sig.SignalType != models.BuyCall || sig.EntryPrice != 105 || sig.StopLoss != 90 || sig.Target1 != 110 || sig.Target2 != 115 {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if sig.Status != models.SignalActive || sig.Confidence != 65 || sig.FuturesHigh != 200 {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if !s.Emitted[models.BuyCall] {
		t.Fatalf("session must record the emitted direction")
	}
	if ev := sink.Events(models.EventNewSignal); len(ev) != 1 {
		t.Fatalf("expected one new_signal event, got %d", len(ev))
	}
	if ok, _ := store.Exists(context.Background(), sig.Key()); !ok {
		t.Fatalf("signal not persisted")
	}

	again, err := g.Generate(context.Background(), signalInput(t, s, 106, 206, now.Add(time.Minute)))
	if err != nil || again != nil {
		t.Fatalf("second call must be suppressed, got %v %v", again, err)
	}
}

func TestGenerateConcurrentDuplicates(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemorySignalStore()
	claims := cache.NewMemoryCache()
	defer claims.Close()
	now := monday(loc, 9, 36, 0)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		g, _ := newGenerator(store, WithClaims(claims, time.Hour))
		in := signalInput(t, daySession(), 105, 205, now)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, err := g.Generate(context.Background(), in)
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			if sig != nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one signal, got %d", created)
	}
	active, _ := store.ListActive(context.Background(), "2025-08-04")
	if len(active) != 1 {
		t.Fatalf("expected one stored signal, got %d", len(active))
	}
}

func TestGenerateClaimBlocksSecondInstance(t *testing.T) {
	loc := ist(t)
	claims := cache.NewMemoryCache()
	defer claims.Close()
	now := monday(loc, 9, 36, 0)

	a, _ := newGenerator(repository.NewMemorySignalStore(), WithClaims(claims, time.Hour))
	b, _ := newGenerator(repository.NewMemorySignalStore(), WithClaims(claims, time.Hour))
	if sig, err := a.Generate(context.Background(), signalInput(t, daySession(), 105, 205, now)); err != nil || sig == nil {
		t.Fatalf("first instance: %v %v", sig, err)
	}
	if sig, err := b.Generate(context.Background(), signalInput(t, daySession(), 105, 205, now)); err != nil || sig != nil {
		t.Fatalf("claim must suppress the second instance, got %v %v", sig, err)
	}
}

type failingSignalStore struct {
	*repository.MemorySignalStore
}

func (failingSignalStore) Insert(context.Context, *models.Signal) error {
	return errors.New("connection refused")
}

func TestGenerateInsertFailureReleasesClaim(t *testing.T) {
	loc := ist(t)
	claims := cache.NewMemoryCache()
	defer claims.Close()
	g := NewSignalGenerator(failingSignalStore{repository.NewMemorySignalStore()}, repository.NewRecordingBroadcaster(nil),
		metrics.Nop{}, NewActiveSignals(), ConfidenceConfig{}, WithClaims(claims, time.Hour))

	s := daySession()
	if _, err := g.Generate(context.Background(), signalInput(t, s, 105, 205, monday(loc, 9, 36, 0))); err == nil {
		t.Fatalf("expected insert error")
	}
	if s.Emitted[models.BuyCall] {
		t.Fatalf("failed insert must not mark the direction emitted")
	}
	ok, err := claims.TryLock(context.Background(), cache.GenerateKey("signal", "2025-08-04", "Morning Opening", models.BuyCall), time.Minute)
	if err != nil || !ok {
		t.Fatalf("claim must be released after a failed insert: %v %v", ok, err)
	}
}

func TestGenerateReplacesOpposite(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemorySignalStore()
	g, sink := newGenerator(store)
	s := daySession()
	ctx := context.Background()

	call, err := g.Generate(ctx, signalInput(t, s, 105, 205, monday(loc, 9, 36, 0)))
	if err != nil || call == nil {
		t.Fatalf("call: %v %v", call, err)
	}
	put, err := g.Generate(ctx, signalInput(t, s, 85, 185, monday(loc, 10, 5, 0)))
	if err != nil || put == nil {
		t.Fatalf("put: %v %v", put, err)
	}

	active, _ := store.ListActive(ctx, "2025-08-04")
	if len(active) != 1 || active[0].ID != put.ID {
		t.Fatalf("only the put must stay active, got %+v", active)
	}
	recent, _ := store.ListRecent(ctx, 10)
	for _, r := range recent {
		if r.ID == call.ID && r.Status != models.SignalReplaced {
			t.Fatalf("call must be REPLACED, got %s", r.Status)
		}
	}
	if g.active.Len() != 1 {
		t.Fatalf("active set must hold only the put")
	}
	if ev := sink.Events(models.EventSignalUpdate); len(ev) != 1 {
		t.Fatalf("expected one signal_update, got %d", len(ev))
	}
}

func TestExpireStale(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemorySignalStore()
	g, _ := newGenerator(store)
	ctx := context.Background()
	created := monday(loc, 9, 35, 0)

	if _, err := g.Generate(ctx, signalInput(t, daySession(), 105, 205, created)); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n := g.ExpireStale(ctx, created.Add(4*time.Hour), 4*time.Hour); n != 0 {
		t.Fatalf("signal exactly at the staleness bound must survive, expired %d", n)
	}
	if n := g.ExpireStale(ctx, monday(loc, 13, 36, 0), 4*time.Hour); n != 1 {
		t.Fatalf("expected one expiry, got %d", n)
	}
	active, _ := store.ListActive(ctx, "2025-08-04")
	if len(active) != 0 || g.active.Len() != 0 {
		t.Fatalf("expired signal must leave the active views")
	}
	if sig, _ := g.Generate(ctx, signalInput(t, daySession(), 106, 206, monday(loc, 13, 40, 0))); sig != nil {
		t.Fatalf("expired key must still block re-generation")
	}
}

func TestLoadActive(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemorySignalStore()
	first, _ := newGenerator(store)
	if _, err := first.Generate(context.Background(), signalInput(t, daySession(), 105, 205, monday(loc, 9, 36, 0))); err != nil {
		t.Fatalf("generate: %v", err)
	}
	restarted, _ := newGenerator(store)
	if err := restarted.LoadActive(context.Background(), "2025-08-04"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if restarted.active.Len() != 1 {
		t.Fatalf("expected the stored signal to be loaded")
	}
}
