package usecase

import (
	"testing"

	"NiftyPulse/internal/domain/models"
)

func completedSession() *models.TradingSession {
	return &models.TradingSession{
		Name:   "Morning Opening",
		Status: models.SessionCompleted,
		Levels: map[string]*models.SessionLevels{
			idx: {High: 100, Low: 90},
			fut: {High: 200, Low: 190},
		},
		Emitted: map[models.SignalType]bool{},
	}
}

func TestEvaluateDecisionTable(t *testing.T) {
	e := NewEvaluator(idx, fut)
	cases := []struct {
		name    string
		ip, fp  float64
		outcome Outcome
		want    models.SignalType
	}{
		{"both high", 105, 205, OutcomeBothHigh, models.BuyCall},
		{"both low", 85, 185, OutcomeBothLow, models.BuyPut},
		{"index high only", 105, 195, OutcomeDivergentHigh, models.BuyPut},
		{"futures high only", 95, 205, OutcomeDivergentHigh, models.BuyPut},
		{"index low only", 85, 195, OutcomeDivergentLow, models.BuyCall},
		{"futures low only", 95, 185, OutcomeDivergentLow, models.BuyCall},
		{"inside", 95, 195, OutcomeNone, ""},
		{"at the levels", 100, 190, OutcomeNone, ""},
	}
	for _, tc := range cases {
		s := completedSession()
		ev, ok := e.Evaluate(s, tc.ip, tc.fp)
		if !ok {
			t.Fatalf("%s: evaluation refused: %s", tc.name, ev.Reason)
		}
		if ev.Outcome != tc.outcome || ev.Type != tc.want {
			t.Fatalf("%s: got %s/%s, want %s/%s", tc.name, ev.Outcome, ev.Type, tc.outcome, tc.want)
		}
		again, _ := e.Evaluate(s, tc.ip, tc.fp)
		if again.Outcome != ev.Outcome || again.Type != ev.Type {
			t.Fatalf("%s: evaluation must be idempotent", tc.name)
		}
	}
}

func TestEvaluateBreakoutAmounts(t *testing.T) {
	ev, _ := NewEvaluator(idx, fut).Evaluate(completedSession(), 100.456, 187.5)
	if ev.Index.Amount != 0.46 || !ev.Index.BreaksHigh {
		t.Fatalf("unexpected index detail %+v", ev.Index)
	}
	if ev.Futures.Amount != -2.5 || !ev.Futures.BreaksLow {
		t.Fatalf("unexpected futures detail %+v", ev.Futures)
	}
}

func TestEvaluatePreconditions(t *testing.T) {
	e := NewEvaluator(idx, fut)
	s := completedSession()
	s.Status = models.SessionActive
	if _, ok := e.Evaluate(s, 105, 205); ok {
		t.Fatalf("active session must not be evaluated")
	}
	s = completedSession()
	delete(s.Levels, fut)
	if _, ok := e.Evaluate(s, 105, 205); ok {
		t.Fatalf("missing futures levels must not be evaluated")
	}
}

func TestGate(t *testing.T) {
	vwap := 100.0
	if ok, _ := NewGate(false, 0.005).Allow(models.BuyCall, Confirmation{IndexVWAP: &vwap, IndexPrice: 50}); !ok {
		t.Fatalf("disabled gate must allow")
	}
	g := NewGate(true, 0.005)
	if ok, _ := g.Allow(models.BuyCall, Confirmation{VolumeOK: true}); !ok {
		t.Fatalf("missing vwap must allow")
	}
	if ok, _ := g.Allow(models.BuyCall, Confirmation{IndexVWAP: &vwap, IndexPrice: 99.6, VolumeOK: true}); !ok {
		t.Fatalf("price within deviation must allow")
	}
	if ok, why := g.Allow(models.BuyCall, Confirmation{IndexVWAP: &vwap, IndexPrice: 99, VolumeOK: true}); ok || why == "" {
		t.Fatalf("call below vwap beyond deviation must be vetoed")
	}
	if ok, _ := g.Allow(models.BuyPut, Confirmation{FuturesVWAP: &vwap, FuturesPrice: 99, VolumeOK: false}); ok {
		t.Fatalf("failed volume confirmation must veto")
	}
}
