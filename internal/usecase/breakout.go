package usecase

import (
	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/service/indicators"
)

// Outcome classifies the two instruments against their session levels.
type Outcome string

const (
	OutcomeBothHigh      Outcome = "BOTH_HIGH"
	OutcomeBothLow       Outcome = "BOTH_LOW"
	OutcomeDivergentHigh Outcome = "DIVERGENT_HIGH"
	OutcomeDivergentLow  Outcome = "DIVERGENT_LOW"
	OutcomeNone          Outcome = "NONE"
)

// Evaluation is the result of comparing live prices with a completed session.
type Evaluation struct {
	Outcome Outcome
	// Type is empty when Outcome is OutcomeNone.
	Type    models.SignalType
	Reason  string
	Index   models.BreakoutDetail
	Futures models.BreakoutDetail

	IndexLevels   models.SessionLevels
	FuturesLevels models.SessionLevels
}

// Evaluator applies the breakout decision table. It holds no state, so repeated
// calls with the same inputs give the same result.
type Evaluator struct {
	index   string
	futures string
}

func NewEvaluator(index, futures string) *Evaluator {
	return &Evaluator{index: index, futures: futures}
}

// Evaluate returns false when the session is not COMPLETED or lacks levels for either
// instrument; the reason explains which precondition failed.
func (e *Evaluator) Evaluate(s *models.TradingSession, indexPrice, futuresPrice float64) (Evaluation, bool) {
	if s.Status != models.SessionCompleted {
		return Evaluation{Outcome: OutcomeNone, Reason: "session not completed"}, false
	}
	idxLv, futLv := s.LevelsFor(e.index), s.LevelsFor(e.futures)
	if idxLv == nil || futLv == nil {
		return Evaluation{Outcome: OutcomeNone, Reason: "missing session levels"}, false
	}

	ev := Evaluation{
		Index:         breakoutDetail(indexPrice, *idxLv),
		Futures:       breakoutDetail(futuresPrice, *futLv),
		IndexLevels:   *idxLv,
		FuturesLevels: *futLv,
	}
	ih, fh := ev.Index.BreaksHigh, ev.Futures.BreaksHigh
	il, fl := ev.Index.BreaksLow, ev.Futures.BreaksLow

	switch {
	case ih && fh:
		ev.Outcome, ev.Type, ev.Reason = OutcomeBothHigh, models.BuyCall, "both broke high, bullish"
	case il && fl:
		ev.Outcome, ev.Type, ev.Reason = OutcomeBothLow, models.BuyPut, "both broke low, bearish"
	case ih != fh:
		ev.Outcome, ev.Type, ev.Reason = OutcomeDivergentHigh, models.BuyPut, "divergent high break, expect reversal"
	case il != fl:
		ev.Outcome, ev.Type, ev.Reason = OutcomeDivergentLow, models.BuyCall, "divergent low break, expect reversal"
	default:
		ev.Outcome, ev.Reason = OutcomeNone, "no breakout"
	}
	return ev, true
}

func breakoutDetail(price float64, lv models.SessionLevels) models.BreakoutDetail {
	d := models.BreakoutDetail{
		BreaksHigh: price > lv.High,
		BreaksLow:  price < lv.Low,
	}
	switch {
	case d.BreaksHigh:
		d.Amount = indicators.Round(price-lv.High, 2)
	case d.BreaksLow:
		d.Amount = indicators.Round(price-lv.Low, 2)
	}
	return d
}

// Confirmation holds the auxiliary inputs of the technical gate. Nil VWAPs mean
// the value could not be computed.
type Confirmation struct {
	IndexVWAP    *float64
	FuturesVWAP  *float64
	VolumeOK     bool
	IndexPrice   float64
	FuturesPrice float64
}

// Gate vetoes signals whose technicals disagree. Missing inputs always allow.
type Gate struct {
	enabled   bool
	deviation float64
}

func NewGate(enabled bool, deviation float64) *Gate {
	return &Gate{enabled: enabled, deviation: deviation}
}

// Allow reports whether a signal of typ may be generated, with the veto reason otherwise.
func (g *Gate) Allow(typ models.SignalType, c Confirmation) (bool, string) {
	if g == nil || !g.enabled {
		return true, ""
	}
	if c.IndexVWAP != nil && !indicators.VWAPAligned(typ, c.IndexPrice, *c.IndexVWAP, g.deviation) {
		return false, "index against vwap"
	}
	if c.FuturesVWAP != nil && !indicators.VWAPAligned(typ, c.FuturesPrice, *c.FuturesVWAP, g.deviation) {
		return false, "futures against vwap"
	}
	if !c.VolumeOK {
		return false, "volume not confirmed"
	}
	return true, ""
}
