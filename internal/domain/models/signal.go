package models

import "time"

type SignalType string

const (
	BuyCall SignalType = "BUY_CALL"
	BuyPut  SignalType = "BUY_PUT"
)

// Opposite returns the other direction.
func (t SignalType) Opposite() SignalType {
	if t == BuyCall {
		return BuyPut
	}
	return BuyCall
}

func (t SignalType) Valid() bool { return t == BuyCall || t == BuyPut }

type SignalStatus string

const (
	SignalActive    SignalStatus = "ACTIVE"
	SignalCompleted SignalStatus = "COMPLETED"
	SignalCancelled SignalStatus = "CANCELLED"
	SignalExpired   SignalStatus = "EXPIRED"
	SignalReplaced  SignalStatus = "REPLACED"
)

type Sentiment string

const (
	VeryBullish Sentiment = "VERY_BULLISH"
	Bullish     Sentiment = "BULLISH"
	Neutral     Sentiment = "NEUTRAL"
	Bearish     Sentiment = "BEARISH"
	VeryBearish Sentiment = "VERY_BEARISH"
)

// BreakoutDetail describes how one instrument sits against its session levels.
type BreakoutDetail struct {
	BreaksHigh bool    `json:"breaks_high"`
	BreaksLow  bool    `json:"breaks_low"`
	Amount     float64 `json:"amount"`
}

// CandleStats summarises the latest futures candle attached to a signal.
type CandleStats struct {
	Open      float64 `json:"open"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
}

// SignalDetails holds descriptive fields computed at creation time.
type SignalDetails struct {
	IndexBreakout   BreakoutDetail `json:"index_breakout"`
	FuturesBreakout BreakoutDetail `json:"futures_breakout"`
	Sentiment       Sentiment      `json:"market_sentiment"`
	Correlation     *float64       `json:"correlation,omitempty"`
	VolatilityIndex *float64       `json:"volatility_index,omitempty"`
	IndexVWAP       *float64       `json:"index_vwap,omitempty"`
	FuturesVWAP     *float64       `json:"futures_vwap,omitempty"`
	FuturesCandle   *CandleStats   `json:"futures_candle,omitempty"`
}

// Signal is a directional trade idea. Price levels are immutable after creation; only Status changes.
type Signal struct {
	ID           string        `json:"id"`
	TradingDay   string        `json:"trading_day"`
	SessionName  string        `json:"session_name"`
	SignalType   SignalType    `json:"signal_type"`
	EntryPrice   float64       `json:"entry_price"`
	StopLoss     float64       `json:"stop_loss"`
	Target1      float64       `json:"target_1"`
	Target2      float64       `json:"target_2"`
	Confidence   int           `json:"confidence"`
	Status       SignalStatus  `json:"status"`
	SessionHigh  float64       `json:"session_high"`
	SessionLow   float64       `json:"session_low"`
	IndexPrice   float64       `json:"index_price"`
	FuturesPrice float64       `json:"futures_price"`
	FuturesHigh  float64       `json:"futures_high"`
	FuturesLow   float64       `json:"futures_low"`
	Reason       string        `json:"reason"`
	DisplayText  string        `json:"display_text"`
	Details      SignalDetails `json:"details"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SignalKey is the natural key enforced unique by signal stores.
type SignalKey struct {
	TradingDay  string
	SessionName string
	SignalType  SignalType
}

func (s *Signal) Key() SignalKey {
	return SignalKey{TradingDay: s.TradingDay, SessionName: s.SessionName, SignalType: s.SignalType}
}

func (k SignalKey) String() string {
	return k.TradingDay + ":" + k.SessionName + ":" + string(k.SignalType)
}
