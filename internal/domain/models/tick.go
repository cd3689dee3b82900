package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"NiftyPulse/internal/domain"
)

// Tick is a single price observation for an instrument.
type Tick struct {
	Symbol          string     `json:"symbol"`
	Price           float64    `json:"price"`
	Exchange        string     `json:"exchange,omitempty"`
	Volume          float64    `json:"volume"`
	ReceivedAt      time.Time  `json:"received_at"`
	MarketTimestamp *time.Time `json:"market_timestamp,omitempty"`
}

// Normalize upper-cases the symbol and trims whitespace.
func (t *Tick) Normalize() {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.Exchange = strings.ToUpper(strings.TrimSpace(t.Exchange))
}

// Validate rejects ticks that must never reach aggregation.
func (t *Tick) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", domain.ErrInvalidTick)
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return fmt.Errorf("%w: non-positive price %v for %s", domain.ErrInvalidTick, t.Price, t.Symbol)
	}
	if math.IsNaN(t.Volume) || t.Volume < 0 {
		return fmt.Errorf("%w: negative volume for %s", domain.ErrInvalidTick, t.Symbol)
	}
	if t.ReceivedAt.IsZero() {
		return fmt.Errorf("%w: missing received_at for %s", domain.ErrInvalidTick, t.Symbol)
	}
	return nil
}
