package models

import "time"

// Candle is an OHLCV summary of the ticks in one window. Derived, never persisted.
type Candle struct {
	Symbol      string    `json:"symbol"`
	WindowStart time.Time `json:"window_start"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	TickCount   int       `json:"tick_count"`
	// Proxy is set when the candle was built from the index series on behalf of another symbol.
	Proxy bool `json:"proxy,omitempty"`
}

// TypicalPrice is (high+low+close)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}
