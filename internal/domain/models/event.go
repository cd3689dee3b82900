package models

import "time"

// EventType names events pushed to the broadcast sink.
type EventType string

const (
	EventNewSignal     EventType = "new_signal"
	EventSignalUpdate  EventType = "signal_update"
	EventPriceUpdate   EventType = "price_update"
	EventSessionUpdate EventType = "session_update"
)

// Event is the envelope every broadcaster puts on the wire.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Time    time.Time `json:"timestamp"`
	Payload any       `json:"data"`
}

// PriceUpdate is the payload of EventPriceUpdate.
type PriceUpdate struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	At     time.Time `json:"timestamp"`
}

// SignalUpdate is the payload of EventSignalUpdate.
type SignalUpdate struct {
	ID     string       `json:"id"`
	Status SignalStatus `json:"status"`
	At     time.Time    `json:"updated_at"`
}
