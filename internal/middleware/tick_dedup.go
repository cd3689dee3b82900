package middleware

import (
	"math"
	"sync"
	"time"
)

// Rejection reasons reported by the dedup gate.
const (
	ReasonSmallMove = "small_price_change"
	ReasonTooSoon   = "min_interval"
	ReasonSamePrice = "same_price"
)

type lastTick struct {
	price float64
	at    time.Time
}

// DedupGate filters noise ticks against the last accepted tick of each symbol.
// A tick is rejected when its price moved less than minChange, when it arrived
// sooner than minInterval after the last accepted one, or when its price is identical.
type DedupGate struct {
	mu          sync.Mutex
	last        map[string]lastTick
	minChange   float64
	minInterval time.Duration
}

func NewDedupGate(minChange float64, minInterval time.Duration) *DedupGate {
	return &DedupGate{last: make(map[string]lastTick), minChange: minChange, minInterval: minInterval}
}

// Check returns "" when the tick passes against the last accepted tick of its
// symbol, or the rejection reason. It does not record the tick; see Commit.
func (g *DedupGate) Check(symbol string, price float64, at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, ok := g.last[symbol]
	if !ok {
		return ""
	}
	if math.Abs(price-prev.price) < g.minChange {
		return ReasonSmallMove
	}
	if at.Sub(prev.at) < g.minInterval {
		return ReasonTooSoon
	}
	if price == prev.price {
		return ReasonSamePrice
	}
	return ""
}

// Commit records the tick as the symbol's last accepted tick.
func (g *DedupGate) Commit(symbol string, price float64, at time.Time) {
	g.mu.Lock()
	g.last[symbol] = lastTick{price: price, at: at}
	g.mu.Unlock()
}
