package usecase

import (
	"context"
	"testing"
	"time"

	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/repository"
	"NiftyPulse/internal/service/clock"
	"NiftyPulse/pkg/config"
)

const (
	idx = "NIFTY"
	fut = "NIFTY28AUG25FUT"
)

func ist(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testMarket(t *testing.T) *clock.Market {
	t.Helper()
	m, err := clock.NewMarket(config.MarketConfig{
		Timezone:    "Asia/Kolkata",
		Open:        "09:15",
		Close:       "15:30",
		TradingDays: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
	})
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	return m
}

// monday returns hh:mm:ss on Monday 2025-08-04 in loc.
func monday(loc *time.Location, hh, mm, ss int) time.Time {
	return time.Date(2025, 8, 4, hh, mm, ss, 0, loc)
}

func put(t *testing.T, s *repository.MemoryTickStore, symbol string, price float64, at time.Time) {
	t.Helper()
	if _, err := s.Append(context.Background(), &models.Tick{Symbol: symbol, Price: price, ReceivedAt: at, Volume: 10}); err != nil {
		t.Fatalf("append: %v", err)
	}
}
