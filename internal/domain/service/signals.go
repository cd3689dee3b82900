package service

import (
	"context"
	"time"

	"NiftyPulse/internal/domain/models"
)

// MonitorStatus describes the monitoring loop.
type MonitorStatus struct {
	Running       bool      `json:"running"`
	MarketOpen    bool      `json:"market_open"`
	TradingDay    string    `json:"trading_day"`
	LastIteration time.Time `json:"last_iteration,omitempty"`
	Iterations    int64     `json:"iterations"`
	ActiveSignals int       `json:"active_signals"`
	Now           time.Time `json:"now"`
}

// SignalService is what the outer API layer sees of the detection core.
type SignalService interface {
	GetActiveSignals(ctx context.Context) ([]models.Signal, error)
	GetSignalHistory(ctx context.Context, limit int) ([]models.Signal, error)
	GetSessionStatus(ctx context.Context) []models.TradingSession
	// StartMonitoring and StopMonitoring are idempotent; they report whether the state changed.
	StartMonitoring() bool
	StopMonitoring() bool
	Status() MonitorStatus
}
