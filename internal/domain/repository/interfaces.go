package repository

import (
	"context"
	"time"

	"NiftyPulse/internal/domain/models"
)

// MarketStream is a live tick feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickStore is durable, time-indexed tick storage.
type TickStore interface {
	// Append stores t. It returns false when the store already holds an identical tick.
	Append(ctx context.Context, t *models.Tick) (bool, error)
	// QueryRange returns ticks of symbol with start <= received_at < end, oldest first.
	QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]models.Tick, error)
	// Latest returns the newest tick of symbol received at or after since, or nil.
	Latest(ctx context.Context, symbol string, since time.Time) (*models.Tick, error)
	// PurgeBefore deletes ticks received before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// SignalStore persists finalized signals. Insert must return domain.ErrDuplicateSignal
// when a signal with the same natural key exists.
type SignalStore interface {
	Insert(ctx context.Context, s *models.Signal) error
	Exists(ctx context.Context, key models.SignalKey) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.SignalStatus, at time.Time) error
	ListActive(ctx context.Context, tradingDay string) ([]models.Signal, error)
	ListRecent(ctx context.Context, limit int) ([]models.Signal, error)
	Close() error
}

// Broadcaster pushes events outward. Publish failures are reported, never retried by callers.
type Broadcaster interface {
	Publish(ctx context.Context, event models.EventType, payload any) error
	Close() error
}

type Metrics interface {
	RecordTick(symbol string, price float64)
	RecordTickRejected(reason string)
	RecordSignal(sessionName string, signalType string)
	RecordDuplicateSignal(sessionName string)
	RecordSessionStatus(sessionName string, status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
