package usecase

import (
	"context"
	"time"

	domrepo "NiftyPulse/internal/domain/repository"
	"NiftyPulse/internal/service/clock"
	applogger "NiftyPulse/pkg/logger"
)

// TickRetention periodically deletes ticks older than the retention window.
type TickRetention struct {
	store     domrepo.TickStore
	clock     clock.Clock
	metrics   domrepo.Metrics
	l         *applogger.Logger
	retention time.Duration
	interval  time.Duration
}

func NewTickRetention(store domrepo.TickStore, clk clock.Clock, metrics domrepo.Metrics, retention, interval time.Duration, l *applogger.Logger) *TickRetention {
	if l == nil {
		l = applogger.NewNop()
	}
	return &TickRetention{
		store:     store,
		clock:     clk,
		metrics:   metrics,
		retention: retention,
		interval:  interval,
		l:         l.With(applogger.String("component", "tick_retention")),
	}
}

// Purge removes ticks received before now minus the retention window.
func (r *TickRetention) Purge(ctx context.Context) (int64, error) {
	cutoff := r.clock.Now().Add(-r.retention)
	n, err := r.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		r.metrics.RecordError("tick_purge")
		return 0, err
	}
	if n > 0 {
		r.l.Info("old ticks purged", applogger.Int64("count", n), applogger.Time("cutoff", cutoff))
	}
	return n, nil
}

// Run purges on every interval until ctx is cancelled. A non-positive retention disables it.
func (r *TickRetention) Run(ctx context.Context) error {
	if r.retention <= 0 || r.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Purge(ctx); err != nil {
				r.l.Warn("tick purge failed", applogger.Error(err))
			}
		}
	}
}
