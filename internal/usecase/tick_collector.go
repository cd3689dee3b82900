package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NiftyPulse/internal/domain"
	"NiftyPulse/internal/domain/models"
	drepo "NiftyPulse/internal/domain/repository"
	applogger "NiftyPulse/pkg/logger"
)

// TickCollector reads ticks from a market stream and hands them to the pipeline,
// reconnecting whenever the stream fails.
type TickCollector struct {
	stream  drepo.MarketStream
	proc    TickProcessor
	metrics drepo.Metrics
	l       *applogger.Logger
	retry   time.Duration
}

// NewTickCollector creates a collector. retry spaces failed reconnect attempts.
func NewTickCollector(stream drepo.MarketStream, proc TickProcessor, metrics drepo.Metrics, retry time.Duration, l *applogger.Logger) *TickCollector {
	if l == nil {
		l = applogger.NewNop()
	}
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &TickCollector{
		stream:  stream,
		proc:    proc,
		metrics: metrics,
		retry:   retry,
		l:       l.With(applogger.String("component", "tick_collector")),
	}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Run connects and consumes until ctx is cancelled, then closes the stream.
func (c *TickCollector) Run(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return fmt.Errorf("tick collector connect: %w", err)
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return fmt.Errorf("tick collector subscribe: %w", err)
	}
	defer c.stream.Close()

	for {
		ticks, errs := c.stream.Read(ctx)
		err := c.consume(ctx, ticks, errs)
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.RecordError("stream")
		c.l.Warn("market stream failed, reconnecting", applogger.Error(err))
		if !c.reconnect(ctx) {
			return nil
		}
	}
}

// consume drains one Read session and returns the error that ended it.
func (c *TickCollector) consume(ctx context.Context, ticks <-chan *models.Tick, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case t, ok := <-ticks:
			if !ok {
				return errors.New("market stream closed")
			}
			if t == nil {
				continue
			}
			if _, err := c.proc.Process(ctx, t); err != nil && !errors.Is(err, domain.ErrInvalidTick) {
				c.l.Warn("tick not processed", applogger.String("symbol", t.Symbol), applogger.Error(err))
			}
		}
	}
}

func (c *TickCollector) reconnect(ctx context.Context) bool {
	for {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.l.Info("market stream reconnected")
			return true
		}
		c.metrics.RecordError("stream_reconnect")
		c.l.Error("market stream reconnect failed", applogger.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retry):
		}
	}
}
