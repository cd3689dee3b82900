package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
	"NiftyPulse/internal/service/clock"
	"NiftyPulse/internal/service/ratelimit"
	applogger "NiftyPulse/pkg/logger"
)

// TickPipeline sits between the feeds and the tick store.
// It validates, throttles, dedups and stores ticks, buffering when the store is unavailable.
type TickPipeline struct {
	store   domrepo.TickStore
	sink    domrepo.Broadcaster
	metrics domrepo.Metrics
	l       *applogger.Logger
	clock   clock.Clock
	market  *clock.Market
	limiter *ratelimit.Limiter
	dedup   *DedupGate
	bufSize int
	bufCh   chan *models.Tick

	backoffMin time.Duration
	backoffMax time.Duration

	mu      sync.Mutex
	running bool
}

type PipelineOption func(*TickPipeline)

// WithLimiter throttles ticks per symbol.
func WithLimiter(l *ratelimit.Limiter) PipelineOption {
	return func(p *TickPipeline) { p.limiter = l }
}

// WithDedup sets the noise filter.
func WithDedup(g *DedupGate) PipelineOption {
	return func(p *TickPipeline) { p.dedup = g }
}

// WithMarketHours rejects ticks received outside trading hours.
func WithMarketHours(m *clock.Market) PipelineOption {
	return func(p *TickPipeline) { p.market = m }
}

// WithBroadcaster publishes a price_update for every stored tick.
func WithBroadcaster(b domrepo.Broadcaster) PipelineOption {
	return func(p *TickPipeline) { p.sink = b }
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithFlushBackoff sets the retry backoff range of the buffer flusher.
func WithFlushBackoff(min, max time.Duration) PipelineOption {
	return func(p *TickPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *TickPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(store domrepo.TickStore, metrics domrepo.Metrics, clk clock.Clock, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		store:      store,
		metrics:    metrics,
		clock:      clk,
		l:          applogger.NewNop(),
		bufSize:    1000,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Tick, p.bufSize)
	p.l = p.l.With(applogger.String("component", "tick_pipeline"))
	return p
}

// Process validates, filters and stores one tick. It returns true when the tick was
// stored or buffered, false when it was filtered out. Invalid ticks return ErrInvalidTick.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) (bool, error) {
	start := time.Now()
	if t == nil {
		return false, errors.New("tick nil")
	}
	t.Normalize()
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = p.clock.Now()
	}
	if err := t.Validate(); err != nil {
		p.metrics.RecordTickRejected("invalid")
		return false, err
	}
	if p.market != nil && !p.market.IsOpen(t.ReceivedAt) {
		p.metrics.RecordTickRejected("after_hours")
		return false, nil
	}
	if p.limiter != nil && !p.limiter.AllowAt(t.Symbol, t.ReceivedAt) {
		p.metrics.RecordTickRejected("throttled")
		return false, nil
	}
	if p.dedup != nil {
		if reason := p.dedup.Check(t.Symbol, t.Price, t.ReceivedAt); reason != "" {
			p.metrics.RecordTickRejected(reason)
			p.l.Debug("tick filtered", applogger.String("symbol", t.Symbol), applogger.Float64("price", t.Price), applogger.String("reason", reason))
			return false, nil
		}
	}

	stored, err := p.store.Append(ctx, t)
	if err != nil {
		p.metrics.RecordError("tick_append")
		select {
		case p.bufCh <- t:
			p.commit(t)
			p.l.Warn("tick store unavailable, buffered", applogger.String("symbol", t.Symbol), applogger.Int("depth", len(p.bufCh)), applogger.Error(err))
			return true, nil
		default:
			p.metrics.RecordTickRejected("buffer_full")
			return false, fmt.Errorf("pipeline downstream: %w", err)
		}
	}
	if !stored {
		p.metrics.RecordTickRejected("store_duplicate")
		return false, nil
	}
	p.commit(t)
	p.accepted(ctx, t)
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return true, nil
}

// commit makes t the dedup reference once it is stored or buffered.
func (p *TickPipeline) commit(t *models.Tick) {
	if p.dedup != nil {
		p.dedup.Commit(t.Symbol, t.Price, t.ReceivedAt)
	}
}

func (p *TickPipeline) accepted(ctx context.Context, t *models.Tick) {
	p.metrics.RecordTick(t.Symbol, t.Price)
	if p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, models.EventPriceUpdate, models.PriceUpdate{
		Symbol: t.Symbol,
		Price:  t.Price,
		Volume: t.Volume,
		At:     t.ReceivedAt,
	}); err != nil {
		p.metrics.RecordError("broadcast")
		p.l.Warn("price update publish failed", applogger.String("symbol", t.Symbol), applogger.Error(err))
	}
}

// Buffered returns the number of ticks waiting for the store.
func (p *TickPipeline) Buffered() int { return len(p.bufCh) }

// Run flushes buffered ticks until ctx is cancelled.
func (p *TickPipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("tick pipeline already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	backoff := p.backoffMin
	for {
		select {
		case <-ctx.Done():
			if n := len(p.bufCh); n > 0 {
				p.l.Warn("pipeline stopped with buffered ticks", applogger.Int("depth", n))
			}
			return nil
		case t := <-p.bufCh:
			stored, err := p.store.Append(ctx, t)
			if err == nil {
				backoff = p.backoffMin
				if stored {
					p.accepted(ctx, t)
				}
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			// requeue if space; drop otherwise
			select {
			case p.bufCh <- t:
			default:
				p.metrics.RecordTickRejected("buffer_drop")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < p.backoffMax {
				backoff *= 2
				if backoff > p.backoffMax {
					backoff = p.backoffMax
				}
			}
		}
	}
}
