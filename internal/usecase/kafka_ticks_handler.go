package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"NiftyPulse/internal/domain"
	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
	"NiftyPulse/internal/service/clock"
	pkgkafka "NiftyPulse/pkg/kafka"
	applogger "NiftyPulse/pkg/logger"
	"NiftyPulse/pkg/util"
)

// TickProcessor accepts one tick at a time. The tick pipeline implements it.
type TickProcessor interface {
	Process(ctx context.Context, t *models.Tick) (bool, error)
}

// KafkaTicksHandler consumes tick messages from Kafka and feeds them to the pipeline.
type KafkaTicksHandler struct {
	topic   string
	proc    TickProcessor
	metrics domrepo.Metrics
	clock   clock.Clock
	l       *applogger.Logger
}

func NewKafkaTicksHandler(topic string, proc TickProcessor, metrics domrepo.Metrics, clk clock.Clock, l *applogger.Logger) *KafkaTicksHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaTicksHandler{
		topic:   topic,
		proc:    proc,
		metrics: metrics,
		clock:   clk,
		l:       l.With(applogger.String("component", "kafka_ticks")),
	}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, price, exchange, volume, ts}; ts in seconds or ms
type tickMessage struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Exchange string  `json:"exchange"`
	Volume   float64 `json:"volume"`
	TS       int64   `json:"ts"`
}

// Handle decodes one message. Malformed payloads fail so the consumer can dead-letter
// them; ticks rejected by validation are dropped.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m tickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	now := h.clock.Now()
	t := &models.Tick{
		Symbol:     m.Symbol,
		Price:      m.Price,
		Exchange:   m.Exchange,
		Volume:     m.Volume,
		ReceivedAt: now,
	}
	if m.TS > 0 {
		mts := util.UnixAuto(m.TS)
		t.MarketTimestamp = &mts
		h.metrics.RecordLatency("ingest_e2e", now.Sub(mts).Seconds())
	}

	start := time.Now()
	_, err := h.proc.Process(ctx, t)
	h.metrics.RecordLatency("kafka_tick_process", time.Since(start).Seconds())
	if errors.Is(err, domain.ErrInvalidTick) {
		h.l.Debug("invalid tick dropped",
			applogger.String("event_id", pkgkafka.EventIDFromContext(ctx)),
			applogger.Error(err),
		)
		return nil
	}
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
