package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
	pkgkafka "NiftyPulse/pkg/kafka"
)

// envelope wraps payload in an Event unless it already is one.
func envelope(typ models.EventType, payload any, now time.Time) models.Event {
	if ev, ok := payload.(models.Event); ok {
		return ev
	}
	return models.Event{ID: uuid.NewString(), Type: typ, Time: now, Payload: payload}
}

// KafkaBroadcaster publishes events to one Kafka topic keyed by event type.
type KafkaBroadcaster struct {
	producer *pkgkafka.Producer
	topic    string
	now      func() time.Time
}

var _ domrepo.Broadcaster = (*KafkaBroadcaster)(nil)

func NewKafkaBroadcaster(producer *pkgkafka.Producer, topic string, now func() time.Time) *KafkaBroadcaster {
	return &KafkaBroadcaster{producer: producer, topic: topic, now: now}
}

func (b *KafkaBroadcaster) Publish(ctx context.Context, typ models.EventType, payload any) error {
	ev := envelope(typ, payload, b.now())
	return b.producer.PublishBatch(ctx, b.topic, []pkgkafka.Message{{
		Key:   []byte(ev.Type),
		Value: ev,
		Headers: map[string]string{
			"event_id":   ev.ID,
			"event_type": string(ev.Type),
		},
	}})
}

func (b *KafkaBroadcaster) Close() error {
	if b.producer != nil {
		return b.producer.Close()
	}
	return nil
}

// RedisBroadcaster publishes every event on a pub/sub channel. Signal events are also
// appended to a capped stream so late subscribers can replay them.
type RedisBroadcaster struct {
	rdb          *redis.Client
	channel      string
	stream       string
	streamMaxLen int64
	now          func() time.Time
}

var _ domrepo.Broadcaster = (*RedisBroadcaster)(nil)

func NewRedisBroadcaster(rdb *redis.Client, channel, stream string, maxLen int64, now func() time.Time) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, channel: channel, stream: stream, streamMaxLen: maxLen, now: now}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, typ models.EventType, payload any) error {
	ev := envelope(typ, payload, b.now())
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.channel, err)
	}
	if b.stream == "" || ev.Type == models.EventPriceUpdate {
		return nil
	}
	args := &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":      ev.ID,
			"type":    string(ev.Type),
			"payload": data,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", b.stream, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the cache.
func (b *RedisBroadcaster) Close() error { return nil }

// FanoutBroadcaster sends one envelope to every sink and joins their errors.
type FanoutBroadcaster struct {
	sinks []domrepo.Broadcaster
	now   func() time.Time
}

var _ domrepo.Broadcaster = (*FanoutBroadcaster)(nil)

func NewFanoutBroadcaster(now func() time.Time, sinks ...domrepo.Broadcaster) *FanoutBroadcaster {
	return &FanoutBroadcaster{sinks: sinks, now: now}
}

func (f *FanoutBroadcaster) Publish(ctx context.Context, typ models.EventType, payload any) error {
	if len(f.sinks) == 0 {
		return nil
	}
	ev := envelope(typ, payload, f.now())
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, typ, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutBroadcaster) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordingBroadcaster keeps published events in memory.
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []models.Event
	now    func() time.Time
	// Err, when set, is returned from Publish after recording.
	Err error
}

var _ domrepo.Broadcaster = (*RecordingBroadcaster)(nil)

func NewRecordingBroadcaster(now func() time.Time) *RecordingBroadcaster {
	if now == nil {
		now = time.Now
	}
	return &RecordingBroadcaster{now: now}
}

func (r *RecordingBroadcaster) Publish(_ context.Context, typ models.EventType, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, envelope(typ, payload, r.now()))
	return r.Err
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (r *RecordingBroadcaster) Events(types ...models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, 0, len(r.events))
	for _, ev := range r.events {
		if len(types) == 0 {
			out = append(out, ev)
			continue
		}
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

func (r *RecordingBroadcaster) Close() error { return nil }
