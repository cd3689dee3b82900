package usecase

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"NiftyPulse/internal/domain/models"
	"NiftyPulse/internal/middleware"
	"NiftyPulse/internal/repository"
	"NiftyPulse/internal/service/clock"
	"NiftyPulse/pkg/metrics"
)

type recordingProcessor struct {
	mu    sync.Mutex
	ticks []models.Tick
	seen  chan struct{}
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{seen: make(chan struct{}, 16)}
}

func (p *recordingProcessor) Process(_ context.Context, t *models.Tick) (bool, error) {
	p.mu.Lock()
	p.ticks = append(p.ticks, *t)
	p.mu.Unlock()
	p.seen <- struct{}{}
	return true, nil
}

func (p *recordingProcessor) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for tick %d", i+1)
		}
	}
}

// scriptedStream serves one Read session per entry of sessions.
type scriptedStream struct {
	mu         sync.Mutex
	sessions   [][]*models.Tick
	reconnects int
	closed     bool
}

func (s *scriptedStream) Connect(context.Context) error   { return nil }
func (s *scriptedStream) Subscribe(context.Context) error { return nil }
func (s *scriptedStream) IsConnected() bool               { return true }

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	var batch []*models.Tick
	if len(s.sessions) > 0 {
		batch, s.sessions = s.sessions[0], s.sessions[1:]
	}
	last := len(s.sessions) == 0
	s.mu.Unlock()

	ticks := make(chan *models.Tick, len(batch))
	errs := make(chan error, 1)
	for _, t := range batch {
		ticks <- t
	}
	if !last {
		close(ticks)
	}
	return ticks, errs
}

func TestTickCollectorReconnects(t *testing.T) {
	stream := &scriptedStream{sessions: [][]*models.Tick{
		{{Symbol: idx, Price: 100}},
		{{Symbol: idx, Price: 101}, {Symbol: fut, Price: 200}},
	}}
	proc := newRecordingProcessor()
	c := NewTickCollector(stream, proc, metrics.Nop{}, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	proc.wait(t, 3)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.reconnects != 1 || !stream.closed {
		t.Fatalf("expected one reconnect and a closed stream, got %d/%v", stream.reconnects, stream.closed)
	}
}

func TestKafkaTicksHandler(t *testing.T) {
	loc := ist(t)
	now := monday(loc, 9, 40, 0)
	store := repository.NewMemoryTickStore()
	pipe := middleware.NewTickPipeline(store, metrics.Nop{}, clock.NewManual(now))
	h := NewKafkaTicksHandler("niftypulse.ticks", pipe, metrics.Nop{}, clock.NewManual(now), nil)
	ctx := context.Background()

	ts := now.Add(-time.Second).UnixMilli()
	msg := []byte(`{"symbol":" nifty ","price":24950.5,"exchange":"nse","volume":12,"ts":` + itoa(ts) + `}`)
	if err := h.Handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := store.Latest(ctx, "NIFTY", now.Add(-time.Minute))
	if got == nil || got.Price != 24950.5 || got.Exchange != "NSE" {
		t.Fatalf("unexpected stored tick %+v", got)
	}
	if got.MarketTimestamp == nil || got.MarketTimestamp.UnixMilli() != ts {
		t.Fatalf("market timestamp not carried: %+v", got.MarketTimestamp)
	}

	if err := h.Handle(ctx, []byte(`{"symbol":"NIFTY","price":-1}`)); err != nil {
		t.Fatalf("invalid tick must be dropped without error, got %v", err)
	}
	if err := h.Handle(ctx, []byte(`{not json`)); err == nil {
		t.Fatalf("malformed payload must fail")
	}
}

func TestTickRetentionPurge(t *testing.T) {
	loc := ist(t)
	store := repository.NewMemoryTickStore()
	put(t, store, idx, 100, monday(loc, 9, 30, 0).AddDate(0, 0, -10))
	put(t, store, idx, 101, monday(loc, 9, 30, 0))

	r := NewTickRetention(store, clock.NewManual(monday(loc, 10, 0, 0)), metrics.Nop{}, 7*24*time.Hour, time.Hour, nil)
	n, err := r.Purge(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected one purged tick, got %d %v", n, err)
	}
	left, _ := store.QueryRange(context.Background(), idx, time.Time{}, monday(loc, 23, 0, 0))
	if len(left) != 1 || left[0].Price != 101 {
		t.Fatalf("unexpected remaining ticks %+v", left)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
