package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAppStopsOnCancel(t *testing.T) {
	a := New(WithSignals())
	var mu sync.Mutex
	var closed []string
	a.Add("first", RunnerFunc(blockUntilDone))
	a.Add("second", RunnerFunc(blockUntilDone))
	a.Add("skipped", nil)
	a.OnClose("db", func() error { mu.Lock(); closed = append(closed, "db"); mu.Unlock(); return nil })
	a.OnClose("cache", func() error { mu.Lock(); closed = append(closed, "cache"); mu.Unlock(); return nil })

	if got := a.Components(); len(got) != 2 {
		t.Fatalf("components = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("app did not stop")
	}
	if strings.Join(closed, ",") != "cache,db" {
		t.Fatalf("close order = %v", closed)
	}
}

func TestAppComponentFailureStopsOthers(t *testing.T) {
	a := New(WithSignals())
	boom := errors.New("boom")
	a.Add("healthy", RunnerFunc(blockUntilDone))
	a.Add("broken", RunnerFunc(func(context.Context) error { return boom }))

	err := a.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("err %q should name the component", err)
	}
}

func TestAppCloseErrorsReported(t *testing.T) {
	a := New(WithSignals())
	a.OnClose("store", func() error { return errors.New("flush failed") })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err == nil || !strings.Contains(err.Error(), "close store") {
		t.Fatalf("err = %v", err)
	}
}
