package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	flaky := func(context.Context) error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	}

	if err := (RetryPolicy{Attempts: 3, Backoff: time.Millisecond}).Do(context.Background(), flaky); err != nil || calls != 3 {
		t.Fatalf("expected success on the third attempt, got %v after %d calls", err, calls)
	}

	calls = 0
	if err := (RetryPolicy{Attempts: 2}).Do(context.Background(), flaky); !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("expected last error after 2 calls, got %v after %d", err, calls)
	}

	calls = 0
	if err := (RetryPolicy{}).Do(context.Background(), flaky); err == nil || calls != 1 {
		t.Fatalf("zero attempts must still run once, got %d calls", calls)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{Attempts: 5, Backoff: time.Hour}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one call before cancellation, got %d (%v)", calls, err)
	}
}

func TestRetryPolicyTimeout(t *testing.T) {
	err := RetryPolicy{Attempts: 1, Timeout: 10 * time.Millisecond}.Do(context.Background(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("attempt context must carry a deadline")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDetachedSurvivesParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, done := detached(parent, time.Minute)
	defer done()
	cancel()
	if ctx.Err() != nil {
		t.Fatalf("detached context must outlive its parent")
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("detached context must be bounded")
	}
}
