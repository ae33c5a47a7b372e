package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var errFlaky = errors.New("flaky")

func TestFirstAttemptSucceeds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	err := Do(context.Background(), clock, DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, DefaultPolicy(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
	}()

	// two backoff sleeps: 500ms then 1s
	clock.BlockUntil(1)
	clock.Advance(500 * time.Millisecond)
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	if err := <-done; err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExhaustsAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, DefaultPolicy(), func(ctx context.Context) error {
			calls++
			return errFlaky
		})
	}()

	clock.BlockUntil(1)
	clock.Advance(500 * time.Millisecond)
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	if err := <-done; !errors.Is(err, errFlaky) {
		t.Fatalf("err = %v, want last attempt error", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestShouldRetryStopsEarly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := DefaultPolicy()
	p.ShouldRetry = func(error) bool { return false }
	calls := 0
	err := Do(context.Background(), clock, p, func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestContextCancelDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, clock, DefaultPolicy(), func(ctx context.Context) error {
			return errFlaky
		})
	}()

	clock.BlockUntil(1)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
