package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/pkg/logging"
)

var errProvider = errors.New("provider down")

func failing(ctx context.Context) error    { return errProvider }
func succeeding(ctx context.Context) error { return nil }

func newTestBreaker(t *testing.T, clock clockwork.Clock) *Breaker {
	t.Helper()
	return New(Config{
		Name:             t.Name(),
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		SuccessesToClose: 2,
	}, clock, logging.NewNop())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failing); !errors.Is(err, errProvider) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want Open", b.State())
	}
	if err := b.Do(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Fatalf("open breaker should short-circuit, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)
	ctx := context.Background()

	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, succeeding)
	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, failing)
	if b.State() != Closed {
		t.Fatalf("state = %v, want Closed after interleaved success", b.State())
	}
}

func TestHalfOpenProbeClosesAfterSuccesses(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failing)
	}
	clock.Advance(time.Minute)

	if err := b.Do(ctx, succeeding); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen after one probe", b.State())
	}
	if err := b.Do(ctx, succeeding); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state = %v, want Closed after two probes", b.State())
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBreaker(t, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failing)
	}
	clock.Advance(time.Minute)

	if err := b.Do(ctx, failing); !errors.Is(err, errProvider) {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want Open after failed probe", b.State())
	}
	if err := b.Do(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Fatalf("reopened breaker should short-circuit, got %v", err)
	}
}
