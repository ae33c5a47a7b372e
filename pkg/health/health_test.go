package health

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/pkg/circuit"
	"walkin-queue-coordinator/pkg/logging"
)

func staticChecker(name string, st Status, msg string) Checker {
	return CheckFunc{
		CheckerName: name,
		Fn: func(ctx context.Context) Component {
			return Component{Status: st, Message: msg}
		},
	}
}

func TestCheckAllAggregates(t *testing.T) {
	m := NewManager(time.Second, clockwork.NewFakeClock(), logging.NewNop())
	m.Register(staticChecker("database", StatusHealthy, ""))
	m.Register(staticChecker("sms", StatusDegraded, "circuit open"))

	sys := m.CheckAll(context.Background())
	if sys.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", sys.Status)
	}
	if sys.Summary.Total != 2 || sys.Summary.Healthy != 1 || sys.Summary.Degraded != 1 {
		t.Fatalf("unexpected summary: %+v", sys.Summary)
	}
	if got := m.Cached(); got != sys {
		t.Fatalf("cached result not updated")
	}
}

func TestCheckAllUnhealthyWins(t *testing.T) {
	m := NewManager(time.Second, clockwork.NewFakeClock(), logging.NewNop())
	m.Register(staticChecker("database", StatusUnhealthy, "ping failed"))
	m.Register(staticChecker("sms", StatusDegraded, ""))
	m.Register(staticChecker("realtime", StatusHealthy, ""))

	sys := m.CheckAll(context.Background())
	if sys.Status != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", sys.Status)
	}
	if sys.Summary.Unhealthy != 1 {
		t.Fatalf("unexpected summary: %+v", sys.Summary)
	}
}

func TestBreakerChecker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := circuit.New(circuit.Config{Name: t.Name(), FailureThreshold: 1}, clock, logging.NewNop())
	c := NewBreakerChecker("sms", b)

	if got := c.Check(context.Background()); got.Status != StatusHealthy {
		t.Fatalf("closed breaker reported %s", got.Status)
	}

	boom := errors.New("provider down")
	_ = b.Do(context.Background(), func(ctx context.Context) error { return boom })
	if got := c.Check(context.Background()); got.Status != StatusDegraded {
		t.Fatalf("open breaker reported %s", got.Status)
	}
}

type fakeBus struct{ n int }

func (f fakeBus) ConnCount() int { return f.n }

func TestBusChecker(t *testing.T) {
	c := NewBusChecker(fakeBus{n: 3})
	comp := c.Check(context.Background())
	if comp.Status != StatusHealthy {
		t.Fatalf("status = %s", comp.Status)
	}
	if comp.Details["connections"] != 3 {
		t.Fatalf("details = %+v", comp.Details)
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	m := NewManager(time.Second, clockwork.NewFakeClock(), logging.NewNop())
	m.Register(staticChecker("database", StatusUnhealthy, "ping failed"))

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 503 {
		t.Fatalf("code = %d, want 503", rec.Code)
	}

	m.Register(staticChecker("database", StatusHealthy, ""))
	rec = httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 200 {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
}
