package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
)

// State represents the circuit breaker state
// Closed: normal operation; Open: fail fast; HalfOpen: probing.
// Keep enums simple for logging/metrics.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// Config tunes a circuit breaker instance.
type Config struct {
	Name string

	OperationTimeout time.Duration // per-call timeout; 0 disables
	FailureThreshold int           // consecutive failures in Closed to open
	ResetTimeout     time.Duration // how long to stay open before probing
	SuccessesToClose int           // consecutive half-open successes to close; default 2
}

// ErrOpen indicates the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit open")

type Breaker struct {
	cfg   Config
	clock clockwork.Clock

	mu          sync.Mutex
	st          State
	openedAt    time.Time
	consecFail  int
	halfOpenOKs int

	log *logging.Logger
	// metrics
	mState   *metrics.Gauge
	mOpen    *metrics.Counter
	mReject  *metrics.Counter
	mSuccess *metrics.Counter
	mFailure *metrics.Counter
	mLatency *metrics.Histogram
}

func New(cfg Config, clock clockwork.Clock, log *logging.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.SuccessesToClose <= 0 {
		cfg.SuccessesToClose = 2
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	b := &Breaker{
		cfg:      cfg,
		clock:    clock,
		st:       Closed,
		log:      log,
		mState:   metrics.Default.Gauge("cb_"+cfg.Name+"_state", "Circuit breaker state (0=closed,1=open,2=half-open)"),
		mOpen:    metrics.Default.Counter("cb_"+cfg.Name+"_opens", "Circuit opened events"),
		mReject:  metrics.Default.Counter("cb_"+cfg.Name+"_rejected", "Calls rejected while open"),
		mSuccess: metrics.Default.Counter("cb_"+cfg.Name+"_success", "Successful calls through circuit"),
		mFailure: metrics.Default.Counter("cb_"+cfg.Name+"_failure", "Failed calls through circuit"),
		mLatency: metrics.Default.Histogram("cb_"+cfg.Name+"_latency_ms", "Latency of calls (ms)", []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}),
	}
	b.mState.SetFloat64(0)
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *Breaker) setStateLocked(st State) {
	if b.st == st {
		return
	}
	b.st = st
	switch st {
	case Open:
		b.openedAt = b.clock.Now()
		b.halfOpenOKs = 0
		b.mOpen.Inc(1)
		b.mState.SetFloat64(1)
	case HalfOpen:
		b.halfOpenOKs = 0
		b.mState.SetFloat64(2)
	case Closed:
		b.consecFail = 0
		b.mState.SetFloat64(0)
	}
	if b.log != nil {
		b.log.WithComponent("circuit").Info("breaker state change",
			logging.String("name", b.cfg.Name), logging.Int("state", int(st)))
	}
}

// Do runs op under the breaker. If open, it returns ErrOpen without calling
// op. Outputs can be captured via closure vars.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.st {
	case Open:
		if b.clock.Since(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			b.mReject.Inc(1)
			return ErrOpen
		}
		b.setStateLocked(HalfOpen)
	case HalfOpen, Closed:
	}
	b.mu.Unlock()

	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	start := b.clock.Now()
	err := op(ctx)
	b.mLatency.Observe(float64(b.clock.Since(start) / time.Millisecond))

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.mFailure.Inc(1)
		switch b.st {
		case HalfOpen:
			// probe failed, back to open
			b.setStateLocked(Open)
		case Closed:
			b.consecFail++
			if b.consecFail >= b.cfg.FailureThreshold {
				b.setStateLocked(Open)
			}
		}
		return err
	}

	b.mSuccess.Inc(1)
	switch b.st {
	case HalfOpen:
		b.halfOpenOKs++
		if b.halfOpenOKs >= b.cfg.SuccessesToClose {
			b.setStateLocked(Closed)
		}
	case Closed:
		b.consecFail = 0
	}
	return nil
}
