package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
)

// Sweeper runs one background sweep on an interval. The first run happens
// immediately on Start; a tick that arrives while a run is still in flight
// is skipped instead of overlapping.
type Sweeper struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int, error)
	clock    clockwork.Clock
	log      *logging.Logger

	inFlight atomic.Bool

	mRuns    *metrics.Counter
	mSwept   *metrics.Counter
	mErrors  *metrics.Counter
	mSkipped *metrics.Counter
}

func newSweeper(name string, interval time.Duration, clock clockwork.Clock, log *logging.Logger, run func(ctx context.Context) (int, error)) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		name:     name,
		interval: interval,
		run:      run,
		clock:    clock,
		log:      log.WithComponent("sweeper"),
		mRuns:    metrics.Default.Counter("sweep_"+name+"_runs_total", "Sweep executions"),
		mSwept:   metrics.Default.Counter("sweep_"+name+"_entries_total", "Entries advanced by the sweep"),
		mErrors:  metrics.Default.Counter("sweep_"+name+"_errors_total", "Sweep executions that errored"),
		mSkipped: metrics.Default.Counter("sweep_"+name+"_skipped_total", "Ticks skipped while a run was in flight"),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		s.RunOnce(ctx)
		t := s.clock.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.Chan():
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce executes one sweep unless another is already running.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.mSkipped.Inc(1)
		return
	}
	defer s.inFlight.Store(false)

	s.mRuns.Inc(1)
	n, err := s.run(ctx)
	if err != nil {
		s.mErrors.Inc(1)
		s.log.Error("sweep failed", logging.String("sweep", s.name), logging.Err(err))
		return
	}
	s.mSwept.Inc(int64(n))
	if n > 0 {
		s.log.Info("sweep advanced entries",
			logging.String("sweep", s.name), logging.Int("count", n))
	}
}

// NewNoShowSweeper closes notified entries whose customer never arrived
// within the response window.
func NewNoShowSweeper(svc *Service, interval, noShowAfter time.Duration, clock clockwork.Clock, log *logging.Logger) *Sweeper {
	return newSweeper("noshow", interval, clock, log, func(ctx context.Context) (int, error) {
		cutoff := clock.Now().UTC().Add(-noShowAfter)
		stalled, err := svc.repo.GetStalledEntriesCtx(ctx, models.StatusNotified, cutoff)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, e := range stalled {
			if err := svc.MarkNoShow(ctx, e.ID, ReasonNoResponse); err != nil {
				log.Error("no-show sweep transition failed",
					logging.String("queue_id", e.ID), logging.Err(err))
				continue
			}
			n++
		}
		return n, nil
	})
}

// NewPendingSweeper reverts pending_verification entries the operator never
// acted on back to notified.
func NewPendingSweeper(svc *Service, interval, verifyTimeout time.Duration, clock clockwork.Clock, log *logging.Logger) *Sweeper {
	return newSweeper("pending", interval, clock, log, func(ctx context.Context) (int, error) {
		cutoff := clock.Now().UTC().Add(-verifyTimeout)
		stalled, err := svc.repo.GetStalledEntriesCtx(ctx, models.StatusPendingVerification, cutoff)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, e := range stalled {
			if err := svc.RevertPending(ctx, e.ID); err != nil {
				log.Error("pending sweep revert failed",
					logging.String("queue_id", e.ID), logging.Err(err))
				continue
			}
			n++
		}
		return n, nil
	})
}
