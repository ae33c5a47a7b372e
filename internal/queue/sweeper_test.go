package queue

import (
	"context"
	"testing"
	"time"

	"walkin-queue-coordinator/internal/models"
)

func TestNoShowSweepClosesStalledEntries(t *testing.T) {
	f := newFixture(t)
	e := f.enrolAndNotify(t)

	sweeper := NewNoShowSweeper(f.svc, 5*time.Minute, 20*time.Minute, f.clock, f.svc.log)

	// 10 minutes in: still within the window
	f.clock.Advance(10 * time.Minute)
	sweeper.RunOnce(context.Background())
	got, _ := f.svc.GetEntry(context.Background(), e.ID)
	if got.Status != models.StatusNotified {
		t.Fatalf("entry swept too early: %+v", got)
	}

	// 21 minutes in: past the cutoff
	f.clock.Advance(11 * time.Minute)
	sweeper.RunOnce(context.Background())
	got, _ = f.svc.GetEntry(context.Background(), e.ID)
	if got.Status != models.StatusNoShow {
		t.Fatalf("entry not swept: %+v", got)
	}
	if got.NoShowReason == nil || *got.NoShowReason != ReasonNoResponse {
		t.Fatalf("reason = %v", got.NoShowReason)
	}
	rep, _ := f.reps.Get(context.Background(), "u1")
	if rep.Score != 45 {
		t.Fatalf("score = %d, want 45", rep.Score)
	}
}

func TestNoShowSweepIgnoresOtherStatuses(t *testing.T) {
	f := newFixture(t)
	e, _ := f.svc.Enrol(context.Background(), "u1", "v1", nil, 0, nil)

	sweeper := NewNoShowSweeper(f.svc, 5*time.Minute, 20*time.Minute, f.clock, f.svc.log)
	f.clock.Advance(time.Hour)
	sweeper.RunOnce(context.Background())

	got, _ := f.svc.GetEntry(context.Background(), e.ID)
	if got.Status != models.StatusWaiting {
		t.Fatalf("waiting entry must not be swept: %+v", got)
	}
}

func TestPendingSweepRevertsToNotified(t *testing.T) {
	f := newFixture(t)
	e := f.enrolAndNotify(t)
	f.clock.Advance(3 * time.Minute)
	distant := models.Location{Latitude: 12.9800, Longitude: 77.5946}
	e, _, _ = f.svc.CheckIn(context.Background(), e.ID, "u1", &distant)
	if e.Status != models.StatusPendingVerification {
		t.Fatalf("setup: expected pending_verification, got %s", e.Status)
	}

	sweeper := NewPendingSweeper(f.svc, time.Minute, 5*time.Minute, f.clock, f.svc.log)

	f.clock.Advance(2 * time.Minute)
	sweeper.RunOnce(context.Background())
	got, _ := f.svc.GetEntry(context.Background(), e.ID)
	if got.Status != models.StatusPendingVerification {
		t.Fatalf("reverted too early: %+v", got)
	}

	f.clock.Advance(4 * time.Minute)
	sweeper.RunOnce(context.Background())
	got, _ = f.svc.GetEntry(context.Background(), e.ID)
	if got.Status != models.StatusNotified {
		t.Fatalf("expected revert to notified: %+v", got)
	}
	// no reputation change on timeout
	rep, _ := f.reps.Get(context.Background(), "u1")
	if rep.Score != 50 {
		t.Fatalf("score = %d, want 50", rep.Score)
	}
}
