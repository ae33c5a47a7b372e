package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/models"
	testutil "walkin-queue-coordinator/internal/testing"
	"walkin-queue-coordinator/pkg/logging"
)

func TestRecomputeAssignsContiguousPositions(t *testing.T) {
	repo := testutil.NewMemRepo()
	clock := clockwork.NewFakeClock()
	p := NewPositionEngine(repo, nil, clock, logging.NewNop())

	base := clock.Now().UTC()
	repo.Entries["a"] = &models.QueueEntry{ID: "a", VenueID: "v1", UserID: "u1", Status: models.StatusWaiting, CreatedAt: base}
	repo.Entries["b"] = &models.QueueEntry{ID: "b", VenueID: "v1", UserID: "u2", Status: models.StatusInProgress, CreatedAt: base.Add(time.Second)}
	repo.Entries["c"] = &models.QueueEntry{ID: "c", VenueID: "v1", UserID: "u3", Status: models.StatusNotified, CreatedAt: base.Add(2 * time.Second)}
	repo.Entries["d"] = &models.QueueEntry{ID: "d", VenueID: "v1", UserID: "u4", Status: models.StatusCompleted, CreatedAt: base.Add(3 * time.Second)}
	repo.Entries["e"] = &models.QueueEntry{ID: "e", VenueID: "v2", UserID: "u5", Status: models.StatusWaiting, CreatedAt: base}

	entries, err := p.Recompute(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	// terminal d and other-venue e excluded
	if len(entries) != 3 {
		t.Fatalf("expected 3 active entries, got %d", len(entries))
	}

	byID := map[string]models.QueueEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	if byID["b"].Position != 0 || byID["b"].EstimatedWaitMinutes != 0 {
		t.Fatalf("in-progress entry: %+v", byID["b"])
	}
	if byID["a"].Position != 1 || byID["a"].EstimatedWaitMinutes != 0 {
		t.Fatalf("first waiting entry: %+v", byID["a"])
	}
	if byID["c"].Position != 2 || byID["c"].EstimatedWaitMinutes != 30 {
		t.Fatalf("second entry: %+v", byID["c"])
	}

	// persisted too
	if repo.Entries["c"].Position != 2 {
		t.Fatalf("position not persisted: %+v", repo.Entries["c"])
	}
}

func TestRecomputeEmptyVenue(t *testing.T) {
	repo := testutil.NewMemRepo()
	p := NewPositionEngine(repo, nil, clockwork.NewFakeClock(), logging.NewNop())
	entries, err := p.Recompute(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
