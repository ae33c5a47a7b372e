package verification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/internal/reputation"
	testutil "walkin-queue-coordinator/internal/testing"
	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/logging"
)

var venueLoc = models.Location{Latitude: 12.9716, Longitude: 77.5946}

func newTestEngine(t *testing.T) (*Engine, *testutil.MemRepo, clockwork.FakeClock) {
	t.Helper()
	repo := testutil.NewMemRepo()
	clock := clockwork.NewFakeClock()
	log := logging.NewNop()
	reps := reputation.NewStore(repo, clock, log)
	return NewEngine(reps, repo, clock, log), repo, clock
}

func setTier(repo *testutil.MemRepo, userID string, score int, tier models.ReputationTier) {
	repo.Reputations[userID] = &models.UserReputation{UserID: userID, Score: score, Tier: tier}
}

func TestEvaluateBannedRejects(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	setTier(repo, "u1", 5, models.TierBanned)

	d, err := e.Evaluate(context.Background(), Input{UserID: "u1", UserLocation: &venueLoc, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verified || d.AutoApproved || d.RequiresReview || d.Reason != "banned" {
		t.Fatalf("unexpected decision for banned user: %+v", d)
	}
}

func TestEvaluateNoLocationRequiresReview(t *testing.T) {
	e, _, _ := newTestEngine(t)
	d, err := e.Evaluate(context.Background(), Input{UserID: "u1", VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Verified || d.AutoApproved || !d.RequiresReview {
		t.Fatalf("unexpected decision without location: %+v", d)
	}
	if d.Reason != "no location provided" {
		t.Fatalf("reason = %q", d.Reason)
	}
	if d.DistanceMeters != nil {
		t.Fatalf("distance should be nil without a location")
	}
}

func TestEvaluateInvalidCoordinates(t *testing.T) {
	e, _, _ := newTestEngine(t)
	bad := models.Location{Latitude: 91, Longitude: 0}
	_, err := e.Evaluate(context.Background(), Input{UserID: "u1", UserLocation: &bad, VenueLocation: venueLoc})
	if !errs.IsCode(err, errs.CodeInvalidCoordinates) {
		t.Fatalf("expected InvalidCoordinates, got %v", err)
	}
}

func TestEvaluateAutoApproveWithinTierRadius(t *testing.T) {
	e, _, _ := newTestEngine(t)
	// ~20m north of the venue; new tier radius is 50m.
	near := models.Location{Latitude: 12.97178, Longitude: 77.5946}
	d, err := e.Evaluate(context.Background(), Input{UserID: "u1", UserLocation: &near, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Verified || !d.AutoApproved || d.RequiresReview {
		t.Fatalf("expected auto-approval, got %+v", d)
	}
	if d.DistanceMeters == nil || *d.DistanceMeters > 50 {
		t.Fatalf("distance = %v, want <= 50", d.DistanceMeters)
	}
}

func TestEvaluateTierRadiusWidensWithTrust(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	// ~150m from the venue: outside new (50m), inside trusted (200m).
	mid := models.Location{Latitude: 12.97295, Longitude: 77.5946}

	d, err := e.Evaluate(context.Background(), Input{UserID: "fresh", UserLocation: &mid, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.AutoApproved || !d.RequiresReview || d.Reason != "outside auto range" {
		t.Fatalf("new tier at 150m should need review, got %+v", d)
	}

	setTier(repo, "vip", 95, models.TierTrusted)
	d, err = e.Evaluate(context.Background(), Input{UserID: "vip", UserLocation: &mid, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.AutoApproved {
		t.Fatalf("trusted tier at 150m should auto-approve, got %+v", d)
	}
}

func TestEvaluateTooFarRejects(t *testing.T) {
	e, _, _ := newTestEngine(t)
	// ~2.2km away.
	far := models.Location{Latitude: 12.9916, Longitude: 77.5946}
	d, err := e.Evaluate(context.Background(), Input{UserID: "u1", UserLocation: &far, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verified || d.RequiresReview || d.Reason != "too far" {
		t.Fatalf("expected rejection, got %+v", d)
	}
}

func TestEvaluateSuspiciousTierForcesReview(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	setTier(repo, "u1", 25, models.TierSuspicious)

	d, err := e.Evaluate(context.Background(), Input{UserID: "u1", UserLocation: &venueLoc, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.AutoApproved || !d.RequiresReview || !d.Suspicious {
		t.Fatalf("suspicious tier at 0m should still need review, got %+v", d)
	}
}

func TestEvaluateRepeatedLocationPattern(t *testing.T) {
	e, repo, clock := newTestEngine(t)
	same := models.Location{Latitude: 12.97161, Longitude: 77.59459}
	for i := 0; i < 4; i++ {
		repo.CheckInLogs = append(repo.CheckInLogs, models.CheckInLog{
			UserID:       "u1",
			Timestamp:    clock.Now(),
			UserLocation: &same,
		})
	}

	d, err := e.Evaluate(context.Background(), Input{UserID: "u1", UserLocation: &venueLoc, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Suspicious || !d.RequiresReview {
		t.Fatalf("expected repeated-location review, got %+v", d)
	}
	if !strings.Contains(strings.Join(d.SuspiciousReasons, ";"), "repeated") {
		t.Fatalf("reasons = %v", d.SuspiciousReasons)
	}
}

func TestEvaluateFastCheckInPattern(t *testing.T) {
	e, _, clock := newTestEngine(t)
	notified := clock.Now().Add(-30 * time.Second)

	d, err := e.Evaluate(context.Background(), Input{
		UserID: "u1", UserLocation: &venueLoc, VenueLocation: venueLoc, NotifiedAt: &notified,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Suspicious {
		t.Fatalf("expected fast check-in flag, got %+v", d)
	}

	old := clock.Now().Add(-3 * time.Minute)
	d, err = e.Evaluate(context.Background(), Input{
		UserID: "u2", UserLocation: &venueLoc, VenueLocation: venueLoc, NotifiedAt: &old,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Suspicious {
		t.Fatalf("3 minutes after notification is not suspicious: %+v", d)
	}
}

func TestEvaluateMultipleVenuesPattern(t *testing.T) {
	e, repo, clock := newTestEngine(t)
	repo.Entries["q1"] = &models.QueueEntry{ID: "q1", UserID: "u1", VenueID: "v1", Status: models.StatusWaiting, CreatedAt: clock.Now()}
	repo.Entries["q2"] = &models.QueueEntry{ID: "q2", UserID: "u1", VenueID: "v2", Status: models.StatusNotified, CreatedAt: clock.Now()}

	d, err := e.Evaluate(context.Background(), Input{UserID: "u1", UserLocation: &venueLoc, VenueLocation: venueLoc})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Suspicious {
		t.Fatalf("expected multi-venue flag, got %+v", d)
	}
}
