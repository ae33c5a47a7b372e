package reputation

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/models"
	testutil "walkin-queue-coordinator/internal/testing"
	"walkin-queue-coordinator/pkg/logging"
)

func newTestStore(t *testing.T) (*Store, *testutil.MemRepo) {
	t.Helper()
	repo := testutil.NewMemRepo()
	return NewStore(repo, clockwork.NewFakeClock(), logging.NewNop()), repo
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		score int
		want  models.ReputationTier
	}{
		{100, models.TierTrusted},
		{90, models.TierTrusted},
		{89, models.TierRegular},
		{70, models.TierRegular},
		{69, models.TierNew},
		{40, models.TierNew},
		{39, models.TierSuspicious},
		{20, models.TierSuspicious},
		{19, models.TierBanned},
		{0, models.TierBanned},
	}
	for _, c := range cases {
		if got := TierFor(c.score); got != c.want {
			t.Fatalf("TierFor(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestAutoApprovalRadius(t *testing.T) {
	cases := []struct {
		tier models.ReputationTier
		want int
	}{
		{models.TierNew, 50},
		{models.TierRegular, 100},
		{models.TierTrusted, 200},
		{models.TierSuspicious, 0},
		{models.TierBanned, 0},
	}
	for _, c := range cases {
		if got := AutoApprovalRadius(c.tier); got != c.want {
			t.Fatalf("AutoApprovalRadius(%s) = %d, want %d", c.tier, got, c.want)
		}
	}
}

func TestGetCreatesRecordLazily(t *testing.T) {
	s, repo := newTestStore(t)
	rec, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Score != 50 || rec.Tier != models.TierNew {
		t.Fatalf("unexpected initial record: %+v", rec)
	}
	if repo.Reputations["u1"] == nil {
		t.Fatalf("record not persisted")
	}
}

func TestApplyDeltasAndTierChange(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Apply(ctx, "u1", models.ActionSuccessfulCheckIn, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rec.Score != 52 || rec.TotalCheckIns != 1 || rec.SuccessfulCheckIns != 1 {
		t.Fatalf("unexpected after successful check-in: %+v", rec)
	}

	rec, err = s.Apply(ctx, "u1", models.ActionFalseCheckIn, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rec.Score != 42 || rec.FalseCheckIns != 1 {
		t.Fatalf("unexpected after false check-in: %+v", rec)
	}

	rec, err = s.Apply(ctx, "u1", models.ActionNoShow, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rec.Score != 37 || rec.Tier != models.TierSuspicious {
		t.Fatalf("expected suspicious at 37, got %+v", rec)
	}
	if rec.LastNoShowAt == nil {
		t.Fatalf("LastNoShowAt not set")
	}
}

func TestApplyClampsScore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		if _, err := s.Apply(ctx, "good", models.ActionSuccessfulCheckIn, ""); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	rec, _ := s.Get(ctx, "good")
	if rec.Score != 100 || rec.Tier != models.TierTrusted {
		t.Fatalf("expected clamped trusted 100, got %+v", rec)
	}

	for i := 0; i < 10; i++ {
		if _, err := s.Apply(ctx, "bad", models.ActionFalseCheckIn, ""); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	rec, _ = s.Get(ctx, "bad")
	if rec.Score != 0 || rec.Tier != models.TierBanned {
		t.Fatalf("expected clamped banned 0, got %+v", rec)
	}
}

func TestApplyIdempotencyKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.Apply(ctx, "u1", models.ActionNoShow, "q1:no_show")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	replay, err := s.Apply(ctx, "u1", models.ActionNoShow, "q1:no_show")
	if err != nil {
		t.Fatalf("Apply replay: %v", err)
	}
	if replay.Score != first.Score || replay.NoShows != first.NoShows {
		t.Fatalf("replay changed the record: first=%+v replay=%+v", first, replay)
	}
}

func TestIsBanned(t *testing.T) {
	s, repo := newTestStore(t)
	ctx := context.Background()
	repo.Reputations["banned"] = &models.UserReputation{UserID: "banned", Score: 5, Tier: models.TierBanned}

	banned, err := s.IsBanned(ctx, "banned")
	if err != nil {
		t.Fatalf("IsBanned: %v", err)
	}
	if !banned {
		t.Fatalf("expected banned")
	}
	banned, err = s.IsBanned(ctx, "fresh")
	if err != nil {
		t.Fatalf("IsBanned: %v", err)
	}
	if banned {
		t.Fatalf("fresh user should not be banned")
	}
}

func TestApplyUnknownAction(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Apply(context.Background(), "u1", models.ReputationAction("bogus"), ""); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
