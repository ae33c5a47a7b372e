// Package reputation owns per-user reputation records: counters, the
// clamped score, and the tier derived from it.
package reputation

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/logging"
)

// Score deltas per action.
var actionDeltas = map[models.ReputationAction]int{
	models.ActionSuccessfulCheckIn: +2,
	models.ActionFalseCheckIn:      -10,
	models.ActionNoShow:            -5,
	models.ActionCompletedService:  +1,
	models.ActionAdminOverride:     -3,
}

const (
	initialScore = 50
	lockShards   = 64
)

// TierFor derives the tier from a clamped score. Boundaries favor the
// higher tier.
func TierFor(score int) models.ReputationTier {
	switch {
	case score >= 90:
		return models.TierTrusted
	case score >= 70:
		return models.TierRegular
	case score >= 40:
		return models.TierNew
	case score >= 20:
		return models.TierSuspicious
	default:
		return models.TierBanned
	}
}

// AutoApprovalRadius returns the meters within which a check-in from this
// tier auto-approves. Zero disables auto-approval for the tier.
func AutoApprovalRadius(tier models.ReputationTier) int {
	switch tier {
	case models.TierNew:
		return 50
	case models.TierRegular:
		return 100
	case models.TierTrusted:
		return 200
	default: // suspicious, banned
		return 0
	}
}

// Store serializes writes per user via mutex striping. Concurrent Apply
// calls for the same user take the same shard lock.
type Store struct {
	repo  domain.Repository
	clock clockwork.Clock
	log   *logging.Logger
	locks [lockShards]sync.Mutex
}

func NewStore(repo domain.Repository, clock clockwork.Clock, log *logging.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{repo: repo, clock: clock, log: log.WithComponent("reputation")}
}

func (s *Store) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.locks[h.Sum32()%lockShards]
}

// Get returns the user's record, creating it at score 50 / tier new on
// first access.
func (s *Store) Get(ctx context.Context, userID string) (*models.UserReputation, error) {
	if userID == "" {
		return nil, errs.New(errs.CodeInvalidUserID, "reputation.Get", "empty user id", nil)
	}
	rec, err := s.repo.GetReputationCtx(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	// re-check under the lock; another goroutine may have created it
	rec, err = s.repo.GetReputationCtx(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	now := s.clock.Now().UTC()
	rec = &models.UserReputation{
		UserID:    userID,
		Score:     initialScore,
		Tier:      TierFor(initialScore),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertReputationCtx(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Apply moves the user's score by the action's delta, updates the matching
// counter, re-derives the tier and bumps UpdatedAt. An optional idempotency
// key (queueId + transition reason) makes at-least-once retries safe:
// replays return the current record without a second score change.
func (s *Store) Apply(ctx context.Context, userID string, action models.ReputationAction, idemKey string) (*models.UserReputation, error) {
	delta, ok := actionDeltas[action]
	if !ok {
		return nil, errs.New(errs.CodeInvalidInput, "reputation.Apply", "unknown action: "+string(action), nil)
	}

	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	if idemKey != "" {
		fresh, err := s.repo.MarkReputationApplyCtx(ctx, userID, idemKey)
		if err != nil {
			return nil, err
		}
		if !fresh {
			return s.getLocked(ctx, userID)
		}
	}

	rec, err := s.getLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	switch action {
	case models.ActionSuccessfulCheckIn:
		rec.TotalCheckIns++
		rec.SuccessfulCheckIns++
		rec.LastCheckInAt = &now
	case models.ActionFalseCheckIn:
		rec.TotalCheckIns++
		rec.FalseCheckIns++
		rec.LastCheckInAt = &now
	case models.ActionNoShow:
		rec.NoShows++
		rec.LastNoShowAt = &now
	case models.ActionCompletedService:
		rec.CompletedServices++
	case models.ActionAdminOverride:
		rec.FalseCheckIns++
	}

	rec.Score = clamp(rec.Score + delta)
	rec.Tier = TierFor(rec.Score)
	rec.UpdatedAt = now

	if err := s.repo.UpsertReputationCtx(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("reputation applied",
		logging.String("user_id", userID),
		logging.String("action", string(action)),
		logging.Int("score", rec.Score),
		logging.String("tier", string(rec.Tier)))
	return rec, nil
}

// IsBanned reports whether the user's tier is banned.
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec.Tier == models.TierBanned, nil
}

// getLocked is Get without taking the shard lock; callers hold it.
func (s *Store) getLocked(ctx context.Context, userID string) (*models.UserReputation, error) {
	rec, err := s.repo.GetReputationCtx(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	now := s.clock.Now().UTC()
	rec = &models.UserReputation{
		UserID:    userID,
		Score:     initialScore,
		Tier:      TierFor(initialScore),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertReputationCtx(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
