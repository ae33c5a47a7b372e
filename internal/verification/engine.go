// Package verification decides what happens to a check-in attempt: approve
// automatically, hold for operator review, or reject outright.
package verification

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/geo"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/internal/reputation"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
)

const (
	// reviewRadiusMeters is the outer band: past the tier radius but inside
	// this, the attempt goes to the operator instead of being rejected.
	reviewRadiusMeters = 1000

	// Suspicious-pattern windows.
	patternLookback   = 30 * 24 * time.Hour
	patternLogSample  = 10
	repeatedThreshold = 3
	fastCheckIn       = 2 * time.Minute
)

// Decision is the outcome of the ladder for one check-in attempt.
type Decision struct {
	Verified       bool
	AutoApproved   bool
	RequiresReview bool
	Reason         string

	DistanceMeters    *int
	Suspicious        bool
	SuspiciousReasons []string
}

// Input carries everything the ladder needs for one attempt.
type Input struct {
	UserID        string
	QueueID       string
	UserLocation  *models.Location
	VenueLocation models.Location
	NotifiedAt    *time.Time
}

// Engine evaluates check-in attempts against reputation tier, distance and
// historical patterns.
type Engine struct {
	reps  *reputation.Store
	repo  domain.Repository
	clock clockwork.Clock
	log   *logging.Logger

	mDecisions *metrics.Counter
	mAuto      *metrics.Counter
	mReview    *metrics.Counter
	mRejected  *metrics.Counter
}

func NewEngine(reps *reputation.Store, repo domain.Repository, clock clockwork.Clock, log *logging.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		reps:       reps,
		repo:       repo,
		clock:      clock,
		log:        log.WithComponent("verification"),
		mDecisions: metrics.Default.Counter("verification_decisions_total", "Total verification decisions"),
		mAuto:      metrics.Default.Counter("verification_auto_approved_total", "Decisions that auto-approved"),
		mReview:    metrics.Default.Counter("verification_review_total", "Decisions held for operator review"),
		mRejected:  metrics.Default.Counter("verification_rejected_total", "Decisions rejected outright"),
	}
}

// Evaluate runs the decision ladder. Steps in order: banned tier rejects;
// missing location goes to review; invalid coordinates error out; suspicious
// patterns (or a suspicious tier) force review; distance within the tier
// radius auto-approves; within the review band it goes to the operator;
// beyond that it is rejected.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Decision, error) {
	e.mDecisions.Inc(1)

	rep, err := e.reps.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if rep.Tier == models.TierBanned {
		e.mRejected.Inc(1)
		return &Decision{Reason: "banned"}, nil
	}

	if in.UserLocation == nil {
		e.mReview.Inc(1)
		return &Decision{Verified: true, RequiresReview: true, Reason: "no location provided"}, nil
	}
	dist, err := geo.DistanceMeters(*in.UserLocation, in.VenueLocation)
	if err != nil {
		return nil, err
	}
	d := &Decision{DistanceMeters: &dist}

	reasons, err := e.suspiciousReasons(ctx, in)
	if err != nil {
		// pattern lookups are advisory; log and continue without them
		e.log.Warn("suspicious pattern lookup failed",
			logging.String("user_id", in.UserID), logging.Err(err))
		reasons = nil
	}
	if rep.Tier == models.TierSuspicious {
		reasons = append(reasons, "suspicious reputation tier")
	}
	if len(reasons) > 0 {
		d.Verified = true
		d.RequiresReview = true
		d.Suspicious = true
		d.SuspiciousReasons = reasons
		d.Reason = reasons[0]
		e.mReview.Inc(1)
		return d, nil
	}

	radius := reputation.AutoApprovalRadius(rep.Tier)
	switch {
	case radius > 0 && dist <= radius:
		d.Verified = true
		d.AutoApproved = true
		d.Reason = fmt.Sprintf("within %dm auto-approval radius", radius)
		e.mAuto.Inc(1)
	case dist <= reviewRadiusMeters:
		d.Verified = true
		d.RequiresReview = true
		d.Reason = "outside auto range"
		e.mReview.Inc(1)
	default:
		d.Reason = "too far"
		e.mRejected.Inc(1)
	}
	return d, nil
}

// suspiciousReasons evaluates the three historical patterns over the last
// 30 days.
func (e *Engine) suspiciousReasons(ctx context.Context, in Input) ([]string, error) {
	var reasons []string
	now := e.clock.Now().UTC()

	logs, err := e.repo.GetRecentCheckInLogsCtx(ctx, in.UserID, now.Add(-patternLookback), patternLogSample)
	if err != nil {
		return nil, err
	}
	if key, n := repeatedLocation(logs); n > repeatedThreshold {
		reasons = append(reasons, fmt.Sprintf("location %s repeated %d times in recent check-ins", key, n))
	}

	if in.NotifiedAt != nil {
		if since := now.Sub(*in.NotifiedAt); since >= 0 && since < fastCheckIn {
			reasons = append(reasons, fmt.Sprintf("check-in %s after notification", since.Round(time.Second)))
		}
	}

	active, err := e.repo.GetActiveEntriesByUserCtx(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	venues := map[string]bool{}
	for _, a := range active {
		venues[a.VenueID] = true
	}
	if len(venues) >= 2 {
		reasons = append(reasons, fmt.Sprintf("active queue entries at %d venues", len(venues)))
	}
	return reasons, nil
}

// repeatedLocation finds the most frequent (lat,long) rounded to 4 decimal
// places among the sampled logs and returns its key and count.
func repeatedLocation(logs []models.CheckInLog) (string, int) {
	counts := map[string]int{}
	bestKey, best := "", 0
	for _, l := range logs {
		if l.UserLocation == nil {
			continue
		}
		key := fmt.Sprintf("%.4f,%.4f", round4(l.UserLocation.Latitude), round4(l.UserLocation.Longitude))
		counts[key]++
		if counts[key] > best {
			bestKey, best = key, counts[key]
		}
	}
	return bestKey, best
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
