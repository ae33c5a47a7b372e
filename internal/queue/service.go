package queue

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/audit"
	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/internal/notify"
	"walkin-queue-coordinator/internal/realtime"
	"walkin-queue-coordinator/internal/reputation"
	"walkin-queue-coordinator/internal/verification"
	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/events"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
)

const entryLockShards = 64

// Reasons recorded on no-show transitions.
const (
	ReasonNoResponse       = "did not respond within 20 minutes"
	ReasonCustomerCancel   = "cancelled by customer"
	ReasonOperatorDecision = "marked no-show by operator"
)

// Actor identifies who asked for an operation.
type Actor struct {
	UserID string
	Role   models.Role
}

// Service is the queue orchestrator. All lifecycle operations go through
// here; transitions for the same entry serialize on a striped lock and are
// additionally guarded by a compare-and-set on the persisted status.
type Service struct {
	repo       domain.Repository
	uow        domain.UnitOfWorkFactory
	reps       *reputation.Store
	verifier   *verification.Engine
	auditw     *audit.Writer
	dispatcher *notify.Dispatcher
	bus        *realtime.Bus
	positions  *PositionEngine
	events     events.Store
	clock      clockwork.Clock
	log        *logging.Logger

	locks      [entryLockShards]sync.Mutex
	venueLocks [entryLockShards]sync.Mutex

	mTransitions *metrics.Counter
	mCheckIns    *metrics.Counter
}

func NewService(
	repo domain.Repository,
	uow domain.UnitOfWorkFactory,
	reps *reputation.Store,
	verifier *verification.Engine,
	auditw *audit.Writer,
	dispatcher *notify.Dispatcher,
	bus *realtime.Bus,
	positions *PositionEngine,
	clock clockwork.Clock,
	log *logging.Logger,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:         repo,
		uow:          uow,
		reps:         reps,
		verifier:     verifier,
		auditw:       auditw,
		dispatcher:   dispatcher,
		bus:          bus,
		positions:    positions,
		clock:        clock,
		log:          log.WithComponent("queue"),
		mTransitions: metrics.Default.Counter("queue_transitions_total", "Status transitions applied"),
		mCheckIns:    metrics.Default.Counter("queue_checkins_total", "Check-in attempts"),
	}
}

// SetEventStore enables durable transition events. Optional; without a
// store, transitions are still logged and counted.
func (s *Service) SetEventStore(es events.Store) { s.events = es }

func (s *Service) entryLock(queueID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(queueID))
	return &s.locks[h.Sum32()%entryLockShards]
}

// venueLock serializes venue-wide checks that span entries, like the
// single-service guard. Always taken after the entry lock.
func (s *Service) venueLock(venueID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(venueID))
	return &s.venueLocks[h.Sum32()%entryLockShards]
}

// persist writes the entry under a transaction with a compare-and-set on
// the previous status.
func (s *Service) persist(ctx context.Context, e *models.QueueEntry, expected models.Status) error {
	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	if err := uow.UpdateQueueEntryStatusCtx(ctx, e, expected); err != nil {
		return err
	}
	return uow.Commit()
}

// Enrol creates a waiting entry for the user at the venue.
func (s *Service) Enrol(ctx context.Context, userID, venueID string, serviceIDs []string, totalPrice float64, offerIDs []string) (*models.QueueEntry, error) {
	const op = "queue.Enrol"

	banned, err := s.reps.IsBanned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, errs.NewUser(errs.CodeUserBanned, op, "banned user tried to enrol",
			"your account is currently blocked from joining queues", nil)
	}

	venue, err := s.repo.GetVenueCtx(ctx, venueID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetActiveEntryCtx(ctx, userID, venueID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.NewUser(errs.CodeAlreadyInQueue, op, "active entry exists",
			"you are already in this venue's queue", nil).
			WithDetail("queueId", existing.ID)
	}

	// cross-venue activity is allowed but feeds the suspicious patterns
	others, err := s.repo.GetActiveEntriesByUserCtx(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(others) > 0 {
		s.log.Info("enrolment with other active entries",
			logging.String("user_id", userID), logging.Int("active_entries", len(others)))
	}

	e := &models.QueueEntry{
		ID:         uuid.NewString(),
		VenueID:    venueID,
		UserID:     userID,
		ServiceIDs: serviceIDs,
		TotalPrice: totalPrice,
		OfferIDs:   offerIDs,
		Status:     models.StatusWaiting,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.repo.CreateQueueEntryCtx(ctx, e); err != nil {
		return nil, err
	}

	entries, err := s.positions.Recompute(ctx, venueID)
	if err != nil {
		s.log.Error("position recompute after enrol failed",
			logging.String("venue_id", venueID), logging.Err(err))
	}
	for _, re := range entries {
		if re.ID == e.ID {
			e.Position = re.Position
			e.EstimatedWaitMinutes = re.EstimatedWaitMinutes
		}
	}
	s.notifyOwners(ctx, venue.ID, realtime.FrameQueueUpdate, map[string]any{
		"venueId": venue.ID,
		"data":    map[string]any{"event": "enrolled", "queueId": e.ID, "position": e.Position},
	})
	return e, nil
}

// Cancel closes the customer's own entry. It lands in no-show terminally but
// carries a cancel reason and no reputation penalty.
func (s *Service) Cancel(ctx context.Context, queueID, userID string) (*models.QueueEntry, error) {
	const op = "queue.Cancel"
	lock := s.entryLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.repo.GetQueueEntryCtx(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, errs.New(errs.CodeNotQueueOwner, op, "entry belongs to another user", nil)
	}
	if e.Status.Terminal() {
		return nil, errs.New(errs.CodeQueueAlreadyCompleted, op, "entry already closed", nil)
	}

	from := e.Status
	now := s.clock.Now().UTC()
	reason := ReasonCustomerCancel
	e.Status = models.StatusNoShow
	e.NoShowMarkedAt = &now
	e.NoShowReason = &reason
	if err := s.persist(ctx, e, from); err != nil {
		return nil, err
	}
	s.logTransition(e, from, userID, reason)

	if _, err := s.positions.Recompute(ctx, e.VenueID); err != nil {
		s.log.Error("position recompute after cancel failed",
			logging.String("venue_id", e.VenueID), logging.Err(err))
	}
	s.notifyOwners(ctx, e.VenueID, realtime.FrameQueueUpdate, map[string]any{
		"venueId": e.VenueID,
		"data":    map[string]any{"event": "cancelled", "queueId": e.ID},
	})
	return e, nil
}

// Notify performs waiting → notified and tells the customer to come now.
func (s *Service) Notify(ctx context.Context, queueID string, actor Actor, windowMinutes int) (*models.QueueEntry, error) {
	const op = "queue.Notify"
	lock := s.entryLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.repo.GetQueueEntryCtx(ctx, queueID)
	if err != nil {
		return nil, err
	}
	venue, err := s.ownedVenue(ctx, op, e.VenueID, actor)
	if err != nil {
		return nil, err
	}
	if !CanTransition(e.Status, models.StatusNotified) {
		return nil, invalidTransition(op, e.Status, models.StatusNotified)
	}

	from := e.Status
	now := s.clock.Now().UTC()
	e.Status = models.StatusNotified
	e.NotifiedAt = &now
	e.NotificationWindowMinutes = &windowMinutes
	if err := s.persist(ctx, e, from); err != nil {
		return nil, err
	}
	s.logTransition(e, from, actor.UserID, "operator notification")

	if s.dispatcher != nil {
		if _, err := s.dispatcher.Notify(ctx, notify.Notification{
			QueueID: e.ID, UserID: e.UserID, VenueID: venue.ID,
			Kind: models.KindQueueNotification,
			Data: notify.TemplateData{
				VenueName:        venue.Name,
				VenueAddress:     venue.Address,
				EstimatedMinutes: windowMinutes,
				Services:         e.ServiceIDs,
			},
			FrameFields: map[string]any{
				"venueName":        venue.Name,
				"venueAddress":     venue.Address,
				"estimatedMinutes": windowMinutes,
				"services":         e.ServiceIDs,
				"venueLocation":    venue.Location(),
			},
		}); err != nil {
			s.log.Error("queue notification dispatch failed",
				logging.String("queue_id", e.ID), logging.Err(err))
		}
	}
	s.notifyOwners(ctx, venue.ID, realtime.FrameQueueUpdate, map[string]any{
		"venueId": venue.ID,
		"data":    map[string]any{"event": "notified", "queueId": e.ID},
	})
	return e, nil
}

// CheckIn records the customer's arrival attempt and routes it through the
// verification ladder.
func (s *Service) CheckIn(ctx context.Context, queueID, userID string, loc *models.Location) (*models.QueueEntry, *verification.Decision, error) {
	const op = "queue.CheckIn"
	s.mCheckIns.Inc(1)
	lock := s.entryLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.repo.GetQueueEntryCtx(ctx, queueID)
	if err != nil {
		return nil, nil, err
	}
	if e.UserID != userID {
		return nil, nil, errs.New(errs.CodeNotQueueOwner, op, "entry belongs to another user", nil)
	}
	if e.Status != models.StatusNotified {
		return nil, nil, invalidTransition(op, e.Status, models.StatusPendingVerification)
	}
	venue, err := s.repo.GetVenueCtx(ctx, e.VenueID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now().UTC()
	decision, err := s.verifier.Evaluate(ctx, verification.Input{
		UserID:        userID,
		QueueID:       queueID,
		UserLocation:  loc,
		VenueLocation: venue.Location(),
		NotifiedAt:    e.NotifiedAt,
	})
	if err != nil {
		return nil, nil, err
	}

	var sinceNotify int64
	if e.NotifiedAt != nil {
		sinceNotify = now.Sub(*e.NotifiedAt).Milliseconds()
	}
	method := models.MethodGPSAuto
	if loc == nil {
		method = models.MethodManual
	}

	from := e.Status
	e.CheckInAttemptedAt = &now
	e.CheckInLocation = loc
	e.CheckInDistanceMeters = decision.DistanceMeters

	switch {
	case decision.Verified && decision.AutoApproved:
		e.Status = models.StatusNearby
		e.VerifiedAt = &now
		m := models.MethodGPSAuto
		e.VerificationMethod = &m
	case decision.Verified && decision.RequiresReview:
		e.Status = models.StatusPendingVerification
	default:
		// rejected; the entry stays notified but the attempt is recorded
	}
	if err := s.persist(ctx, e, from); err != nil {
		return nil, nil, err
	}
	if e.Status != from {
		s.logTransition(e, from, userID, decision.Reason)
	}

	s.auditw.CheckIn(ctx, models.CheckInLog{
		QueueID:                 e.ID,
		UserID:                  userID,
		VenueID:                 venue.ID,
		Timestamp:               now,
		UserLocation:            loc,
		VenueLocation:           venue.Location(),
		DistanceMeters:          decision.DistanceMeters,
		Method:                  method,
		AutoApproved:            decision.AutoApproved,
		RequiresConfirmation:    decision.RequiresReview,
		Success:                 decision.Verified,
		Reason:                  decision.Reason,
		Suspicious:              decision.Suspicious,
		SuspiciousReasons:       decision.SuspiciousReasons,
		TimeSinceNotificationMs: sinceNotify,
	})

	switch {
	case decision.Verified && decision.AutoApproved:
		if _, err := s.reps.Apply(ctx, userID, models.ActionSuccessfulCheckIn, e.ID+":successful_checkin"); err != nil {
			s.log.Error("reputation apply failed", logging.String("queue_id", e.ID), logging.Err(err))
		}
		s.notifyCustomerArrived(ctx, e, venue, decision, false)
		s.dispatchArrivalVerified(ctx, e, venue)
	case decision.Verified && decision.RequiresReview:
		s.notifyCustomerArrived(ctx, e, venue, decision, true)
	}
	return e, decision, nil
}

// VerifyArrival is the operator decision on a pending check-in.
func (s *Service) VerifyArrival(ctx context.Context, queueID string, actor Actor, confirmed bool, notes string) (*models.QueueEntry, error) {
	const op = "queue.VerifyArrival"
	lock := s.entryLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.repo.GetQueueEntryCtx(ctx, queueID)
	if err != nil {
		return nil, err
	}
	venue, err := s.ownedVenue(ctx, op, e.VenueID, actor)
	if err != nil {
		return nil, err
	}
	if e.Status != models.StatusPendingVerification {
		target := models.StatusNearby
		if !confirmed {
			target = models.StatusNotified
		}
		return nil, invalidTransition(op, e.Status, target)
	}

	from := e.Status
	now := s.clock.Now().UTC()
	reason := notes
	if confirmed {
		e.Status = models.StatusNearby
		e.VerifiedAt = &now
		m := models.MethodAdminOverride
		e.VerificationMethod = &m
		e.VerifiedByAdminID = &actor.UserID
		if reason == "" {
			reason = "operator confirmed arrival"
		}
	} else {
		e.Status = models.StatusNotified
		if reason == "" {
			reason = "operator rejected arrival"
		}
	}
	if err := s.persist(ctx, e, from); err != nil {
		return nil, err
	}
	s.logTransition(e, from, actor.UserID, reason)

	var dist *int
	if e.CheckInDistanceMeters != nil {
		d := *e.CheckInDistanceMeters
		dist = &d
	}
	s.auditw.CheckIn(ctx, models.CheckInLog{
		QueueID:        e.ID,
		UserID:         e.UserID,
		VenueID:        venue.ID,
		Timestamp:      now,
		UserLocation:   e.CheckInLocation,
		VenueLocation:  venue.Location(),
		DistanceMeters: dist,
		Method:         models.MethodAdminOverride,
		Success:        confirmed,
		Reason:         reason,
	})

	if confirmed {
		s.dispatchArrivalVerified(ctx, e, venue)
	} else {
		// rejection costs reputation; see the admin_override action
		if _, err := s.reps.Apply(ctx, e.UserID, models.ActionAdminOverride, e.ID+":admin_override"); err != nil {
			s.log.Error("reputation apply failed", logging.String("queue_id", e.ID), logging.Err(err))
		}
	}
	return e, nil
}

// UpdateStatus routes a requested status change through the state machine.
func (s *Service) UpdateStatus(ctx context.Context, queueID string, newStatus models.Status, actor Actor, notes string) (*models.QueueEntry, error) {
	const op = "queue.UpdateStatus"
	if !newStatus.Valid() {
		return nil, errs.New(errs.CodeInvalidInput, op, "unknown status: "+string(newStatus), nil)
	}
	lock := s.entryLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.repo.GetQueueEntryCtx(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeStatusChange(ctx, op, e, newStatus, actor); err != nil {
		return nil, err
	}
	if !CanTransition(e.Status, newStatus) {
		return nil, invalidTransition(op, e.Status, newStatus)
	}

	// One chair per venue: the check and the status write must not
	// interleave with another entry's transition at the same venue.
	if newStatus == models.StatusInProgress {
		vl := s.venueLock(e.VenueID)
		vl.Lock()
		defer vl.Unlock()
		active, err := s.repo.GetActiveEntriesByVenueCtx(ctx, e.VenueID)
		if err != nil {
			return nil, err
		}
		for _, other := range active {
			if other.ID != e.ID && other.Status == models.StatusInProgress {
				return nil, errs.NewUser(errs.CodeInvalidStatusTransition, op,
					"another entry is already in-progress at the venue",
					"another customer is currently being served", nil).
					WithDetail("conflictingQueueId", other.ID)
			}
		}
	}

	from := e.Status
	now := s.clock.Now().UTC()
	e.Status = newStatus
	switch newStatus {
	case models.StatusNotified:
		e.NotifiedAt = &now
		if e.NotificationWindowMinutes == nil {
			def := 10
			e.NotificationWindowMinutes = &def
		}
	case models.StatusNearby:
		e.VerifiedAt = &now
		m := models.MethodAdminOverride
		e.VerificationMethod = &m
		e.VerifiedByAdminID = &actor.UserID
	case models.StatusInProgress:
		e.ServiceStartedAt = &now
	case models.StatusCompleted:
		e.ServiceCompletedAt = &now
	case models.StatusNoShow:
		reason := notes
		if reason == "" {
			reason = ReasonOperatorDecision
		}
		e.NoShowMarkedAt = &now
		e.NoShowReason = &reason
	}
	if err := s.persist(ctx, e, from); err != nil {
		return nil, err
	}
	s.logTransition(e, from, actor.UserID, notes)
	s.afterTransition(ctx, e)
	return e, nil
}

// MarkNoShow is the sweeper entry point for notified entries that timed out.
func (s *Service) MarkNoShow(ctx context.Context, queueID, reason string) error {
	lock := s.entryLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.repo.GetQueueEntryCtx(ctx, queueID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return nil // another path already closed it
	}
	if !CanTransition(e.Status, models.StatusNoShow) {
		return invalidTransition("queue.MarkNoShow", e.Status, models.StatusNoShow)
	}
	from := e.Status
	now := s.clock.Now().UTC()
	e.Status = models.StatusNoShow
	e.NoShowMarkedAt = &now
	e.NoShowReason = &reason
	if err := s.persist(ctx, e, from); err != nil {
		return err
	}
	s.logTransition(e, from, "system", reason)
	s.afterTransition(ctx, e)
	return nil
}

// RevertPending returns a stalled pending_verification entry to notified.
// No reputation change; the customer simply gets another chance.
func (s *Service) RevertPending(ctx context.Context, queueID string) error {
	lock := s.entryLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.repo.GetQueueEntryCtx(ctx, queueID)
	if err != nil {
		return err
	}
	if e.Status != models.StatusPendingVerification {
		return nil
	}
	from := e.Status
	e.Status = models.StatusNotified
	if err := s.persist(ctx, e, from); err != nil {
		return err
	}
	s.logTransition(e, from, "system", "verification timed out")
	return nil
}

// RecomputePositions re-ranks a venue's queue on demand.
func (s *Service) RecomputePositions(ctx context.Context, venueID string) ([]models.QueueEntry, error) {
	return s.positions.Recompute(ctx, venueID)
}

// GetEntry loads a single entry.
func (s *Service) GetEntry(ctx context.Context, queueID string) (*models.QueueEntry, error) {
	return s.repo.GetQueueEntryCtx(ctx, queueID)
}

// VenueQueue lists a venue's active entries in queue order.
func (s *Service) VenueQueue(ctx context.Context, venueID string) ([]models.QueueEntry, error) {
	return s.repo.GetActiveEntriesByVenueCtx(ctx, venueID)
}

// PendingVerifications lists entries awaiting operator review, suspicious
// attempts first, then oldest attempt first.
func (s *Service) PendingVerifications(ctx context.Context, venueID string) ([]models.QueueEntry, error) {
	entries, err := s.repo.GetActiveEntriesByVenueCtx(ctx, venueID)
	if err != nil {
		return nil, err
	}
	var pending []models.QueueEntry
	suspicious := map[string]bool{}
	for _, e := range entries {
		if e.Status != models.StatusPendingVerification {
			continue
		}
		pending = append(pending, e)
		if l, err := s.repo.GetLatestCheckInLogCtx(ctx, e.ID); err == nil && l != nil {
			suspicious[e.ID] = l.Suspicious
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		si, sj := suspicious[pending[i].ID], suspicious[pending[j].ID]
		if si != sj {
			return si
		}
		ti, tj := pending[i].CheckInAttemptedAt, pending[j].CheckInAttemptedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.Before(*tj)
		}
	})
	return pending, nil
}

// afterTransition runs the side effects that follow a durable terminal or
// service transition: reputation, customer notification, re-ranking.
func (s *Service) afterTransition(ctx context.Context, e *models.QueueEntry) {
	venue, err := s.repo.GetVenueCtx(ctx, e.VenueID)
	if err != nil {
		s.log.Error("venue lookup for side effects failed",
			logging.String("venue_id", e.VenueID), logging.Err(err))
		venue = &models.Venue{ID: e.VenueID}
	}

	switch e.Status {
	case models.StatusInProgress:
		s.dispatch(ctx, e, models.KindServiceStarting, notify.TemplateData{VenueName: venue.Name})
	case models.StatusCompleted:
		if _, err := s.reps.Apply(ctx, e.UserID, models.ActionCompletedService, e.ID+":completed_service"); err != nil {
			s.log.Error("reputation apply failed", logging.String("queue_id", e.ID), logging.Err(err))
		}
		s.dispatch(ctx, e, models.KindServiceCompleted, notify.TemplateData{VenueName: venue.Name})
		if _, err := s.positions.Recompute(ctx, e.VenueID); err != nil {
			s.log.Error("position recompute failed", logging.String("venue_id", e.VenueID), logging.Err(err))
		}
	case models.StatusNoShow:
		reason := ""
		if e.NoShowReason != nil {
			reason = *e.NoShowReason
		}
		if reason != ReasonCustomerCancel {
			if _, err := s.reps.Apply(ctx, e.UserID, models.ActionNoShow, e.ID+":no_show"); err != nil {
				s.log.Error("reputation apply failed", logging.String("queue_id", e.ID), logging.Err(err))
			}
		}
		s.dispatch(ctx, e, models.KindNoShow, notify.TemplateData{VenueName: venue.Name, Reason: reason})
		if _, err := s.positions.Recompute(ctx, e.VenueID); err != nil {
			s.log.Error("position recompute failed", logging.String("venue_id", e.VenueID), logging.Err(err))
		}
	}
}

func (s *Service) dispatch(ctx context.Context, e *models.QueueEntry, kind models.NotificationKind, data notify.TemplateData) {
	if s.dispatcher == nil {
		return
	}
	if _, err := s.dispatcher.Notify(ctx, notify.Notification{
		QueueID: e.ID, UserID: e.UserID, VenueID: e.VenueID, Kind: kind, Data: data,
	}); err != nil {
		s.log.Error("notification dispatch failed",
			logging.String("queue_id", e.ID), logging.String("kind", string(kind)), logging.Err(err))
	}
}

func (s *Service) dispatchArrivalVerified(ctx context.Context, e *models.QueueEntry, venue *models.Venue) {
	s.dispatch(ctx, e, models.KindArrivalVerified, notify.TemplateData{VenueName: venue.Name})
}

func (s *Service) notifyCustomerArrived(ctx context.Context, e *models.QueueEntry, venue *models.Venue, d *verification.Decision, requiresConfirmation bool) {
	if s.bus == nil {
		return
	}
	user, err := s.repo.GetUserCtx(ctx, e.UserID)
	if err != nil {
		user = &models.User{ID: e.UserID}
	}
	fields := map[string]any{
		"venueId":              venue.ID,
		"queueId":              e.ID,
		"userId":               e.UserID,
		"userName":             user.Name,
		"verified":             d.AutoApproved,
		"requiresConfirmation": requiresConfirmation,
	}
	if user.Phone != nil {
		fields["userPhone"] = *user.Phone
	}
	if d.DistanceMeters != nil {
		fields["distance"] = *d.DistanceMeters
	}
	s.bus.BroadcastToVenueOwners(ctx, venue.ID,
		realtime.NewFrame(realtime.FrameCustomerArrived, s.clock.Now(), fields))
}

func (s *Service) notifyOwners(ctx context.Context, venueID, frameType string, fields map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.BroadcastToVenueOwners(ctx, venueID, realtime.NewFrame(frameType, s.clock.Now(), fields))
}

// ownedVenue loads the venue and checks the actor owns it.
func (s *Service) ownedVenue(ctx context.Context, op, venueID string, actor Actor) (*models.Venue, error) {
	venue, err := s.repo.GetVenueCtx(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleVenueOwner || venue.OwnerUserID != actor.UserID {
		return nil, errs.New(errs.CodeNotVenueOwner, op, "actor does not own the venue", nil)
	}
	return venue, nil
}

func (s *Service) authorizeStatusChange(ctx context.Context, op string, e *models.QueueEntry, newStatus models.Status, actor Actor) error {
	switch newStatus {
	case models.StatusPendingVerification:
		if actor.Role != models.RoleCustomer || e.UserID != actor.UserID {
			return errs.New(errs.CodeForbidden, op, "only the entry's customer may request verification", nil)
		}
		return nil
	case models.StatusNotified, models.StatusNearby, models.StatusInProgress, models.StatusCompleted, models.StatusNoShow:
		_, err := s.ownedVenue(ctx, op, e.VenueID, actor)
		return err
	default:
		return errs.New(errs.CodeInvalidInput, op, "unknown status", nil)
	}
}

func (s *Service) logTransition(e *models.QueueEntry, from models.Status, actor, reason string) {
	s.mTransitions.Inc(1)
	s.log.Info("status transition",
		logging.String("queue_id", e.ID),
		logging.String("venue_id", e.VenueID),
		logging.String("old_status", string(from)),
		logging.String("new_status", string(e.Status)),
		logging.String("actor", actor),
		logging.String("reason", reason))
	if s.events != nil {
		ev := events.Transition{
			Base:      events.Base{Ts: s.clock.Now().UTC(), QID: e.ID, Act: &actor},
			VenueID:   e.VenueID,
			OldStatus: string(from),
			NewStatus: string(e.Status),
			Reason:    reason,
		}
		if err := s.events.Append(context.Background(), ev); err != nil {
			s.log.Error("transition event append failed",
				logging.String("queue_id", e.ID), logging.Err(err))
		}
	}
}
