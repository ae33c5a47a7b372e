package domain

import (
	"context"
	"time"

	"walkin-queue-coordinator/internal/models"
)

// QueueRepository defines data access for queue entries.
type QueueRepository interface {
	CreateQueueEntryCtx(ctx context.Context, e *models.QueueEntry) error
	GetQueueEntryCtx(ctx context.Context, id string) (*models.QueueEntry, error)
	// GetActiveEntryCtx returns the user's non-terminal entry at the venue, or nil.
	GetActiveEntryCtx(ctx context.Context, userID, venueID string) (*models.QueueEntry, error)
	// GetActiveEntriesByUserCtx returns all non-terminal entries for a user across venues.
	GetActiveEntriesByUserCtx(ctx context.Context, userID string) ([]models.QueueEntry, error)
	// GetActiveEntriesByVenueCtx returns non-terminal entries ordered by createdAt ascending.
	GetActiveEntriesByVenueCtx(ctx context.Context, venueID string) ([]models.QueueEntry, error)
	// GetStalledEntriesCtx returns entries in the given status whose marker
	// timestamp (notifiedAt for notified, checkInAttemptedAt for
	// pending_verification) is at or before cutoff.
	GetStalledEntriesCtx(ctx context.Context, status models.Status, cutoff time.Time) ([]models.QueueEntry, error)

	// UpdateQueueEntryStatusCtx persists the entry's status and lifecycle
	// fields, guarded by the expected current status (compare-and-set).
	// Returns InvalidStatusTransition-compatible failure when the guard
	// does not match.
	UpdateQueueEntryStatusCtx(ctx context.Context, e *models.QueueEntry, expected models.Status) error
	UpdatePositionsCtx(ctx context.Context, venueID string, positions map[string]int, waits map[string]int) error
}

// ReputationRepository defines reputation record access.
type ReputationRepository interface {
	GetReputationCtx(ctx context.Context, userID string) (*models.UserReputation, error)
	// UpsertReputationCtx writes the full record, creating it when absent.
	UpsertReputationCtx(ctx context.Context, r *models.UserReputation) error
	// MarkReputationApplyCtx records an idempotency key; it returns false
	// when the key was already recorded (replay) without error.
	MarkReputationApplyCtx(ctx context.Context, userID, key string) (bool, error)
}

// AuditLogRepository defines append-only log access. Logs are never updated.
type AuditLogRepository interface {
	CreateCheckInLogCtx(ctx context.Context, l *models.CheckInLog) error
	GetRecentCheckInLogsCtx(ctx context.Context, userID string, since time.Time, limit int) ([]models.CheckInLog, error)
	GetCheckInHistoryCtx(ctx context.Context, userID string, limit, offset int) ([]models.CheckInLog, int, error)
	// GetLatestCheckInLogCtx returns the newest log for a queue entry, or nil.
	GetLatestCheckInLogCtx(ctx context.Context, queueID string) (*models.CheckInLog, error)

	CreateNotificationLogCtx(ctx context.Context, l *models.NotificationLog) error
	GetNotificationLogsCtx(ctx context.Context, queueID string) ([]models.NotificationLog, error)
}

// VenueRepository reads the venue model this service consumes but never writes.
type VenueRepository interface {
	GetVenueCtx(ctx context.Context, id string) (*models.Venue, error)
}

// UserRepository reads the user model this service consumes but never writes.
type UserRepository interface {
	GetUserCtx(ctx context.Context, id string) (*models.User, error)
}

// PushSubscriptionRepository stores web-push endpoints.
type PushSubscriptionRepository interface {
	CreatePushSubscriptionCtx(ctx context.Context, s *models.PushSubscription) error
	GetPushSubscriptionsCtx(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeletePushSubscriptionCtx(ctx context.Context, userID, endpoint string) error
}

// Repository aggregates the repos commonly required by services.
type Repository interface {
	QueueRepository
	ReputationRepository
	AuditLogRepository
	VenueRepository
	UserRepository
	PushSubscriptionRepository
}
