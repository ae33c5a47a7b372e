package repository

import (
	"context"
	"time"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/pkg/database"
)

// SQLRepository is a thin adapter over pkg/database.DB to satisfy the domain
// repositories. It keeps business logic decoupled from the SQL layer.
type SQLRepository struct {
	db *database.DB
}

func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Ensure interface compliance at compile time
var _ domain.Repository = (*SQLRepository)(nil)

// QueueRepository methods
func (r *SQLRepository) CreateQueueEntryCtx(ctx context.Context, e *models.QueueEntry) error {
	return r.db.CreateQueueEntryCtx(ctx, e)
}

func (r *SQLRepository) GetQueueEntryCtx(ctx context.Context, id string) (*models.QueueEntry, error) {
	return r.db.GetQueueEntryCtx(ctx, id)
}

func (r *SQLRepository) GetActiveEntryCtx(ctx context.Context, userID, venueID string) (*models.QueueEntry, error) {
	return r.db.GetActiveEntryCtx(ctx, userID, venueID)
}

func (r *SQLRepository) GetActiveEntriesByUserCtx(ctx context.Context, userID string) ([]models.QueueEntry, error) {
	return r.db.GetActiveEntriesByUserCtx(ctx, userID)
}

func (r *SQLRepository) GetActiveEntriesByVenueCtx(ctx context.Context, venueID string) ([]models.QueueEntry, error) {
	return r.db.GetActiveEntriesByVenueCtx(ctx, venueID)
}

func (r *SQLRepository) GetStalledEntriesCtx(ctx context.Context, status models.Status, cutoff time.Time) ([]models.QueueEntry, error) {
	return r.db.GetStalledEntriesCtx(ctx, status, cutoff)
}

func (r *SQLRepository) UpdateQueueEntryStatusCtx(ctx context.Context, e *models.QueueEntry, expected models.Status) error {
	return r.db.UpdateQueueEntryStatusCtx(ctx, e, expected)
}

func (r *SQLRepository) UpdatePositionsCtx(ctx context.Context, venueID string, positions map[string]int, waits map[string]int) error {
	return r.db.UpdatePositionsCtx(ctx, venueID, positions, waits)
}

// ReputationRepository methods
func (r *SQLRepository) GetReputationCtx(ctx context.Context, userID string) (*models.UserReputation, error) {
	return r.db.GetReputationCtx(ctx, userID)
}

func (r *SQLRepository) UpsertReputationCtx(ctx context.Context, rep *models.UserReputation) error {
	return r.db.UpsertReputationCtx(ctx, rep)
}

func (r *SQLRepository) MarkReputationApplyCtx(ctx context.Context, userID, key string) (bool, error) {
	return r.db.MarkReputationApplyCtx(ctx, userID, key)
}

// AuditLogRepository methods
func (r *SQLRepository) CreateCheckInLogCtx(ctx context.Context, l *models.CheckInLog) error {
	return r.db.CreateCheckInLogCtx(ctx, l)
}

func (r *SQLRepository) GetRecentCheckInLogsCtx(ctx context.Context, userID string, since time.Time, limit int) ([]models.CheckInLog, error) {
	return r.db.GetRecentCheckInLogsCtx(ctx, userID, since, limit)
}

func (r *SQLRepository) GetCheckInHistoryCtx(ctx context.Context, userID string, limit, offset int) ([]models.CheckInLog, int, error) {
	return r.db.GetCheckInHistoryCtx(ctx, userID, limit, offset)
}

func (r *SQLRepository) GetLatestCheckInLogCtx(ctx context.Context, queueID string) (*models.CheckInLog, error) {
	return r.db.GetLatestCheckInLogCtx(ctx, queueID)
}

func (r *SQLRepository) CreateNotificationLogCtx(ctx context.Context, l *models.NotificationLog) error {
	return r.db.CreateNotificationLogCtx(ctx, l)
}

func (r *SQLRepository) GetNotificationLogsCtx(ctx context.Context, queueID string) ([]models.NotificationLog, error) {
	return r.db.GetNotificationLogsCtx(ctx, queueID)
}

// VenueRepository / UserRepository methods
func (r *SQLRepository) GetVenueCtx(ctx context.Context, id string) (*models.Venue, error) {
	return r.db.GetVenueCtx(ctx, id)
}

func (r *SQLRepository) GetUserCtx(ctx context.Context, id string) (*models.User, error) {
	return r.db.GetUserCtx(ctx, id)
}

// PushSubscriptionRepository methods
func (r *SQLRepository) CreatePushSubscriptionCtx(ctx context.Context, s *models.PushSubscription) error {
	return r.db.CreatePushSubscriptionCtx(ctx, s)
}

func (r *SQLRepository) GetPushSubscriptionsCtx(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	return r.db.GetPushSubscriptionsCtx(ctx, userID)
}

func (r *SQLRepository) DeletePushSubscriptionCtx(ctx context.Context, userID, endpoint string) error {
	return r.db.DeletePushSubscriptionCtx(ctx, userID, endpoint)
}
