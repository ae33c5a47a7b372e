// Package audit appends check-in and notification records. Writes are
// best-effort: a failed audit write is logged and counted but never fails
// the operation that produced it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
)

const writeTimeout = 5 * time.Second

type Writer struct {
	repo  domain.AuditLogRepository
	clock clockwork.Clock
	log   *logging.Logger

	mCheckIns *metrics.Counter
	mNotifs   *metrics.Counter
	mFailures *metrics.Counter
}

func NewWriter(repo domain.AuditLogRepository, clock clockwork.Clock, log *logging.Logger) *Writer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Writer{
		repo:      repo,
		clock:     clock,
		log:       log.WithComponent("audit"),
		mCheckIns: metrics.Default.Counter("audit_checkin_logs_total", "Check-in log records written"),
		mNotifs:   metrics.Default.Counter("audit_notification_logs_total", "Notification log records written"),
		mFailures: metrics.Default.Counter("audit_write_failures_total", "Audit writes that failed"),
	}
}

// CheckIn records one check-in attempt. Missing ID and Timestamp are filled in.
func (w *Writer) CheckIn(ctx context.Context, l models.CheckInLog) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = w.clock.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := w.repo.CreateCheckInLogCtx(ctx, &l); err != nil {
		w.mFailures.Inc(1)
		w.log.Error("check-in log write failed",
			logging.String("queue_id", l.QueueID),
			logging.String("user_id", l.UserID),
			logging.Err(err))
		return
	}
	w.mCheckIns.Inc(1)
}

// Notification records one dispatch outcome.
func (w *Writer) Notification(ctx context.Context, l models.NotificationLog) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = w.clock.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := w.repo.CreateNotificationLogCtx(ctx, &l); err != nil {
		w.mFailures.Inc(1)
		w.log.Error("notification log write failed",
			logging.String("queue_id", l.QueueID),
			logging.String("kind", string(l.Kind)),
			logging.Err(err))
		return
	}
	w.mNotifs.Inc(1)
}
