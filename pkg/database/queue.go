package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

const queueColumns = `id, venue_id, user_id, service_ids, total_price, offer_ids,
	position, estimated_wait_minutes, status, created_at,
	notified_at, notification_window_minutes, checkin_attempted_at,
	checkin_location, checkin_distance_m, verified_at, verification_method,
	verified_by_admin_id, service_started_at, service_completed_at,
	no_show_marked_at, no_show_reason`

// activeStatusPlaceholders is the IN (...) list for non-terminal statuses.
func activeStatusArgs() (string, []any) {
	placeholders := make([]string, len(models.ActiveStatuses))
	args := make([]any, len(models.ActiveStatuses))
	for i, s := range models.ActiveStatuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}
	return strings.Join(placeholders, ","), args
}

func (db *DB) CreateQueueEntryCtx(ctx context.Context, e *models.QueueEntry) error {
	const op = "database.CreateQueueEntry"
	serviceIDs, err := marshalJSON(e.ServiceIDs)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "encode service ids", err)
	}
	offerIDs, err := marshalJSON(e.OfferIDs)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "encode offer ids", err)
	}
	var checkinLoc any
	if e.CheckInLocation != nil {
		checkinLoc, err = marshalJSON(e.CheckInLocation)
		if err != nil {
			return errs.New(errs.CodeDatabaseError, op, "encode location", err)
		}
	}

	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()
	_, err = db.conn.ExecContext(wctx, `INSERT INTO queues (`+queueColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.VenueID, e.UserID, serviceIDs, e.TotalPrice, offerIDs,
		e.Position, e.EstimatedWaitMinutes, string(e.Status), e.CreatedAt,
		e.NotifiedAt, e.NotificationWindowMinutes, e.CheckInAttemptedAt,
		checkinLoc, e.CheckInDistanceMeters, e.VerifiedAt, verificationMethodArg(e.VerificationMethod),
		e.VerifiedByAdminID, e.ServiceStartedAt, e.ServiceCompletedAt,
		e.NoShowMarkedAt, e.NoShowReason)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "insert queue entry", err)
	}
	return nil
}

func verificationMethodArg(m *models.VerificationMethod) any {
	if m == nil {
		return nil
	}
	return string(*m)
}

func (db *DB) GetQueueEntryCtx(ctx context.Context, id string) (*models.QueueEntry, error) {
	const op = "database.GetQueueEntry"
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	row := db.conn.QueryRowContext(rctx, `SELECT `+queueColumns+` FROM queues WHERE id = ?`, id)
	e, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, errs.NewUser(errs.CodeQueueNotFound, op, "no entry "+id, "queue entry not found", nil)
	}
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "scan queue entry", err)
	}
	return e, nil
}

func (db *DB) GetActiveEntryCtx(ctx context.Context, userID, venueID string) (*models.QueueEntry, error) {
	const op = "database.GetActiveEntry"
	in, args := activeStatusArgs()
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	row := db.conn.QueryRowContext(rctx,
		`SELECT `+queueColumns+` FROM queues WHERE user_id = ? AND venue_id = ? AND status IN (`+in+`) LIMIT 1`,
		append([]any{userID, venueID}, args...)...)
	e, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "scan queue entry", err)
	}
	return e, nil
}

func (db *DB) GetActiveEntriesByUserCtx(ctx context.Context, userID string) ([]models.QueueEntry, error) {
	const op = "database.GetActiveEntriesByUser"
	in, args := activeStatusArgs()
	return db.queryEntries(ctx, op,
		`SELECT `+queueColumns+` FROM queues WHERE user_id = ? AND status IN (`+in+`) ORDER BY created_at ASC, id ASC`,
		append([]any{userID}, args...)...)
}

func (db *DB) GetActiveEntriesByVenueCtx(ctx context.Context, venueID string) ([]models.QueueEntry, error) {
	const op = "database.GetActiveEntriesByVenue"
	in, args := activeStatusArgs()
	return db.queryEntries(ctx, op,
		`SELECT `+queueColumns+` FROM queues WHERE venue_id = ? AND status IN (`+in+`) ORDER BY created_at ASC, id ASC`,
		append([]any{venueID}, args...)...)
}

func (db *DB) GetStalledEntriesCtx(ctx context.Context, status models.Status, cutoff time.Time) ([]models.QueueEntry, error) {
	const op = "database.GetStalledEntries"
	marker := "notified_at"
	if status == models.StatusPendingVerification {
		marker = "checkin_attempted_at"
	}
	return db.queryEntries(ctx, op,
		`SELECT `+queueColumns+` FROM queues WHERE status = ? AND `+marker+` IS NOT NULL AND `+marker+` <= ? ORDER BY created_at ASC, id ASC`,
		string(status), cutoff)
}

func (db *DB) queryEntries(ctx context.Context, op, query string, args ...any) ([]models.QueueEntry, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	rows, err := db.conn.QueryContext(rctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "query queue entries", err)
	}
	defer rows.Close()

	var out []models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, errs.New(errs.CodeDatabaseError, op, "scan queue entry", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "iterate queue entries", err)
	}
	return out, nil
}

// UpdateQueueEntryStatusCtx persists lifecycle fields guarded by the expected
// current status. Zero rows affected means the guard lost a race.
func (db *DB) UpdateQueueEntryStatusCtx(ctx context.Context, e *models.QueueEntry, expected models.Status) error {
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()
	return db.updateQueueEntryStatus(wctx, db.conn, e, expected)
}

// UpdateQueueEntryStatusTx is the transactional variant used by the unit of work.
func (db *DB) UpdateQueueEntryStatusTx(ctx context.Context, tx *sql.Tx, e *models.QueueEntry, expected models.Status) error {
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()
	return db.updateQueueEntryStatus(wctx, tx, e, expected)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) updateQueueEntryStatus(ctx context.Context, ex execer, e *models.QueueEntry, expected models.Status) error {
	const op = "database.UpdateQueueEntryStatus"
	var checkinLoc any
	if e.CheckInLocation != nil {
		var err error
		checkinLoc, err = marshalJSON(e.CheckInLocation)
		if err != nil {
			return errs.New(errs.CodeDatabaseError, op, "encode location", err)
		}
	}

	res, err := ex.ExecContext(ctx, `UPDATE queues SET
			status = ?, notified_at = ?, notification_window_minutes = ?,
			checkin_attempted_at = ?, checkin_location = ?, checkin_distance_m = ?,
			verified_at = ?, verification_method = ?, verified_by_admin_id = ?,
			service_started_at = ?, service_completed_at = ?,
			no_show_marked_at = ?, no_show_reason = ?
		WHERE id = ? AND status = ?`,
		string(e.Status), e.NotifiedAt, e.NotificationWindowMinutes,
		e.CheckInAttemptedAt, checkinLoc, e.CheckInDistanceMeters,
		e.VerifiedAt, verificationMethodArg(e.VerificationMethod), e.VerifiedByAdminID,
		e.ServiceStartedAt, e.ServiceCompletedAt,
		e.NoShowMarkedAt, e.NoShowReason,
		e.ID, string(expected))
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "update queue entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "rows affected", err)
	}
	if n == 0 {
		return errs.New(errs.CodeInvalidStatusTransition, op, "status changed concurrently", nil).
			WithDetail("queueId", e.ID).
			WithDetail("expectedStatus", string(expected))
	}
	return nil
}

func (db *DB) UpdatePositionsCtx(ctx context.Context, venueID string, positions map[string]int, waits map[string]int) error {
	const op = "database.UpdatePositions"
	if len(positions) == 0 {
		return nil
	}
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()
	tx, err := db.conn.BeginTx(wctx, nil)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "begin tx", err)
	}
	for id, pos := range positions {
		if _, err := tx.ExecContext(wctx,
			`UPDATE queues SET position = ?, estimated_wait_minutes = ? WHERE id = ? AND venue_id = ?`,
			pos, waits[id], id, venueID); err != nil {
			tx.Rollback()
			return errs.New(errs.CodeDatabaseError, op, "update position", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.CodeDatabaseError, op, "commit", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e            models.QueueEntry
		serviceIDs   []byte
		offerIDs     []byte
		checkinLoc   []byte
		status       string
		method       sql.NullString
		adminID      sql.NullString
		noShowReason sql.NullString
	)
	err := row.Scan(
		&e.ID, &e.VenueID, &e.UserID, &serviceIDs, &e.TotalPrice, &offerIDs,
		&e.Position, &e.EstimatedWaitMinutes, &status, &e.CreatedAt,
		&e.NotifiedAt, &e.NotificationWindowMinutes, &e.CheckInAttemptedAt,
		&checkinLoc, &e.CheckInDistanceMeters, &e.VerifiedAt, &method,
		&adminID, &e.ServiceStartedAt, &e.ServiceCompletedAt,
		&e.NoShowMarkedAt, &noShowReason)
	if err != nil {
		return nil, err
	}
	e.Status = models.Status(status)
	if err := unmarshalJSON(serviceIDs, &e.ServiceIDs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(offerIDs, &e.OfferIDs); err != nil {
		return nil, err
	}
	if len(checkinLoc) > 0 {
		var loc models.Location
		if err := unmarshalJSON(checkinLoc, &loc); err != nil {
			return nil, err
		}
		e.CheckInLocation = &loc
	}
	if method.Valid {
		m := models.VerificationMethod(method.String)
		e.VerificationMethod = &m
	}
	if adminID.Valid {
		e.VerifiedByAdminID = &adminID.String
	}
	if noShowReason.Valid {
		e.NoShowReason = &noShowReason.String
	}
	return &e, nil
}
