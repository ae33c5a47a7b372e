package database

import (
	"context"
	"database/sql"
	"time"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

const checkinColumns = `id, queue_id, user_id, venue_id, ts, user_location, venue_location,
	distance_m, method, auto_approved, requires_confirmation, success, reason,
	suspicious, suspicious_reasons, time_since_notification_ms`

func (db *DB) CreateCheckInLogCtx(ctx context.Context, l *models.CheckInLog) error {
	const op = "database.CreateCheckInLog"
	var userLoc any
	if l.UserLocation != nil {
		var err error
		userLoc, err = marshalJSON(l.UserLocation)
		if err != nil {
			return errs.New(errs.CodeDatabaseError, op, "encode user location", err)
		}
	}
	venueLoc, err := marshalJSON(l.VenueLocation)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "encode venue location", err)
	}
	reasons, err := marshalJSON(l.SuspiciousReasons)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "encode suspicious reasons", err)
	}

	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()
	_, err = db.conn.ExecContext(wctx, `INSERT INTO checkin_logs (`+checkinColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.QueueID, l.UserID, l.VenueID, l.Timestamp, userLoc, venueLoc,
		l.DistanceMeters, string(l.Method), l.AutoApproved, l.RequiresConfirmation,
		l.Success, l.Reason, l.Suspicious, reasons, l.TimeSinceNotificationMs)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "insert check-in log", err)
	}
	return nil
}

func (db *DB) GetRecentCheckInLogsCtx(ctx context.Context, userID string, since time.Time, limit int) ([]models.CheckInLog, error) {
	const op = "database.GetRecentCheckInLogs"
	return db.queryCheckInLogs(ctx, op,
		`SELECT `+checkinColumns+` FROM checkin_logs WHERE user_id = ? AND ts >= ? ORDER BY ts DESC LIMIT ?`,
		userID, since, limit)
}

func (db *DB) GetCheckInHistoryCtx(ctx context.Context, userID string, limit, offset int) ([]models.CheckInLog, int, error) {
	const op = "database.GetCheckInHistory"
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var total int
	if err := db.conn.QueryRowContext(rctx,
		`SELECT COUNT(*) FROM checkin_logs WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, errs.New(errs.CodeDatabaseError, op, "count check-in logs", err)
	}
	logs, err := db.queryCheckInLogs(ctx, op,
		`SELECT `+checkinColumns+` FROM checkin_logs WHERE user_id = ? ORDER BY ts DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (db *DB) GetLatestCheckInLogCtx(ctx context.Context, queueID string) (*models.CheckInLog, error) {
	const op = "database.GetLatestCheckInLog"
	logs, err := db.queryCheckInLogs(ctx, op,
		`SELECT `+checkinColumns+` FROM checkin_logs WHERE queue_id = ? ORDER BY ts DESC LIMIT 1`,
		queueID)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

func (db *DB) queryCheckInLogs(ctx context.Context, op, query string, args ...any) ([]models.CheckInLog, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	rows, err := db.conn.QueryContext(rctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "query check-in logs", err)
	}
	defer rows.Close()

	var out []models.CheckInLog
	for rows.Next() {
		l, err := scanCheckInLog(rows)
		if err != nil {
			return nil, errs.New(errs.CodeDatabaseError, op, "scan check-in log", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "iterate check-in logs", err)
	}
	return out, nil
}

func scanCheckInLog(rows *sql.Rows) (*models.CheckInLog, error) {
	var (
		l        models.CheckInLog
		userLoc  []byte
		venueLoc []byte
		reasons  []byte
		method   string
	)
	err := rows.Scan(&l.ID, &l.QueueID, &l.UserID, &l.VenueID, &l.Timestamp,
		&userLoc, &venueLoc, &l.DistanceMeters, &method, &l.AutoApproved,
		&l.RequiresConfirmation, &l.Success, &l.Reason, &l.Suspicious,
		&reasons, &l.TimeSinceNotificationMs)
	if err != nil {
		return nil, err
	}
	l.Method = models.VerificationMethod(method)
	if len(userLoc) > 0 {
		var loc models.Location
		if err := unmarshalJSON(userLoc, &loc); err != nil {
			return nil, err
		}
		l.UserLocation = &loc
	}
	if err := unmarshalJSON(venueLoc, &l.VenueLocation); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(reasons, &l.SuspiciousReasons); err != nil {
		return nil, err
	}
	return &l, nil
}

func (db *DB) CreateNotificationLogCtx(ctx context.Context, l *models.NotificationLog) error {
	const op = "database.CreateNotificationLog"
	results, err := marshalJSON(l.Results)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "encode channel results", err)
	}

	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()
	_, err = db.conn.ExecContext(wctx, `INSERT INTO notification_logs
			(id, queue_id, user_id, venue_id, ts, kind, title, body, results, viewed)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.QueueID, l.UserID, l.VenueID, l.Timestamp, string(l.Kind),
		l.Title, l.Body, results, l.Viewed)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "insert notification log", err)
	}
	return nil
}

func (db *DB) GetNotificationLogsCtx(ctx context.Context, queueID string) ([]models.NotificationLog, error) {
	const op = "database.GetNotificationLogs"
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	rows, err := db.conn.QueryContext(rctx, `SELECT id, queue_id, user_id, venue_id, ts,
			kind, title, body, results, viewed
		FROM notification_logs WHERE queue_id = ? ORDER BY ts ASC`, queueID)
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "query notification logs", err)
	}
	defer rows.Close()

	var out []models.NotificationLog
	for rows.Next() {
		var (
			l       models.NotificationLog
			kind    string
			results []byte
		)
		if err := rows.Scan(&l.ID, &l.QueueID, &l.UserID, &l.VenueID, &l.Timestamp,
			&kind, &l.Title, &l.Body, &results, &l.Viewed); err != nil {
			return nil, errs.New(errs.CodeDatabaseError, op, "scan notification log", err)
		}
		l.Kind = models.NotificationKind(kind)
		if err := unmarshalJSON(results, &l.Results); err != nil {
			return nil, errs.New(errs.CodeDatabaseError, op, "decode channel results", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "iterate notification logs", err)
	}
	return out, nil
}
