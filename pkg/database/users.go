package database

import (
	"context"
	"database/sql"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

func (db *DB) GetVenueCtx(ctx context.Context, id string) (*models.Venue, error) {
	const op = "database.GetVenue"
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var v models.Venue
	err := db.conn.QueryRowContext(rctx,
		`SELECT id, owner_user_id, name, address, lat, lng FROM venues WHERE id = ?`, id).
		Scan(&v.ID, &v.OwnerUserID, &v.Name, &v.Address, &v.Latitude, &v.Longitude)
	if err == sql.ErrNoRows {
		return nil, errs.NewUser(errs.CodeVenueNotFound, op, "no venue "+id, "venue not found", nil)
	}
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "scan venue", err)
	}
	return &v, nil
}

func (db *DB) GetUserCtx(ctx context.Context, id string) (*models.User, error) {
	const op = "database.GetUser"
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var (
		u    models.User
		role string
	)
	err := db.conn.QueryRowContext(rctx,
		`SELECT id, name, phone, role FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Phone, &role)
	if err == sql.ErrNoRows {
		return nil, errs.NewUser(errs.CodeUserNotFound, op, "no user "+id, "user not found", nil)
	}
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "scan user", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (db *DB) CreatePushSubscriptionCtx(ctx context.Context, s *models.PushSubscription) error {
	const op = "database.CreatePushSubscription"
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	// INSERT IGNORE: re-subscribing the same endpoint is a no-op
	_, err := db.conn.ExecContext(wctx, `INSERT IGNORE INTO push_subscriptions
			(id, user_id, endpoint, p256dh, auth_key, created_at)
		VALUES (?,?,?,?,?,?)`,
		s.ID, s.UserID, s.Endpoint, s.P256dh, s.Auth, s.CreatedAt)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "insert subscription", err)
	}
	return nil
}

func (db *DB) GetPushSubscriptionsCtx(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	const op = "database.GetPushSubscriptions"
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(rctx, `SELECT id, user_id, endpoint, p256dh, auth_key, created_at
		FROM push_subscriptions WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "query subscriptions", err)
	}
	defer rows.Close()

	var out []models.PushSubscription
	for rows.Next() {
		var s models.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, errs.New(errs.CodeDatabaseError, op, "scan subscription", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "iterate subscriptions", err)
	}
	return out, nil
}

func (db *DB) DeletePushSubscriptionCtx(ctx context.Context, userID, endpoint string) error {
	const op = "database.DeletePushSubscription"
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(wctx,
		`DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`, userID, endpoint)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "delete subscription", err)
	}
	return nil
}
