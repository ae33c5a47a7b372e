package database

import (
	"context"
	"database/sql"
	"time"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

func (db *DB) GetReputationCtx(ctx context.Context, userID string) (*models.UserReputation, error) {
	const op = "database.GetReputation"
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var (
		r    models.UserReputation
		tier string
	)
	err := db.conn.QueryRowContext(rctx, `SELECT user_id, total_checkins, successful_checkins,
			false_checkins, no_shows, completed_services, score, tier,
			last_checkin_at, last_no_show_at, created_at, updated_at
		FROM user_reputation WHERE user_id = ?`, userID).Scan(
		&r.UserID, &r.TotalCheckIns, &r.SuccessfulCheckIns,
		&r.FalseCheckIns, &r.NoShows, &r.CompletedServices, &r.Score, &tier,
		&r.LastCheckInAt, &r.LastNoShowAt, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, op, "scan reputation", err)
	}
	r.Tier = models.ReputationTier(tier)
	return &r, nil
}

func (db *DB) UpsertReputationCtx(ctx context.Context, r *models.UserReputation) error {
	const op = "database.UpsertReputation"
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(wctx, `INSERT INTO user_reputation
			(user_id, total_checkins, successful_checkins, false_checkins, no_shows,
			 completed_services, score, tier, last_checkin_at, last_no_show_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
			total_checkins = VALUES(total_checkins),
			successful_checkins = VALUES(successful_checkins),
			false_checkins = VALUES(false_checkins),
			no_shows = VALUES(no_shows),
			completed_services = VALUES(completed_services),
			score = VALUES(score),
			tier = VALUES(tier),
			last_checkin_at = VALUES(last_checkin_at),
			last_no_show_at = VALUES(last_no_show_at),
			updated_at = VALUES(updated_at)`,
		r.UserID, r.TotalCheckIns, r.SuccessfulCheckIns, r.FalseCheckIns, r.NoShows,
		r.CompletedServices, r.Score, string(r.Tier), r.LastCheckInAt, r.LastNoShowAt,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return errs.New(errs.CodeDatabaseError, op, "upsert reputation", err)
	}
	return nil
}

// MarkReputationApplyCtx records an idempotency key. INSERT IGNORE keeps
// replays cheap: zero affected rows means the key was already applied.
func (db *DB) MarkReputationApplyCtx(ctx context.Context, userID, key string) (bool, error) {
	const op = "database.MarkReputationApply"
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(wctx,
		`INSERT IGNORE INTO reputation_applies (user_id, apply_key, applied_at) VALUES (?,?,?)`,
		userID, key, time.Now().UTC())
	if err != nil {
		return false, errs.New(errs.CodeDatabaseError, op, "insert apply key", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.New(errs.CodeDatabaseError, op, "rows affected", err)
	}
	return n > 0, nil
}
