// Package database is the MySQL access layer. It owns the schema, the
// connection pool and per-call timeouts; domain code talks to it through
// the repository adapters in internal/infrastructure.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"walkin-queue-coordinator/pkg/config"
	errs "walkin-queue-coordinator/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

const (
	defaultReadTimeout  = 8 * time.Second
	defaultWriteTimeout = 6 * time.Second
)

type DB struct {
	conn         *sql.DB
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// New opens a pooled MySQL connection with default settings.
func New(databaseURL string) (*DB, error) {
	return open(databaseURL, 50, 15, 10*time.Minute, 5*time.Minute, defaultReadTimeout, defaultWriteTimeout)
}

// NewWithConfig opens a pooled MySQL connection using configured pool and
// timeout settings.
func NewWithConfig(databaseURL string, cfg *config.Config) (*DB, error) {
	rt := cfg.DBReadTimeout
	if rt == 0 {
		rt = defaultReadTimeout
	}
	wt := cfg.DBWriteTimeout
	if wt == 0 {
		wt = defaultWriteTimeout
	}
	return open(databaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime, rt, wt)
}

func open(databaseURL string, maxOpen, maxIdle int, maxLifetime, maxIdleTime, readTimeout, writeTimeout time.Duration) (*DB, error) {
	conn, err := sql.Open("mysql", ensureDSNParams(databaseURL))
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, "database.open", "open connection", err)
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(maxLifetime)
	conn.SetConnMaxIdleTime(maxIdleTime)

	if err := conn.Ping(); err != nil {
		return nil, errs.New(errs.CodeDatabaseError, "database.open", "ping", err)
	}

	return &DB{conn: conn, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

// ensureDSNParams appends the driver parameters the scanners rely on.
// parseTime makes DATETIME columns scan into time.Time directly.
func ensureDSNParams(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "parseTime=") {
		params = append(params, "parseTime=true")
	}
	if !strings.Contains(dsn, "loc=") {
		params = append(params, "loc=UTC")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Conn exposes the raw pool for transaction management.
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Close() error { return db.conn.Close() }

// Ping verifies the connection; used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// withReadTimeout creates a context with the standard read timeout.
func (db *DB) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

// withWriteTimeout creates a context with the standard write timeout.
func (db *DB) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}

// Bootstrap creates the coordinator's tables when they do not exist yet.
// Venues and users are read models owned by the directory service; their
// tables are created here only so local development works standalone.
func (db *DB) Bootstrap(ctx context.Context) error {
	const op = "database.Bootstrap"
	statements := []string{
		`CREATE TABLE IF NOT EXISTS queues (
			id VARCHAR(36) PRIMARY KEY,
			venue_id VARCHAR(36) NOT NULL,
			user_id VARCHAR(36) NOT NULL,
			service_ids JSON NULL,
			total_price DOUBLE NOT NULL DEFAULT 0,
			offer_ids JSON NULL,
			position INT NOT NULL DEFAULT 0,
			estimated_wait_minutes INT NOT NULL DEFAULT 0,
			status VARCHAR(32) NOT NULL,
			created_at DATETIME(3) NOT NULL,
			notified_at DATETIME(3) NULL,
			notification_window_minutes INT NULL,
			checkin_attempted_at DATETIME(3) NULL,
			checkin_location JSON NULL,
			checkin_distance_m INT NULL,
			verified_at DATETIME(3) NULL,
			verification_method VARCHAR(32) NULL,
			verified_by_admin_id VARCHAR(36) NULL,
			service_started_at DATETIME(3) NULL,
			service_completed_at DATETIME(3) NULL,
			no_show_marked_at DATETIME(3) NULL,
			no_show_reason VARCHAR(255) NULL,
			KEY idx_queues_venue_status (venue_id, status),
			KEY idx_queues_user_status (user_id, status),
			KEY idx_queues_status_notified (status, notified_at),
			KEY idx_queues_status_attempted (status, checkin_attempted_at)
		)`,
		`CREATE TABLE IF NOT EXISTS user_reputation (
			user_id VARCHAR(36) PRIMARY KEY,
			total_checkins INT NOT NULL DEFAULT 0,
			successful_checkins INT NOT NULL DEFAULT 0,
			false_checkins INT NOT NULL DEFAULT 0,
			no_shows INT NOT NULL DEFAULT 0,
			completed_services INT NOT NULL DEFAULT 0,
			score INT NOT NULL DEFAULT 50,
			tier VARCHAR(16) NOT NULL,
			last_checkin_at DATETIME(3) NULL,
			last_no_show_at DATETIME(3) NULL,
			created_at DATETIME(3) NOT NULL,
			updated_at DATETIME(3) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reputation_applies (
			user_id VARCHAR(36) NOT NULL,
			apply_key VARCHAR(128) NOT NULL,
			applied_at DATETIME(3) NOT NULL,
			PRIMARY KEY (user_id, apply_key)
		)`,
		`CREATE TABLE IF NOT EXISTS checkin_logs (
			id VARCHAR(36) PRIMARY KEY,
			queue_id VARCHAR(36) NOT NULL,
			user_id VARCHAR(36) NOT NULL,
			venue_id VARCHAR(36) NOT NULL,
			ts DATETIME(3) NOT NULL,
			user_location JSON NULL,
			venue_location JSON NOT NULL,
			distance_m INT NULL,
			method VARCHAR(32) NOT NULL,
			auto_approved TINYINT(1) NOT NULL DEFAULT 0,
			requires_confirmation TINYINT(1) NOT NULL DEFAULT 0,
			success TINYINT(1) NOT NULL DEFAULT 0,
			reason VARCHAR(255) NOT NULL DEFAULT '',
			suspicious TINYINT(1) NOT NULL DEFAULT 0,
			suspicious_reasons JSON NULL,
			time_since_notification_ms BIGINT NOT NULL DEFAULT 0,
			KEY idx_checkin_user_ts (user_id, ts),
			KEY idx_checkin_queue_ts (queue_id, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS notification_logs (
			id VARCHAR(36) PRIMARY KEY,
			queue_id VARCHAR(36) NOT NULL,
			user_id VARCHAR(36) NOT NULL,
			venue_id VARCHAR(36) NOT NULL,
			ts DATETIME(3) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT '',
			body TEXT,
			results JSON NULL,
			viewed TINYINT(1) NOT NULL DEFAULT 0,
			KEY idx_notification_queue_ts (queue_id, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			endpoint VARCHAR(500) NOT NULL,
			p256dh VARCHAR(255) NOT NULL,
			auth_key VARCHAR(255) NOT NULL,
			created_at DATETIME(3) NOT NULL,
			UNIQUE KEY uniq_push_user_endpoint (user_id, endpoint(180))
		)`,
		`CREATE TABLE IF NOT EXISTS venues (
			id VARCHAR(36) PRIMARY KEY,
			owner_user_id VARCHAR(36) NOT NULL,
			name VARCHAR(255) NOT NULL,
			address VARCHAR(500) NOT NULL DEFAULT '',
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			phone VARCHAR(32) NULL,
			role VARCHAR(32) NOT NULL
		)`,
	}

	for _, stmt := range statements {
		wctx, cancel := db.withWriteTimeout(ctx)
		_, err := db.conn.ExecContext(wctx, stmt)
		cancel()
		if err != nil {
			return errs.New(errs.CodeDatabaseError, op, "create table", err)
		}
	}
	return nil
}

// marshalJSON converts a value to its JSON column form; nil pointers and
// empty slices become SQL NULL.
func marshalJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// unmarshalJSON fills dst from a nullable JSON column.
func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
