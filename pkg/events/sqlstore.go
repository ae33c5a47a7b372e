package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"walkin-queue-coordinator/pkg/database"
)

// SQLEventStore stores events in a SQL table with ordered IDs.
// NOTE: JSON may be emulated as LONGTEXT on older MySQL variants.
type SQLEventStore struct {
	db *database.DB
}

var _ Store = (*SQLEventStore)(nil)

func NewSQLEventStore(db *database.DB) (*SQLEventStore, error) {
	s := &SQLEventStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("events: ensure table: %w", err)
	}
	return s, nil
}

func (s *SQLEventStore) ensureTable() error {
	qry := `CREATE TABLE IF NOT EXISTS queue_events (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		queue_id VARCHAR(36) NOT NULL,
		type VARCHAR(64) NOT NULL,
		at DATETIME(3) NOT NULL,
		actor VARCHAR(64) NULL,
		data JSON NOT NULL,
		KEY idx_queue_events_queue (queue_id, seq)
	)`
	_, err := s.db.Conn().Exec(qry)
	return err
}

func (s *SQLEventStore) Append(ctx context.Context, e Event) error {
	payload, err := e.MarshalData()
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	at := e.Timestamp()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO queue_events (queue_id, type, at, actor, data) VALUES (?,?,?,?,?)`,
		e.QueueID(), e.Type(), at, e.Actor(), payload)
	if err != nil {
		return fmt.Errorf("events: insert event: %w", err)
	}
	return nil
}

func (s *SQLEventStore) ListByQueue(ctx context.Context, queueID string) ([]StoredEvent, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT seq, queue_id, type, at, actor, data FROM queue_events WHERE queue_id = ? ORDER BY seq ASC`,
		queueID)
	if err != nil {
		return nil, fmt.Errorf("events: query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var actor sql.NullString
		if err := rows.Scan(&se.Seq, &se.QueueID, &se.Type, &se.Ts, &actor, &se.Payload); err != nil {
			return nil, fmt.Errorf("events: scan event: %w", err)
		}
		if actor.Valid {
			v := actor.String
			se.Actor = &v
		}
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: iterate events: %w", err)
	}
	return out, nil
}

func (s *SQLEventStore) ReplayQueue(ctx context.Context, queueID string) (*RebuiltState, error) {
	events, err := s.ListByQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return Replay(events), nil
}
