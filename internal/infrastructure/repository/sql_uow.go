package repository

import (
	"context"
	"database/sql"
	"time"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/pkg/database"
	errs "walkin-queue-coordinator/pkg/errors"
)

// SQLUnitOfWorkFactory starts SQL-backed UnitOfWork transactions.
type SQLUnitOfWorkFactory struct {
	db *database.DB
}

func NewSQLUnitOfWorkFactory(db *database.DB) *SQLUnitOfWorkFactory {
	return &SQLUnitOfWorkFactory{db: db}
}

// Ensure interface conformance
var _ domain.UnitOfWorkFactory = (*SQLUnitOfWorkFactory)(nil)

func (f *SQLUnitOfWorkFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := f.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.New(errs.CodeDatabaseError, "uow.Begin", "begin tx", err)
	}
	return &SQLUnitOfWork{db: f.db, tx: tx}, nil
}

// SQLUnitOfWork coordinates writes through a single *sql.Tx. The guarded
// status update is the only write that must sit inside the transaction;
// reads are served from the pool.
type SQLUnitOfWork struct {
	db *database.DB
	tx *sql.Tx
	// guard against double commit/rollback
	closed bool
}

var _ domain.UnitOfWork = (*SQLUnitOfWork)(nil)

func (u *SQLUnitOfWork) Commit() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.tx.Commit(); err != nil {
		return errs.New(errs.CodeDatabaseError, "uow.Commit", "commit tx", err)
	}
	return nil
}

func (u *SQLUnitOfWork) Rollback() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.tx.Rollback(); err != nil {
		return errs.New(errs.CodeDatabaseError, "uow.Rollback", "rollback tx", err)
	}
	return nil
}

// UpdateQueueEntryStatusCtx runs the compare-and-set inside the transaction.
func (u *SQLUnitOfWork) UpdateQueueEntryStatusCtx(ctx context.Context, e *models.QueueEntry, expected models.Status) error {
	return u.db.UpdateQueueEntryStatusTx(ctx, u.tx, e, expected)
}

func (u *SQLUnitOfWork) CreateQueueEntryCtx(ctx context.Context, e *models.QueueEntry) error {
	return u.db.CreateQueueEntryCtx(ctx, e)
}

// Reads are served outside the tx.
func (u *SQLUnitOfWork) GetQueueEntryCtx(ctx context.Context, id string) (*models.QueueEntry, error) {
	return u.db.GetQueueEntryCtx(ctx, id)
}

func (u *SQLUnitOfWork) GetActiveEntryCtx(ctx context.Context, userID, venueID string) (*models.QueueEntry, error) {
	return u.db.GetActiveEntryCtx(ctx, userID, venueID)
}

func (u *SQLUnitOfWork) GetActiveEntriesByUserCtx(ctx context.Context, userID string) ([]models.QueueEntry, error) {
	return u.db.GetActiveEntriesByUserCtx(ctx, userID)
}

func (u *SQLUnitOfWork) GetActiveEntriesByVenueCtx(ctx context.Context, venueID string) ([]models.QueueEntry, error) {
	return u.db.GetActiveEntriesByVenueCtx(ctx, venueID)
}

func (u *SQLUnitOfWork) GetStalledEntriesCtx(ctx context.Context, status models.Status, cutoff time.Time) ([]models.QueueEntry, error) {
	return u.db.GetStalledEntriesCtx(ctx, status, cutoff)
}

func (u *SQLUnitOfWork) UpdatePositionsCtx(ctx context.Context, venueID string, positions map[string]int, waits map[string]int) error {
	return u.db.UpdatePositionsCtx(ctx, venueID, positions, waits)
}
