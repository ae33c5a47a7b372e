package domain

import "context"

// UnitOfWork coordinates a set of repository operations within a single
// database transaction. A status transition writes the entry fields under
// the same transaction as its compare-and-set guard; reputation and audit
// follow after commit, best-effort.
//
// Typical usage:
//
//	uow, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer uow.Rollback()
//	if err := uow.UpdateQueueEntryStatusCtx(ctx, e, expected); err != nil { ... }
//	if err := uow.Commit(); err != nil { ... }
//
// NOTE: keep the transaction as short as possible.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	QueueRepository
}

// UnitOfWorkFactory starts new UnitOfWork instances. A returned UnitOfWork
// is already begun.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
