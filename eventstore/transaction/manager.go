// Package transaction scopes the writes of one tracked event to a unit of work.
//
// The event row and its metadata rows are written through a Transaction. Either both
// become visible on Commit, or none of them does.
//
// Implementations:
//   - postgresengine.EventStore: database transactions over pgx, database/sql or sqlx
//   - NoOpManager: for engines whose single AppendEvent call is already atomic (memoryengine, mongoengine)
//
// Example:
//
//	err := transaction.Execute(ctx, manager, func(tx transaction.Transaction) error {
//	    return tx.AppendEvent(ctx, event, metadataRows) // Commit on nil, Rollback on error
//	})
package transaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

// Transaction is an active unit of work which accepts event writes.
type Transaction interface {
	eventstore.EventWriter

	// Commit makes the writes visible. After Commit, the transaction is no longer usable.
	Commit() error

	// Rollback discards the writes. It is safe to call Rollback on an already finished transaction,
	// so a deferred Rollback can serve as the dispose step.
	Rollback() error
}

// Manager starts transactions.
type Manager interface {
	// Begin starts a new transaction. The returned Transaction must be either committed or rolled back.
	Begin(ctx context.Context) (Transaction, error)
}

// Execute runs fn within a transaction of m.
//
// If fn returns nil, the transaction is committed.
// If fn returns an error, the transaction is rolled back.
// If fn panics, the transaction is rolled back and the panic is re-raised.
func Execute(ctx context.Context, m Manager, fn func(tx Transaction) error) error {
	tx, beginErr := m.Begin(ctx)
	if beginErr != nil {
		return errors.Join(eventstore.ErrTransactionFailed, beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if fnErr := fn(tx); fnErr != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Join(fnErr, fmt.Errorf("%w: rollback: %w", eventstore.ErrTransactionFailed, rollbackErr))
		}

		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		_ = tx.Rollback()
		return errors.Join(eventstore.ErrTransactionFailed, commitErr)
	}

	return nil
}
