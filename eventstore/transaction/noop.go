package transaction

import (
	"context"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

// NoOpManager hands out transactions which forward writes directly to an atomic EventWriter.
//
// It is valid only when a single AppendEvent call of the writer is all-or-nothing,
// as in the in-memory engine (one lock) or the Mongo engine (one document).
type NoOpManager struct {
	writer eventstore.EventWriter
}

// NewNoOpManager creates a NoOpManager for writer.
func NewNoOpManager(writer eventstore.EventWriter) NoOpManager {
	return NoOpManager{writer: writer}
}

// Begin implements Manager.
func (m NoOpManager) Begin(_ context.Context) (Transaction, error) {
	return &noOpTransaction{writer: m.writer}, nil
}

type noOpTransaction struct {
	writer eventstore.EventWriter
}

func (t *noOpTransaction) AppendEvent(ctx context.Context, event eventstore.BusinessEvent, metadata eventstore.MetadataRows) error {
	return t.writer.AppendEvent(ctx, event, metadata)
}

func (t *noOpTransaction) Commit() error {
	return nil
}

func (t *noOpTransaction) Rollback() error {
	return nil
}
