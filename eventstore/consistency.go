package eventstore

import "context"

// ConsistencyLevel tells a storage engine whether a read must see every committed business event.
//
// Only the SQL engine created with NewEventStoreFromPGXPoolAndReplica acts on it: its pgx adapter
// sends eventually consistent reads to the replica pool. Writes, the other adapters, the in-memory engine
// and the Mongo engine always use the primary.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. A producer which tracked an event
	// finds it in the entity history of its next read.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency lets history, search and change reads lag behind the primary by the replication delay.
	EventualConsistency
)

type contextKey string

// ConsistencyLevelKey is the context key holding the ConsistencyLevel of a read.
const ConsistencyLevelKey contextKey = "business_eventstore.consistency_level"

// WithStrongConsistency marks the reads done with ctx as strongly consistent.
// It overrides query.WithEventualConsistency for a single call.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency marks the reads done with ctx as eventually consistent:
//
//	ctx = eventstore.WithEventualConsistency(ctx)
//	responses, err := engine.SearchEvents(ctx, request)
//
// query.WithEventualConsistency does this for every read of a query engine.
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel returns the level carried by ctx, StrongConsistency if there is none.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	level, marked := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel)
	if !marked {
		return StrongConsistency
	}

	return level
}

func (c ConsistencyLevel) String() string {
	switch c {
	case EventualConsistency:
		return "eventual"
	case StrongConsistency:
		return "strong"
	default:
		return "unknown"
	}
}
