package postgresengine

import (
	"fmt"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithDialect sets the SQL dialect, DialectPostgres (default) or DialectSQLite.
func WithDialect(dialect string) Option {
	return func(es *EventStore) error {
		switch dialect {
		case DialectPostgres, DialectSQLite:
			es.dialect = dialect
			return nil
		default:
			return fmt.Errorf("unsupported sql dialect %q", dialect)
		}
	}
}

// WithTableNames sets the names of the schema, event and metadata tables.
func WithTableNames(schemaTable, eventTable, metadataTable string) Option {
	return func(es *EventStore) error {
		if schemaTable == "" || eventTable == "" || metadataTable == "" {
			return eventstore.ErrEmptyTableName
		}

		es.schemaTableName = schemaTable
		es.eventTableName = eventTable
		es.metadataTableName = metadataTable

		return nil
	}
}

// WithLogger sets the logger for the EventStore.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Appended events, inserted schemas, created tables (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger eventstore.Logger) Option {
	return func(es *EventStore) error {
		es.observer.Logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the EventStore.
// It receives the context of each operation, which enables trace correlation, and takes precedence over WithLogger.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(es *EventStore) error {
		es.observer.ContextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the EventStore.
// It receives the duration of every storage operation and counts failed operations by error type.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(es *EventStore) error {
		es.observer.Metrics = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the EventStore.
// Every storage operation is wrapped in a span named "eventstore.storage.<operation>".
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(es *EventStore) error {
		es.observer.Tracing = collector
		return nil
	}
}
