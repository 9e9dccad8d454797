package mongoengine

import (
	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithCollectionNames sets the names of the schema and event collections.
func WithCollectionNames(schemaCollection, eventCollection string) Option {
	return func(es *EventStore) error {
		if schemaCollection == "" || eventCollection == "" {
			return eventstore.ErrEmptyTableName
		}

		es.schemaCollection = schemaCollection
		es.eventCollection = eventCollection

		return nil
	}
}

// WithLogger sets the logger for the EventStore.
// Commands are logged at debug level with their duration, appended events and inserted schemas at info level.
func WithLogger(logger eventstore.Logger) Option {
	return func(es *EventStore) error {
		es.observer.Logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the EventStore. It takes precedence over WithLogger.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(es *EventStore) error {
		es.observer.ContextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the EventStore.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(es *EventStore) error {
		es.observer.Metrics = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the EventStore.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(es *EventStore) error {
		es.observer.Tracing = collector
		return nil
	}
}
