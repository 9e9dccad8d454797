// Package tracker records business events: it validates an entity snapshot against the schema
// of its entity type and persists the event together with its extracted metadata rows
// in one unit of work.
//
// Example:
//
//	t, _ := tracker.NewEventTracker(registry, validation.NewJSONSchemaValidator(), store.TransactionManager(),
//	    tracker.WithLogger(slog.Default()))
//
//	err := t.TrackEvent(ctx, tracker.TrackEventRequest{
//	    EntityType: "Customer",
//	    EntityID:   "42",
//	    EventType:  eventstore.EventTypeCreated,
//	    ActorID:    "admin-1",
//	    ActorType:  eventstore.ActorTypeAdmin,
//	    EntityData: customer,
//	})
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/changefeed"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/internal/observe"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonpatch"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonvalue"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/metadata"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/transaction"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/validation"
)

const (
	logMsgEventTracked          = "business event tracked"
	logMsgSchemaNotFound        = "no schema found for tracked event"
	logMsgValidationFailed      = "entity data does not match schema"
	logMsgTrackingFailed        = "tracking business event failed"
	logMsgMetadataKeysSkipped   = "metadata keys exceed maximum length and were skipped"
	logMsgPublishFailed         = "publishing change notification failed"
	logMsgPreviousLookupFailed  = "loading previous event for change notification failed"
	logAttrEntityType           = "entity_type"
	logAttrEntityID             = "entity_id"
	logAttrEventType            = "event_type"
	logAttrEventID              = "event_id"
	logAttrSchemaVersion        = "schema_version"
	logAttrMetadataRows         = "metadata_rows"
	logAttrSkippedKeys          = "skipped_keys"
	logAttrEntityData           = "entity_data"
	logAttrSchemaDefinition     = "schema_definition"
	logAttrDurationMS           = "duration_ms"
	spanAttrEntityType          = "entity_type"
	spanAttrMetadataRows        = "metadata_rows"
	errorTypeSchemaNotFound     = "schema_not_found"
	errorTypeSchemaResolution   = "schema_resolution"
	errorTypeSerialization      = "serialization"
	errorTypeValidation         = "validation"
	errorTypeInvalidEvent       = "invalid_event"
	errorTypeTransaction        = "transaction"
	metricTrackDuration         = "eventstore_track_event_duration_seconds"
	metricTrackErrors           = "eventstore_track_event_errors_total"
	metricMetadataRowsExtracted = "eventstore_metadata_rows_extracted"
	emptySnapshot               = "{}"
)

var trackKind = observe.Kind{
	Operation:      "track_event",
	SpanName:       "eventstore.track_event",
	DurationMetric: metricTrackDuration,
	ErrorsMetric:   metricTrackErrors,
}

// SchemaRegistry resolves schemas and their metadata extraction config.
// It is implemented by *schemaregistry.Registry.
type SchemaRegistry interface {
	GetSchema(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, error)
	GetLatestSchema(ctx context.Context, entityType string) (eventstore.SchemaVersion, error)
	ParseMetadataConfig(schemaDefinition string) metadata.ExtractionConfig
}

// TrackEventRequest is the single call shape for producers.
//
// SchemaVersion 0 selects the latest schema of EntityType. An empty CorrelationID is replaced by a new UUID,
// a zero Timestamp by the current UTC time.
type TrackEventRequest struct {
	EntityType    string
	EntityID      string
	EventType     eventstore.EventType
	SchemaVersion int
	ActorID       string
	ActorType     eventstore.ActorType
	EntityData    any
	CorrelationID string
	Timestamp     time.Time
}

// EventTracker validates and persists business events.
type EventTracker struct {
	registry     SchemaRegistry
	validator    validation.Validator
	transactions transaction.Manager
	publisher    changefeed.Publisher
	history      eventstore.EventReader
	observer     observe.Observer
	now          func() time.Time
}

// Option defines a functional option for configuring EventTracker.
type Option func(*EventTracker) error

// WithLogger sets the logger for the EventTracker.
//
// Info level: tracked events
// Warn level: skipped metadata keys, failed change notifications
// Error level: schema lookups, validation failures (with the raw JSON and the schema) and failed writes.
func WithLogger(logger eventstore.Logger) Option {
	return func(t *EventTracker) error {
		t.observer.Logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, which takes precedence over WithLogger.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(t *EventTracker) error {
		t.observer.ContextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the EventTracker.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(t *EventTracker) error {
		t.observer.Metrics = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the EventTracker.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(t *EventTracker) error {
		t.observer.Tracing = collector
		return nil
	}
}

// WithClock sets the time source for events tracked without a Timestamp.
func WithClock(now func() time.Time) Option {
	return func(t *EventTracker) error {
		if now == nil {
			return errors.New("nil clock")
		}

		t.now = now

		return nil
	}
}

// WithChangeFeed publishes a changefeed.Notification after every successful commit.
// The patch is computed against the entity's previous event read from history.
// A failed publication is logged and does not fail TrackEvent.
func WithChangeFeed(publisher changefeed.Publisher, history eventstore.EventReader) Option {
	return func(t *EventTracker) error {
		if publisher == nil || history == nil {
			return errors.New("change feed needs a publisher and an event reader")
		}

		t.publisher = publisher
		t.history = history

		return nil
	}
}

// NewEventTracker creates an EventTracker.
func NewEventTracker(
	registry SchemaRegistry,
	validator validation.Validator,
	transactions transaction.Manager,
	options ...Option,
) (*EventTracker, error) {
	if registry == nil || validator == nil || transactions == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	t := &EventTracker{
		registry:     registry,
		validator:    validator,
		transactions: transactions,
		now:          time.Now,
	}

	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// TrackEvent validates request.EntityData and persists the event with its metadata rows.
//
// It returns an error wrapping:
//   - ErrSchemaNotFound if no schema is registered (the validator is not invoked)
//   - ErrSerializingEntityDataFailed if EntityData can not be serialized
//   - ErrEntityDataDoesNotMatchSchema if the snapshot violates the schema
//   - ErrTrackingEventFailed if the write failed, in which case nothing is persisted
func (t *EventTracker) TrackEvent(ctx context.Context, request TrackEventRequest) error {
	_, err := t.TrackEventWithResult(ctx, request)

	return err
}

// TrackEventWithResult is TrackEvent, returning the stored event.
func (t *EventTracker) TrackEventWithResult(ctx context.Context, request TrackEventRequest) (eventstore.BusinessEvent, error) {
	op, ctx := t.observer.Start(ctx, trackKind, map[string]string{spanAttrEntityType: request.EntityType})

	schema, err := t.resolveSchema(ctx, request)
	if err != nil {
		if errors.Is(err, eventstore.ErrSchemaNotFound) {
			op.Fail(errorTypeSchemaNotFound)
			t.observer.Error(ctx, logMsgSchemaNotFound, err, logAttrEntityType, request.EntityType)

			return eventstore.BusinessEvent{}, fmt.Errorf("%w for entity type '%s'", eventstore.ErrSchemaNotFound, request.EntityType)
		}

		op.Fail(errorTypeSchemaResolution)
		t.observer.Error(ctx, logMsgTrackingFailed, err, logAttrEntityType, request.EntityType)

		return eventstore.BusinessEvent{}, errors.Join(eventstore.ErrTrackingEventFailed, err)
	}

	entityData, err := serialize(request.EntityData)
	if err != nil {
		op.Fail(errorTypeSerialization)
		t.observer.Error(ctx, logMsgTrackingFailed, err, logAttrEntityType, request.EntityType)

		return eventstore.BusinessEvent{}, errors.Join(eventstore.ErrSerializingEntityDataFailed, err)
	}

	if err = t.validator.Validate(entityData, schema.SchemaDefinition); err != nil {
		op.Fail(errorTypeValidation)
		t.observer.Error(
			ctx,
			logMsgValidationFailed,
			err,
			logAttrEntityType, request.EntityType,
			logAttrSchemaVersion, schema.Version,
			logAttrEntityData, entityData,
			logAttrSchemaDefinition, schema.SchemaDefinition,
		)

		return eventstore.BusinessEvent{}, fmt.Errorf("%w: %w", eventstore.ErrEntityDataDoesNotMatchSchema, err)
	}

	event, err := t.buildEvent(request, schema.Version, entityData)
	if err != nil {
		op.Fail(errorTypeInvalidEvent)
		t.observer.Error(ctx, logMsgTrackingFailed, err, logAttrEntityType, request.EntityType)

		return eventstore.BusinessEvent{}, errors.Join(eventstore.ErrTrackingEventFailed, err)
	}

	var extracted metadata.Result

	err = transaction.Execute(ctx, t.transactions, func(tx transaction.Transaction) error {
		var extractErr error

		extracted, extractErr = metadata.Extract(event, t.registry.ParseMetadataConfig(schema.SchemaDefinition))
		if extractErr != nil {
			return extractErr
		}

		return tx.AppendEvent(ctx, event, extracted.Rows)
	})
	if err != nil {
		op.Fail(errorTypeTransaction)
		t.observer.Error(ctx, logMsgTrackingFailed, err, logAttrEntityType, event.EntityType, logAttrEntityID, event.EntityID)

		return eventstore.BusinessEvent{}, errors.Join(eventstore.ErrTrackingEventFailed, err)
	}

	if len(extracted.SkippedKeys) > 0 {
		t.observer.Warn(ctx, logMsgMetadataKeysSkipped, logAttrEventID, event.EventID.String(), logAttrSkippedKeys, extracted.SkippedKeys)
	}

	op.RecordValue(metricMetadataRowsExtracted, float64(len(extracted.Rows)))
	op.Succeed(map[string]string{spanAttrMetadataRows: strconv.Itoa(len(extracted.Rows))})

	t.observer.Info(
		ctx,
		logMsgEventTracked,
		logAttrEventID, event.EventID.String(),
		logAttrEntityType, event.EntityType,
		logAttrEntityID, event.EntityID,
		logAttrEventType, string(event.EventType),
		logAttrSchemaVersion, event.SchemaVersion,
		logAttrMetadataRows, len(extracted.Rows),
		logAttrDurationMS, observe.ToMilliseconds(op.Elapsed()),
	)

	t.publish(ctx, event)

	return event, nil
}

func (t *EventTracker) resolveSchema(ctx context.Context, request TrackEventRequest) (eventstore.SchemaVersion, error) {
	if request.SchemaVersion > 0 {
		return t.registry.GetSchema(ctx, request.EntityType, request.SchemaVersion)
	}

	return t.registry.GetLatestSchema(ctx, request.EntityType)
}

func (t *EventTracker) buildEvent(request TrackEventRequest, schemaVersion int, entityData string) (eventstore.BusinessEvent, error) {
	correlationID := request.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	timestamp := request.Timestamp
	if timestamp.IsZero() {
		timestamp = t.now()
	}

	return eventstore.BuildBusinessEvent(
		request.EntityType,
		request.EntityID,
		request.EventType,
		schemaVersion,
		timestamp,
		correlationID,
		request.ActorID,
		request.ActorType,
		entityData,
	)
}

func (t *EventTracker) publish(ctx context.Context, event eventstore.BusinessEvent) {
	if t.publisher == nil {
		return
	}

	previous := emptySnapshot

	history, err := t.history.EventsForEntity(ctx, event.EntityType, event.EntityID)
	if err != nil {
		t.observer.Warn(ctx, logMsgPreviousLookupFailed, observe.AttrError, err.Error(), logAttrEventID, event.EventID.String())
	} else if previousEvent, found := eventstore.PreviousOf(history, event.EventID); found {
		previous = previousEvent.EntityData
	}

	patch, err := jsonpatch.GeneratePatch([]byte(previous), []byte(event.EntityData))
	if err != nil {
		t.observer.Warn(ctx, logMsgPublishFailed, observe.AttrError, err.Error(), logAttrEventID, event.EventID.String())
		return
	}

	if err = t.publisher.Publish(ctx, changefeed.NewNotification(event, patch)); err != nil {
		t.observer.Warn(ctx, logMsgPublishFailed, observe.AttrError, err.Error(), logAttrEventID, event.EventID.String())
	}
}

// serialize turns entity data into canonical JSON text with sorted object keys.
// Raw JSON input ([]byte, json.RawMessage) is re-encoded instead of being serialized as a byte string.
func serialize(entityData any) (string, error) {
	var (
		data []byte
		err  error
	)

	switch v := entityData.(type) {
	case json.RawMessage:
		data, err = jsonvalue.Canonical(v)
	case []byte:
		data, err = jsonvalue.Canonical(v)
	default:
		data, err = jsonvalue.Marshal(v)
	}

	if err != nil {
		return "", err
	}

	return string(data), nil
}
