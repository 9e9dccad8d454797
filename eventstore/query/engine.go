// Package query reads tracked business events: entity histories, metadata searches,
// full dumps and per-event changes.
//
// All results are ordered newest first. Storage failures are returned as eventstore.ErrQueryingEventsFailed
// joined with the cause.
package query

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/internal/observe"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonpatch"
)

const (
	logMsgQueryCompleted  = "query completed"
	logMsgQueryFailed     = "query failed"
	logAttrOperation      = "operation"
	logAttrEntityType     = "entity_type"
	logAttrEntityID       = "entity_id"
	logAttrEventID        = "event_id"
	logAttrPredicates     = "predicates"
	logAttrResults        = "results"
	logAttrDurationMS     = "duration_ms"
	spanAttrEntityType    = "entity_type"
	spanAttrResults       = "results"
	errorTypeValidation   = "validation"
	errorTypeStorage      = "storage"
	errorTypeNotFound     = "not_found"
	errorTypePatch        = "patch"
	metricQueryDuration   = "eventstore_query_duration_seconds"
	metricQueryErrors     = "eventstore_query_errors_total"
	metricQueryResults    = "eventstore_query_results"
	emptySnapshot         = "{}"
	operationEntityEvents = "get_entity_events"
	operationSearch       = "search_events"
	operationAllEvents    = "get_all_events"
	operationEventChanges = "get_event_changes"
)

func kindOf(operation string) observe.Kind {
	return observe.Kind{
		Operation:      operation,
		SpanName:       "eventstore.query." + operation,
		DurationMetric: metricQueryDuration,
		ErrorsMetric:   metricQueryErrors,
	}
}

// EventChanges is the JSON Patch which turns the entity snapshot of the previous event into the snapshot of EventID.
// PreviousEventID is nil for the first event of an entity, whose patch starts from an empty object.
type EventChanges struct {
	EventID         uuid.UUID            `json:"eventId"`
	EntityType      string               `json:"entityType"`
	EntityID        string               `json:"entityId"`
	EventType       eventstore.EventType `json:"eventType"`
	PreviousEventID *uuid.UUID           `json:"previousEventId"`
	Patch           jsonpatch.Patch      `json:"patch"`
}

// Engine answers read requests against an eventstore.EventReader.
type Engine struct {
	reader       eventstore.EventReader
	defaultLimit int
	eventual     bool
	observer     observe.Observer
}

// Option defines a functional option for configuring Engine.
type Option func(*Engine) error

// WithLogger sets the logger for the Engine.
//
// Debug level: completed queries with result counts and durations
// Error level: failed queries
func WithLogger(logger eventstore.Logger) Option {
	return func(e *Engine) error {
		e.observer.Logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, which takes precedence over WithLogger.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(e *Engine) error {
		e.observer.ContextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(e *Engine) error {
		e.observer.Metrics = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(e *Engine) error {
		e.observer.Tracing = collector
		return nil
	}
}

// WithDefaultSearchLimit replaces eventstore.DefaultSearchLimit for searches without a positive Limit.
func WithDefaultSearchLimit(limit int) Option {
	return func(e *Engine) error {
		if limit <= 0 {
			return errors.New("default search limit must be positive")
		}

		e.defaultLimit = limit

		return nil
	}
}

// WithEventualConsistency marks every read as eventually consistent, see eventstore.WithEventualConsistency.
// A reader with a replica serves such reads from the replica, others ignore the mark.
// A context which already carries a consistency level keeps it.
func WithEventualConsistency() Option {
	return func(e *Engine) error {
		e.eventual = true
		return nil
	}
}

// NewEngine creates an Engine reading from reader.
func NewEngine(reader eventstore.EventReader, options ...Option) (*Engine, error) {
	if reader == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	e := &Engine{
		reader:       reader,
		defaultLimit: eventstore.DefaultSearchLimit,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// GetEntityEvents returns the history of one entity.
//
// Without fields every response carries FullData. With fields, FullData is nil and Fields holds
// the requested metadata keys which exist for the event.
func (e *Engine) GetEntityEvents(
	ctx context.Context,
	entityType string,
	entityID string,
	fields []string,
) ([]eventstore.EventResponse, error) {

	op, ctx := e.observer.Start(ctx, kindOf(operationEntityEvents), map[string]string{spanAttrEntityType: entityType})
	ctx = e.readContext(ctx)

	events, err := e.reader.EventsForEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, e.fail(ctx, op, operationEntityEvents, errorTypeStorage, err, logAttrEntityType, entityType, logAttrEntityID, entityID)
	}

	var responses []eventstore.EventResponse

	if len(fields) == 0 {
		responses = fullDataResponses(events)
	} else {
		responses, err = e.fieldsResponses(ctx, events, fields)
		if err != nil {
			return nil, e.fail(ctx, op, operationEntityEvents, errorTypeStorage, err, logAttrEntityType, entityType, logAttrEntityID, entityID)
		}
	}

	e.succeed(ctx, op, operationEntityEvents, len(responses), logAttrEntityType, entityType, logAttrEntityID, entityID)

	return responses, nil
}

// SearchEvents returns the newest events of request.EntityType whose metadata matches all predicates.
//
// Each predicate yields a set of event ids; the sets are intersected, and an empty set ends the search early.
// The responses carry the metadata rows of each event as Fields, never FullData.
func (e *Engine) SearchEvents(ctx context.Context, request eventstore.SearchRequest) ([]eventstore.EventResponse, error) {
	op, ctx := e.observer.Start(ctx, kindOf(operationSearch), map[string]string{spanAttrEntityType: request.EntityType})
	ctx = e.readContext(ctx)

	if request.EntityType == "" {
		op.Fail(errorTypeValidation)
		return nil, eventstore.ErrMissingEntityType
	}

	predicates := request.MetadataPredicates()

	eventIDs, err := e.matchingEventIDs(ctx, request.EntityType, predicates)
	if err != nil {
		return nil, e.fail(ctx, op, operationSearch, errorTypeStorage, err, logAttrEntityType, request.EntityType)
	}

	if eventIDs != nil && len(eventIDs) == 0 {
		e.succeed(ctx, op, operationSearch, 0, logAttrEntityType, request.EntityType, logAttrPredicates, len(predicates))
		return []eventstore.EventResponse{}, nil
	}

	events, err := e.reader.FindEvents(ctx, eventstore.EventCriteria{
		EntityType: request.EntityType,
		EventType:  request.EventType,
		EventIDs:   eventIDs,
		Limit:      request.EffectiveLimit(e.defaultLimit),
	})
	if err != nil {
		return nil, e.fail(ctx, op, operationSearch, errorTypeStorage, err, logAttrEntityType, request.EntityType)
	}

	responses, err := e.fieldsResponses(ctx, events, nil)
	if err != nil {
		return nil, e.fail(ctx, op, operationSearch, errorTypeStorage, err, logAttrEntityType, request.EntityType)
	}

	e.succeed(ctx, op, operationSearch, len(responses), logAttrEntityType, request.EntityType, logAttrPredicates, len(predicates))

	return responses, nil
}

// GetAllEvents returns every stored event with FullData.
func (e *Engine) GetAllEvents(ctx context.Context) ([]eventstore.EventResponse, error) {
	op, ctx := e.observer.Start(ctx, kindOf(operationAllEvents), nil)
	ctx = e.readContext(ctx)

	events, err := e.reader.AllEvents(ctx)
	if err != nil {
		return nil, e.fail(ctx, op, operationAllEvents, errorTypeStorage, err)
	}

	responses := fullDataResponses(events)
	e.succeed(ctx, op, operationAllEvents, len(responses))

	return responses, nil
}

// GetEventChanges returns the patch between the entity's previous event and eventID.
// It returns an error wrapping eventstore.ErrEventNotFound if eventID is unknown.
func (e *Engine) GetEventChanges(ctx context.Context, eventID uuid.UUID) (EventChanges, error) {
	op, ctx := e.observer.Start(ctx, kindOf(operationEventChanges), nil)
	ctx = e.readContext(ctx)

	event, err := e.reader.EventByID(ctx, eventID)
	if err != nil {
		errorType := errorTypeStorage
		if errors.Is(err, eventstore.ErrEventNotFound) {
			errorType = errorTypeNotFound
		}

		return EventChanges{}, e.fail(ctx, op, operationEventChanges, errorType, err, logAttrEventID, eventID.String())
	}

	history, err := e.reader.EventsForEntity(ctx, event.EntityType, event.EntityID)
	if err != nil {
		return EventChanges{}, e.fail(ctx, op, operationEventChanges, errorTypeStorage, err, logAttrEventID, eventID.String())
	}

	changes := EventChanges{
		EventID:    event.EventID,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		EventType:  event.EventType,
	}

	previousData := emptySnapshot
	if previous, found := eventstore.PreviousOf(history, event.EventID); found {
		previousData = previous.EntityData
		changes.PreviousEventID = &previous.EventID
	}

	changes.Patch, err = jsonpatch.GeneratePatch([]byte(previousData), []byte(event.EntityData))
	if err != nil {
		return EventChanges{}, e.fail(ctx, op, operationEventChanges, errorTypePatch, err, logAttrEventID, eventID.String())
	}

	e.succeed(ctx, op, operationEventChanges, len(changes.Patch), logAttrEventID, eventID.String())

	return changes, nil
}

// matchingEventIDs returns nil if there are no predicates, otherwise the intersection of the matching id sets.
func (e *Engine) matchingEventIDs(
	ctx context.Context,
	entityType string,
	predicates []eventstore.SearchPredicate,
) ([]uuid.UUID, error) {

	if len(predicates) == 0 {
		return nil, nil
	}

	var candidates map[uuid.UUID]struct{}

	for _, predicate := range predicates {
		ids, err := e.reader.MatchingEventIDs(ctx, entityType, predicate)
		if err != nil {
			return nil, err
		}

		matched := make(map[uuid.UUID]struct{}, len(ids))
		for _, id := range ids {
			if candidates == nil {
				matched[id] = struct{}{}
				continue
			}

			if _, ok := candidates[id]; ok {
				matched[id] = struct{}{}
			}
		}

		candidates = matched
		if len(candidates) == 0 {
			break
		}
	}

	eventIDs := make([]uuid.UUID, 0, len(candidates))
	for id := range candidates {
		eventIDs = append(eventIDs, id)
	}

	return eventIDs, nil
}

func (e *Engine) fieldsResponses(
	ctx context.Context,
	events eventstore.BusinessEvents,
	keys []string,
) ([]eventstore.EventResponse, error) {

	responses := make([]eventstore.EventResponse, 0, len(events))
	if len(events) == 0 {
		return responses, nil
	}

	eventIDs := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		eventIDs = append(eventIDs, event.EventID)
	}

	rows, err := e.reader.MetadataForEvents(ctx, eventIDs, keys)
	if err != nil {
		return nil, err
	}

	fieldsByEvent := eventstore.GroupMetadataByEvent(rows)
	for _, event := range events {
		responses = append(responses, eventstore.FieldsResponse(event, fieldsByEvent[event.EventID]))
	}

	return responses, nil
}

func fullDataResponses(events eventstore.BusinessEvents) []eventstore.EventResponse {
	responses := make([]eventstore.EventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, eventstore.FullDataResponse(event))
	}

	return responses
}

func (e *Engine) succeed(ctx context.Context, op *observe.Operation, operation string, results int, args ...any) {
	op.RecordValue(metricQueryResults, float64(results))
	op.Succeed(map[string]string{spanAttrResults: strconv.Itoa(results)})

	allArgs := []any{logAttrOperation, operation, logAttrResults, results, logAttrDurationMS, observe.ToMilliseconds(op.Elapsed())}
	allArgs = append(allArgs, args...)
	e.observer.Debug(ctx, logMsgQueryCompleted, allArgs...)
}

func (e *Engine) fail(ctx context.Context, op *observe.Operation, operation, errorType string, err error, args ...any) error {
	op.Fail(errorType)

	allArgs := []any{logAttrOperation, operation}
	allArgs = append(allArgs, args...)
	e.observer.Error(ctx, logMsgQueryFailed, err, allArgs...)

	if errors.Is(err, eventstore.ErrQueryingEventsFailed) {
		return err
	}

	return errors.Join(eventstore.ErrQueryingEventsFailed, err)
}

func (e *Engine) readContext(ctx context.Context) context.Context {
	if !e.eventual {
		return ctx
	}

	if _, marked := ctx.Value(eventstore.ConsistencyLevelKey).(eventstore.ConsistencyLevel); marked {
		return ctx
	}

	return eventstore.WithEventualConsistency(ctx)
}
