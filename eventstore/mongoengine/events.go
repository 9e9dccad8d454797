package mongoengine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/internal/observe"
)

type metadataDocument struct {
	Key      string `bson:"key"`
	Value    string `bson:"value"`
	DataType string `bson:"data_type"`
}

type eventDocument struct {
	ID             string             `bson:"_id"`
	EntityType     string             `bson:"entity_type"`
	EntityID       string             `bson:"entity_id"`
	EventType      string             `bson:"event_type"`
	SchemaVersion  int                `bson:"schema_version"`
	EventTimestamp time.Time          `bson:"event_timestamp"`
	CorrelationID  string             `bson:"correlation_id"`
	ActorID        string             `bson:"actor_id"`
	ActorType      string             `bson:"actor_type"`
	EntityData     string             `bson:"entity_data"`
	Metadata       []metadataDocument `bson:"metadata"`
}

func toEventDocument(event eventstore.BusinessEvent, metadata eventstore.MetadataRows) (eventDocument, error) {
	document := eventDocument{
		ID:             event.EventID.String(),
		EntityType:     event.EntityType,
		EntityID:       event.EntityID,
		EventType:      string(event.EventType),
		SchemaVersion:  event.SchemaVersion,
		EventTimestamp: event.EventTimestamp.UTC(),
		CorrelationID:  event.CorrelationID,
		ActorID:        event.ActorID,
		ActorType:      string(event.ActorType),
		EntityData:     event.EntityData,
		Metadata:       make([]metadataDocument, 0, len(metadata)),
	}

	seen := make(map[string]struct{}, len(metadata))
	for _, row := range metadata {
		if _, duplicate := seen[row.MetadataKey]; duplicate {
			return eventDocument{}, fmt.Errorf("%w: %s", ErrDuplicateMetadataKey, row.MetadataKey)
		}
		seen[row.MetadataKey] = struct{}{}

		document.Metadata = append(document.Metadata, metadataDocument{
			Key:      row.MetadataKey,
			Value:    row.MetadataValue,
			DataType: string(row.DataType),
		})
	}

	return document, nil
}

func (d eventDocument) toBusinessEvent() (eventstore.BusinessEvent, error) {
	eventID, err := uuid.Parse(d.ID)
	if err != nil {
		return eventstore.BusinessEvent{}, errors.Join(errDecode, eventstore.ErrScanningDBRowFailed, err)
	}

	return eventstore.BusinessEvent{
		EventID:        eventID,
		EntityType:     d.EntityType,
		EntityID:       d.EntityID,
		EventType:      eventstore.EventType(d.EventType),
		SchemaVersion:  d.SchemaVersion,
		EventTimestamp: d.EventTimestamp.UTC(),
		CorrelationID:  d.CorrelationID,
		ActorID:        d.ActorID,
		ActorType:      eventstore.ActorType(d.ActorType),
		EntityData:     d.EntityData,
	}, nil
}

/***** Writing *****/

// AppendEvent implements eventstore.EventWriter. The event and its metadata rows are written as one document.
func (es *EventStore) AppendEvent(ctx context.Context, event eventstore.BusinessEvent, metadata eventstore.MetadataRows) error {
	op, ctx := es.observer.Start(ctx, kindOf(operationAppendEvent), map[string]string{spanAttrEntityType: event.EntityType})

	document, err := toEventDocument(event, metadata)
	if err != nil {
		op.Fail(errorTypeInvalidInput)
		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	start := time.Now()
	_, err = es.events.InsertOne(ctx, document)
	es.logCommandWithDuration(ctx, operationAppendEvent, es.eventCollection, time.Since(start))

	if err != nil {
		errorType := errorTypeDatabase
		if mongo.IsDuplicateKeyError(err) {
			errorType = errorTypeDuplicate
		}

		op.Fail(errorType)
		es.observer.Error(ctx, logMsgDBWriteFailed, err, logAttrCollection, es.eventCollection)

		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	op.Succeed(map[string]string{logAttrMetadataRows: strconv.Itoa(len(metadata))})
	es.observer.Info(
		ctx,
		logMsgEventAppended,
		logAttrEventID, event.EventID.String(),
		logAttrEntityType, event.EntityType,
		logAttrEntityID, event.EntityID,
		logAttrMetadataRows, len(metadata),
		logAttrDurationMS, observe.ToMilliseconds(op.Elapsed()),
	)

	return nil
}

/***** Reading *****/

// EventsForEntity implements eventstore.EventReader.
func (es *EventStore) EventsForEntity(ctx context.Context, entityType, entityID string) (eventstore.BusinessEvents, error) {
	return es.readEvents(ctx, bson.M{fieldEntityType: entityType, fieldEntityID: entityID}, 0)
}

// EventByID implements eventstore.EventReader.
func (es *EventStore) EventByID(ctx context.Context, eventID uuid.UUID) (eventstore.BusinessEvent, error) {
	events, err := es.readEvents(ctx, bson.M{fieldID: eventID.String()}, 1)
	if err != nil {
		return eventstore.BusinessEvent{}, err
	}

	if len(events) == 0 {
		return eventstore.BusinessEvent{}, eventstore.ErrEventNotFound
	}

	return events[0], nil
}

// AllEvents implements eventstore.EventReader.
func (es *EventStore) AllEvents(ctx context.Context) (eventstore.BusinessEvents, error) {
	return es.readEvents(ctx, bson.M{}, 0)
}

// FindEvents implements eventstore.EventReader.
func (es *EventStore) FindEvents(ctx context.Context, criteria eventstore.EventCriteria) (eventstore.BusinessEvents, error) {
	if criteria.EventIDs != nil && len(criteria.EventIDs) == 0 {
		return eventstore.BusinessEvents{}, nil
	}

	filter := bson.M{fieldEntityType: criteria.EntityType}

	if criteria.EventType != "" {
		filter[fieldEventType] = string(criteria.EventType)
	}

	if criteria.EventIDs != nil {
		filter[fieldID] = bson.M{"$in": idStrings(criteria.EventIDs)}
	}

	return es.readEvents(ctx, filter, criteria.Limit)
}

// MatchingEventIDs implements eventstore.EventReader.
// A wildcard predicate is matched with an anchored regular expression.
func (es *EventStore) MatchingEventIDs(
	ctx context.Context,
	entityType string,
	predicate eventstore.SearchPredicate,
) ([]uuid.UUID, error) {

	op, ctx := es.observer.Start(ctx, kindOf(operationMatchEventIDs), map[string]string{spanAttrEntityType: entityType})

	var valueCondition any = predicate.Val()
	if predicate.IsWildcard() {
		valueCondition = bson.M{"$regex": wildcardPattern(predicate.Val())}
	}

	filter := bson.M{
		fieldEntityType: entityType,
		fieldMetadata: bson.M{"$elemMatch": bson.M{
			fieldMetadataKey:   predicate.Key(),
			fieldMetadataValue: valueCondition,
		}},
	}

	var documents []struct {
		ID string `bson:"_id"`
	}

	findOptions := options.Find().SetProjection(bson.M{fieldID: 1})
	if err := es.find(ctx, es.events, operationMatchEventIDs, filter, findOptions, &documents); err != nil {
		op.Fail(errorTypeOf(err))
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	ids := make([]uuid.UUID, 0, len(documents))
	for _, document := range documents {
		id, err := uuid.Parse(document.ID)
		if err != nil {
			op.Fail(errorTypeDecode)
			return nil, errors.Join(eventstore.ErrQueryingEventsFailed, eventstore.ErrScanningDBRowFailed, err)
		}

		ids = append(ids, id)
	}

	op.Succeed(nil)

	return ids, nil
}

// MetadataForEvents implements eventstore.EventReader. Empty keys select all keys.
// Rows are ordered by event id and key.
func (es *EventStore) MetadataForEvents(ctx context.Context, eventIDs []uuid.UUID, keys []string) (eventstore.MetadataRows, error) {
	if len(eventIDs) == 0 {
		return eventstore.MetadataRows{}, nil
	}

	op, ctx := es.observer.Start(ctx, kindOf(operationReadMetadata), nil)

	var documents []eventDocument

	findOptions := options.Find().
		SetProjection(bson.M{fieldEntityType: 1, fieldEntityID: 1, fieldMetadata: 1}).
		SetSort(bson.D{{Key: fieldID, Value: 1}})

	if err := es.find(ctx, es.events, operationReadMetadata, bson.M{fieldID: bson.M{"$in": idStrings(eventIDs)}}, findOptions, &documents); err != nil {
		op.Fail(errorTypeOf(err))
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	rows := make(eventstore.MetadataRows, 0)
	for _, document := range documents {
		eventID, err := uuid.Parse(document.ID)
		if err != nil {
			op.Fail(errorTypeDecode)
			return nil, errors.Join(eventstore.ErrQueryingEventsFailed, eventstore.ErrScanningDBRowFailed, err)
		}

		metadata := slices.Clone(document.Metadata)
		slices.SortFunc(metadata, func(a, b metadataDocument) int {
			return strings.Compare(a.Key, b.Key)
		})

		for _, entry := range metadata {
			if len(keys) > 0 && !slices.Contains(keys, entry.Key) {
				continue
			}

			rows = append(rows, eventstore.BusinessEventMetadata{
				EventID:       eventID,
				MetadataKey:   entry.Key,
				EntityType:    document.EntityType,
				EntityID:      document.EntityID,
				MetadataValue: entry.Value,
				DataType:      eventstore.DataType(entry.DataType),
			})
		}
	}

	op.Succeed(nil)

	return rows, nil
}

func (es *EventStore) readEvents(ctx context.Context, filter bson.M, limit int) (eventstore.BusinessEvents, error) {
	op, ctx := es.observer.Start(ctx, kindOf(operationReadEvents), nil)

	findOptions := options.Find().
		SetProjection(bson.M{fieldMetadata: 0}).
		SetSort(bson.D{{Key: fieldEventTimestamp, Value: -1}, {Key: fieldID, Value: -1}})

	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	var documents []eventDocument
	if err := es.find(ctx, es.events, operationReadEvents, filter, findOptions, &documents); err != nil {
		op.Fail(errorTypeOf(err))
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	events := make(eventstore.BusinessEvents, 0, len(documents))
	for _, document := range documents {
		event, err := document.toBusinessEvent()
		if err != nil {
			op.Fail(errorTypeDecode)
			return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
		}

		events = append(events, event)
	}

	op.Succeed(nil)

	return events, nil
}

// wildcardPattern translates a search value with "*" wildcards into an anchored regular expression.
func wildcardPattern(value string) string {
	parts := strings.Split(value, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}

	return "^" + strings.Join(parts, ".*") + "$"
}

func idStrings(ids []uuid.UUID) []string {
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		result = append(result, id.String())
	}

	return result
}

// Ensure EventStore implements the storage ports.
var (
	_ eventstore.SchemaStore = (*EventStore)(nil)
	_ eventstore.EventWriter = (*EventStore)(nil)
	_ eventstore.EventReader = (*EventStore)(nil)
)
