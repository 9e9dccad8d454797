package postgresengine

import (
	"context"
	"errors"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/internal/observe"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/postgresengine/internal/adapters"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/transaction"
)

/***** Writing *****/

// Begin implements transaction.Manager with a database transaction.
func (es *EventStore) Begin(ctx context.Context) (transaction.Transaction, error) {
	tx, err := es.db.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return &sqlTransaction{es: es, tx: tx}, nil
}

// AppendEvent implements eventstore.EventWriter. The event and its metadata rows are written in their own transaction.
func (es *EventStore) AppendEvent(ctx context.Context, event eventstore.BusinessEvent, metadata eventstore.MetadataRows) error {
	return transaction.Execute(ctx, es, func(tx transaction.Transaction) error {
		return tx.AppendEvent(ctx, event, metadata)
	})
}

// sqlTransaction writes the event row first, then the metadata rows, within one database transaction.
type sqlTransaction struct {
	es *EventStore
	tx adapters.DBTx
}

// AppendEvent implements eventstore.EventWriter.
func (t *sqlTransaction) AppendEvent(ctx context.Context, event eventstore.BusinessEvent, metadata eventstore.MetadataRows) error {
	es := t.es

	op, ctx := es.observer.Start(ctx, kindOf(operationAppendEvent), map[string]string{spanAttrEntityType: event.EntityType})

	statements, err := es.buildAppendStatements(ctx, event, metadata)
	if err != nil {
		op.Fail(errorTypeBuildQuery)
		return err
	}

	for _, sqlQuery := range statements {
		if _, err = es.exec(ctx, t.tx, operationAppendEvent, sqlQuery); err != nil {
			op.Fail(errorTypeDatabase)
			return errors.Join(eventstore.ErrAppendingEventFailed, err)
		}
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

// Commit implements transaction.Transaction.
func (t *sqlTransaction) Commit() error {
	return t.tx.Commit()
}

// Rollback implements transaction.Transaction.
func (t *sqlTransaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		t.es.observer.Warn(context.Background(), logMsgRollbackFailed, observe.AttrError, err.Error())
		return err
	}

	return nil
}

func (es *EventStore) buildAppendStatements(
	ctx context.Context,
	event eventstore.BusinessEvent,
	metadata eventstore.MetadataRows,
) ([]string, error) {

	builder := es.builder()

	eventInsert := builder.
		Insert(es.eventTableName).
		Cols(
			colEventID, colEntityType, colEntityID, colEventType, colSchemaVersion,
			colEventTimestamp, colCorrelationID, colActorID, colActorType, colEntityData,
		).
		Vals(goqu.Vals{
			event.EventID.String(),
			event.EntityType,
			event.EntityID,
			string(event.EventType),
			event.SchemaVersion,
			es.timestampValue(event.EventTimestamp),
			event.CorrelationID,
			event.ActorID,
			string(event.ActorType),
			event.EntityData,
		})

	eventSQL, err := es.toSQL(ctx, eventInsert)
	if err != nil {
		return nil, err
	}

	statements := []string{eventSQL}

	if len(metadata) == 0 {
		return statements, nil
	}

	values := make([][]any, 0, len(metadata))
	for _, row := range metadata {
		values = append(values, goqu.Vals{
			row.EventID.String(),
			row.MetadataKey,
			row.EntityType,
			row.EntityID,
			row.MetadataValue,
			string(row.DataType),
		})
	}

	metadataInsert := builder.
		Insert(es.metadataTableName).
		Cols(colEventID, colMetadataKey, colEntityType, colEntityID, colMetadataValue, colDataType).
		Vals(values...)

	metadataSQL, err := es.toSQL(ctx, metadataInsert)
	if err != nil {
		return nil, err
	}

	return append(statements, metadataSQL), nil
}

/***** Reading *****/

// EventsForEntity implements eventstore.EventReader.
func (es *EventStore) EventsForEntity(ctx context.Context, entityType, entityID string) (eventstore.BusinessEvents, error) {
	selectStmt := es.eventSelect().
		Where(goqu.Ex{colEntityType: entityType, colEntityID: entityID})

	return es.readEvents(ctx, operationEventsByEntity, selectStmt)
}

// EventByID implements eventstore.EventReader.
func (es *EventStore) EventByID(ctx context.Context, eventID uuid.UUID) (eventstore.BusinessEvent, error) {
	selectStmt := es.eventSelect().
		Where(goqu.Ex{colEventID: eventID.String()}).
		Limit(1)

	events, err := es.readEvents(ctx, operationReadEvents, selectStmt)
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
	return es.readEvents(ctx, operationReadEvents, es.eventSelect())
}

// FindEvents implements eventstore.EventReader.
func (es *EventStore) FindEvents(ctx context.Context, criteria eventstore.EventCriteria) (eventstore.BusinessEvents, error) {
	if criteria.EventIDs != nil && len(criteria.EventIDs) == 0 {
		return eventstore.BusinessEvents{}, nil
	}

	conditions := goqu.Ex{colEntityType: criteria.EntityType}

	if criteria.EventType != "" {
		conditions[colEventType] = string(criteria.EventType)
	}

	if criteria.EventIDs != nil {
		conditions[colEventID] = idStrings(criteria.EventIDs)
	}

	selectStmt := es.eventSelect().Where(conditions)

	if criteria.Limit > 0 {
		selectStmt = selectStmt.Limit(uint(criteria.Limit))
	}

	return es.readEvents(ctx, operationReadEvents, selectStmt)
}

// MatchingEventIDs implements eventstore.EventReader.
// A wildcard predicate is matched with LIKE, which is case-insensitive for ASCII in SQLite.
func (es *EventStore) MatchingEventIDs(
	ctx context.Context,
	entityType string,
	predicate eventstore.SearchPredicate,
) ([]uuid.UUID, error) {

	op, ctx := es.observer.Start(ctx, kindOf(operationMatchEventIDs), map[string]string{spanAttrEntityType: entityType})

	var valueCondition exp.Expression = goqu.C(colMetadataValue).Eq(predicate.Val())
	if predicate.IsWildcard() {
		valueCondition = goqu.C(colMetadataValue).Like(predicate.LikePattern())
	}

	selectStmt := es.builder().
		From(es.metadataTableName).
		Select(colEventID).
		Distinct().
		Where(
			goqu.C(colEntityType).Eq(entityType),
			goqu.C(colMetadataKey).Eq(predicate.Key()),
			valueCondition,
		)

	sqlQuery, err := es.toSQL(ctx, selectStmt)
	if err != nil {
		op.Fail(errorTypeBuildQuery)
		return nil, err
	}

	rows, err := es.query(ctx, operationMatchEventIDs, sqlQuery)
	if err != nil {
		op.Fail(errorTypeDatabase)
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}
	defer es.closeRows(ctx, rows)

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			op.Fail(errorTypeRowScan)
			es.observer.Error(ctx, logMsgScanRowFailed, err)

			return nil, errors.Join(eventstore.ErrQueryingEventsFailed, eventstore.ErrScanningDBRowFailed, err)
		}

		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		op.Fail(errorTypeDatabase)
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	op.Succeed(nil)

	return ids, nil
}

// MetadataForEvents implements eventstore.EventReader. Empty keys select all keys.
func (es *EventStore) MetadataForEvents(ctx context.Context, eventIDs []uuid.UUID, keys []string) (eventstore.MetadataRows, error) {
	if len(eventIDs) == 0 {
		return eventstore.MetadataRows{}, nil
	}

	op, ctx := es.observer.Start(ctx, kindOf(operationReadMetadata), nil)

	conditions := goqu.Ex{colEventID: idStrings(eventIDs)}
	if len(keys) > 0 {
		conditions[colMetadataKey] = keys
	}

	selectStmt := es.builder().
		From(es.metadataTableName).
		Select(colEventID, colMetadataKey, colEntityType, colEntityID, colMetadataValue, colDataType).
		Where(conditions).
		Order(goqu.C(colEventID).Asc(), goqu.C(colMetadataKey).Asc())

	sqlQuery, err := es.toSQL(ctx, selectStmt)
	if err != nil {
		op.Fail(errorTypeBuildQuery)
		return nil, err
	}

	rows, err := es.query(ctx, operationReadMetadata, sqlQuery)
	if err != nil {
		op.Fail(errorTypeDatabase)
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}
	defer es.closeRows(ctx, rows)

	result := make(eventstore.MetadataRows, 0)
	for rows.Next() {
		var (
			row      eventstore.BusinessEventMetadata
			dataType string
		)

		if err = rows.Scan(&row.EventID, &row.MetadataKey, &row.EntityType, &row.EntityID, &row.MetadataValue, &dataType); err != nil {
			op.Fail(errorTypeRowScan)
			es.observer.Error(ctx, logMsgScanRowFailed, err)

			return nil, errors.Join(eventstore.ErrQueryingEventsFailed, eventstore.ErrScanningDBRowFailed, err)
		}

		row.DataType = eventstore.DataType(dataType)
		result = append(result, row)
	}

	if err = rows.Err(); err != nil {
		op.Fail(errorTypeDatabase)
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	op.Succeed(nil)

	return result, nil
}

func (es *EventStore) eventSelect() *goqu.SelectDataset {
	return es.builder().
		From(es.eventTableName).
		Select(
			colEventID, colEntityType, colEntityID, colEventType, colSchemaVersion,
			colEventTimestamp, colCorrelationID, colActorID, colActorType, colEntityData,
		).
		Order(goqu.C(colEventTimestamp).Desc(), goqu.C(colEventID).Desc())
}

func (es *EventStore) readEvents(ctx context.Context, operation string, selectStmt *goqu.SelectDataset) (eventstore.BusinessEvents, error) {
	op, ctx := es.observer.Start(ctx, kindOf(operation), nil)

	sqlQuery, err := es.toSQL(ctx, selectStmt)
	if err != nil {
		op.Fail(errorTypeBuildQuery)
		return nil, err
	}

	rows, err := es.query(ctx, operation, sqlQuery)
	if err != nil {
		op.Fail(errorTypeDatabase)
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}
	defer es.closeRows(ctx, rows)

	events := make(eventstore.BusinessEvents, 0)
	for rows.Next() {
		event, scanErr := es.scanEvent(ctx, rows)
		if scanErr != nil {
			op.Fail(errorTypeRowScan)
			return nil, scanErr
		}

		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		op.Fail(errorTypeDatabase)
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	op.Succeed(nil)

	return events, nil
}

func (es *EventStore) scanEvent(ctx context.Context, rows adapters.DBRows) (eventstore.BusinessEvent, error) {
	var (
		event     eventstore.BusinessEvent
		eventType string
		actorType string
		timestamp dbTime
	)

	err := rows.Scan(
		&event.EventID,
		&event.EntityType,
		&event.EntityID,
		&eventType,
		&event.SchemaVersion,
		&timestamp,
		&event.CorrelationID,
		&event.ActorID,
		&actorType,
		&event.EntityData,
	)
	if err != nil {
		es.observer.Error(ctx, logMsgScanRowFailed, err)
		return eventstore.BusinessEvent{}, errors.Join(eventstore.ErrQueryingEventsFailed, eventstore.ErrScanningDBRowFailed, err)
	}

	event.EventType = eventstore.EventType(eventType)
	event.ActorType = eventstore.ActorType(actorType)
	event.EventTimestamp = timestamp.Time

	return event, nil
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
	_ transaction.Manager    = (*EventStore)(nil)
)
