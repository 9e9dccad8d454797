package postgresengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/postgresengine/internal/adapters"
)

// InsertSchema implements eventstore.SchemaStore.
// The (entity type, version) primary key rejects duplicates with eventstore.ErrSchemaAlreadyExists.
func (es *EventStore) InsertSchema(ctx context.Context, schema eventstore.SchemaVersion) error {
	op, ctx := es.observer.Start(ctx, kindOf(operationInsertSchema), map[string]string{spanAttrEntityType: schema.EntityType})

	insertStmt := es.builder().
		Insert(es.schemaTableName).
		Cols(colEntityType, colVersion, colSchemaDefinition, colCreatedDate).
		Vals(goqu.Vals{schema.EntityType, schema.Version, schema.SchemaDefinition, es.timestampValue(schema.CreatedDate)}).
		OnConflict(goqu.DoNothing())

	sqlQuery, err := es.toSQL(ctx, insertStmt)
	if err != nil {
		op.Fail(errorTypeBuildQuery)
		return err
	}

	result, err := es.exec(ctx, es.db, operationInsertSchema, sqlQuery)
	if err != nil {
		op.Fail(errorTypeDatabase)
		return errors.Join(eventstore.ErrStorageFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		op.Fail(errorTypeDatabase)
		return errors.Join(eventstore.ErrStorageFailed, err)
	}

	if rowsAffected == 0 {
		op.Fail(errorTypeDuplicate)
		return fmt.Errorf("%w: %s version %d", eventstore.ErrSchemaAlreadyExists, schema.EntityType, schema.Version)
	}

	op.Succeed(nil)
	es.observer.Info(ctx, logMsgSchemaInserted, logAttrEntityType, schema.EntityType, logAttrSchemaVersion, schema.Version)

	return nil
}

// FindSchema implements eventstore.SchemaStore.
func (es *EventStore) FindSchema(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, error) {
	selectStmt := es.schemaSelect().
		Where(goqu.Ex{colEntityType: entityType, colVersion: version})

	schemas, err := es.readSchemas(ctx, selectStmt)
	if err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if len(schemas) == 0 {
		return eventstore.SchemaVersion{}, eventstore.ErrSchemaNotFound
	}

	return schemas[0], nil
}

// FindLatestSchema implements eventstore.SchemaStore.
func (es *EventStore) FindLatestSchema(ctx context.Context, entityType string) (eventstore.SchemaVersion, error) {
	selectStmt := es.schemaSelect().
		Where(goqu.Ex{colEntityType: entityType}).
		Order(goqu.C(colVersion).Desc()).
		Limit(1)

	schemas, err := es.readSchemas(ctx, selectStmt)
	if err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if len(schemas) == 0 {
		return eventstore.SchemaVersion{}, eventstore.ErrSchemaNotFound
	}

	return schemas[0], nil
}

// ListSchemas implements eventstore.SchemaStore.
func (es *EventStore) ListSchemas(ctx context.Context, entityType string) ([]eventstore.SchemaVersion, error) {
	selectStmt := es.schemaSelect().
		Where(goqu.Ex{colEntityType: entityType}).
		Order(goqu.C(colVersion).Asc())

	return es.readSchemas(ctx, selectStmt)
}

func (es *EventStore) schemaSelect() *goqu.SelectDataset {
	return es.builder().
		From(es.schemaTableName).
		Select(colEntityType, colVersion, colSchemaDefinition, colCreatedDate)
}

func (es *EventStore) readSchemas(ctx context.Context, selectStmt *goqu.SelectDataset) ([]eventstore.SchemaVersion, error) {
	op, ctx := es.observer.Start(ctx, kindOf(operationReadSchemas), nil)

	sqlQuery, err := es.toSQL(ctx, selectStmt)
	if err != nil {
		op.Fail(errorTypeBuildQuery)
		return nil, err
	}

	rows, err := es.query(ctx, operationReadSchemas, sqlQuery)
	if err != nil {
		op.Fail(errorTypeDatabase)
		return nil, errors.Join(eventstore.ErrStorageFailed, err)
	}
	defer es.closeRows(ctx, rows)

	schemas, err := es.scanSchemas(ctx, rows)
	if err != nil {
		op.Fail(errorTypeRowScan)
		return nil, err
	}

	op.Succeed(nil)

	return schemas, nil
}

func (es *EventStore) scanSchemas(ctx context.Context, rows adapters.DBRows) ([]eventstore.SchemaVersion, error) {
	schemas := make([]eventstore.SchemaVersion, 0)

	for rows.Next() {
		var (
			schema      eventstore.SchemaVersion
			createdDate dbTime
		)

		if err := rows.Scan(&schema.EntityType, &schema.Version, &schema.SchemaDefinition, &createdDate); err != nil {
			es.observer.Error(ctx, logMsgScanRowFailed, err)
			return nil, errors.Join(eventstore.ErrStorageFailed, eventstore.ErrScanningDBRowFailed, err)
		}

		schema.CreatedDate = createdDate.Time
		schemas = append(schemas, schema)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrStorageFailed, err)
	}

	return schemas, nil
}
