// Package memoryengine provides an in-memory storage engine.
//
// All state lives in maps guarded by one RWMutex, so a single AppendEvent call is atomic
// and the engine is used with transaction.NoOpManager. It suits tests, demos and single-process tools.
//
// Usage:
//
//	store := memoryengine.NewStore()
//	registry, _ := schemaregistry.NewRegistry(store)
//	tracker, _ := tracker.NewEventTracker(registry, validator, store.TransactionManager())
//	engine, _ := query.NewEngine(store)
package memoryengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/transaction"
)

// ErrDuplicateKey is returned when an event id or an (event id, metadata key) pair is written twice.
var ErrDuplicateKey = errors.New("duplicate key")

// Store is an in-memory SchemaStore, EventWriter and EventReader.
type Store struct {
	mu       sync.RWMutex
	schemas  map[string]map[int]eventstore.SchemaVersion
	events   map[uuid.UUID]eventstore.BusinessEvent
	metadata map[uuid.UUID]eventstore.MetadataRows
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		schemas:  make(map[string]map[int]eventstore.SchemaVersion),
		events:   make(map[uuid.UUID]eventstore.BusinessEvent),
		metadata: make(map[uuid.UUID]eventstore.MetadataRows),
	}
}

// TransactionManager returns a transaction.NoOpManager writing to this store.
func (s *Store) TransactionManager() transaction.NoOpManager {
	return transaction.NewNoOpManager(s)
}

/***** SchemaStore *****/

// InsertSchema implements eventstore.SchemaStore.
func (s *Store) InsertSchema(ctx context.Context, schema eventstore.SchemaVersion) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(eventstore.ErrStorageFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.schemas[schema.EntityType]
	if !ok {
		versions = make(map[int]eventstore.SchemaVersion)
		s.schemas[schema.EntityType] = versions
	}

	if _, exists := versions[schema.Version]; exists {
		return fmt.Errorf("%w: %s version %d", eventstore.ErrSchemaAlreadyExists, schema.EntityType, schema.Version)
	}

	versions[schema.Version] = schema

	return nil
}

// FindSchema implements eventstore.SchemaStore.
func (s *Store) FindSchema(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.SchemaVersion{}, errors.Join(eventstore.ErrStorageFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, found := s.schemas[entityType][version]
	if !found {
		return eventstore.SchemaVersion{}, eventstore.ErrSchemaNotFound
	}

	return schema, nil
}

// FindLatestSchema implements eventstore.SchemaStore.
func (s *Store) FindLatestSchema(ctx context.Context, entityType string) (eventstore.SchemaVersion, error) {
	schemas, err := s.ListSchemas(ctx, entityType)
	if err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if len(schemas) == 0 {
		return eventstore.SchemaVersion{}, eventstore.ErrSchemaNotFound
	}

	return schemas[len(schemas)-1], nil
}

// ListSchemas implements eventstore.SchemaStore.
func (s *Store) ListSchemas(ctx context.Context, entityType string) ([]eventstore.SchemaVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrStorageFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	schemas := make([]eventstore.SchemaVersion, 0, len(s.schemas[entityType]))
	for _, schema := range s.schemas[entityType] {
		schemas = append(schemas, schema)
	}

	slices.SortFunc(schemas, func(a, b eventstore.SchemaVersion) int {
		return a.Version - b.Version
	})

	return schemas, nil
}

/***** EventWriter *****/

// AppendEvent implements eventstore.EventWriter. The event and its metadata rows become visible together.
func (s *Store) AppendEvent(ctx context.Context, event eventstore.BusinessEvent, metadata eventstore.MetadataRows) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.EventID]; exists {
		return errors.Join(eventstore.ErrAppendingEventFailed, ErrDuplicateKey)
	}

	keys := make(map[string]struct{}, len(metadata))
	for _, row := range metadata {
		if row.EventID != event.EventID {
			return errors.Join(eventstore.ErrAppendingEventFailed, fmt.Errorf("metadata row %q references another event", row.MetadataKey))
		}

		if _, exists := keys[row.MetadataKey]; exists {
			return errors.Join(eventstore.ErrAppendingEventFailed, ErrDuplicateKey)
		}
		keys[row.MetadataKey] = struct{}{}
	}

	s.events[event.EventID] = event
	s.metadata[event.EventID] = slices.Clone(metadata)

	return nil
}

/***** EventReader *****/

// EventsForEntity implements eventstore.EventReader.
func (s *Store) EventsForEntity(ctx context.Context, entityType, entityID string) (eventstore.BusinessEvents, error) {
	return s.collect(ctx, func(event eventstore.BusinessEvent) bool {
		return event.EntityType == entityType && event.EntityID == entityID
	}, 0)
}

// EventByID implements eventstore.EventReader.
func (s *Store) EventByID(ctx context.Context, eventID uuid.UUID) (eventstore.BusinessEvent, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.BusinessEvent{}, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	event, found := s.events[eventID]
	if !found {
		return eventstore.BusinessEvent{}, eventstore.ErrEventNotFound
	}

	return event, nil
}

// AllEvents implements eventstore.EventReader.
func (s *Store) AllEvents(ctx context.Context) (eventstore.BusinessEvents, error) {
	return s.collect(ctx, func(eventstore.BusinessEvent) bool { return true }, 0)
}

// FindEvents implements eventstore.EventReader.
func (s *Store) FindEvents(ctx context.Context, criteria eventstore.EventCriteria) (eventstore.BusinessEvents, error) {
	var idSet map[uuid.UUID]struct{}
	if criteria.EventIDs != nil {
		idSet = make(map[uuid.UUID]struct{}, len(criteria.EventIDs))
		for _, id := range criteria.EventIDs {
			idSet[id] = struct{}{}
		}
	}

	return s.collect(ctx, func(event eventstore.BusinessEvent) bool {
		if event.EntityType != criteria.EntityType {
			return false
		}

		if criteria.EventType != "" && event.EventType != criteria.EventType {
			return false
		}

		if idSet != nil {
			_, selected := idSet[event.EventID]
			return selected
		}

		return true
	}, criteria.Limit)
}

// MatchingEventIDs implements eventstore.EventReader.
func (s *Store) MatchingEventIDs(
	ctx context.Context,
	entityType string,
	predicate eventstore.SearchPredicate,
) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0)
	for eventID, rows := range s.metadata {
		for _, row := range rows {
			if row.EntityType == entityType && predicate.Matches(row.MetadataKey, row.MetadataValue) {
				ids = append(ids, eventID)
				break
			}
		}
	}

	return ids, nil
}

// MetadataForEvents implements eventstore.EventReader. Empty keys select all keys.
func (s *Store) MetadataForEvents(ctx context.Context, eventIDs []uuid.UUID, keys []string) (eventstore.MetadataRows, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make(eventstore.MetadataRows, 0)
	for _, eventID := range eventIDs {
		for _, row := range s.metadata[eventID] {
			if len(keys) == 0 || slices.Contains(keys, row.MetadataKey) {
				rows = append(rows, row)
			}
		}
	}

	return rows, nil
}

func (s *Store) collect(
	ctx context.Context,
	matches func(event eventstore.BusinessEvent) bool,
	limit int,
) (eventstore.BusinessEvents, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	s.mu.RLock()
	events := make(eventstore.BusinessEvents, 0)
	for _, event := range s.events {
		if matches(event) {
			events = append(events, event)
		}
	}
	s.mu.RUnlock()

	eventstore.SortNewestFirst(events)

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

// Ensure Store implements the storage ports.
var (
	_ eventstore.SchemaStore = (*Store)(nil)
	_ eventstore.EventWriter = (*Store)(nil)
	_ eventstore.EventReader = (*Store)(nil)
)
