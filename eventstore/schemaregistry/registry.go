// Package schemaregistry stores and resolves the JSON Schemas of entity types.
//
// Schemas are immutable: a new shape of an entity type is registered as a new version.
// The latest schema of an entity type is the one with the highest version.
//
// Example:
//
//	registry, _ := schemaregistry.NewRegistry(store, schemaregistry.WithCache(schemaregistry.NewMemoryCache()))
//	_, err := registry.AddSchema(ctx, "Customer", 1, customerSchemaJSON)
//	latest, err := registry.GetLatestSchema(ctx, "Customer")
//	config := registry.ParseMetadataConfig(latest.SchemaDefinition)
package schemaregistry

import (
	"context"
	"time"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/metadata"
)

const (
	logMsgSchemaAdded        = "schema registered"
	logMsgCacheReadFailed    = "schema cache read failed"
	logMsgCacheWriteFailed   = "schema cache write failed"
	logMsgCacheInvalidFailed = "schema cache invalidation failed"
	logAttrEntityType        = "entity_type"
	logAttrVersion           = "version"
	logAttrError             = "error"

	latestVersion = 0
)

// Registry resolves schemas from a SchemaStore, optionally through a Cache.
type Registry struct {
	store  eventstore.SchemaStore
	cache  Cache
	logger eventstore.Logger
	now    func() time.Time
}

// Option defines a functional option for configuring Registry.
type Option func(*Registry) error

// WithCache sets a cache for resolved schemas. The registry invalidates an entity type on AddSchema.
func WithCache(cache Cache) Option {
	return func(r *Registry) error {
		r.cache = cache
		return nil
	}
}

// WithLogger sets the logger for the Registry.
func WithLogger(logger eventstore.Logger) Option {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// WithClock sets the time source for CreatedDate.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) error {
		r.now = now
		return nil
	}
}

// NewRegistry creates a Registry on top of store.
func NewRegistry(store eventstore.SchemaStore, options ...Option) (*Registry, error) {
	if store == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	r := &Registry{
		store: store,
		now:   time.Now,
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// AddSchema registers a new schema version.
//
// It returns ErrEmptyEntityType, ErrInvalidSchemaVersion or ErrInvalidSchemaDefinition for invalid input
// and ErrSchemaAlreadyExists if the version is already registered.
func (r *Registry) AddSchema(ctx context.Context, entityType string, version int, schemaDefinition string) (eventstore.SchemaVersion, error) {
	schema, err := eventstore.BuildSchemaVersion(entityType, version, schemaDefinition, r.now())
	if err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if err = r.store.InsertSchema(ctx, schema); err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if r.cache != nil {
		if cacheErr := r.cache.Invalidate(ctx, entityType); cacheErr != nil {
			r.logWarn(logMsgCacheInvalidFailed, cacheErr, entityType, version)
		}
	}

	if r.logger != nil {
		r.logger.Info(logMsgSchemaAdded, logAttrEntityType, entityType, logAttrVersion, version)
	}

	return schema, nil
}

// GetSchema returns a specific schema version or ErrSchemaNotFound.
func (r *Registry) GetSchema(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, error) {
	if version < 1 {
		return eventstore.SchemaVersion{}, eventstore.ErrInvalidSchemaVersion
	}

	return r.resolve(ctx, entityType, version, func() (eventstore.SchemaVersion, error) {
		return r.store.FindSchema(ctx, entityType, version)
	})
}

// GetLatestSchema returns the highest version of an entity type or ErrSchemaNotFound.
func (r *Registry) GetLatestSchema(ctx context.Context, entityType string) (eventstore.SchemaVersion, error) {
	return r.resolve(ctx, entityType, latestVersion, func() (eventstore.SchemaVersion, error) {
		return r.store.FindLatestSchema(ctx, entityType)
	})
}

// ListSchemas returns all versions of an entity type in ascending version order.
func (r *Registry) ListSchemas(ctx context.Context, entityType string) ([]eventstore.SchemaVersion, error) {
	return r.store.ListSchemas(ctx, entityType)
}

// ParseMetadataConfig derives the metadata extraction config of a schema definition.
// A malformed definition yields an empty config.
func (r *Registry) ParseMetadataConfig(schemaDefinition string) metadata.ExtractionConfig {
	return metadata.ParseConfig(schemaDefinition)
}

func (r *Registry) resolve(
	ctx context.Context,
	entityType string,
	version int,
	load func() (eventstore.SchemaVersion, error),
) (eventstore.SchemaVersion, error) {
	if r.cache != nil {
		cached, found, err := r.cache.Get(ctx, entityType, version)
		if err != nil {
			r.logWarn(logMsgCacheReadFailed, err, entityType, version)
		}

		if found {
			return cached, nil
		}
	}

	schema, err := load()
	if err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if r.cache != nil {
		if cacheErr := r.cache.Set(ctx, schema, version == latestVersion); cacheErr != nil {
			r.logWarn(logMsgCacheWriteFailed, cacheErr, entityType, version)
		}
	}

	return schema, nil
}

func (r *Registry) logWarn(msg string, err error, entityType string, version int) {
	if r.logger != nil {
		r.logger.Warn(msg, logAttrError, err.Error(), logAttrEntityType, entityType, logAttrVersion, version)
	}
}
