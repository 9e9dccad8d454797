package schemaregistry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/memoryengine"
	. "github.com/AntonStoeckl/business-eventstore-go/eventstore/schemaregistry"
)

const customerSchemaV1 = `{
	"type": "object",
	"properties": {
		"Name": {"type": "string", "x-metadata": true},
		"Email": {"type": "string", "format": "email", "x-metadata": true},
		"Age": {"type": "integer"}
	},
	"required": ["Name", "Email"]
}`

const customerSchemaV2 = `{
	"type": "object",
	"properties": {
		"Name": {"type": "string", "x-metadata": true},
		"Email": {"type": "string", "format": "email", "x-metadata": true},
		"Status": {"type": "string", "x-metadata": true}
	},
	"required": ["Name", "Email", "Status"]
}`

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, options ...Option) *Registry {
	t.Helper()

	options = append(options, WithClock(func() time.Time { return fixedNow }))
	registry, err := NewRegistry(memoryengine.NewStore(), options...)
	require.NoError(t, err)

	return registry
}

func Test_NewRegistry_When_StoreIsNil(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)
}

func Test_AddSchema_RegistersVersions(t *testing.T) {
	// setup
	ctx := context.Background()
	registry := newRegistry(t)

	// act
	v1, err := registry.AddSchema(ctx, "Customer", 1, customerSchemaV1)
	require.NoError(t, err)
	_, err = registry.AddSchema(ctx, "Customer", 2, customerSchemaV2)
	require.NoError(t, err)

	// assert
	assert.Equal(t, "Customer", v1.EntityType)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, fixedNow, v1.CreatedDate)

	schemas, err := registry.ListSchemas(ctx, "Customer")
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, 1, schemas[0].Version)
	assert.Equal(t, 2, schemas[1].Version)
}

func Test_AddSchema_When_InputIsInvalid(t *testing.T) {
	testCases := []struct {
		description string
		entityType  string
		version     int
		definition  string
		expectedErr error
	}{
		{"empty entity type", "", 1, customerSchemaV1, eventstore.ErrEmptyEntityType},
		{"zero version", "Customer", 0, customerSchemaV1, eventstore.ErrInvalidSchemaVersion},
		{"negative version", "Customer", -3, customerSchemaV1, eventstore.ErrInvalidSchemaVersion},
		{"malformed definition", "Customer", 1, `{"type": "object"`, eventstore.ErrInvalidSchemaDefinition},
		{"empty definition", "Customer", 1, "", eventstore.ErrInvalidSchemaDefinition},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// setup
			registry := newRegistry(t)

			// act
			_, err := registry.AddSchema(context.Background(), tc.entityType, tc.version, tc.definition)

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_AddSchema_When_VersionAlreadyExists(t *testing.T) {
	// setup
	ctx := context.Background()
	registry := newRegistry(t)
	_, err := registry.AddSchema(ctx, "Customer", 1, customerSchemaV1)
	require.NoError(t, err)

	// act
	_, err = registry.AddSchema(ctx, "Customer", 1, customerSchemaV2)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrSchemaAlreadyExists)

	stored, err := registry.GetSchema(ctx, "Customer", 1)
	require.NoError(t, err)
	assert.JSONEq(t, customerSchemaV1, stored.SchemaDefinition)
}

func Test_GetSchema_And_GetLatestSchema(t *testing.T) {
	// setup
	ctx := context.Background()
	registry := newRegistry(t)
	_, err := registry.AddSchema(ctx, "Customer", 2, customerSchemaV2)
	require.NoError(t, err)
	_, err = registry.AddSchema(ctx, "Customer", 1, customerSchemaV1)
	require.NoError(t, err)

	// act
	v1, err := registry.GetSchema(ctx, "Customer", 1)
	require.NoError(t, err)
	latest, err := registry.GetLatestSchema(ctx, "Customer")
	require.NoError(t, err)

	// assert
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, latest.Version)
}

func Test_GetSchema_When_NotFound(t *testing.T) {
	// setup
	ctx := context.Background()
	registry := newRegistry(t)

	// act
	_, errVersion := registry.GetSchema(ctx, "Unknown", 1)
	_, errLatest := registry.GetLatestSchema(ctx, "Unknown")
	_, errInvalid := registry.GetSchema(ctx, "Unknown", 0)
	schemas, errList := registry.ListSchemas(ctx, "Unknown")

	// assert
	assert.ErrorIs(t, errVersion, eventstore.ErrSchemaNotFound)
	assert.ErrorIs(t, errLatest, eventstore.ErrSchemaNotFound)
	assert.ErrorIs(t, errInvalid, eventstore.ErrInvalidSchemaVersion)
	assert.NoError(t, errList)
	assert.Empty(t, schemas)
}

func Test_GetLatestSchema_When_NewVersionIsAdded_It_InvalidatesTheCache(t *testing.T) {
	// setup
	ctx := context.Background()
	cache := NewMemoryCache()
	registry := newRegistry(t, WithCache(cache))
	_, err := registry.AddSchema(ctx, "Customer", 1, customerSchemaV1)
	require.NoError(t, err)

	// arrange
	latest, err := registry.GetLatestSchema(ctx, "Customer")
	require.NoError(t, err)
	require.Equal(t, 1, latest.Version)

	cached, found, err := cache.Get(ctx, "Customer", 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, cached.Version)

	// act
	_, err = registry.AddSchema(ctx, "Customer", 2, customerSchemaV2)
	require.NoError(t, err)
	latest, err = registry.GetLatestSchema(ctx, "Customer")
	require.NoError(t, err)

	// assert
	assert.Equal(t, 2, latest.Version)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string, int) (eventstore.SchemaVersion, bool, error) {
	return eventstore.SchemaVersion{}, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, eventstore.SchemaVersion, bool) error {
	return errors.New("cache down")
}

func (failingCache) Invalidate(context.Context, string) error {
	return errors.New("cache down")
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.warnings = append(l.warnings, msg)
}

func Test_Registry_When_CacheFails_It_FallsBackToTheStore(t *testing.T) {
	// setup
	ctx := context.Background()
	logger := &recordingLogger{}
	registry := newRegistry(t, WithCache(failingCache{}), WithLogger(logger))

	// act
	_, err := registry.AddSchema(ctx, "Customer", 1, customerSchemaV1)
	require.NoError(t, err)
	latest, err := registry.GetLatestSchema(ctx, "Customer")

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)
	assert.Contains(t, logger.warnings, "schema cache invalidation failed")
	assert.Contains(t, logger.warnings, "schema cache read failed")
	assert.Contains(t, logger.warnings, "schema cache write failed")
}

func Test_ParseMetadataConfig(t *testing.T) {
	// setup
	registry := newRegistry(t)

	// act
	config := registry.ParseMetadataConfig(customerSchemaV1)
	broken := registry.ParseMetadataConfig("not json")

	// assert
	assert.True(t, config.HasMetadata)
	assert.Equal(t, []string{"Email", "Name"}, config.Fields())
	assert.False(t, broken.HasMetadata)
}
