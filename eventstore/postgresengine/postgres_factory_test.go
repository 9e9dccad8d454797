package postgresengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/postgresengine/config"
)

func Test_FactoryFunctions_When_DatabaseConnectionIsNil(t *testing.T) {
	testCases := []struct {
		name        string
		factoryFunc func() (*postgresengine.EventStore, error)
	}{
		{
			name: "NewEventStoreFromPGXPool with nil",
			factoryFunc: func() (*postgresengine.EventStore, error) {
				return postgresengine.NewEventStoreFromPGXPool(nil)
			},
		},
		{
			name: "NewEventStoreFromPGXPoolAndReplica with nil",
			factoryFunc: func() (*postgresengine.EventStore, error) {
				return postgresengine.NewEventStoreFromPGXPoolAndReplica(nil, nil)
			},
		},
		{
			name: "NewEventStoreFromSQLDB with nil",
			factoryFunc: func() (*postgresengine.EventStore, error) {
				return postgresengine.NewEventStoreFromSQLDB(nil)
			},
		},
		{
			name: "NewEventStoreFromSQLX with nil",
			factoryFunc: func() (*postgresengine.EventStore, error) {
				return postgresengine.NewEventStoreFromSQLX(nil)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			es, err := tc.factoryFunc()

			// assert
			assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)
			assert.Nil(t, es)
		})
	}
}

func Test_FactoryFunctions_When_OptionsAreInvalid(t *testing.T) {
	// setup
	db, err := config.SQLiteInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	testCases := []struct {
		name          string
		option        postgresengine.Option
		expectedError error
	}{
		{name: "empty schema table name", option: postgresengine.WithTableNames("", "events", "metadata"), expectedError: eventstore.ErrEmptyTableName},
		{name: "empty event table name", option: postgresengine.WithTableNames("schemas", "", "metadata"), expectedError: eventstore.ErrEmptyTableName},
		{name: "empty metadata table name", option: postgresengine.WithTableNames("schemas", "events", ""), expectedError: eventstore.ErrEmptyTableName},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			es, createErr := postgresengine.NewEventStoreFromSQLDB(db, tc.option)

			// assert
			assert.ErrorIs(t, createErr, tc.expectedError)
			assert.Nil(t, es)
		})
	}

	t.Run("unsupported dialect", func(t *testing.T) {
		// act
		es, createErr := postgresengine.NewEventStoreFromSQLDB(db, postgresengine.WithDialect("mysql"))

		// assert
		assert.EqualError(t, createErr, `unsupported sql dialect "mysql"`)
		assert.Nil(t, es)
	})
}

func Test_FactoryFunctions_Defaults(t *testing.T) {
	// setup
	db, err := config.SQLiteInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// act
	defaultStore, defaultErr := postgresengine.NewEventStoreFromSQLDB(db)
	sqliteStore, sqliteErr := postgresengine.NewEventStoreFromSQLDB(db, postgresengine.WithDialect(postgresengine.DialectSQLite))

	// assert
	require.NoError(t, defaultErr)
	require.NoError(t, sqliteErr)
	assert.Equal(t, postgresengine.DialectPostgres, defaultStore.Dialect())
	assert.Equal(t, postgresengine.DialectSQLite, sqliteStore.Dialect())
	assert.Same(t, sqliteStore, sqliteStore.TransactionManager())
}
