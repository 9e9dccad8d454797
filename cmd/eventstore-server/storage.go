package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	_ "github.com/lib/pq"  // postgres driver for database/sql and sqlx
	_ "modernc.org/sqlite" // sqlite driver for database/sql

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/mongoengine"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/transaction"
	"github.com/AntonStoeckl/business-eventstore-go/internal/config"
)

type storage struct {
	schemas      eventstore.SchemaStore
	events       eventstore.EventReader
	transactions transaction.Manager
	close        func(ctx context.Context) error
}

func openStorage(ctx context.Context, cfg *config.Config, tel *telemetry) (storage, error) {
	switch cfg.StorageEngine {
	case config.StorageEnginePostgres:
		return openPostgres(ctx, cfg, tel)
	case config.StorageEngineSQLite:
		return openSQLite(ctx, cfg, tel)
	case config.StorageEngineMongo:
		return openMongo(ctx, cfg, tel)
	default:
		store := memoryengine.NewStore()

		return storage{
			schemas:      store,
			events:       store,
			transactions: store.TransactionManager(),
			close:        func(context.Context) error { return nil },
		}, nil
	}
}

func sqlStorage(ctx context.Context, cfg *config.Config, es *postgresengine.EventStore, closeDB func() error) (storage, error) {
	if cfg.CreateTables {
		if err := es.CreateTables(ctx); err != nil {
			_ = closeDB()
			return storage{}, err
		}
	}

	return storage{
		schemas:      es,
		events:       es,
		transactions: es.TransactionManager(),
		close:        func(context.Context) error { return closeDB() },
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, tel *telemetry) (storage, error) {
	engineOptions := tel.postgresOptions()

	switch cfg.PostgresAdapter {
	case config.PostgresAdapterSQL:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return storage{}, fmt.Errorf("opening postgres %s: %w", cfg.RedactedPostgresDSN(), err)
		}

		if err = db.PingContext(ctx); err != nil {
			_ = db.Close()
			return storage{}, fmt.Errorf("connecting to postgres %s: %w", cfg.RedactedPostgresDSN(), err)
		}

		es, err := postgresengine.NewEventStoreFromSQLDB(db, engineOptions...)
		if err != nil {
			_ = db.Close()
			return storage{}, err
		}

		return sqlStorage(ctx, cfg, es, db.Close)

	case config.PostgresAdapterSQLX:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN)
		if err != nil {
			return storage{}, fmt.Errorf("connecting to postgres %s: %w", cfg.RedactedPostgresDSN(), err)
		}

		es, err := postgresengine.NewEventStoreFromSQLX(db, engineOptions...)
		if err != nil {
			_ = db.Close()
			return storage{}, err
		}

		return sqlStorage(ctx, cfg, es, db.Close)

	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return storage{}, fmt.Errorf("connecting to postgres %s: %w", cfg.RedactedPostgresDSN(), err)
		}

		if cfg.PostgresReplicaDSN == "" {
			es, storeErr := postgresengine.NewEventStoreFromPGXPool(pool, engineOptions...)
			if storeErr != nil {
				pool.Close()
				return storage{}, storeErr
			}

			return sqlStorage(ctx, cfg, es, func() error { pool.Close(); return nil })
		}

		replica, err := pgxpool.New(ctx, cfg.PostgresReplicaDSN)
		if err != nil {
			pool.Close()
			return storage{}, fmt.Errorf("connecting to postgres replica: %w", err)
		}

		closePools := func() error {
			replica.Close()
			pool.Close()

			return nil
		}

		es, err := postgresengine.NewEventStoreFromPGXPoolAndReplica(pool, replica, engineOptions...)
		if err != nil {
			_ = closePools()
			return storage{}, err
		}

		return sqlStorage(ctx, cfg, es, closePools)
	}
}

func openSQLite(ctx context.Context, cfg *config.Config, tel *telemetry) (storage, error) {
	db, err := sql.Open("sqlite", "file:"+cfg.SQLitePath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return storage{}, fmt.Errorf("opening sqlite %s: %w", cfg.SQLitePath, err)
	}

	db.SetMaxOpenConns(1)

	engineOptions := append(tel.postgresOptions(), postgresengine.WithDialect(postgresengine.DialectSQLite))

	es, err := postgresengine.NewEventStoreFromSQLDB(db, engineOptions...)
	if err != nil {
		_ = db.Close()
		return storage{}, err
	}

	return sqlStorage(ctx, cfg, es, db.Close)
}

func openMongo(ctx context.Context, cfg *config.Config, tel *telemetry) (storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return storage{}, fmt.Errorf("connecting to mongodb: %w", err)
	}

	closeClient := func(ctx context.Context) error { return client.Disconnect(ctx) }

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = closeClient(ctx)
		return storage{}, fmt.Errorf("pinging mongodb: %w", err)
	}

	es, err := mongoengine.NewEventStore(client.Database(cfg.MongoDatabase), tel.mongoOptions()...)
	if err != nil {
		_ = closeClient(ctx)
		return storage{}, err
	}

	if cfg.CreateTables {
		if err = es.CreateIndexes(ctx); err != nil {
			_ = closeClient(ctx)
			return storage{}, err
		}
	}

	return storage{
		schemas:      es,
		events:       es,
		transactions: es.TransactionManager(),
		close:        closeClient,
	}, nil
}
