// Package config loads the process configuration of the event store server from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	StorageEnginePostgres = "postgres"
	StorageEngineSQLite   = "sqlite"
	StorageEngineMemory   = "memory"
	StorageEngineMongo    = "mongo"

	PostgresAdapterPGX  = "pgx"
	PostgresAdapterSQL  = "sql"
	PostgresAdapterSQLX = "sqlx"

	ChangeFeedNone  = "none"
	ChangeFeedKafka = "kafka"
	ChangeFeedNATS  = "nats"
)

// ErrInvalidConfig is returned by Load for configurations which fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr        string        `env:"METRICS_ADDR" envDefault:":9091"`
	StorageEngine      string        `env:"STORAGE_ENGINE" envDefault:"memory"`
	PostgresDSN        string        `env:"POSTGRES_DSN"`
	PostgresReplicaDSN string        `env:"POSTGRES_REPLICA_DSN"`
	PostgresAdapter    string        `env:"POSTGRES_ADAPTER" envDefault:"pgx"`
	SQLitePath         string        `env:"SQLITE_PATH" envDefault:"eventstore.db"`
	CreateTables       bool          `env:"CREATE_TABLES" envDefault:"true"`
	MongoURI           string        `env:"MONGO_URI"`
	MongoDatabase      string        `env:"MONGO_DATABASE" envDefault:"eventstore"`
	RedisURL           string        `env:"REDIS_URL"`
	SchemaCacheTTL     time.Duration `env:"SCHEMA_CACHE_TTL" envDefault:"1h"`
	ChangeFeed         string        `env:"CHANGEFEED" envDefault:"none"`
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	NATSURL            string        `env:"NATS_URL"`
	ChangeFeedCodec    string        `env:"CHANGEFEED_CODEC" envDefault:"json"`
	ChangeFeedPrefix   string        `env:"CHANGEFEED_PREFIX" envDefault:"business-events."`
	RateLimitRPS       float64       `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST" envDefault:"100"`
	DefaultSearchLimit int           `env:"DEFAULT_SEARCH_LIMIT" envDefault:"100"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	OTelEnabled        bool          `env:"OTEL_ENABLED" envDefault:"false"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first, variables already set in the environment win.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	return Parse(env.Options{})
}

// Parse reads and validates the configuration with the given env options, without loading a .env file.
func Parse(options env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, options); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the enumerations and the settings each storage engine and change feed requires.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageEngine {
	case StorageEngineMemory, StorageEngineSQLite:
	case StorageEnginePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres storage engine"))
		}

		if !oneOf(c.PostgresAdapter, PostgresAdapterPGX, PostgresAdapterSQL, PostgresAdapterSQLX) {
			errs = append(errs, fmt.Errorf("unknown POSTGRES_ADAPTER %q", c.PostgresAdapter))
		}

		if c.PostgresReplicaDSN != "" && c.PostgresAdapter != PostgresAdapterPGX {
			errs = append(errs, errors.New("POSTGRES_REPLICA_DSN requires POSTGRES_ADAPTER=pgx"))
		}
	case StorageEngineMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo storage engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_ENGINE %q", c.StorageEngine))
	}

	switch c.ChangeFeed {
	case ChangeFeedNone:
	case ChangeFeedKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka change feed"))
		}
	case ChangeFeedNATS:
		if c.NATSURL == "" {
			errs = append(errs, errors.New("NATS_URL is required for the nats change feed"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CHANGEFEED %q", c.ChangeFeed))
	}

	if !oneOf(c.ChangeFeedCodec, "json", "msgpack") {
		errs = append(errs, fmt.Errorf("unknown CHANGEFEED_CODEC %q", c.ChangeFeedCodec))
	}

	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be at least 1"))
	}

	if c.DefaultSearchLimit < 1 {
		errs = append(errs, errors.New("DEFAULT_SEARCH_LIMIT must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	return nil
}

// RedactedPostgresDSN returns the primary DSN without its password, for logging.
func (c *Config) RedactedPostgresDSN() string {
	return redactPassword(c.PostgresDSN)
}

func redactPassword(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return dsn
	}

	credentials := dsn[schemeEnd+3 : at]
	if colon := strings.Index(credentials, ":"); colon >= 0 {
		return dsn[:schemeEnd+3] + credentials[:colon] + ":xxxxx" + dsn[at:]
	}

	return dsn
}

func oneOf(value string, allowed ...string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}

	return false
}
