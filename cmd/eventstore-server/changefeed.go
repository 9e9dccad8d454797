package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore/changefeed"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/schemaregistry"
	"github.com/AntonStoeckl/business-eventstore-go/internal/config"
)

type changeFeed struct {
	publisher changefeed.Publisher
	close     func(ctx context.Context) error
}

// openChangeFeed returns nil if no change feed is configured.
func openChangeFeed(cfg *config.Config) (*changeFeed, error) {
	if cfg.ChangeFeed == config.ChangeFeedNone {
		return nil, nil
	}

	codec, err := changefeed.CodecByName(cfg.ChangeFeedCodec)
	if err != nil {
		return nil, err
	}

	switch cfg.ChangeFeed {
	case config.ChangeFeedKafka:
		saramaConfig := sarama.NewConfig()
		saramaConfig.Producer.Return.Successes = true
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll

		producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, saramaConfig)
		if err != nil {
			return nil, fmt.Errorf("connecting to kafka: %w", err)
		}

		publisher, err := changefeed.NewKafkaPublisher(
			producer,
			changefeed.WithTopicPrefix(cfg.ChangeFeedPrefix),
			changefeed.WithKafkaCodec(codec),
		)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}

		return &changeFeed{publisher: publisher, close: func(context.Context) error { return publisher.Close() }}, nil

	case config.ChangeFeedNATS:
		conn, err := nats.Connect(cfg.NATSURL, nats.Name("business-eventstore"))
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}

		publisher, err := changefeed.NewNATSPublisher(
			conn,
			changefeed.WithSubjectPrefix(cfg.ChangeFeedPrefix),
			changefeed.WithNATSCodec(codec),
		)
		if err != nil {
			conn.Close()
			return nil, err
		}

		return &changeFeed{publisher: publisher, close: func(context.Context) error { return publisher.Close() }}, nil

	default:
		return nil, fmt.Errorf("unknown change feed %q", cfg.ChangeFeed)
	}
}

func newSchemaCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*schemaregistry.RedisCache, func(ctx context.Context) error, error) {
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}

	client := redis.NewClient(redisOptions)
	if err = client.Ping(ctx).Err(); err != nil {
		logger.Warn("could not connect to redis, schema lookups fall back to storage", "error", err)
	}

	cache := schemaregistry.NewRedisCache(client, schemaregistry.WithTTL(cfg.SchemaCacheTTL))

	return cache, func(context.Context) error { return client.Close() }, nil
}
