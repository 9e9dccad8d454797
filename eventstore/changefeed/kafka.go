package changefeed

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
)

const (
	defaultTopicPrefix  = "business-events."
	headerContentType   = "content-type"
	headerEventType     = "event-type"
	headerCorrelationID = "correlation-id"
)

// KafkaPublisher publishes notifications to the topic <prefix><entity type>, keyed by entity id
// so that all changes of one entity land in the same partition.
type KafkaPublisher struct {
	producer    sarama.SyncProducer
	topicPrefix string
	codec       Codec
}

// KafkaOption configures KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithTopicPrefix sets the topic prefix (default: "business-events.").
func WithTopicPrefix(prefix string) KafkaOption {
	return func(p *KafkaPublisher) {
		p.topicPrefix = prefix
	}
}

// WithKafkaCodec sets the codec (default: JSONCodec).
func WithKafkaCodec(codec Codec) KafkaOption {
	return func(p *KafkaPublisher) {
		p.codec = codec
	}
}

// NewKafkaPublisher creates a KafkaPublisher on top of an existing producer.
//
// For at-least-once delivery the producer should be configured with:
//
//	config := sarama.NewConfig()
//	config.Producer.RequiredAcks = sarama.WaitForAll
//	config.Producer.Return.Successes = true
//	producer, err := sarama.NewSyncProducer(brokers, config)
func NewKafkaPublisher(producer sarama.SyncProducer, options ...KafkaOption) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}

	p := &KafkaPublisher{
		producer:    producer,
		topicPrefix: defaultTopicPrefix,
		codec:       JSONCodec{},
	}

	for _, option := range options {
		option(p)
	}

	return p, nil
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, notification Notification) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	data, err := p.codec.Encode(notification)
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topicPrefix + notification.EntityType,
		Key:   sarama.StringEncoder(notification.EntityID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerContentType), Value: []byte(p.codec.ContentType())},
			{Key: []byte(headerEventType), Value: []byte(notification.EventType)},
			{Key: []byte(headerCorrelationID), Value: []byte(notification.CorrelationID)},
		},
	})
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	return nil
}

// Close closes the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
