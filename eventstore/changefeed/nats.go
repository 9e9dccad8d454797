package changefeed

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "business-events."

// NATSPublisher publishes notifications to the subject <prefix><entity type>.
// Delivery is fire-and-forget as with any core NATS publish.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	codec         Codec
}

// NATSOption configures NATSPublisher.
type NATSOption func(*NATSPublisher)

// WithSubjectPrefix sets the subject prefix (default: "business-events.").
func WithSubjectPrefix(prefix string) NATSOption {
	return func(p *NATSPublisher) {
		p.subjectPrefix = prefix
	}
}

// WithNATSCodec sets the codec (default: JSONCodec).
func WithNATSCodec(codec Codec) NATSOption {
	return func(p *NATSPublisher) {
		p.codec = codec
	}
}

// NewNATSPublisher creates a NATSPublisher on top of an existing connection.
func NewNATSPublisher(conn *nats.Conn, options ...NATSOption) (*NATSPublisher, error) {
	if conn == nil {
		return nil, ErrNilProducer
	}

	p := &NATSPublisher{
		conn:          conn,
		subjectPrefix: defaultSubjectPrefix,
		codec:         JSONCodec{},
	}

	for _, option := range options {
		option(p)
	}

	return p, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, notification Notification) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	data, err := p.codec.Encode(notification)
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	msg := nats.NewMsg(p.Subject(notification.EntityType))
	msg.Data = data
	msg.Header.Set(headerContentType, p.codec.ContentType())
	msg.Header.Set(headerEventType, string(notification.EventType))
	msg.Header.Set(headerCorrelationID, notification.CorrelationID)

	if err = p.conn.PublishMsg(msg); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	return nil
}

// Subject returns the subject notifications of entityType are published to.
func (p *NATSPublisher) Subject(entityType string) string {
	return p.subjectPrefix + entityType
}

// Close drains the underlying connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
