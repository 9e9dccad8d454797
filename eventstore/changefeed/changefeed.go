// Package changefeed publishes a notification for every tracked event.
//
// A Notification carries the event header and the JSON Patch from the entity's previous snapshot
// to the new one, so consumers can follow entity changes without reading full snapshots.
//
// Implementations:
//   - KafkaPublisher: IBM/sarama SyncProducer, one topic per entity type, keyed by entity id
//   - NATSPublisher: nats.go, one subject per entity type
//   - MemoryPublisher: in-process, for tests and local consumers
package changefeed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonpatch"
)

var (
	ErrPublishFailed = errors.New("failed to publish change notification")
	ErrEncodeFailure = errors.New("failed to encode change notification")
	ErrDecodeFailure = errors.New("failed to decode change notification")
	ErrUnknownCodec  = errors.New("unknown change notification codec")
	ErrNilProducer   = errors.New("nil producer")
)

// Notification describes one tracked event and what changed compared to the entity's previous event.
type Notification struct {
	EventID        uuid.UUID
	EntityType     string
	EntityID       string
	EventType      eventstore.EventType
	SchemaVersion  int
	EventTimestamp time.Time
	CorrelationID  string
	ActorID        string
	ActorType      eventstore.ActorType
	Patch          jsonpatch.Patch
}

// NewNotification builds the Notification of event with the given patch.
func NewNotification(event eventstore.BusinessEvent, patch jsonpatch.Patch) Notification {
	return Notification{
		EventID:        event.EventID,
		EntityType:     event.EntityType,
		EntityID:       event.EntityID,
		EventType:      event.EventType,
		SchemaVersion:  event.SchemaVersion,
		EventTimestamp: event.EventTimestamp,
		CorrelationID:  event.CorrelationID,
		ActorID:        event.ActorID,
		ActorType:      event.ActorType,
		Patch:          patch,
	}
}

// Publisher delivers notifications. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, notification Notification) error
}
