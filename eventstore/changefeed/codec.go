package changefeed

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonpatch"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonvalue"
)

const (
	CodecJSON    = "json"
	CodecMsgPack = "msgpack"
)

// Codec serializes notifications for external transports. Implementations must be safe for concurrent use.
type Codec interface {
	Encode(notification Notification) ([]byte, error)
	Decode(data []byte) (Notification, error)

	// ContentType returns the MIME type, e.g. "application/json".
	ContentType() string

	// Name returns a short identifier, e.g. "json".
	Name() string
}

// CodecByName returns the codec registered under name ("json" or "msgpack").
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return JSONCodec{}, nil
	case CodecMsgPack:
		return MsgPackCodec{}, nil
	default:
		return nil, errors.Join(ErrUnknownCodec, errors.New(name))
	}
}

// wireNotification is the format shared by both codecs. The patch stays an RFC 6902 JSON document
// in either format.
type wireNotification struct {
	EventID        string              `json:"eventId" msgpack:"event_id"`
	EntityType     string              `json:"entityType" msgpack:"entity_type"`
	EntityID       string              `json:"entityId" msgpack:"entity_id"`
	EventType      string              `json:"eventType" msgpack:"event_type"`
	SchemaVersion  int                 `json:"schemaVersion" msgpack:"schema_version"`
	EventTimestamp time.Time           `json:"eventTimestamp" msgpack:"event_timestamp"`
	CorrelationID  string              `json:"correlationId" msgpack:"correlation_id"`
	ActorID        string              `json:"actorId" msgpack:"actor_id"`
	ActorType      string              `json:"actorType" msgpack:"actor_type"`
	Patch          jsoniter.RawMessage `json:"patch" msgpack:"patch"`
}

func toWire(notification Notification) (wireNotification, error) {
	patch := notification.Patch
	if patch == nil {
		patch = jsonpatch.Patch{}
	}

	patchJSON, err := jsonvalue.Marshal(patch)
	if err != nil {
		return wireNotification{}, err
	}

	return wireNotification{
		EventID:        notification.EventID.String(),
		EntityType:     notification.EntityType,
		EntityID:       notification.EntityID,
		EventType:      string(notification.EventType),
		SchemaVersion:  notification.SchemaVersion,
		EventTimestamp: notification.EventTimestamp.UTC(),
		CorrelationID:  notification.CorrelationID,
		ActorID:        notification.ActorID,
		ActorType:      string(notification.ActorType),
		Patch:          patchJSON,
	}, nil
}

func fromWire(wire wireNotification) (Notification, error) {
	eventID, err := uuid.Parse(wire.EventID)
	if err != nil {
		return Notification{}, err
	}

	patch := make(jsonpatch.Patch, 0)
	if len(wire.Patch) > 0 {
		if err = jsonvalue.Unmarshal(wire.Patch, &patch); err != nil {
			return Notification{}, err
		}
	}

	return Notification{
		EventID:        eventID,
		EntityType:     wire.EntityType,
		EntityID:       wire.EntityID,
		EventType:      eventstore.EventType(wire.EventType),
		SchemaVersion:  wire.SchemaVersion,
		EventTimestamp: wire.EventTimestamp.UTC(),
		CorrelationID:  wire.CorrelationID,
		ActorID:        wire.ActorID,
		ActorType:      eventstore.ActorType(wire.ActorType),
		Patch:          patch,
	}, nil
}

/***** JSON *****/

// JSONCodec encodes notifications as JSON. It is the default codec.
type JSONCodec struct{}

// Encode implements Codec.
func (c JSONCodec) Encode(notification Notification) ([]byte, error) {
	wire, err := toWire(notification)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(wire)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}

	return data, nil
}

// Decode implements Codec.
func (c JSONCodec) Decode(data []byte) (Notification, error) {
	var wire wireNotification
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &wire); err != nil {
		return Notification{}, errors.Join(ErrDecodeFailure, err)
	}

	notification, err := fromWire(wire)
	if err != nil {
		return Notification{}, errors.Join(ErrDecodeFailure, err)
	}

	return notification, nil
}

// ContentType implements Codec.
func (c JSONCodec) ContentType() string {
	return "application/json"
}

// Name implements Codec.
func (c JSONCodec) Name() string {
	return CodecJSON
}

/***** MessagePack *****/

// MsgPackCodec encodes notifications as MessagePack, which is more compact than JSON.
type MsgPackCodec struct{}

// Encode implements Codec.
func (c MsgPackCodec) Encode(notification Notification) ([]byte, error) {
	wire, err := toWire(notification)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}

	data, err := msgpack.Marshal(wire)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}

	return data, nil
}

// Decode implements Codec.
func (c MsgPackCodec) Decode(data []byte) (Notification, error) {
	var wire wireNotification
	if err := msgpack.Unmarshal(data, &wire); err != nil {
		return Notification{}, errors.Join(ErrDecodeFailure, err)
	}

	notification, err := fromWire(wire)
	if err != nil {
		return Notification{}, errors.Join(ErrDecodeFailure, err)
	}

	return notification, nil
}

// ContentType implements Codec.
func (c MsgPackCodec) ContentType() string {
	return "application/msgpack"
}

// Name implements Codec.
func (c MsgPackCodec) Name() string {
	return CodecMsgPack
}

// Compile-time checks
var (
	_ Codec = JSONCodec{}
	_ Codec = MsgPackCodec{}
)
