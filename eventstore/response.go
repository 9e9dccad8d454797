package eventstore

import (
	"time"

	"github.com/google/uuid"
)

// EventResponse is the read model returned by the query engine.
//
// FullData carries the raw entity snapshot and is nil whenever Fields was projected from metadata rows.
type EventResponse struct {
	EventID       uuid.UUID         `json:"eventId"`
	EntityType    string            `json:"entityType"`
	EntityID      string            `json:"entityId"`
	EventType     EventType         `json:"eventType"`
	SchemaVersion int               `json:"schemaVersion"`
	Timestamp     time.Time         `json:"timestamp"`
	ActorID       string            `json:"actorId"`
	ActorType     ActorType         `json:"actorType"`
	CorrelationID string            `json:"correlationId"`
	FullData      *string           `json:"fullData"`
	Fields        map[string]string `json:"fields"`
}

// FullDataResponse maps an event to an EventResponse with FullData and an empty Fields map.
func FullDataResponse(event BusinessEvent) EventResponse {
	data := event.EntityData
	response := baseResponse(event)
	response.FullData = &data

	return response
}

// FieldsResponse maps an event to an EventResponse with projected Fields and no FullData.
func FieldsResponse(event BusinessEvent, fields map[string]string) EventResponse {
	response := baseResponse(event)

	for key, value := range fields {
		response.Fields[key] = value
	}

	return response
}

func baseResponse(event BusinessEvent) EventResponse {
	return EventResponse{
		EventID:       event.EventID,
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		EventType:     event.EventType,
		SchemaVersion: event.SchemaVersion,
		Timestamp:     event.EventTimestamp,
		ActorID:       event.ActorID,
		ActorType:     event.ActorType,
		CorrelationID: event.CorrelationID,
		Fields:        make(map[string]string),
	}
}
