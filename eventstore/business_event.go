package eventstore

import (
	"slices"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// EventType classifies what happened to an entity.
type EventType string

const (
	EventTypeCreated EventType = "Created"
	EventTypeUpdated EventType = "Updated"
	EventTypeDeleted EventType = "Deleted"
	EventTypeViewed  EventType = "Viewed"
)

var validEventTypes = []EventType{EventTypeCreated, EventTypeUpdated, EventTypeDeleted, EventTypeViewed}

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	return slices.Contains(validEventTypes, t)
}

// ActorType classifies who caused an event.
type ActorType string

const (
	ActorTypeUser   ActorType = "User"
	ActorTypeAdmin  ActorType = "Admin"
	ActorTypeSystem ActorType = "System"
)

var validActorTypes = []ActorType{ActorTypeUser, ActorTypeAdmin, ActorTypeSystem}

// IsValid reports whether t is one of the known actor types.
func (t ActorType) IsValid() bool {
	return slices.Contains(validActorTypes, t)
}

// BusinessEvent is an immutable record of a full entity snapshot at the moment of a change.
//
// While its properties are exported, new events should be constructed with BuildBusinessEvent.
type BusinessEvent struct {
	EventID        uuid.UUID `json:"eventId"`
	EntityType     string    `json:"entityType"`
	EntityID       string    `json:"entityId"`
	EventType      EventType `json:"eventType"`
	SchemaVersion  int       `json:"schemaVersion"`
	EventTimestamp time.Time `json:"eventTimestamp"`
	CorrelationID  string    `json:"correlationId"`
	ActorID        string    `json:"actorId"`
	ActorType      ActorType `json:"actorType"`
	EntityData     string    `json:"entityData"`
}

// BusinessEvents is an alias type for a slice of BusinessEvent.
type BusinessEvents = []BusinessEvent

// BuildBusinessEvent is a factory method for BusinessEvent.
//
// It generates a new time-ordered EventID, normalizes the timestamp to UTC
// and returns an error for empty identifiers, unknown enum values or invalid entity data JSON.
func BuildBusinessEvent(
	entityType string,
	entityID string,
	eventType EventType,
	schemaVersion int,
	timestamp time.Time,
	correlationID string,
	actorID string,
	actorType ActorType,
	entityDataJSON string,
) (BusinessEvent, error) {
	if entityType == "" {
		return BusinessEvent{}, ErrEmptyEntityType
	}

	if entityID == "" {
		return BusinessEvent{}, ErrEmptyEntityID
	}

	if !eventType.IsValid() {
		return BusinessEvent{}, ErrInvalidEventType
	}

	if !actorType.IsValid() {
		return BusinessEvent{}, ErrInvalidActorType
	}

	if !jsoniter.ConfigFastest.Valid([]byte(entityDataJSON)) {
		return BusinessEvent{}, ErrInvalidEntityDataJSON
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		eventID = uuid.New()
	}

	return BusinessEvent{
		EventID:        eventID,
		EntityType:     entityType,
		EntityID:       entityID,
		EventType:      eventType,
		SchemaVersion:  schemaVersion,
		EventTimestamp: timestamp.UTC(),
		CorrelationID:  correlationID,
		ActorID:        actorID,
		ActorType:      actorType,
		EntityData:     entityDataJSON,
	}, nil
}

// SortNewestFirst orders events by EventTimestamp descending.
// Events with equal timestamps are ordered by EventID descending, which follows insertion order for UUIDv7 ids.
func SortNewestFirst(events BusinessEvents) {
	slices.SortStableFunc(events, func(a, b BusinessEvent) int {
		if c := b.EventTimestamp.Compare(a.EventTimestamp); c != 0 {
			return c
		}

		return slices.Compare(b.EventID[:], a.EventID[:])
	})
}

// PreviousOf returns the event which precedes eventID in a newest-first list of one entity's events.
func PreviousOf(events BusinessEvents, eventID uuid.UUID) (BusinessEvent, bool) {
	for i, event := range events {
		if event.EventID == eventID && i+1 < len(events) {
			return events[i+1], true
		}
	}

	return BusinessEvent{}, false
}
