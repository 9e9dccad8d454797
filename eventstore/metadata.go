package eventstore

import (
	"github.com/google/uuid"
)

const (
	// MaxMetadataKeyLength is the longest MetadataKey a storage engine accepts.
	MaxMetadataKeyLength = 100

	// MaxMetadataValueLength is the longest MetadataValue a storage engine stores, longer values get truncated.
	MaxMetadataValueLength = 500
)

// DataType is the type tag of an extracted metadata value.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeDate    DataType = "date"
)

// BusinessEventMetadata is one flattened key/value row derived from a schema-flagged field of an event.
type BusinessEventMetadata struct {
	EventID       uuid.UUID `json:"eventId"`
	MetadataKey   string    `json:"metadataKey"`
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	MetadataValue string    `json:"metadataValue"`
	DataType      DataType  `json:"dataType"`
}

// MetadataRows is an alias type for a slice of BusinessEventMetadata.
type MetadataRows = []BusinessEventMetadata

// GroupMetadataByEvent indexes metadata rows by their EventID, keyed by MetadataKey.
func GroupMetadataByEvent(rows MetadataRows) map[uuid.UUID]map[string]string {
	grouped := make(map[uuid.UUID]map[string]string)

	for _, row := range rows {
		fields, ok := grouped[row.EventID]
		if !ok {
			fields = make(map[string]string)
			grouped[row.EventID] = fields
		}

		fields[row.MetadataKey] = row.MetadataValue
	}

	return grouped
}
