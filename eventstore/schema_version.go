package eventstore

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// SchemaVersion is an immutable JSON Schema registered for one entity type and version.
// The latest schema of an entity type is the one with the highest Version.
type SchemaVersion struct {
	EntityType       string    `json:"entityType"`
	Version          int       `json:"version"`
	SchemaDefinition string    `json:"schemaDefinition"`
	CreatedDate      time.Time `json:"createdDate"`
}

// Validate ensures the schema version has valid data for storage operations.
func (s SchemaVersion) Validate() error {
	if s.EntityType == "" {
		return ErrEmptyEntityType
	}

	if s.Version < 1 {
		return ErrInvalidSchemaVersion
	}

	if !jsoniter.ConfigFastest.Valid([]byte(s.SchemaDefinition)) {
		return ErrInvalidSchemaDefinition
	}

	return nil
}

// BuildSchemaVersion creates a new SchemaVersion with validation.
func BuildSchemaVersion(entityType string, version int, schemaDefinition string, createdDate time.Time) (SchemaVersion, error) {
	schema := SchemaVersion{
		EntityType:       entityType,
		Version:          version,
		SchemaDefinition: schemaDefinition,
		CreatedDate:      createdDate.UTC(),
	}

	if err := schema.Validate(); err != nil {
		return SchemaVersion{}, err
	}

	return schema, nil
}
