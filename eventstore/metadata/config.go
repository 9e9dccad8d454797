// Package metadata derives searchable key/value rows from schema-annotated entity snapshots.
//
// A JSON Schema marks searchable fields with "x-metadata": true. ParseConfig turns a schema
// into an ExtractionConfig, Extract flattens an event's entity data and keeps the flagged,
// populated leaves as BusinessEventMetadata rows.
package metadata

import (
	"sort"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonvalue"
)

const (
	keywordProperties = "properties"
	keywordType       = "type"
	keywordItems      = "items"
	keywordFormat     = "format"
	keywordXMetadata  = "x-metadata"

	typeObject  = "object"
	typeArray   = "array"
	typeString  = "string"
	typeNumber  = "number"
	typeInteger = "integer"
	typeBoolean = "boolean"
	typeNull    = "null"

	formatDateTime = "date-time"
)

// ExtractionConfig lists the dotted paths flagged for metadata extraction.
//
// ArrayPathsToExtract maps the path of an array of objects to the extraction config of its item schema.
// Its flagged sub fields are expanded per array element at extraction time as Path[i].SubField.
type ExtractionConfig struct {
	FieldsToExtract     map[string]struct{}
	ArrayPathsToExtract map[string]ExtractionConfig
	FieldTypes          map[string]eventstore.DataType
	HasMetadata         bool
}

func newExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		FieldsToExtract:     make(map[string]struct{}),
		ArrayPathsToExtract: make(map[string]ExtractionConfig),
		FieldTypes:          make(map[string]eventstore.DataType),
	}
}

// Fields returns the flagged scalar paths in sorted order.
func (c ExtractionConfig) Fields() []string {
	fields := make([]string, 0, len(c.FieldsToExtract))
	for field := range c.FieldsToExtract {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	return fields
}

// ArrayPaths returns the array paths in sorted order.
func (c ExtractionConfig) ArrayPaths() []string {
	paths := make([]string, 0, len(c.ArrayPathsToExtract))
	for path := range c.ArrayPathsToExtract {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

// ParseConfig derives the ExtractionConfig of a JSON Schema.
//
// A malformed schema or a schema without flagged fields yields an empty config, never an error.
// Parsing is side-effect free, so callers may re-parse on every write.
func ParseConfig(schemaDefinition string) ExtractionConfig {
	config := newExtractionConfig()

	root, err := jsonvalue.DecodeString(schemaDefinition)
	if err != nil {
		return config
	}

	schema, ok := root.(map[string]any)
	if !ok {
		return config
	}

	config.collect(schema, "")
	config.HasMetadata = config.hasFlaggedFields()

	return config
}

func (c ExtractionConfig) collect(schema map[string]any, prefix string) {
	properties, ok := schema[keywordProperties].(map[string]any)
	if !ok {
		return
	}

	for name, raw := range properties {
		property, isObject := raw.(map[string]any)
		if !isObject {
			continue
		}

		path := joinPath(prefix, name)
		schemaType := primaryType(property[keywordType])

		switch {
		case schemaType == typeObject:
			c.collect(property, path)

		case schemaType == typeArray:
			items, hasItems := property[keywordItems].(map[string]any)
			if hasItems && isObjectSchema(items) {
				itemConfig := newExtractionConfig()
				itemConfig.collect(items, "")
				itemConfig.HasMetadata = itemConfig.hasFlaggedFields()
				c.ArrayPathsToExtract[path] = itemConfig
			}

		case isScalarType(schemaType) && isFlagged(property):
			c.FieldsToExtract[path] = struct{}{}
			c.FieldTypes[path] = dataTypeOf(schemaType, property[keywordFormat])
		}
	}
}

func (c ExtractionConfig) hasFlaggedFields() bool {
	if len(c.FieldsToExtract) > 0 {
		return true
	}

	for _, itemConfig := range c.ArrayPathsToExtract {
		if itemConfig.HasMetadata {
			return true
		}
	}

	return false
}

// primaryType returns the type keyword, or the first non-null branch of a type array.
func primaryType(raw any) string {
	switch t := raw.(type) {
	case string:
		return t
	case []any:
		for _, branch := range t {
			if s, ok := branch.(string); ok && s != typeNull {
				return s
			}
		}
	}

	return ""
}

func isObjectSchema(schema map[string]any) bool {
	if primaryType(schema[keywordType]) == typeObject {
		return true
	}

	_, hasProperties := schema[keywordProperties]

	return hasProperties
}

func isScalarType(schemaType string) bool {
	switch schemaType {
	case typeString, typeNumber, typeInteger, typeBoolean:
		return true
	default:
		return false
	}
}

func isFlagged(property map[string]any) bool {
	flag, ok := property[keywordXMetadata].(bool)
	return ok && flag
}

func dataTypeOf(schemaType string, format any) eventstore.DataType {
	switch schemaType {
	case typeNumber, typeInteger:
		return eventstore.DataTypeNumber
	case typeBoolean:
		return eventstore.DataTypeBoolean
	}

	if f, ok := format.(string); ok && f == formatDateTime {
		return eventstore.DataTypeDate
	}

	return eventstore.DataTypeString
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "." + name
}
