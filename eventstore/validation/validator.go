// Package validation checks entity snapshots against their JSON Schema.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

const errorSeparator = "; "

// Validator validates a JSON document against a JSON Schema definition.
//
// A nil error means the document is valid. Violations are reported as an error wrapping
// eventstore.ErrSchemaValidationFailed whose message lists "<field>: <reason>" entries separated by "; ".
type Validator interface {
	Validate(json string, schemaDefinition string) error
}

// JSONSchemaValidator implements Validator with gojsonschema. Format assertions (email, date-time, ...) are enabled.
//
// Compiled schemas are kept per definition text; definitions are immutable once registered.
type JSONSchemaValidator struct {
	compiled sync.Map // schema definition -> *gojsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{}
}

// Validate implements Validator.
func (v *JSONSchemaValidator) Validate(json string, schemaDefinition string) error {
	schema, err := v.schemaFor(schemaDefinition)
	if err != nil {
		return errors.Join(eventstore.ErrSchemaValidationFailed, fmt.Errorf("invalid schema: %w", err))
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(json))
	if err != nil {
		return errors.Join(eventstore.ErrSchemaValidationFailed, fmt.Errorf("invalid document: %w", err))
	}

	if result.Valid() {
		return nil
	}

	return fmt.Errorf("%w: %s", eventstore.ErrSchemaValidationFailed, FormatErrors(result.Errors()))
}

func (v *JSONSchemaValidator) schemaFor(definition string) (*gojsonschema.Schema, error) {
	if cached, ok := v.compiled.Load(definition); ok {
		return cached.(*gojsonschema.Schema), nil
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definition))
	if err != nil {
		return nil, err
	}

	v.compiled.Store(definition, schema)

	return schema, nil
}

// FormatErrors joins validation errors as "<field>: <reason>" separated by "; ".
func FormatErrors(resultErrors []gojsonschema.ResultError) string {
	messages := make([]string, 0, len(resultErrors))
	for _, resultError := range resultErrors {
		messages = append(messages, resultError.Field()+": "+resultError.Description())
	}

	return strings.Join(messages, errorSeparator)
}

// Violations extracts the individual "<field>: <reason>" entries from a validation error message.
func Violations(err error) []string {
	if err == nil || !errors.Is(err, eventstore.ErrSchemaValidationFailed) {
		return nil
	}

	_, list, found := strings.Cut(err.Error(), eventstore.ErrSchemaValidationFailed.Error()+": ")
	if !found {
		return []string{err.Error()}
	}

	return strings.Split(list, errorSeparator)
}
