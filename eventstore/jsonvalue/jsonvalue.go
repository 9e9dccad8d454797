// Package jsonvalue classifies and encodes generic JSON trees.
//
// Documents are decoded into the generic shapes map[string]any, []any, string,
// json.Number, bool and nil. Numbers stay json.Number so that their textual
// representation survives a round trip unchanged.
package jsonvalue

import (
	"encoding/json"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// ErrInvalidJSON is returned when a document can not be decoded.
var ErrInvalidJSON = errors.New("invalid json")

// Kind is the JSON type of a decoded value.
type Kind int

const (
	KindNull Kind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "null"
	}
}

// codec decodes numbers as json.Number and encodes objects with sorted keys.
var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Decode parses a JSON document into its generic representation.
func Decode(data []byte) (any, error) {
	var value any

	if err := codec.Unmarshal(data, &value); err != nil {
		return nil, errors.Join(ErrInvalidJSON, err)
	}

	return value, nil
}

// DecodeString is Decode for string input.
func DecodeString(data string) (any, error) {
	return Decode([]byte(data))
}

// Marshal encodes any value canonically: object keys are sorted, numbers keep their text.
func Marshal(value any) ([]byte, error) {
	return codec.Marshal(value)
}

// Unmarshal decodes data into target, keeping untyped numbers as json.Number.
func Unmarshal(data []byte, target any) error {
	if err := codec.Unmarshal(data, target); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}

	return nil
}

// Canonical re-encodes a JSON document canonically.
func Canonical(data []byte) ([]byte, error) {
	value, err := Decode(data)
	if err != nil {
		return nil, err
	}

	return Marshal(value)
}

// KindOf classifies a decoded value. Native Go numbers are reported as KindNumber as well.
func KindOf(value any) Kind {
	switch value.(type) {
	case nil:
		return KindNull
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	case string:
		return KindString
	case json.Number, float64, float32, int, int64, int32, uint, uint64, uint32:
		return KindNumber
	case bool:
		return KindBool
	default:
		return KindNull
	}
}

// Text returns the textual representation of a value.
// Strings are returned unquoted, numbers and booleans as written, nested values as canonical JSON.
func Text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		encoded, err := Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// IsEmpty reports whether value is null or the empty string.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}
