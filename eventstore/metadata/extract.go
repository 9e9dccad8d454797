package metadata

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonvalue"
)

// Leaf is one scalar value of a flattened document.
type Leaf struct {
	Path  string
	Value any
}

// Flatten walks a decoded document depth-first: object keys become dotted paths (in sorted key order),
// array elements become Key[i]. Only scalar and null leaves are returned.
func Flatten(document any) []Leaf {
	leaves := make([]Leaf, 0)
	flatten(document, "", &leaves)

	return leaves
}

func flatten(value any, path string, leaves *[]Leaf) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			flatten(v[key], joinPath(path, key), leaves)
		}

	case []any:
		for i, element := range v {
			flatten(element, path+"["+strconv.Itoa(i)+"]", leaves)
		}

	default:
		if path != "" {
			*leaves = append(*leaves, Leaf{Path: path, Value: v})
		}
	}
}

// Lookup reports whether a flattened path is selected by the config, and its DataType.
// Paths below an array of objects match when their sub path is selected by the item config.
func (c ExtractionConfig) Lookup(path string) (eventstore.DataType, bool) {
	if _, ok := c.FieldsToExtract[path]; ok {
		return c.FieldTypes[path], true
	}

	for arrayPath, itemConfig := range c.ArrayPathsToExtract {
		subPath, ok := elementSubPath(arrayPath, path)
		if !ok {
			continue
		}

		if dataType, found := itemConfig.Lookup(subPath); found {
			return dataType, true
		}
	}

	return "", false
}

// elementSubPath strips "arrayPath[i]." from path.
func elementSubPath(arrayPath, path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, arrayPath+"[")
	if !ok {
		return "", false
	}

	closing := strings.IndexByte(rest, ']')
	if closing <= 0 {
		return "", false
	}

	if _, err := strconv.Atoi(rest[:closing]); err != nil {
		return "", false
	}

	subPath, ok := strings.CutPrefix(rest[closing+1:], ".")
	if !ok || subPath == "" {
		return "", false
	}

	return subPath, true
}

// Result holds the extracted rows and the keys which were dropped for exceeding MaxMetadataKeyLength.
type Result struct {
	Rows        eventstore.MetadataRows
	SkippedKeys []string
}

// Extract flattens the event's entity data and returns one row per selected path with a non-null, non-empty value.
// Values longer than MaxMetadataValueLength are truncated.
func Extract(event eventstore.BusinessEvent, config ExtractionConfig) (Result, error) {
	result := Result{Rows: make(eventstore.MetadataRows, 0)}

	if !config.HasMetadata {
		return result, nil
	}

	document, err := jsonvalue.DecodeString(event.EntityData)
	if err != nil {
		return Result{}, err
	}

	for _, leaf := range Flatten(document) {
		if jsonvalue.IsEmpty(leaf.Value) {
			continue
		}

		dataType, selected := config.Lookup(leaf.Path)
		if !selected {
			continue
		}

		if utf8.RuneCountInString(leaf.Path) > eventstore.MaxMetadataKeyLength {
			result.SkippedKeys = append(result.SkippedKeys, leaf.Path)
			continue
		}

		result.Rows = append(result.Rows, eventstore.BusinessEventMetadata{
			EventID:       event.EventID,
			MetadataKey:   leaf.Path,
			EntityType:    event.EntityType,
			EntityID:      event.EntityID,
			MetadataValue: truncate(jsonvalue.Text(leaf.Value), eventstore.MaxMetadataValueLength),
			DataType:      dataType,
		})
	}

	return result, nil
}

func truncate(value string, maxRunes int) string {
	if utf8.RuneCountInString(value) <= maxRunes {
		return value
	}

	runes := []rune(value)

	return string(runes[:maxRunes])
}
