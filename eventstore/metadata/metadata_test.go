package metadata_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/metadata"
)

const customerSchema = `{
	"type": "object",
	"properties": {
		"Id":        {"type": "string", "x-metadata": true},
		"Name":      {"type": "string", "x-metadata": true},
		"Email":     {"type": "string", "format": "email", "x-metadata": true},
		"Age":       {"type": "integer", "x-metadata": true},
		"Vip":       {"type": ["null", "boolean"], "x-metadata": true},
		"Birthday":  {"type": "string", "format": "date-time", "x-metadata": true},
		"Notes":     {"type": "string"},
		"Address":   {
			"type": "object",
			"x-metadata": true,
			"properties": {
				"City": {"type": "string", "x-metadata": true},
				"Zip":  {"type": "string"}
			}
		},
		"Orders": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"Sku": {"type": "string", "x-metadata": true},
					"Qty": {"type": "number", "x-metadata": true},
					"Note": {"type": "string"}
				}
			}
		},
		"Tags": {"type": "array", "items": {"type": "string"}}
	}
}`

func Test_ParseConfig_CollectsFlaggedScalarLeaves(t *testing.T) {
	// act
	config := metadata.ParseConfig(customerSchema)

	// assert
	assert.True(t, config.HasMetadata)
	assert.Equal(t, []string{"Address.City", "Age", "Birthday", "Email", "Id", "Name", "Vip"}, config.Fields())
	assert.Equal(t, eventstore.DataTypeString, config.FieldTypes["Email"])
	assert.Equal(t, eventstore.DataTypeNumber, config.FieldTypes["Age"])
	assert.Equal(t, eventstore.DataTypeBoolean, config.FieldTypes["Vip"])
	assert.Equal(t, eventstore.DataTypeDate, config.FieldTypes["Birthday"])
	assert.Equal(t, eventstore.DataTypeString, config.FieldTypes["Address.City"])
	assert.NotContains(t, config.FieldsToExtract, "Address")
	assert.NotContains(t, config.FieldsToExtract, "Notes")
}

func Test_ParseConfig_When_FormatIsNotDateTime_KeepsStringType(t *testing.T) {
	// arrange
	schema := `{
		"type": "object",
		"properties": {
			"Birthday": {"type": "string", "format": "date", "x-metadata": true},
			"LastSeen": {"type": "string", "format": "date-time", "x-metadata": true},
			"Website":  {"type": "string", "format": "uri", "x-metadata": true}
		}
	}`

	// act
	config := metadata.ParseConfig(schema)

	// assert
	assert.Equal(t, eventstore.DataTypeString, config.FieldTypes["Birthday"])
	assert.Equal(t, eventstore.DataTypeDate, config.FieldTypes["LastSeen"])
	assert.Equal(t, eventstore.DataTypeString, config.FieldTypes["Website"])
}

func Test_ParseConfig_RecordsArraysOfObjectsOnly(t *testing.T) {
	// act
	config := metadata.ParseConfig(customerSchema)

	// assert
	assert.Equal(t, []string{"Orders"}, config.ArrayPaths())
	assert.NotContains(t, config.FieldsToExtract, "Orders")
	assert.Equal(t, []string{"Qty", "Sku"}, config.ArrayPathsToExtract["Orders"].Fields())
}

func Test_ParseConfig_When_SchemaIsMalformed(t *testing.T) {
	testCases := []struct {
		name   string
		schema string
	}{
		{name: "broken json", schema: `{"properties": {`},
		{name: "not an object", schema: `[1, 2, 3]`},
		{name: "empty", schema: ``},
		{name: "no flagged fields", schema: `{"type":"object","properties":{"Id":{"type":"string"}}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := metadata.ParseConfig(tc.schema)

			assert.False(t, config.HasMetadata)
			assert.Empty(t, config.FieldsToExtract)
		})
	}
}

func Test_ParseConfig_When_OnlyArrayItemsAreFlagged(t *testing.T) {
	// arrange
	schema := `{"type":"object","properties":{"Lines":{"type":"array","items":{"type":"object","properties":{"X":{"type":"string","x-metadata":true}}}}}}`

	// act
	config := metadata.ParseConfig(schema)

	// assert
	assert.True(t, config.HasMetadata)
	assert.Empty(t, config.FieldsToExtract)
}

func Test_Flatten(t *testing.T) {
	// arrange
	document := map[string]any{
		"b": "x",
		"a": map[string]any{"c": true, "d": nil},
		"e": []any{map[string]any{"f": "1"}, "g"},
		"h": map[string]any{},
	}

	// act
	leaves := metadata.Flatten(document)

	// assert
	assert.Equal(t, []metadata.Leaf{
		{Path: "a.c", Value: true},
		{Path: "a.d", Value: nil},
		{Path: "b", Value: "x"},
		{Path: "e[0].f", Value: "1"},
		{Path: "e[1]", Value: "g"},
	}, leaves)
}

func Test_Extract_SkipsNullAndEmptyValues(t *testing.T) {
	// arrange
	schema := `{"type":"object","properties":{
		"A":{"type":"string","x-metadata":true},
		"B":{"type":["string","null"],"x-metadata":true},
		"C":{"type":"string","x-metadata":true},
		"D":{"type":"string","x-metadata":true}}}`
	event := buildEvent(t, `{"A":"a","B":null,"C":"c","D":""}`)

	// act
	result, err := metadata.Extract(event, metadata.ParseConfig(schema))

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, keysOf(result.Rows))
}

func Test_Extract_ExpandsArrayElements(t *testing.T) {
	// arrange
	event := buildEvent(t, `{"Orders":[{"Sku":"S1","Qty":2,"Note":"n"},{"Sku":"S2","Qty":1.5}]}`)

	// act
	result, err := metadata.Extract(event, metadata.ParseConfig(customerSchema))

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders[0].Qty", "Orders[0].Sku", "Orders[1].Qty", "Orders[1].Sku"}, keysOf(result.Rows))
	assert.Equal(t, "1.5", result.Rows[2].MetadataValue)
	assert.Equal(t, eventstore.DataTypeNumber, result.Rows[2].DataType)
}

func Test_Extract_CustomerScenario(t *testing.T) {
	// arrange
	schema := `{"type":"object","properties":{
		"Id":{"type":"string","x-metadata":true},
		"Name":{"type":"string","x-metadata":true},
		"Email":{"type":"string","format":"email","x-metadata":true}}}`
	event := buildEvent(t, `{"Id":"1","Name":"John Doe","Email":"john.doe@example.com"}`)

	// act
	result, err := metadata.Extract(event, metadata.ParseConfig(schema))

	// assert
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)

	for _, row := range result.Rows {
		assert.Equal(t, event.EventID, row.EventID)
		assert.Equal(t, "Customer", row.EntityType)
		assert.Equal(t, "1", row.EntityID)
		assert.Equal(t, eventstore.DataTypeString, row.DataType)
	}

	assert.Equal(t, "john.doe@example.com", result.Rows[0].MetadataValue)
}

func Test_Extract_StringifiesScalars(t *testing.T) {
	// arrange
	event := buildEvent(t, `{"Age":42,"Vip":false,"Birthday":"1990-01-02T03:04:05Z","Address":{"City":"Berlin"}}`)

	// act
	result, err := metadata.Extract(event, metadata.ParseConfig(customerSchema))

	// assert
	require.NoError(t, err)
	values := make(map[string]string)
	for _, row := range result.Rows {
		values[row.MetadataKey] = row.MetadataValue
	}

	assert.Equal(t, map[string]string{
		"Address.City": "Berlin",
		"Age":          "42",
		"Birthday":     "1990-01-02T03:04:05Z",
		"Vip":          "false",
	}, values)
}

func Test_Extract_AppliesLengthLimits(t *testing.T) {
	// arrange
	longKey := strings.Repeat("k", eventstore.MaxMetadataKeyLength+1)
	schema := `{"type":"object","properties":{
		"` + longKey + `":{"type":"string","x-metadata":true},
		"Text":{"type":"string","x-metadata":true}}}`
	event := buildEvent(t, `{"`+longKey+`":"v","Text":"`+strings.Repeat("ä", eventstore.MaxMetadataValueLength+20)+`"}`)

	// act
	result, err := metadata.Extract(event, metadata.ParseConfig(schema))

	// assert
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Text", result.Rows[0].MetadataKey)
	assert.Equal(t, strings.Repeat("ä", eventstore.MaxMetadataValueLength), result.Rows[0].MetadataValue)
	assert.Equal(t, []string{longKey}, result.SkippedKeys)
}

func Test_Extract_When_ConfigHasNoMetadata(t *testing.T) {
	// arrange
	event := buildEvent(t, `{"Id":"1"}`)

	// act
	result, err := metadata.Extract(event, metadata.ParseConfig(`{}`))

	// assert
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func buildEvent(t *testing.T, data string) eventstore.BusinessEvent {
	t.Helper()

	event, err := eventstore.BuildBusinessEvent(
		"Customer", "1", eventstore.EventTypeCreated, 1, time.Now(), "corr", "actor", eventstore.ActorTypeUser, data)
	require.NoError(t, err)

	return event
}

func keysOf(rows eventstore.MetadataRows) []string {
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.MetadataKey)
	}

	return keys
}
