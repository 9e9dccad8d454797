// Package estesthelpers provides storage-engine agnostic test utilities for the business event store.
//
// Test ID Generation:
//
//	GivenUniqueID: generates a UUID v7 string for test entity IDs
//
// Event Fixtures:
//
//	FixtureEvent: builds a valid BusinessEvent with a fixed snapshot
//	FixtureMetadataRow: builds a string metadata row belonging to an event
//	FixtureSchemaVersion: builds a valid SchemaVersion
//
// Test Data Setup:
//
//	GivenEventWasAppended: appends an event with metadata rows to any EventWriter
//	GivenSchemaWasInserted: inserts a schema version into any SchemaStore
package estesthelpers
