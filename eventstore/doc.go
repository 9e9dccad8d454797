// Package eventstore provides the core types and storage ports of a schema-versioned business-event store.
//
// Producers track full snapshots of their entities (customers, products, ...) as immutable
// BusinessEvent records. Each snapshot is validated against a registered SchemaVersion for its
// entity type, and the schema fields annotated with "x-metadata": true are flattened into
// BusinessEventMetadata rows which make events searchable without scanning full payloads.
//
// Key types:
//   - SchemaVersion: a JSON Schema registered per entity type and version
//   - BusinessEvent: an appended entity snapshot
//   - BusinessEventMetadata: a flattened key/value row of a flagged field
//   - SearchRequest: metadata predicates combined with AND semantics
//   - EventResponse: the read model of the query engine
//
// Storage engines (postgresengine, memoryengine, mongoengine) implement SchemaStore,
// EventWriter and EventReader. The tracker, query and schemaregistry packages build on these ports.
//
// Common usage pattern:
//
//	request := eventstore.BuildSearchFilter("Customer").
//		Matching(eventstore.P("Email", "*@example.com")).
//		Limit(10).
//		Finalize()
//
//	responses, err := engine.SearchEvents(ctx, request)
//	if err != nil {
//		// handle error
//	}
package eventstore
