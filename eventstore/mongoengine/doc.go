// Package mongoengine provides the MongoDB storage engine of the business event store.
//
// Each business event is one document with its metadata rows embedded as an array, so appending an event
// is a single atomic document write. Use TransactionManager, a transaction.NoOpManager, for the tracker.
//
// MongoDB Schema:
//
//	Collection: schema_versions
//	{
//	    "_id": string,              // "<entity type>/<version>"
//	    "entity_type": string,
//	    "version": int,
//	    "schema_definition": string,
//	    "created_date": ISODate
//	}
//
//	Collection: business_events
//	{
//	    "_id": string,              // event id
//	    "entity_type": string,
//	    "entity_id": string,
//	    "event_type": string,
//	    "schema_version": int,
//	    "event_timestamp": ISODate,
//	    "correlation_id": string,
//	    "actor_id": string,
//	    "actor_type": string,
//	    "entity_data": string,      // canonical JSON text
//	    "metadata": [{"key": string, "value": string, "data_type": string}]
//	}
//
// BSON dates have millisecond precision, timestamps are truncated accordingly.
//
// Usage:
//
//	client, _ := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
//	store, _ := mongoengine.NewEventStore(client.Database("eventstore"))
//	_ = store.CreateIndexes(ctx)
package mongoengine
