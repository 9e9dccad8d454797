// Package fixtures contains schemas and entity snapshots for testing the business event store.
//
// The entity types follow a small shop domain: Customer (with a versioned schema), Order (with an array
// of line items whose SKU is metadata) and Product. Fake* functions use faker to produce valid random snapshots.
//
// This is testing infrastructure, not production domain code.
package fixtures
