// Package config provides MongoDB configuration for mongoengine tests.
//
// Integration tests run against the server given by the MONGO_TEST_URI environment variable and are skipped without it.
package config
