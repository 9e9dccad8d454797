package config

import (
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo/options"
)

const envMongoTestURI = "MONGO_TEST_URI"

// MongoTestURI returns the URI of the MongoDB test server and whether it is configured.
func MongoTestURI() (string, bool) {
	uri := os.Getenv(envMongoTestURI)
	return uri, uri != ""
}

// MongoTestClientOptions creates client options for uri.
func MongoTestClientOptions(uri string) *options.ClientOptions {
	const defaultMaxPoolSize = uint64(10)
	const defaultConnectTimeout = time.Second * 5
	const defaultServerSelectionTimeout = time.Second * 5

	return options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(defaultMaxPoolSize).
		SetConnectTimeout(defaultConnectTimeout).
		SetServerSelectionTimeout(defaultServerSelectionTimeout)
}
