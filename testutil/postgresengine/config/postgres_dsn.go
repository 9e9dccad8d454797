package config

import "os"

const (
	envPostgresTestDSN        = "POSTGRES_TEST_DSN"
	envPostgresReplicaTestDSN = "POSTGRES_REPLICA_TEST_DSN"
)

// PostgresTestDSN returns the DSN of the PostgreSQL test database and whether it is configured.
func PostgresTestDSN() (string, bool) {
	dsn := os.Getenv(envPostgresTestDSN)
	return dsn, dsn != ""
}

// PostgresReplicaTestDSN returns the DSN of a replica of the PostgreSQL test database and whether it is configured.
func PostgresReplicaTestDSN() (string, bool) {
	dsn := os.Getenv(envPostgresReplicaTestDSN)
	return dsn, dsn != ""
}
