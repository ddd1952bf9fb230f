// Package testutils provides common utilities for testing across the
// application. It centralizes repeated test setup and teardown logic to
// avoid duplication and standardize testing practices.
package testutils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// IsIntegrationTestEnvironment returns true if the environment is configured
// for running integration tests with a database connection.
// Integration tests should check this and skip if not in an integration test
// environment.
func IsIntegrationTestEnvironment() bool {
	return os.Getenv("DATABASE_URL") != ""
}

// GetTestDatabaseURL returns the database URL for integration tests.
// It fails the test if DATABASE_URL is not set.
func GetTestDatabaseURL(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL environment variable is required for this test")
	}
	return dbURL
}

// IsBrokerTestEnvironment returns true if the environment is configured
// for running integration tests against a live message broker.
// Broker integration tests should check this and skip otherwise.
func IsBrokerTestEnvironment() bool {
	return os.Getenv("RABBITMQ_URL") != ""
}

// GetTestBrokerURL returns the broker URL for integration tests.
// It fails the test if RABBITMQ_URL is not set.
func GetTestBrokerURL(t *testing.T) string {
	t.Helper()

	brokerURL := os.Getenv("RABBITMQ_URL")
	if brokerURL == "" {
		t.Fatal("RABBITMQ_URL environment variable is required for this test")
	}
	return brokerURL
}

// SetupEnv sets environment variables for a test and returns a cleanup
// function that restores the original values.
func SetupEnv(t *testing.T, envVars map[string]string) func() {
	t.Helper()

	originalValues := make(map[string]string)
	for name := range envVars {
		originalValues[name] = os.Getenv(name)
	}

	for name, value := range envVars {
		err := os.Setenv(name, value)
		require.NoError(t, err, "Failed to set environment variable %s", name)
	}

	return func() {
		for name, value := range originalValues {
			if value == "" {
				if err := os.Unsetenv(name); err != nil {
					t.Logf("Warning: Failed to unset env var %s: %v", name, err)
				}
			} else {
				if err := os.Setenv(name, value); err != nil {
					t.Logf("Warning: Failed to restore env var %s: %v", name, err)
				}
			}
		}
	}
}
