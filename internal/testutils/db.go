package testutils

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"
)

// testSchema mirrors the goose migrations. Integration tests run against a
// throwaway database, so recreating the schema directly keeps them
// independent of migration state.
const testSchema = `
CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    priority VARCHAR(10) NOT NULL,
    status VARCHAR(20) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    started_at TIMESTAMPTZ,
    finished_at TIMESTAMPTZ,
    result TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS outbox (
    id UUID PRIMARY KEY,
    aggregate_type VARCHAR(64) NOT NULL,
    aggregate_id UUID NOT NULL,
    event_type VARCHAR(64) NOT NULL,
    payload JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    sent BOOLEAN NOT NULL DEFAULT FALSE,
    sent_at TIMESTAMPTZ
);
`

// GetTestDBWithT opens a connection to the integration test database,
// verifies it responds and ensures the schema exists. The connection is
// closed automatically when the test finishes.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", GetTestDatabaseURL(t))
	require.NoError(t, err, "Failed to open test database connection")
	t.Cleanup(func() {
		_ = db.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "Test database is not reachable")

	_, err = db.ExecContext(ctx, testSchema)
	require.NoError(t, err, "Failed to create test schema")

	return db
}

// WithTx runs fn inside a transaction that is always rolled back, so each
// test observes a clean database regardless of what it writes.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "Failed to begin test transaction")
	defer func() {
		_ = tx.Rollback()
	}()

	fn(t, tx)
}
