package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/gosdep/taskflow-api/internal/domain"
)

// OutboxStore defines the interface for persisting outbox events.
//
// SelectUnsentForUpdate must use a row-locking read that skips rows already
// locked by a concurrent transaction, so that multiple publisher instances
// can poll the same table without double-publishing a row. For that locking
// to matter, it has to run inside a caller-managed transaction (via WithTx);
// MarkSent for the same rows belongs in the same transaction.
type OutboxStore interface {
	// Add inserts a new unsent outbox event. Callers pair this with the
	// domain mutation it announces inside one transaction; that pairing is
	// the atomicity contract the dispatch pipeline relies on.
	Add(ctx context.Context, event *domain.OutboxEvent) error

	// SelectUnsentForUpdate returns up to limit unsent events, oldest
	// first, locking the returned rows and skipping rows locked elsewhere.
	SelectUnsentForUpdate(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)

	// MarkSent flips sent to true and records the sent timestamp.
	// Returns ErrOutboxEventNotFound if the event does not exist.
	MarkSent(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new OutboxStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) OutboxStore
}
