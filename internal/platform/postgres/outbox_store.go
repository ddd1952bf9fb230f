package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/platform/logger"
	"github.com/gosdep/taskflow-api/internal/store"
)

// PostgresOutboxStore implements the store.OutboxStore interface using PostgreSQL.
type PostgresOutboxStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresOutboxStore creates a new PostgresOutboxStore.
func NewPostgresOutboxStore(db store.DBTX, logger *slog.Logger) *PostgresOutboxStore {
	return &PostgresOutboxStore{
		db:     db,
		logger: logger.With("component", "outbox_store"),
	}
}

// Ensure PostgresOutboxStore implements store.OutboxStore
var _ store.OutboxStore = (*PostgresOutboxStore)(nil)

// WithTx returns a new OutboxStore instance bound to the provided transaction.
func (s *PostgresOutboxStore) WithTx(tx *sql.Tx) store.OutboxStore {
	return &PostgresOutboxStore{
		db:     tx,
		logger: s.logger,
	}
}

// Add inserts a new unsent outbox event.
func (s *PostgresOutboxStore) Add(ctx context.Context, event *domain.OutboxEvent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at, sent, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
		event.CreatedAt,
		event.Sent,
		event.SentAt,
	)
	if err != nil {
		log.Error("failed to add outbox event",
			"event_id", event.ID,
			"event_type", event.EventType,
			"error", err)
		return MapError(err)
	}

	log.Debug("outbox event added",
		"event_id", event.ID,
		"event_type", event.EventType,
		"aggregate_id", event.AggregateID)
	return nil
}

// SelectUnsentForUpdate returns up to limit unsent events, oldest first.
// Rows are locked with FOR UPDATE SKIP LOCKED so concurrent publisher
// instances partition the backlog instead of contending for or
// double-publishing the same rows. Meaningful only inside a transaction.
func (s *PostgresOutboxStore) SelectUnsentForUpdate(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxEvent, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, sent, sent_at
		FROM outbox
		WHERE sent = false
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error("failed to select unsent outbox events", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			event   domain.OutboxEvent
			payload []byte
			sentAt  sql.NullTime
		)

		err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&payload,
			&event.CreatedAt,
			&event.Sent,
			&sentAt,
		)
		if err != nil {
			log.Error("failed to scan outbox row", "error", err)
			return nil, MapError(err)
		}

		event.Payload = payload
		if sentAt.Valid {
			event.SentAt = &sentAt.Time
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating outbox rows", "error", err)
		return nil, MapError(err)
	}

	return events, nil
}

// MarkSent flips sent to true and records the sent timestamp.
func (s *PostgresOutboxStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE outbox
		SET sent = true, sent_at = $2
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		log.Error("failed to mark outbox event sent",
			"event_id", id,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "outbox event"); err != nil {
		return store.ErrOutboxEventNotFound
	}

	return nil
}
