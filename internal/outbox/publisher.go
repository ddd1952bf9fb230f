// Package outbox moves committed outbox events onto the broker. It is the
// bridge between the transactional write side and asynchronous dispatch:
// rows flip to sent only after an acknowledged publish, so delivery is
// at-least-once and consumers must tolerate duplicates.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gosdep/taskflow-api/internal/config"
	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/platform/rabbitmq"
	"github.com/gosdep/taskflow-api/internal/store"
)

// BrokerPublisher is the slice of the broker client the publisher needs.
type BrokerPublisher interface {
	// Publish sends body to the task exchange under the given routing key
	// with persistent delivery.
	Publish(ctx context.Context, body []byte, routingKey string) error
}

// Publisher drains unsent outbox events to the broker. Multiple instances
// can run against the same table: the row-locking read skips rows a
// concurrent instance already holds, so no event is double-published
// within one polling generation.
type Publisher struct {
	db          *sql.DB
	outboxStore store.OutboxStore
	broker      BrokerPublisher
	cfg         config.OutboxConfig
	logger      *slog.Logger
}

// NewPublisher creates a Publisher. It returns an error if any required
// dependency is nil.
func NewPublisher(
	db *sql.DB,
	outboxStore store.OutboxStore,
	broker BrokerPublisher,
	cfg config.OutboxConfig,
	logger *slog.Logger,
) (*Publisher, error) {
	if db == nil {
		return nil, errors.New("outbox publisher: db cannot be nil")
	}
	if outboxStore == nil {
		return nil, errors.New("outbox publisher: outboxStore cannot be nil")
	}
	if broker == nil {
		return nil, errors.New("outbox publisher: broker cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		db:          db,
		outboxStore: outboxStore,
		broker:      broker,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "outbox_publisher")),
	}, nil
}

// Run polls the outbox until the context is cancelled. Cycle errors are
// logged, never fatal: the next tick gets a fresh chance, and unsent rows
// wait in the table meanwhile.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("outbox publisher started",
		slog.Duration("poll_interval", p.cfg.PollInterval),
		slog.Int("batch_limit", p.cfg.BatchLimit))

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopping")
			return ctx.Err()
		case <-ticker.C:
			published, err := p.PublishOnce(ctx)
			if err != nil {
				p.logger.Error("outbox cycle finished with errors",
					slog.Int("published", published),
					slog.String("error", err.Error()))
			}
		}
	}
}

// PublishOnce runs a single dispatch cycle: lock a batch of unsent events,
// publish each to the broker, and mark each one sent. The locking read,
// the publishes and the sent-flag updates share one transaction: any
// publish failure rolls the whole batch back, so a row is never marked
// sent without an acknowledged publish. Rolled-back rows stay unsent for
// the next poll, which means delivery is at-least-once: events published
// before the failing one in the batch will go out again. Returns the
// number published.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	var published int

	err := store.RunInTransaction(ctx, p.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := p.outboxStore.WithTx(tx)

		events, err := txStore.SelectUnsentForUpdate(ctx, p.cfg.BatchLimit)
		if err != nil {
			return fmt.Errorf("failed to select unsent events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		p.logger.Debug("dispatching outbox batch",
			slog.Int("events", len(events)))

		for _, event := range events {
			routingKey := RoutingKeyForEvent(event)

			if err := p.broker.Publish(ctx, event.Payload, routingKey); err != nil {
				p.logger.Warn("event publish failed, batch will retry next cycle",
					slog.String("event_id", event.ID.String()),
					slog.String("event_type", event.EventType),
					slog.String("error", err.Error()))
				return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
			}

			if err := txStore.MarkSent(ctx, event.ID); err != nil {
				return fmt.Errorf("failed to mark event %s sent: %w", event.ID, err)
			}

			published++
			p.logger.Info("event dispatched",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.EventType),
				slog.String("routing_key", routingKey))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return published, nil
}

// RoutingKeyForEvent derives the broker routing key from the event payload's
// priority field, lowercased. Events without a recognizable priority go to
// the medium queue.
func RoutingKeyForEvent(event *domain.OutboxEvent) string {
	var envelope struct {
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return rabbitmq.RoutingKeyMedium
	}

	switch strings.ToLower(envelope.Priority) {
	case rabbitmq.RoutingKeyHigh:
		return rabbitmq.RoutingKeyHigh
	case rabbitmq.RoutingKeyLow:
		return rabbitmq.RoutingKeyLow
	case rabbitmq.RoutingKeyMedium:
		return rabbitmq.RoutingKeyMedium
	default:
		return rabbitmq.RoutingKeyMedium
	}
}
