// Package worker consumes task messages from the broker and drives them
// through their handler. Acknowledgment discipline is the whole point:
// a message leaves its queue only by explicit ack, after either successful
// processing or a recorded escalation decision.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gosdep/taskflow-api/internal/config"
	"github.com/gosdep/taskflow-api/internal/domain"
)

// BrokerConsumer is the slice of the broker client the worker needs.
type BrokerConsumer interface {
	// Consume registers a manual-ack consumer on the named queue.
	Consume(ctx context.Context, queue string) (<-chan amqp.Delivery, error)

	// EscalateFailure retries or dead-letters a failed delivery and acks
	// the original either way.
	EscalateFailure(ctx context.Context, d amqp.Delivery) error
}

// Handler processes one decoded task message. A returned error sends the
// message into escalation; handlers must therefore be safe to re-run,
// since escalated messages come back.
type Handler interface {
	Handle(ctx context.Context, msg domain.TaskMessage) error
}

// Worker runs the consume-process-acknowledge loop for one queue.
type Worker struct {
	broker  BrokerConsumer
	handler Handler
	queue   string
	cfg     config.WorkerConfig
	logger  *slog.Logger
}

// NewWorker creates a Worker for the given queue. It returns an error if
// any required dependency is nil.
func NewWorker(
	broker BrokerConsumer,
	handler Handler,
	queue string,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) (*Worker, error) {
	if broker == nil {
		return nil, errors.New("worker: broker cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("worker: handler cannot be nil")
	}
	if queue == "" {
		return nil, errors.New("worker: queue cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		broker:  broker,
		handler: handler,
		queue:   queue,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "worker"), slog.String("queue", queue)),
	}, nil
}

// Run consumes the queue until the context is cancelled. When the delivery
// channel closes (connection loss, broker restart) it waits the restart
// backoff and registers a fresh consumer rather than exiting, so a worker
// process survives broker outages.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping")
			return err
		}

		deliveries, err := w.broker.Consume(ctx, w.queue)
		if err != nil {
			w.logger.Error("failed to register consumer, retrying",
				slog.Duration("retry_in", w.cfg.RestartBackoff),
				slog.String("error", err.Error()))
			if err := w.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		if err := w.drain(ctx, deliveries); err != nil {
			return err
		}

		w.logger.Warn("delivery channel closed, re-registering consumer",
			slog.Duration("retry_in", w.cfg.RestartBackoff))
		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

// drain processes deliveries until the channel closes or the context is
// cancelled. A nil return means the channel closed and the caller should
// re-register.
func (w *Worker) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery runs one message through decode, handle and acknowledge.
// Undecodable messages are acked and dropped: redelivery cannot fix a
// malformed body. Handler failures go through escalation, which acks the
// original itself; only a failed escalation falls back to a requeue-less
// nack so the queue's dead-letter exchange picks the message up.
func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	msg, err := decodeTaskMessage(d.Body)
	if err != nil {
		w.logger.Warn("discarding undecodable message",
			slog.String("error", err.Error()))
		if err := d.Ack(false); err != nil {
			w.logger.Error("failed to ack discarded message",
				slog.String("error", err.Error()))
		}
		return
	}

	log := w.logger.With(slog.String("task_id", msg.TaskID.String()))

	if err := w.handler.Handle(ctx, msg); err != nil {
		log.Warn("message processing failed, escalating",
			slog.String("error", err.Error()))

		if escErr := w.broker.EscalateFailure(ctx, d); escErr != nil {
			log.Error("escalation failed, dead-lettering via nack",
				slog.String("error", escErr.Error()))
			if nackErr := d.Nack(false, false); nackErr != nil {
				log.Error("failed to nack message",
					slog.String("error", nackErr.Error()))
			}
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("failed to ack processed message",
			slog.String("error", err.Error()))
		return
	}

	log.Info("message processed")
}

// sleep waits the restart backoff or returns early on cancellation.
func (w *Worker) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.cfg.RestartBackoff):
		return nil
	}
}

// decodeTaskMessage parses a message body into the consumer contract.
// A body without a task id is undecodable: there is nothing to process.
func decodeTaskMessage(body []byte) (domain.TaskMessage, error) {
	var msg domain.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return domain.TaskMessage{}, fmt.Errorf("failed to decode message body: %w", err)
	}
	if msg.TaskID == uuid.Nil {
		return domain.TaskMessage{}, errors.New("message body has no task_id")
	}
	return msg, nil
}
