package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gosdep/taskflow-api/internal/config"
)

// Routing keys for the task exchange. Each priority level has a durable
// queue of the same name bound by its routing key.
const (
	RoutingKeyHigh   = "high"
	RoutingKeyMedium = "medium"
	RoutingKeyLow    = "low"
)

// Message header keys.
const (
	// HeaderAttempts counts completed delivery attempts for a message.
	HeaderAttempts = "attempts"

	// HeaderDeathReason records why a message was dead-lettered.
	HeaderDeathReason = "x-death-reason"
)

// publishBackoffBase is the first reconnect-and-retry delay for Publish;
// subsequent attempts double it.
const publishBackoffBase = 1 * time.Second

// ErrPublishExhausted is returned when a publish keeps failing after the
// configured number of reconnect-and-retry cycles. The event stays unsent
// in the outbox and is retried on the next poll cycle.
var ErrPublishExhausted = errors.New("publish retries exhausted")

// ErrNotConnected is returned by operations that need a live channel when
// the client has been closed.
var ErrNotConnected = errors.New("broker client is not connected")

// Client owns the shared RabbitMQ connection and channel pair, the
// exchange/queue topology, reliable publishing, consumer registration and
// the retry/dead-letter escalation policy. Construct one per process and
// inject it; its lifetime belongs to the composition root.
type Client struct {
	cfg    config.BrokerConfig
	logger *slog.Logger

	// mu serializes connection management. Publish and topology setup go
	// through it; delivered message acks do not (they ride the delivery's
	// own acknowledger).
	mu        sync.Mutex
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	consumeCh *amqp.Channel
	closed    bool
}

// NewClient creates a broker client for the given configuration.
// No connection is made until Configure is called.
func NewClient(cfg config.BrokerConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "broker_client"),
	}
}

// Configure connects to the broker and declares the full topology:
// the direct task exchange, the fan-out dead-letter exchange with its
// durable queue, one durable queue per priority bound by its routing key,
// and one retry queue per priority and configured delay. It is idempotent,
// safe to call concurrently and safe to call again after a connection loss.
func (c *Client) Configure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configureLocked(ctx)
}

// configureLocked does the actual setup; callers hold c.mu.
func (c *Client) configureLocked(ctx context.Context) error {
	if c.closed {
		return ErrNotConnected
	}

	if brokerAlive(c.conn, c.pubCh, c.consumeCh) {
		return nil
	}

	c.logger.Info("connecting to broker")

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open publish channel: %w", err)
	}

	consumeCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open consume channel: %w", err)
	}

	pubCh, err = c.declareTopology(conn, pubCh)
	if err != nil {
		_ = conn.Close()
		return err
	}

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.pubCh = pubCh
	c.consumeCh = consumeCh

	c.logger.Info("broker configured, exchanges and queues declared",
		"task_exchange", c.cfg.TaskExchange,
		"dead_letter_exchange", c.cfg.DeadLetterExchange)
	return nil
}

// declareTopology declares exchanges and queues on the given channel.
// Returns the channel topology work ended on, which may differ from the
// input when an incompatible queue forced a channel reopen.
func (c *Client) declareTopology(conn *amqp.Connection, ch *amqp.Channel) (*amqp.Channel, error) {
	if err := ch.ExchangeDeclare(
		c.cfg.TaskExchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare task exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(
		c.cfg.DeadLetterExchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.DeadLetterQueue,
		true, // durable
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	if err := ch.QueueBind(c.cfg.DeadLetterQueue, "", c.cfg.DeadLetterExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	for _, rk := range []string{RoutingKeyHigh, RoutingKeyMedium, RoutingKeyLow} {
		var err error
		ch, err = c.declarePriorityQueue(conn, ch, rk)
		if err != nil {
			return nil, err
		}

		for _, delay := range c.cfg.RetryDelays {
			if err := c.declareRetryQueue(ch, rk, delay); err != nil {
				return nil, err
			}
		}
	}

	return ch, nil
}

// declarePriorityQueue declares one durable priority queue (named after its
// routing key) with the dead-letter exchange attached, and binds it to the
// task exchange. A queue that already exists with incompatible arguments is
// deleted and redeclared with the expected ones; an existing compatible
// queue is a no-op. Returns the channel to keep using: a failed declare
// closes its channel, so the remaining topology work continues on a fresh
// one.
func (c *Client) declarePriorityQueue(
	conn *amqp.Connection,
	ch *amqp.Channel,
	routingKey string,
) (*amqp.Channel, error) {
	args := amqp.Table{
		"x-dead-letter-exchange": c.cfg.DeadLetterExchange,
	}

	if _, err := ch.QueueDeclare(routingKey, true, false, false, false, args); err != nil {
		if !isPreconditionFailed(err) {
			return nil, fmt.Errorf("failed to declare queue %q: %w", routingKey, err)
		}

		c.logger.Warn("queue exists with incompatible arguments, recreating",
			"queue", routingKey)

		// The failed declare closed the channel.
		fresh, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to reopen channel for queue %q: %w", routingKey, err)
		}
		ch = fresh

		if _, err := ch.QueueDelete(routingKey, false, false, false); err != nil {
			return nil, fmt.Errorf("failed to delete queue %q: %w", routingKey, err)
		}
		if _, err := ch.QueueDeclare(routingKey, true, false, false, false, args); err != nil {
			return nil, fmt.Errorf("failed to redeclare queue %q: %w", routingKey, err)
		}
	}

	if err := ch.QueueBind(routingKey, routingKey, c.cfg.TaskExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue %q: %w", routingKey, err)
	}

	c.logger.Debug("queue bound",
		"queue", routingKey,
		"exchange", c.cfg.TaskExchange,
		"routing_key", routingKey)
	return ch, nil
}

// declareRetryQueue declares the parking queue for one (priority, delay)
// pair. Messages published to it sit for the delay and are then
// dead-lettered back onto the task exchange with the priority's routing
// key, landing on their origin queue.
func (c *Client) declareRetryQueue(ch *amqp.Channel, routingKey string, delay time.Duration) error {
	name := RetryQueueName(routingKey, delay)
	args := amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    c.cfg.TaskExchange,
		"x-dead-letter-routing-key": routingKey,
	}

	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare retry queue %q: %w", name, err)
	}

	return nil
}

// Publish sends body to the task exchange with persistent delivery under
// the given routing key. On transient broker failure it reconnects and
// retries with exponential backoff and a little jitter, up to the
// configured attempt bound; after that it returns ErrPublishExhausted and
// the caller's outbox row stays unsent for the next poll.
func (c *Client) Publish(ctx context.Context, body []byte, routingKey string) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.PublishMaxRetries; attempt++ {
		err := c.tryPublish(ctx, body, routingKey)
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return err
		}
		lastErr = err

		if attempt == c.cfg.PublishMaxRetries {
			break
		}

		delay := publishBackoff(attempt)
		c.logger.Warn("publish failed, reconnecting",
			"attempt", attempt,
			"max_attempts", c.cfg.PublishMaxRetries,
			"retry_in", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		c.mu.Lock()
		c.dropConnectionLocked()
		c.mu.Unlock()
	}

	c.logger.Error("max publish retries reached",
		"routing_key", routingKey,
		"error", lastErr)
	return fmt.Errorf("%w: %v", ErrPublishExhausted, lastErr)
}

// tryPublish performs one publish attempt over the shared channel.
func (c *Client) tryPublish(ctx context.Context, body []byte, routingKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.configureLocked(ctx); err != nil {
		return err
	}

	return c.pubCh.PublishWithContext(ctx,
		c.cfg.TaskExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume sets the prefetch limit on the consume channel and registers a
// manual-acknowledgment consumer on the named queue. The caller owns
// ack/nack for every delivery on the returned channel.
func (c *Client) Consume(ctx context.Context, queue string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.configureLocked(ctx); err != nil {
		return nil, err
	}

	if err := c.consumeCh.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := c.consumeCh.ConsumeWithContext(ctx,
		queue,
		"",    // consumer tag
		false, // auto-ack: acknowledgment is the caller's decision
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %q: %w", queue, err)
	}

	c.logger.Info("consuming",
		"queue", queue,
		"prefetch", c.cfg.PrefetchCount)
	return deliveries, nil
}

// EscalateFailure is the single place redelivery policy is decided. It
// reads the attempts header (absent means zero): while the budget allows,
// the body is republished to the retry queue matching the delivery's
// routing key and the attempt's configured delay, with attempts
// incremented; once the budget is spent the message goes to the
// dead-letter exchange with a reason header. Either way the original
// delivery is acknowledged. The outcome is deterministic in
// (attempts, MaxAttempts).
func (c *Client) EscalateFailure(ctx context.Context, d amqp.Delivery) error {
	attempts := AttemptsFromHeaders(d.Headers)
	retry, next := DecideEscalation(attempts, c.cfg.MaxAttempts)

	if retry {
		if err := c.republishToRetry(ctx, d, next); err != nil {
			return err
		}
		if err := d.Ack(false); err != nil {
			return fmt.Errorf("failed to ack retried message: %w", err)
		}
		return nil
	}

	reason := fmt.Sprintf("exhausted_attempts=%d", attempts)
	if err := c.sendToDeadLetter(ctx, d, reason); err != nil {
		return err
	}
	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack dead-lettered message: %w", err)
	}
	return nil
}

// republishToRetry parks the message body on the retry queue for the
// delivery's routing key, carrying the incremented attempt count.
func (c *Client) republishToRetry(ctx context.Context, d amqp.Delivery, attempt int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.configureLocked(ctx); err != nil {
		return err
	}

	delay := RetryDelayFor(attempt, c.cfg.RetryDelays)
	queue := RetryQueueName(normalizeRoutingKey(d.RoutingKey), delay)

	headers := cloneHeaders(d.Headers)
	headers[HeaderAttempts] = attempt

	err := c.pubCh.PublishWithContext(ctx,
		"", // default exchange: routing key addresses the retry queue directly
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         d.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to republish to retry queue %q: %w", queue, err)
	}

	c.logger.Info("message parked for retry",
		"retry_queue", queue,
		"attempt", attempt,
		"delay", delay)
	return nil
}

// sendToDeadLetter publishes the message body to the dead-letter exchange
// with the reason recorded in its headers.
func (c *Client) sendToDeadLetter(ctx context.Context, d amqp.Delivery, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.configureLocked(ctx); err != nil {
		return err
	}

	headers := cloneHeaders(d.Headers)
	headers[HeaderDeathReason] = reason

	err := c.pubCh.PublishWithContext(ctx,
		c.cfg.DeadLetterExchange,
		"", // fan-out ignores the routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         d.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to dead-letter exchange: %w", err)
	}

	c.logger.Warn("message moved to dead-letter queue",
		"reason", reason,
		"routing_key", d.RoutingKey)
	return nil
}

// Close releases the channels and the connection. The client cannot be
// reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.pubCh = nil
		c.consumeCh = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to close broker connection: %w", err)
		}
	}
	return nil
}

// brokerAlive reports whether the connection and both channels are usable.
// A channel-level exception (a bad ack, a declare against a missing queue)
// closes only its channel while the connection stays open, so all three
// handles are checked; a dead consume channel must force a reconnect or
// every later Qos call fails.
func brokerAlive(conn *amqp.Connection, pubCh, consumeCh *amqp.Channel) bool {
	return conn != nil && !conn.IsClosed() &&
		pubCh != nil && !pubCh.IsClosed() &&
		consumeCh != nil && !consumeCh.IsClosed()
}

// dropConnectionLocked discards the current connection so the next
// configureLocked dials afresh. Callers hold c.mu.
func (c *Client) dropConnectionLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.pubCh = nil
	c.consumeCh = nil
}

// DecideEscalation returns whether a failed message with the given number
// of completed attempts gets another retry, and if so the attempt number
// the republished message carries.
func DecideEscalation(attempts int64, maxAttempts int) (retry bool, nextAttempt int64) {
	next := attempts + 1
	if next <= int64(maxAttempts) {
		return true, next
	}
	return false, 0
}

// RetryDelayFor returns the delay for the given attempt number (1-based)
// from the configured table; attempts beyond the table reuse the last
// entry.
func RetryDelayFor(attempt int64, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		// Config validation forbids an empty table; this is a safety net.
		return publishBackoffBase
	}

	idx := int(attempt) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

// RetryQueueName builds the name of the parking queue for one
// (routing key, delay) pair, e.g. "retry_high_5000".
func RetryQueueName(routingKey string, delay time.Duration) string {
	return fmt.Sprintf("retry_%s_%d", routingKey, delay.Milliseconds())
}

// AttemptsFromHeaders reads the attempts header, defaulting to zero when
// the header is absent or not numeric.
func AttemptsFromHeaders(headers amqp.Table) int64 {
	if headers == nil {
		return 0
	}

	switch v := headers[HeaderAttempts].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// normalizeRoutingKey coerces unknown routing keys to medium so escalation
// always finds a declared retry queue.
func normalizeRoutingKey(rk string) string {
	switch rk {
	case RoutingKeyHigh, RoutingKeyMedium, RoutingKeyLow:
		return rk
	default:
		return RoutingKeyMedium
	}
}

// cloneHeaders copies a header table so republishing never mutates the
// original delivery.
func cloneHeaders(headers amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range headers {
		out[k] = v
	}
	return out
}

// publishBackoff computes the exponential reconnect delay for the given
// attempt with up to 10% jitter, capped at half a second of jitter.
func publishBackoff(attempt int) time.Duration {
	delay := publishBackoffBase << (attempt - 1)

	jitterCap := delay / 10
	if jitterCap > 500*time.Millisecond {
		jitterCap = 500 * time.Millisecond
	}
	if jitterCap > 0 {
		delay += time.Duration(rand.Int63n(int64(jitterCap)))
	}
	return delay
}

// isPreconditionFailed reports whether the error is the broker rejecting a
// declaration because the entity exists with different arguments.
func isPreconditionFailed(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed
}

// isTransient reports whether a publish error is worth a reconnect-and-retry
// cycle. Connection and channel level failures are, as are dial failures
// from re-configuration; a closed client is not.
func isTransient(err error) bool {
	if errors.Is(err, ErrNotConnected) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, amqp.ErrClosed) {
		return true
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
