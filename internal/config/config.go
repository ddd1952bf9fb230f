package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Broker   BrokerConfig   `mapstructure:"broker"   validate:"required"`
	Outbox   OutboxConfig   `mapstructure:"outbox"   validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// BrokerConfig contains the RabbitMQ connection settings and the
// retry/dead-letter policy shared by the publisher and the workers.
type BrokerConfig struct {
	URL string `mapstructure:"url" validate:"required"`

	// TaskExchange is the direct exchange tasks are routed through.
	TaskExchange string `mapstructure:"task_exchange" validate:"required"`

	// DeadLetterExchange is the fan-out exchange exhausted messages land on.
	DeadLetterExchange string `mapstructure:"dead_letter_exchange" validate:"required"`

	// DeadLetterQueue is the durable queue bound to the dead-letter exchange.
	DeadLetterQueue string `mapstructure:"dead_letter_queue" validate:"required"`

	// MaxAttempts bounds handler retries before a message is dead-lettered.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// RetryDelays is the per-attempt redelivery delay table: attempt n uses
	// the n-th entry, attempts beyond the table reuse the last entry.
	// Validated non-empty at startup so the escalation policy is always
	// explicit.
	RetryDelays []time.Duration `mapstructure:"retry_delays" validate:"required,min=1,dive,gt=0"`

	// PublishMaxRetries bounds reconnect-and-retry cycles for one publish.
	PublishMaxRetries int `mapstructure:"publish_max_retries" validate:"required,gt=0"`

	// PrefetchCount limits unacknowledged in-flight messages per consumer.
	PrefetchCount int `mapstructure:"prefetch_count" validate:"required,gt=0"`
}

// OutboxConfig contains the outbox publisher loop settings.
type OutboxConfig struct {
	// PollInterval is the fixed sleep between publish cycles.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`

	// BatchLimit caps rows selected per publish cycle.
	BatchLimit int `mapstructure:"batch_limit" validate:"required,gt=0"`
}

// WorkerConfig contains the consume-loop settings.
type WorkerConfig struct {
	// RestartBackoff is the fixed wait before reopening a failed consume loop.
	RestartBackoff time.Duration `mapstructure:"restart_backoff" validate:"required,gt=0"`
}
