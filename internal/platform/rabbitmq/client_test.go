package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDecideEscalation(t *testing.T) {
	t.Parallel()

	maxAttempts := 5

	tests := []struct {
		name        string
		attempts    int64
		wantRetry   bool
		wantAttempt int64
	}{
		{
			name:        "first failure gets a retry",
			attempts:    0,
			wantRetry:   true,
			wantAttempt: 1,
		},
		{
			name:        "mid-budget failure gets a retry",
			attempts:    3,
			wantRetry:   true,
			wantAttempt: 4,
		},
		{
			name:        "last budgeted attempt still retries",
			attempts:    4,
			wantRetry:   true,
			wantAttempt: 5,
		},
		{
			name:      "budget spent goes to dead letter",
			attempts:  5,
			wantRetry: false,
		},
		{
			name:      "over budget goes to dead letter",
			attempts:  9,
			wantRetry: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			retry, next := DecideEscalation(tc.attempts, maxAttempts)
			assert.Equal(t, tc.wantRetry, retry)
			if tc.wantRetry {
				assert.Equal(t, tc.wantAttempt, next)
			}
		})
	}
}

func TestDecideEscalationIsDeterministic(t *testing.T) {
	t.Parallel()

	for i := 0; i < 10; i++ {
		retry, next := DecideEscalation(2, 5)
		assert.True(t, retry)
		assert.Equal(t, int64(3), next)
	}
}

func TestRetryDelayFor(t *testing.T) {
	t.Parallel()

	delays := []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}

	tests := []struct {
		name    string
		attempt int64
		want    time.Duration
	}{
		{name: "first attempt uses first entry", attempt: 1, want: 1 * time.Second},
		{name: "second attempt uses second entry", attempt: 2, want: 5 * time.Second},
		{name: "third attempt uses third entry", attempt: 3, want: 30 * time.Second},
		{name: "attempts beyond the table reuse the last entry", attempt: 7, want: 30 * time.Second},
		{name: "zero attempt clamps to first entry", attempt: 0, want: 1 * time.Second},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, RetryDelayFor(tc.attempt, delays))
		})
	}

	t.Run("empty table falls back to the base delay", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, publishBackoffBase, RetryDelayFor(1, nil))
	})
}

func TestRetryQueueName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "retry_high_5000", RetryQueueName(RoutingKeyHigh, 5*time.Second))
	assert.Equal(t, "retry_medium_1000", RetryQueueName(RoutingKeyMedium, 1*time.Second))
	assert.Equal(t, "retry_low_30000", RetryQueueName(RoutingKeyLow, 30*time.Second))
}

func TestAttemptsFromHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers amqp.Table
		want    int64
	}{
		{name: "nil headers", headers: nil, want: 0},
		{name: "missing header", headers: amqp.Table{}, want: 0},
		{name: "int64 value", headers: amqp.Table{HeaderAttempts: int64(3)}, want: 3},
		{name: "int32 value", headers: amqp.Table{HeaderAttempts: int32(2)}, want: 2},
		{name: "int value", headers: amqp.Table{HeaderAttempts: 4}, want: 4},
		{name: "non-numeric value", headers: amqp.Table{HeaderAttempts: "three"}, want: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, AttemptsFromHeaders(tc.headers))
		})
	}
}

func TestBrokerAlive(t *testing.T) {
	t.Parallel()

	// Zero-value handles report open; nil stands in for a handle the
	// broker closed and the client dropped.
	conn := &amqp.Connection{}
	ch := &amqp.Channel{}

	tests := []struct {
		name      string
		conn      *amqp.Connection
		pubCh     *amqp.Channel
		consumeCh *amqp.Channel
		want      bool
	}{
		{name: "connection and both channels open", conn: conn, pubCh: ch, consumeCh: ch, want: true},
		{name: "never connected", want: false},
		{name: "connection missing", pubCh: ch, consumeCh: ch, want: false},
		{name: "publish channel missing", conn: conn, consumeCh: ch, want: false},
		{name: "consume channel missing forces reconnect", conn: conn, pubCh: ch, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, brokerAlive(tc.conn, tc.pubCh, tc.consumeCh))
		})
	}
}

func TestNormalizeRoutingKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RoutingKeyHigh, normalizeRoutingKey("high"))
	assert.Equal(t, RoutingKeyMedium, normalizeRoutingKey("medium"))
	assert.Equal(t, RoutingKeyLow, normalizeRoutingKey("low"))
	assert.Equal(t, RoutingKeyMedium, normalizeRoutingKey(""))
	assert.Equal(t, RoutingKeyMedium, normalizeRoutingKey("urgent"))
}

func TestCloneHeadersDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	original := amqp.Table{HeaderAttempts: int64(1), "trace_id": "abc"}
	clone := cloneHeaders(original)
	clone[HeaderAttempts] = int64(2)

	assert.Equal(t, int64(1), original[HeaderAttempts])
	assert.Equal(t, int64(2), clone[HeaderAttempts])
	assert.Equal(t, "abc", clone["trace_id"])
}

func TestPublishBackoffBounds(t *testing.T) {
	t.Parallel()

	for attempt := 1; attempt <= 5; attempt++ {
		base := publishBackoffBase << (attempt - 1)
		for i := 0; i < 20; i++ {
			got := publishBackoff(attempt)
			assert.GreaterOrEqual(t, got, base)
			assert.LessOrEqual(t, got, base+500*time.Millisecond)
		}
	}
}
