// Package eventbus fans lifecycle events (execution started, step
// completed, execution terminal) out to an AMQP exchange, an optional
// enrichment beyond the engine's own responsibilities.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// EventType names a lifecycle event kind published to the bus.
type EventType string

const (
	EventExecutionStarted  EventType = "execution.started"
	EventStepCompleted     EventType = "step.completed"
	EventStepFailed        EventType = "step.failed"
	EventExecutionTerminal EventType = "execution.terminal"
)

// Event is the wire shape published for every lifecycle transition.
type Event struct {
	Type        EventType   `json:"type"`
	ExecutionID string      `json:"execution_id"`
	WorkflowID  string      `json:"workflow_id"`
	StepID      string      `json:"step_id,omitempty"`
	Status      string      `json:"status"`
	Detail      interface{} `json:"detail,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// Bus publishes Events. A nil *Bus is a valid no-op publisher (eventbus is
// optional per deployment).
type Bus struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// Connect dials url and declares a topic exchange named exchange.
func Connect(url, exchange string, logger *zap.Logger) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	return &Bus{conn: conn, channel: channel, exchange: exchange, logger: logger.With(zap.String("component", "eventbus"))}, nil
}

// Close releases the underlying channel and connection.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	if err := b.channel.Close(); err != nil {
		return fmt.Errorf("closing amqp channel: %w", err)
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("closing amqp connection: %w", err)
	}
	return nil
}

// Publish fans out evt, using evt.Type as the routing key. Publish is
// best-effort: failures are logged, never returned to the scheduler, since
// lifecycle events must never block execution progress.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	body, err := json.Marshal(evt)
	if err != nil {
		b.logger.Warn("failed to marshal lifecycle event", zap.Error(err))
		return
	}

	err = b.channel.Publish(b.exchange, string(evt.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   evt.OccurredAt,
	})
	if err != nil {
		b.logger.Warn("failed to publish lifecycle event", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}
