package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// publishChannel is the part of *amqp.Channel the publisher needs
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher handles publishing events to RabbitMQ. The event type is the
// routing key.
type Publisher struct {
	channel  func() publishChannel
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher creates a new publisher for the given exchange
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	// Resolved per publish so a reconnect is picked up
	channel := func() publishChannel { return rmq.Channel() }
	return newPublisher(channel, exchange, source, log), nil
}

func newPublisher(channel func() publishChannel, exchange, source string, log *logger.Logger) *Publisher {
	return &Publisher{
		channel:  channel,
		exchange: exchange,
		source:   source,
		logger:   log.WithComponent("messaging.publisher"),
	}
}

// Publish publishes an event to the exchange. The correlation ID is taken
// from ctx, see WithCorrelationID.
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	correlationID := getCorrelationID(ctx)

	event, err := NewEvent(eventType, p.source, correlationID, data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel().PublishWithContext(ctx,
		p.exchange, // exchange
		eventType,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID,
			Type:          eventType,
			AppId:         p.source,
			Timestamp:     event.Timestamp,
			CorrelationId: correlationID,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("event_id", event.ID).
		Str("correlation_id", correlationID).
		Msg("event published")

	return nil
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// getCorrelationID retrieves the correlation ID from context
func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// HasCorrelationID reports whether ctx already carries a correlation ID
func HasCorrelationID(ctx context.Context) bool {
	return getCorrelationID(ctx) != ""
}
