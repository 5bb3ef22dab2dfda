package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// disposition is what happens to a delivery after its handler ran
type disposition int

const (
	dispositionAck disposition = iota
	dispositionRetry
	dispositionDeadLetter
)

// retryHeader counts how often a delivery was handed back for another try
const retryHeader = "x-retry-count"

// defaultMaxRetries applies when the connection config does not set one
const defaultMaxRetries = 3

// Consumer handles consuming events from RabbitMQ. Handlers run one
// delivery at a time in arrival order.
type Consumer struct {
	rmq           *RabbitMQ
	queueName     string
	handlers      map[string]MessageHandler
	subscriptions []subscription
	maxRetries    int
	consume       func() (<-chan amqp.Delivery, error)
	logger        *logger.Logger
}

type subscription struct {
	exchange   string
	routingKey string
}

// NewConsumer creates a new consumer for the given queue. Deliveries that
// keep failing are dead-lettered to dlq.<queueName>.
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if err := rmq.DeclareDeadLetterQueue(queueName); err != nil {
		return nil, err
	}
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	maxRetries := defaultMaxRetries
	if rmq.config != nil && rmq.config.MaxRetries > 0 {
		maxRetries = rmq.config.MaxRetries
	}

	return newConsumer(rmq, queueName, maxRetries, log), nil
}

func newConsumer(rmq *RabbitMQ, queueName string, maxRetries int, log *logger.Logger) *Consumer {
	c := &Consumer{
		rmq:        rmq,
		queueName:  queueName,
		handlers:   make(map[string]MessageHandler),
		maxRetries: maxRetries,
		logger:     log.WithComponent("messaging.consumer"),
	}
	c.consume = c.consumeQueue
	return c
}

// Subscribe binds the queue to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	c.subscriptions = append(c.subscriptions, subscription{exchange: exchange, routingKey: routingKeyPattern})

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start starts consuming messages from the queue until ctx is done. When
// the connection is re-established the consumer restores its queue and
// bindings and resumes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")
	go c.run(ctx, msgs, c.rmq.NotifyReconnect())
	return nil
}

func (c *Consumer) run(ctx context.Context, msgs <-chan amqp.Delivery, reconnected <-chan struct{}) {
	for {
		if !c.drain(ctx, msgs) {
			c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
			return
		}
		c.logger.Warn().Str("queue", c.queueName).Msg("delivery channel closed, waiting for reconnect")

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case <-reconnected:
			}

			var err error
			if msgs, err = c.consume(); err != nil {
				c.logger.Error().Err(err).Str("queue", c.queueName).Msg("failed to resume consuming")
				continue
			}
			c.logger.Info().Str("queue", c.queueName).Msg("consumer resumed")
			break
		}
	}
}

// drain handles deliveries until msgs closes (true) or ctx ends (false)
func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-msgs:
			if !ok {
				return true
			}
			c.settle(ctx, msg, c.handle(ctx, msg.Body, retryCount(msg.Headers)))
		}
	}
}

// consumeQueue declares the queue and its bindings, which are lost with
// the broker if it restarted, and opens a delivery stream
func (c *Consumer) consumeQueue() (<-chan amqp.Delivery, error) {
	if err := c.rmq.DeclareDeadLetterQueue(c.queueName); err != nil {
		return nil, err
	}
	if _, err := c.rmq.DeclareQueue(c.queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", c.queueName, err)
	}
	for _, sub := range c.subscriptions {
		if err := c.rmq.DeclareExchange(sub.exchange); err != nil {
			return nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
		if err := c.rmq.BindQueue(c.queueName, sub.exchange, sub.routingKey); err != nil {
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	return c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
}

func (c *Consumer) settle(ctx context.Context, msg amqp.Delivery, d disposition) {
	var err error
	switch d {
	case dispositionAck:
		err = msg.Ack(false)
	case dispositionRetry:
		// A plain requeue would not count attempts, so the delivery is
		// republished to the queue with the counter bumped
		if err = c.republish(ctx, msg); err == nil {
			err = msg.Ack(false)
		} else {
			c.logger.Warn().Err(err).Msg("failed to republish for retry, requeueing")
			err = msg.Nack(false, true)
		}
	default:
		err = msg.Reject(false)
	}
	if err != nil {
		c.logger.Warn().Err(err).Uint64("delivery_tag", msg.DeliveryTag).Msg("failed to settle delivery")
	}
}

func (c *Consumer) republish(ctx context.Context, msg amqp.Delivery) error {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(retryCount(msg.Headers) + 1)

	return c.rmq.Channel().PublishWithContext(ctx, "", c.queueName, false, false, amqp.Publishing{
		Headers:       headers,
		ContentType:   msg.ContentType,
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.MessageId,
		Type:          msg.Type,
		AppId:         msg.AppId,
		Timestamp:     msg.Timestamp,
		CorrelationId: msg.CorrelationId,
		Body:          msg.Body,
	})
}

// handle runs the registered handler and decides the fate of the delivery
func (c *Consumer) handle(ctx context.Context, body []byte, retries int) disposition {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error().Err(err).Str("queue", c.queueName).Msg("failed to unmarshal event")
		return dispositionDeadLetter
	}

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		return dispositionAck
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)
	log := c.logger.With().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Logger()

	if err := handler(ctx, &event); err != nil {
		if retries >= c.maxRetries {
			log.Warn().Err(err).Int("retry_count", retries).Msg("max retries exceeded, sending to DLQ")
			return dispositionDeadLetter
		}
		log.Error().Err(err).Int("retry_count", retries).Msg("failed to process event")
		return dispositionRetry
	}

	log.Debug().Msg("event processed")
	return dispositionAck
}

// retryCount reads the retry counter set by republish
func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
