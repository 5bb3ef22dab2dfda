package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// DeadLetterExchange receives messages rejected by any consumer
const DeadLetterExchange = "stockin.dlx"

// RabbitMQ manages the connection to RabbitMQ
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *logger.Logger
	mu      sync.RWMutex
	closed  bool

	// reconnected is signalled after every successful reconnect
	reconnected []chan struct{}
}

// New creates a new RabbitMQ connection
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: log,
	}

	if err := rmq.connect(); err != nil {
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) connect() error {
	var err error

	r.conn, err = amqp.Dial(r.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := r.channel.Qos(r.config.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	r.logger.Info().Msg("connected to RabbitMQ")
	return nil
}

// Channel returns the current channel
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// NotifyReconnect returns a channel that receives a value after every
// successful reconnect. Signals are not queued beyond one.
func (r *RabbitMQ) NotifyReconnect() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{}, 1)
	r.reconnected = append(r.reconnected, ch)
	return ch
}

func (r *RabbitMQ) signalReconnect() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.reconnected {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Connection returns the current connection
func (r *RabbitMQ) Connection() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

// Close closes the RabbitMQ connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health returns the health status of RabbitMQ
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]string{
		"status": "up",
	}

	if r.conn == nil || r.conn.IsClosed() {
		status["status"] = "down"
		status["error"] = "connection closed"
	}

	return status
}

// DeclareExchange declares a topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.Channel().ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
}

// DeclareQueue declares a durable queue
func (r *RabbitMQ) DeclareQueue(name string) (amqp.Queue, error) {
	return r.Channel().QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": name,
		},
	)
}

// DeclareDeadLetterQueue declares the dead letter exchange and dlq.<queueName>
func (r *RabbitMQ) DeclareDeadLetterQueue(queueName string) error {
	ch := r.Channel()
	if err := ch.ExchangeDeclare(
		DeadLetterExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare DLX exchange: %w", err)
	}

	dlq := fmt.Sprintf("dlq.%s", queueName)
	_, err := ch.QueueDeclare(
		dlq,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(
		dlq,
		queueName,
		DeadLetterExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	return nil
}

// BindQueue binds a queue to an exchange with a routing key pattern
func (r *RabbitMQ) BindQueue(queueName, exchange, routingKey string) error {
	return r.Channel().QueueBind(
		queueName,
		routingKey,
		exchange,
		false,
		nil,
	)
}

// Watch reconnects whenever the broker closes the connection, until ctx ends
// or Close is called.
func (r *RabbitMQ) Watch(ctx context.Context) {
	for {
		closed := r.Connection().NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-ctx.Done():
			return
		case amqpErr := <-closed:
			r.mu.RLock()
			shutdown := r.closed
			r.mu.RUnlock()
			if shutdown {
				return
			}
			r.logger.Warn().Interface("reason", amqpErr).Msg("RabbitMQ connection lost")
			if err := r.Reconnect(ctx); err != nil {
				r.logger.Error().Err(err).Msg("giving up on RabbitMQ reconnection")
				return
			}
			r.signalReconnect()
		}
	}
}

// Reconnect redials with a doubling delay, starting at ReconnectDelay and
// capped at maxReconnectDelay, for at most MaxRetries attempts
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("connection is permanently closed")
	}

	delay := r.config.ReconnectDelay
	for attempt := 1; attempt <= r.config.MaxRetries; attempt++ {
		r.logger.Info().Int("attempt", attempt).Msg("attempting to reconnect to RabbitMQ")

		err := r.connect()
		if err == nil {
			return nil
		}
		r.logger.Warn().Err(err).Dur("retry_in", delay).Msg("reconnection attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextDelay(delay)
	}

	return fmt.Errorf("failed to reconnect after %d attempts", r.config.MaxRetries)
}

const maxReconnectDelay = time.Minute

func nextDelay(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	if d *= 2; d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}
