package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

func eventBody(t *testing.T, eventType, correlationID string, data interface{}) []byte {
	t.Helper()
	event, err := NewEvent(eventType, "test", correlationID, data)
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestConsumer_Handle(t *testing.T) {
	ctx := context.Background()
	body := eventBody(t, EventStockInProgress, "run-1", StockInProgressEvent{StockInID: "s-1", RunID: "run-1", Current: 1, Total: 2})

	t.Run("handler success acks", func(t *testing.T) {
		c := newConsumer(nil, "q", 3, logger.Nop())
		var got StockInProgressEvent
		var correlation string
		c.RegisterHandler(EventStockInProgress, func(ctx context.Context, e *Event) error {
			correlation = getCorrelationID(ctx)
			return e.UnmarshalData(&got)
		})

		assert.Equal(t, dispositionAck, c.handle(ctx, body, 0))
		assert.Equal(t, 1, got.Current)
		assert.Equal(t, "run-1", correlation)
	})

	t.Run("unknown type acks", func(t *testing.T) {
		c := newConsumer(nil, "q", 3, logger.Nop())
		assert.Equal(t, dispositionAck, c.handle(ctx, body, 0))
	})

	t.Run("malformed body is dead-lettered", func(t *testing.T) {
		c := newConsumer(nil, "q", 3, logger.Nop())
		assert.Equal(t, dispositionDeadLetter, c.handle(ctx, []byte("{"), 0))
	})

	t.Run("failure retries until the budget runs out", func(t *testing.T) {
		c := newConsumer(nil, "q", 2, logger.Nop())
		c.RegisterHandler(EventStockInProgress, func(context.Context, *Event) error {
			return errors.New("board unavailable")
		})

		assert.Equal(t, dispositionRetry, c.handle(ctx, body, 0))
		assert.Equal(t, dispositionRetry, c.handle(ctx, body, 1))
		assert.Equal(t, dispositionDeadLetter, c.handle(ctx, body, 2))
	})
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "garbage"}))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, retryCount(amqp.Table{retryHeader: int64(3)}))
}

type countingAcker struct {
	acks int32
}

func (a *countingAcker) Ack(uint64, bool) error {
	atomic.AddInt32(&a.acks, 1)
	return nil
}

func (a *countingAcker) Nack(uint64, bool, bool) error { return nil }

func (a *countingAcker) Reject(uint64, bool) error { return nil }

func TestConsumer_ResumesAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan int, 2)
	c := newConsumer(nil, "q", 3, logger.Nop())
	c.RegisterHandler(EventStockInProgress, func(_ context.Context, e *Event) error {
		var data StockInProgressEvent
		if err := e.UnmarshalData(&data); err != nil {
			return err
		}
		handled <- data.Current
		return nil
	})

	acker := &countingAcker{}
	delivery := func(current int) amqp.Delivery {
		return amqp.Delivery{
			Acknowledger: acker,
			Body:         eventBody(t, EventStockInProgress, "run-1", StockInProgressEvent{StockInID: "s-1", RunID: "run-1", Current: current, Total: 2}),
		}
	}

	first := make(chan amqp.Delivery, 1)
	second := make(chan amqp.Delivery, 1)
	var consumed int32
	c.consume = func() (<-chan amqp.Delivery, error) {
		atomic.AddInt32(&consumed, 1)
		return second, nil
	}
	reconnected := make(chan struct{}, 1)

	done := make(chan struct{})
	go func() {
		c.run(ctx, first, reconnected)
		close(done)
	}()

	first <- delivery(1)
	assert.Equal(t, 1, waitFor(t, handled))
	close(first)

	reconnected <- struct{}{}
	second <- delivery(2)
	assert.Equal(t, 2, waitFor(t, handled))
	assert.Equal(t, int32(1), atomic.LoadInt32(&consumed))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&acker.acks) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

func TestConsumer_StopsWhileWaitingForReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(nil, "q", 3, logger.Nop())
	c.consume = func() (<-chan amqp.Delivery, error) {
		t.Error("consume must not be called without a reconnect")
		return nil, errors.New("unexpected")
	}

	msgs := make(chan amqp.Delivery)
	close(msgs)
	done := make(chan struct{})
	go func() {
		c.run(ctx, msgs, make(chan struct{}))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

func waitFor(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the handler")
		return 0
	}
}
