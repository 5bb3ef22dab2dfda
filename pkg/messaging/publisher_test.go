package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(func() publishChannel { return ch }, ExchangeStockInEvents, "stockin-service", logger.Nop())
	ctx := WithCorrelationID(context.Background(), "run-9")

	err := p.Publish(ctx, EventStockInCommitted, StockInCommittedEvent{StockInID: "s-1", RunID: "run-9", BatchIDs: []string{"b-1"}})
	require.NoError(t, err)

	assert.Equal(t, ExchangeStockInEvents, ch.exchange)
	assert.Equal(t, EventStockInCommitted, ch.key)
	assert.Equal(t, "run-9", ch.msg.CorrelationId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "stockin-service", ch.msg.AppId)

	var event Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &event))
	assert.Equal(t, ch.msg.MessageId, event.ID)
	var data StockInCommittedEvent
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, []string{"b-1"}, data.BatchIDs)
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(func() publishChannel { return ch }, ExchangeStockInEvents, "stockin-service", logger.Nop())

	err := p.Publish(context.Background(), EventStockInProgress, StockInProgressEvent{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), EventStockInProgress)
	assert.False(t, HasCorrelationID(context.Background()))
}
