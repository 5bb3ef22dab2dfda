package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/internal/stockin/status"
	"github.com/wareflow/wareflow-backend/pkg/cache"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

func newTestConsumer() (*StatusEventConsumer, *status.Board) {
	board := status.NewBoard(cache.NewMemoryClient(), 0)
	return &StatusEventConsumer{board: board, logger: logger.Nop()}, board
}

func event(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	e, err := messaging.NewEvent(eventType, "stockin-service", "", data)
	require.NoError(t, err)
	return e
}

func TestStatusEventConsumer_FeedsBoard(t *testing.T) {
	ctx := context.Background()
	c, board := newTestConsumer()

	require.NoError(t, c.handleStatusChanged(ctx, event(t, messaging.EventStockInStatusChanged, messaging.StockInStatusChangedEvent{
		StockInID: "si-1", RunID: "run-1", OldStatus: "pending", NewStatus: "processing",
	})))
	require.NoError(t, c.handleFallback(ctx, event(t, messaging.EventStockInFallback, messaging.StockInFallbackEvent{
		StockInID: "si-1", RunID: "run-1", Reason: "remote down",
	})))
	require.NoError(t, c.handleProgress(ctx, event(t, messaging.EventStockInProgress, messaging.StockInProgressEvent{
		StockInID: "si-1", RunID: "run-1", Current: 1, Total: 2,
	})))
	require.NoError(t, c.handleCommitted(ctx, event(t, messaging.EventStockInCommitted, messaging.StockInCommittedEvent{
		StockInID: "si-1", RunID: "run-1", Strategy: "local", BatchIDs: []string{"b1", "b2"},
	})))

	snap, err := board.Get(ctx, "si-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.True(t, snap.FellBack)
	assert.Equal(t, "local", snap.Strategy)
	assert.Equal(t, 2, snap.Progress.Current)
}

func TestStatusEventConsumer_RejectsMalformedPayload(t *testing.T) {
	c, _ := newTestConsumer()
	bad := &messaging.Event{Type: messaging.EventStockInProgress, Data: []byte(`{"current":"x"}`)}

	assert.Error(t, c.handleProgress(context.Background(), bad))
}
