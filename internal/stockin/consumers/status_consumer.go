package consumers

import (
	"context"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/internal/stockin/status"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

// StatusEventConsumer feeds the status board from stock-in events
type StatusEventConsumer struct {
	consumer *messaging.Consumer
	board    *status.Board
	logger   *logger.Logger
}

// NewStatusEventConsumer creates a new status event consumer
func NewStatusEventConsumer(rmq *messaging.RabbitMQ, board *status.Board, log *logger.Logger) (*StatusEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stockin-service.status-board", log)
	if err != nil {
		return nil, err
	}

	// Subscribe to stock-in events
	if err := consumer.Subscribe(messaging.ExchangeStockInEvents, "stockin.#"); err != nil {
		return nil, err
	}

	c := &StatusEventConsumer{
		consumer: consumer,
		board:    board,
		logger:   log,
	}

	// Register handlers
	consumer.RegisterHandler(messaging.EventStockInStatusChanged, c.handleStatusChanged)
	consumer.RegisterHandler(messaging.EventStockInProgress, c.handleProgress)
	consumer.RegisterHandler(messaging.EventStockInFallback, c.handleFallback)
	consumer.RegisterHandler(messaging.EventStockInCommitted, c.handleCommitted)

	return c, nil
}

// Start starts consuming messages
func (c *StatusEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *StatusEventConsumer) handleStatusChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.StockInStatusChangedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("stock_in_id", data.StockInID).
		Str("old_status", data.OldStatus).
		Str("new_status", data.NewStatus).
		Msg("received stock-in status changed event")

	return c.board.RecordStatus(ctx, data.StockInID, data.RunID, domain.Status(data.NewStatus), data.Reason)
}

func (c *StatusEventConsumer) handleProgress(ctx context.Context, event *messaging.Event) error {
	var data messaging.StockInProgressEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	return c.board.RecordProgress(ctx, data.StockInID, data.RunID, domain.Progress{Current: data.Current, Total: data.Total})
}

func (c *StatusEventConsumer) handleFallback(ctx context.Context, event *messaging.Event) error {
	var data messaging.StockInFallbackEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Warn().
		Str("stock_in_id", data.StockInID).
		Str("reason", data.Reason).
		Msg("received stock-in fallback event")

	return c.board.RecordFallback(ctx, data.StockInID, data.RunID, data.Reason)
}

func (c *StatusEventConsumer) handleCommitted(ctx context.Context, event *messaging.Event) error {
	var data messaging.StockInCommittedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("stock_in_id", data.StockInID).
		Str("strategy", data.Strategy).
		Int("batches", len(data.BatchIDs)).
		Bool("replayed", data.Replayed).
		Msg("received stock-in committed event")

	return c.board.RecordCommitted(ctx, data.StockInID, data.RunID, data.Strategy, data.BatchIDs)
}
