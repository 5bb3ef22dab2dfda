package events

import (
	"context"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

// EventPublisher is the part of messaging.Publisher used here
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// StockInEventPublisher publishes stock-in events. A nil publisher drops
// every event, so the service runs without a broker.
type StockInEventPublisher struct {
	publisher EventPublisher
	logger    *logger.Logger
}

// NewStockInEventPublisher creates a publisher on the stock-in exchange
func NewStockInEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockInEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockInEvents, "stockin-service", log)
	if err != nil {
		return nil, err
	}
	return NewStockInEventPublisherWith(publisher, log), nil
}

// NewStockInEventPublisherWith wraps an existing publisher
func NewStockInEventPublisherWith(publisher EventPublisher, log *logger.Logger) *StockInEventPublisher {
	return &StockInEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// StatusChanged publishes a status transition
func (p *StockInEventPublisher) StatusChanged(ctx context.Context, stockInID, runID string, from, to domain.Status, reason string) {
	if p == nil {
		return
	}
	data := messaging.StockInStatusChangedEvent{
		StockInID: stockInID,
		RunID:     runID,
		OldStatus: string(from),
		NewStatus: string(to),
		Reason:    reason,
		ChangedBy: httputil.GetUserID(ctx),
	}
	p.publish(ctx, messaging.EventStockInStatusChanged, stockInID, runID, data)
}

// Committed publishes the outcome of a successful commit
func (p *StockInEventPublisher) Committed(ctx context.Context, req domain.CommitRequest, result *domain.CommitResult) {
	if p == nil || result == nil {
		return
	}
	data := messaging.StockInCommittedEvent{
		StockInID: req.StockInID,
		RunID:     req.RunID,
		Strategy:  result.Strategy,
		BatchIDs:  result.BatchIDs,
		BoxCount:  req.BoxCount(),
		Replayed:  result.Replayed,
	}
	p.publish(ctx, messaging.EventStockInCommitted, req.StockInID, req.RunID, data)
}

// FellBack publishes that the local strategy took over from the remote one
func (p *StockInEventPublisher) FellBack(ctx context.Context, req domain.CommitRequest, reason string) {
	if p == nil {
		return
	}
	data := messaging.StockInFallbackEvent{
		StockInID: req.StockInID,
		RunID:     req.RunID,
		Reason:    reason,
	}
	p.publish(ctx, messaging.EventStockInFallback, req.StockInID, req.RunID, data)
}

// Progress publishes commit progress
func (p *StockInEventPublisher) Progress(ctx context.Context, stockInID, runID string, pr domain.Progress) {
	if p == nil {
		return
	}
	data := messaging.StockInProgressEvent{
		StockInID: stockInID,
		RunID:     runID,
		Current:   pr.Current,
		Total:     pr.Total,
	}
	p.publish(ctx, messaging.EventStockInProgress, stockInID, runID, data)
}

// publish correlates every event of a submission by its run ID
func (p *StockInEventPublisher) publish(ctx context.Context, eventType, stockInID, runID string, data interface{}) {
	if runID != "" && !messaging.HasCorrelationID(ctx) {
		ctx = messaging.WithCorrelationID(ctx, runID)
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("stock_in_id", stockInID).
			Msg("failed to publish stock-in event")
	}
}
