package events

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
	"github.com/wareflow/wareflow-backend/pkg/testutil"
)

func TestStockInEventPublisher_StatusChanged(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := NewStockInEventPublisherWith(mock, logger.Nop())
	ctx := httputil.WithUser(context.Background(), "user-1")

	p.StatusChanged(ctx, "si-1", "run-1", domain.StatusPending, domain.StatusProcessing, "")

	events := mock.EventsOfType(messaging.EventStockInStatusChanged)
	require.Len(t, events, 1)
	data := events[0].(messaging.StockInStatusChangedEvent)
	assert.Equal(t, "pending", data.OldStatus)
	assert.Equal(t, "processing", data.NewStatus)
	assert.Equal(t, "user-1", data.ChangedBy)
}

func TestStockInEventPublisher_Committed(t *testing.T) {
	mock := testutil.NewMockPublisher()
	p := NewStockInEventPublisherWith(mock, logger.Nop())
	req := domain.CommitRequest{
		StockInID: "si-1",
		RunID:     "run-1",
		Batches: []domain.CommitBatch{
			{Boxes: []domain.CommitBox{{Barcode: "A"}, {Barcode: "B"}}},
			{Boxes: []domain.CommitBox{{Barcode: "C"}}},
		},
	}

	p.Committed(context.Background(), req, &domain.CommitResult{BatchIDs: []string{"b1", "b2"}, Strategy: domain.StrategyLocal})
	p.FellBack(context.Background(), req, "remote down")
	p.Progress(context.Background(), "si-1", "run-1", domain.Progress{Current: 1, Total: 2})

	committed := mock.EventsOfType(messaging.EventStockInCommitted)
	require.Len(t, committed, 1)
	data := committed[0].(messaging.StockInCommittedEvent)
	assert.Equal(t, 3, data.BoxCount)
	assert.Equal(t, "local", data.Strategy)
	mock.AssertEventPublished(t, messaging.EventStockInFallback)
	mock.AssertEventPublished(t, messaging.EventStockInProgress)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, interface{}) error {
	return stderrors.New("channel closed")
}

func TestStockInEventPublisher_FailuresAreSwallowed(t *testing.T) {
	p := NewStockInEventPublisherWith(failingPublisher{}, logger.Nop())

	assert.NotPanics(t, func() {
		p.FellBack(context.Background(), domain.CommitRequest{StockInID: "si-1"}, "remote down")
	})
}

func TestStockInEventPublisher_NilIsANoop(t *testing.T) {
	var p *StockInEventPublisher

	assert.NotPanics(t, func() {
		p.StatusChanged(context.Background(), "si-1", "run-1", domain.StatusPending, domain.StatusProcessing, "")
		p.Committed(context.Background(), domain.CommitRequest{}, &domain.CommitResult{})
		p.FellBack(context.Background(), domain.CommitRequest{}, "")
		p.Progress(context.Background(), "si-1", "run-1", domain.Progress{})
	})
}
