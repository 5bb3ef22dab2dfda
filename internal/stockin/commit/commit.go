// Package commit makes a finalized set of draft batches durable.
//
// The Processor first tries the remote atomic endpoint (one transaction on
// the server side, see AtomicExecutor) and falls back to a local sequential
// commit on any failure. Both paths are idempotent by run ID: a submission
// whose batches already exist is answered from the store without writing.
package commit

import (
	"context"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
)

// Ledger is the transactional store the commit paths write to
type Ledger interface {
	// RunInTx runs fn in one transaction; ledger calls made with the ctx
	// passed to fn join it
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetRequest(ctx context.Context, id string) (*domain.StockInRequest, error)
	// LockRequest reads the request and holds its row lock until the
	// surrounding transaction ends
	LockRequest(ctx context.Context, id string) (*domain.StockInRequest, error)
	// TransitionStatus moves the request from one status to another and
	// reports false if it was not in from
	TransitionStatus(ctx context.Context, id string, from, to domain.Status) (bool, error)
	MarkRejected(ctx context.Context, id, reason string) error

	FindBatchIDsByRun(ctx context.Context, stockInID, runID string) ([]string, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)

	CreateBatch(ctx context.Context, batch *domain.BatchRecord) error
	CreateBox(ctx context.Context, box *domain.BoxRecord) error
	CreateBatchItem(ctx context.Context, item *domain.BatchItemRecord) error
	CreateInventory(ctx context.Context, inv *domain.InventoryRecord) error
}

// Notifier is told about status transitions and commit outcomes
type Notifier interface {
	StatusChanged(ctx context.Context, stockInID, runID string, from, to domain.Status, reason string)
	Committed(ctx context.Context, req domain.CommitRequest, result *domain.CommitResult)
	FellBack(ctx context.Context, req domain.CommitRequest, reason string)
	Progress(ctx context.Context, stockInID, runID string, p domain.Progress)
}

// Strategy is one way of executing a commit
type Strategy interface {
	Name() string
	Execute(ctx context.Context, req domain.CommitRequest, progress domain.ProgressFunc) (*domain.CommitResult, error)
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(context.Context, string, string, domain.Status, domain.Status, string) {}

func (nopNotifier) Committed(context.Context, domain.CommitRequest, *domain.CommitResult) {}

func (nopNotifier) FellBack(context.Context, domain.CommitRequest, string) {}

func (nopNotifier) Progress(context.Context, string, string, domain.Progress) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func replayResult(ids []string) *domain.CommitResult {
	return &domain.CommitResult{
		BatchIDs: ids,
		Strategy: domain.StrategyReplay,
		Replayed: true,
	}
}
