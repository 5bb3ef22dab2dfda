package commit

import (
	"context"
	"time"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// LocalStrategy commits directly against the ledger:
//
//  1. pending -> processing, on its own. This is the single-flight guard;
//     whoever loses it gets ConcurrencyConflict.
//  2. all records, then processing -> completed, in one transaction.
//  3. on failure the transaction rolls back and the request is moved to
//     rejected with the reason. That last step is best-effort.
type LocalStrategy struct {
	ledger   Ledger
	notifier Notifier
	logger   *logger.Logger
}

// NewLocalStrategy creates the local sequential strategy
func NewLocalStrategy(ledger Ledger, notifier Notifier, log *logger.Logger) *LocalStrategy {
	return &LocalStrategy{
		ledger:   ledger,
		notifier: orNop(notifier),
		logger:   log.WithComponent("commit.local"),
	}
}

// Name implements Strategy
func (l *LocalStrategy) Name() string {
	return domain.StrategyLocal
}

// Execute implements Strategy
func (l *LocalStrategy) Execute(ctx context.Context, req domain.CommitRequest, progress domain.ProgressFunc) (*domain.CommitResult, error) {
	log := l.logger.WithStockIn(req.StockInID, req.RunID)

	claimed, err := l.ledger.TransitionStatus(ctx, req.StockInID, domain.StatusPending, domain.StatusProcessing)
	if err != nil {
		return nil, errors.LocalCommitFailure("failed to claim stock-in request", err)
	}
	if !claimed {
		// Someone else owns the request. If that someone was this same
		// submission (e.g. a remote attempt that timed out but landed),
		// answer with its batches.
		ids, err := l.ledger.FindBatchIDsByRun(ctx, req.StockInID, req.RunID)
		if err == nil && len(ids) > 0 {
			log.Info().Int("batches", len(ids)).Msg("submission already committed, replaying")
			return replayResult(ids), nil
		}
		return nil, errors.ConcurrencyConflict("stock-in request is not pending; another commit owns it")
	}
	if err := l.verify(ctx, req); err != nil {
		l.release(ctx, req)
		return nil, err
	}
	l.notifier.StatusChanged(ctx, req.StockInID, req.RunID, domain.StatusPending, domain.StatusProcessing, "")

	if progress != nil {
		progress(domain.Progress{Current: 0, Total: len(req.Batches)})
	}

	var ids []string
	err = l.ledger.RunInTx(ctx, func(ctx context.Context) error {
		written, err := writeBatches(ctx, l.ledger, req, time.Now().UTC(), progress)
		if err != nil {
			return err
		}
		ok, err := l.ledger.TransitionStatus(ctx, req.StockInID, domain.StatusProcessing, domain.StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ConcurrencyConflict("stock-in request left the processing state during commit")
		}
		ids = written
		return nil
	})
	if err != nil {
		l.reject(ctx, req, err)
		return nil, errors.LocalCommitFailure("local commit failed, stock-in request rejected", err)
	}

	l.notifier.StatusChanged(ctx, req.StockInID, req.RunID, domain.StatusProcessing, domain.StatusCompleted, "")
	log.Info().Int("batches", len(ids)).Int("boxes", req.BoxCount()).Msg("stock-in committed locally")

	return &domain.CommitResult{
		BatchIDs: ids,
		Strategy: domain.StrategyLocal,
	}, nil
}

// verify checks the payload against the claimed request
func (l *LocalStrategy) verify(ctx context.Context, req domain.CommitRequest) error {
	current, err := l.ledger.GetRequest(ctx, req.StockInID)
	if err != nil {
		return errors.LocalCommitFailure("failed to load stock-in request", err)
	}
	return matchRequest(req, current)
}

// release hands a claimed request back to pending when nothing was written
func (l *LocalStrategy) release(ctx context.Context, req domain.CommitRequest) {
	ok, err := l.ledger.TransitionStatus(context.WithoutCancel(ctx), req.StockInID, domain.StatusProcessing, domain.StatusPending)
	if err != nil || !ok {
		l.logger.WithStockIn(req.StockInID, req.RunID).Error().Err(err).Msg("failed to release stock-in request")
	}
}

// reject moves the request to rejected with the failure as reason. A failure
// here is logged and not retried.
func (l *LocalStrategy) reject(ctx context.Context, req domain.CommitRequest, cause error) {
	log := l.logger.WithStockIn(req.StockInID, req.RunID)
	reason := cause.Error()

	if err := l.ledger.MarkRejected(context.WithoutCancel(ctx), req.StockInID, reason); err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("failed to mark stock-in request rejected")
		return
	}

	log.Warn().Str("reason", reason).Msg("stock-in request rejected after local commit failure")
	l.notifier.StatusChanged(ctx, req.StockInID, req.RunID, domain.StatusProcessing, domain.StatusRejected, reason)
}
