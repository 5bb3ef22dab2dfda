package commit

import (
	"context"
	"net/http"
	"time"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// AtomicExecutor serves the atomic commit endpoint: lock the request, check
// the run, write everything and complete the request in one transaction.
// Any failure rolls back all of it, leaving the request pending.
type AtomicExecutor struct {
	ledger   Ledger
	notifier Notifier
	logger   *logger.Logger
}

// NewAtomicExecutor creates the server side of the remote strategy
func NewAtomicExecutor(ledger Ledger, notifier Notifier, log *logger.Logger) *AtomicExecutor {
	return &AtomicExecutor{
		ledger:   ledger,
		notifier: orNop(notifier),
		logger:   log.WithComponent("commit.atomic"),
	}
}

// Execute commits req or replays the batches of an earlier commit of the same run
func (e *AtomicExecutor) Execute(ctx context.Context, req domain.CommitRequest) (*domain.CommitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := e.logger.WithStockIn(req.StockInID, req.RunID)

	var result *domain.CommitResult
	err := e.ledger.RunInTx(ctx, func(ctx context.Context) error {
		current, err := e.ledger.LockRequest(ctx, req.StockInID)
		if err != nil {
			return err
		}

		ids, err := e.ledger.FindBatchIDsByRun(ctx, req.StockInID, req.RunID)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			result = replayResult(ids)
			return nil
		}

		if current.Status != domain.StatusPending {
			return errors.ConcurrencyConflict("stock-in request is " + string(current.Status) + ", expected pending")
		}
		if err := matchRequest(req, current); err != nil {
			return err
		}
		if ok, err := e.ledger.TransitionStatus(ctx, req.StockInID, domain.StatusPending, domain.StatusProcessing); err != nil || !ok {
			if err == nil {
				err = errors.ConcurrencyConflict("stock-in request changed while locked")
			}
			return err
		}

		written, err := writeBatches(ctx, e.ledger, req, time.Now().UTC(), nil)
		if err != nil {
			return err
		}

		ok, err := e.ledger.TransitionStatus(ctx, req.StockInID, domain.StatusProcessing, domain.StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ConcurrencyConflict("stock-in request left the processing state during commit")
		}

		result = &domain.CommitResult{BatchIDs: written, Strategy: domain.StrategyRemote}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("atomic commit rolled back")
		return nil, toAppError(err)
	}

	if result.Replayed {
		log.Info().Int("batches", len(result.BatchIDs)).Msg("atomic commit replayed")
	} else {
		log.Info().Int("batches", len(result.BatchIDs)).Int("boxes", req.BoxCount()).Msg("atomic commit completed")
		e.notifier.StatusChanged(ctx, req.StockInID, req.RunID, domain.StatusPending, domain.StatusCompleted, "")
	}
	return result, nil
}

func toAppError(err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if mapped := database.MapPQError(err); mapped != nil {
		mapped.Cause = err
		return mapped
	}
	return errors.Wrap(err, "INTERNAL_ERROR", "atomic commit failed", http.StatusInternalServerError)
}
