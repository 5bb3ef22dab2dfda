package commit

import (
	"context"
	"sync"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// Processor runs commits: replay check, remote strategy, local fallback.
// At most one commit per stock-in request runs in this process at a time;
// across processes the pending -> processing transition decides.
type Processor struct {
	ledger   Ledger
	remote   Strategy
	local    Strategy
	notifier Notifier
	logger   *logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewProcessor creates a processor. remote may be nil to always commit locally.
func NewProcessor(ledger Ledger, remote, local Strategy, notifier Notifier, log *logger.Logger) *Processor {
	return &Processor{
		ledger:   ledger,
		remote:   remote,
		local:    local,
		notifier: orNop(notifier),
		logger:   log.WithComponent("commit.processor"),
		inflight: make(map[string]struct{}),
	}
}

// Commit makes req durable and returns the batch ids. observer, if set,
// receives monotonically increasing progress. Once started the commit is
// not cancelled by ctx; it runs to a terminal status.
func (p *Processor) Commit(ctx context.Context, req domain.CommitRequest, observer domain.ProgressFunc) (*domain.CommitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !p.acquire(req.StockInID) {
		return nil, errors.ConcurrencyConflict("a commit is already in flight for this stock-in request")
	}
	defer p.release(req.StockInID)

	ctx = context.WithoutCancel(ctx)
	log := p.logger.WithStockIn(req.StockInID, req.RunID)

	ids, err := p.ledger.FindBatchIDsByRun(ctx, req.StockInID, req.RunID)
	if err != nil {
		return nil, errors.LocalCommitFailure("failed to look up earlier commits of this run", err)
	}
	if len(ids) > 0 {
		log.Info().Int("batches", len(ids)).Msg("run already committed, replaying")
		return p.done(ctx, req, replayResult(ids)), nil
	}

	progress := p.progress(ctx, req, observer)

	if p.remote != nil {
		result, err := p.remote.Execute(ctx, req, progress)
		if err == nil {
			return p.done(ctx, req, result), nil
		}
		log.Warn().Err(err).Msg("remote commit failed, falling back to local commit")
		p.notifier.FellBack(ctx, req, err.Error())
	}

	result, err := p.local.Execute(ctx, req, progress)
	if err != nil {
		log.Error().Err(err).Str("code", errors.Code(err)).Msg("local commit failed")
		return nil, err
	}
	return p.done(ctx, req, result), nil
}

func (p *Processor) done(ctx context.Context, req domain.CommitRequest, result *domain.CommitResult) *domain.CommitResult {
	p.notifier.Committed(ctx, req, result)
	return result
}

// progress forwards only strictly increasing progress to the observer and notifier
func (p *Processor) progress(ctx context.Context, req domain.CommitRequest, observer domain.ProgressFunc) domain.ProgressFunc {
	var mu sync.Mutex
	last := -1
	return func(pr domain.Progress) {
		mu.Lock()
		if pr.Current <= last {
			mu.Unlock()
			return
		}
		last = pr.Current
		mu.Unlock()

		if observer != nil {
			observer(pr)
		}
		p.notifier.Progress(ctx, req.StockInID, req.RunID, pr)
	}
}

func (p *Processor) acquire(stockInID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[stockInID]; busy {
		return false
	}
	p.inflight[stockInID] = struct{}{}
	return true
}

func (p *Processor) release(stockInID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, stockInID)
}
