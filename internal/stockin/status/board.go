// Package status keeps the latest known state of each stock-in request for
// polling clients. It is fed from stock-in events and stored in the shared
// cache so every replica answers the same.
package status

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/cache"
)

const keyPrefix = "stockin:status:"

// Snapshot is what a polling client sees for one stock-in request
type Snapshot struct {
	StockInID string           `json:"stock_in_id"`
	RunID     string           `json:"run_id,omitempty"`
	Status    domain.Status    `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	Progress  *domain.Progress `json:"progress,omitempty"`
	Strategy  string           `json:"strategy,omitempty"`
	BatchIDs  []string         `json:"batch_ids,omitempty"`
	FellBack  bool             `json:"fell_back,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Board stores snapshots. Updates from this process are serialized; the
// read-modify-write is not atomic across replicas, which only ever costs a
// stale progress value.
type Board struct {
	cache cache.Client
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
}

// NewBoard creates a board whose entries expire after ttl
func NewBoard(client cache.Client, ttl time.Duration) *Board {
	return &Board{
		cache: client,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the snapshot of stockInID, or nil if the board has none
func (b *Board) Get(ctx context.Context, stockInID string) (*Snapshot, error) {
	raw, err := b.cache.Get(ctx, keyPrefix+stockInID)
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RecordStatus applies a status transition. A late non-terminal status
// never overwrites a terminal one of the same run.
func (b *Board) RecordStatus(ctx context.Context, stockInID, runID string, to domain.Status, reason string) error {
	return b.update(ctx, stockInID, runID, func(s *Snapshot) {
		if s.Status.Terminal() && !to.Terminal() {
			return
		}
		s.Status = to
		s.Reason = reason
	})
}

// RecordProgress keeps the highest progress seen for the run
func (b *Board) RecordProgress(ctx context.Context, stockInID, runID string, p domain.Progress) error {
	return b.update(ctx, stockInID, runID, func(s *Snapshot) {
		if s.Progress != nil && p.Current <= s.Progress.Current {
			return
		}
		s.Progress = &p
	})
}

// RecordFallback marks that the run fell back to the local strategy
func (b *Board) RecordFallback(ctx context.Context, stockInID, runID, reason string) error {
	return b.update(ctx, stockInID, runID, func(s *Snapshot) {
		s.FellBack = true
		if s.Status == "" {
			s.Reason = reason
		}
	})
}

// RecordCommitted stores the outcome of a finished commit
func (b *Board) RecordCommitted(ctx context.Context, stockInID, runID, strategy string, batchIDs []string) error {
	return b.update(ctx, stockInID, runID, func(s *Snapshot) {
		s.Status = domain.StatusCompleted
		s.Reason = ""
		s.Strategy = strategy
		s.BatchIDs = batchIDs
		if s.Progress != nil {
			s.Progress.Current = s.Progress.Total
		}
	})
}

func (b *Board) update(ctx context.Context, stockInID, runID string, fn func(*Snapshot)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.Get(ctx, stockInID)
	if err != nil {
		return err
	}
	if snap == nil || (runID != "" && snap.RunID != runID) {
		snap = &Snapshot{StockInID: stockInID, RunID: runID}
	}

	fn(snap)
	snap.UpdatedAt = b.now().UTC()

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return b.cache.Set(ctx, keyPrefix+stockInID, raw, b.ttl)
}
