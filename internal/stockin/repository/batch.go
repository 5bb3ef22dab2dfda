package repository

import (
	"context"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/database"
)

// BatchRepository handles processed batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateBatch inserts a processed batch
func (r *BatchRepository) CreateBatch(ctx context.Context, b *domain.BatchRecord) error {
	query := `
		INSERT INTO processed_batches (
			id, stock_in_id, run_id, sequence, batch_code, product_id, warehouse_id,
			location_id, total_boxes, total_quantity, processed_by, processed_at, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query,
		b.ID, b.StockInID, b.RunID, b.Sequence, b.BatchCode, b.ProductID, b.WarehouseID,
		b.LocationID, b.TotalBoxes, b.TotalQuantity, b.ProcessedBy, b.ProcessedAt, b.Status,
	)
	return err
}

// FindBatchIDsByRun returns the ids of the batches a run committed, in sequence order
func (r *BatchRepository) FindBatchIDsByRun(ctx context.Context, stockInID, runID string) ([]string, error) {
	var ids []string
	query := `
		SELECT id FROM processed_batches
		WHERE stock_in_id = $1 AND run_id = $2
		ORDER BY sequence
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &ids, query, stockInID, runID); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByStockIn lists every batch committed for a stock-in request
func (r *BatchRepository) ListByStockIn(ctx context.Context, stockInID string) ([]*domain.BatchRecord, error) {
	var batches []*domain.BatchRecord
	query := `
		SELECT id, stock_in_id, run_id, sequence, batch_code, product_id, warehouse_id,
			location_id, total_boxes, total_quantity, processed_by, processed_at, status
		FROM processed_batches
		WHERE stock_in_id = $1
		ORDER BY processed_at, sequence
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &batches, query, stockInID); err != nil {
		return nil, err
	}
	return batches, nil
}
