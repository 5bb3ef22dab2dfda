package repository

import (
	"context"
	"database/sql"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

const stockInColumns = `id, product_id, requested_boxes, source, notes, status,
	rejection_reason, created_by, created_at, updated_at`

// StockInRepository handles stock-in request persistence
type StockInRepository struct {
	db *database.DB
}

// NewStockInRepository creates a new stock-in repository
func NewStockInRepository(db *database.DB) *StockInRepository {
	return &StockInRepository{db: db}
}

// GetRequest gets a stock-in request by ID
func (r *StockInRepository) GetRequest(ctx context.Context, id string) (*domain.StockInRequest, error) {
	var req domain.StockInRequest
	query := `SELECT ` + stockInColumns + ` FROM stock_in WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stock-in request")
		}
		return nil, err
	}
	return &req, nil
}

// LockRequest reads the request with FOR UPDATE. It must run inside RunInTx.
func (r *StockInRepository) LockRequest(ctx context.Context, id string) (*domain.StockInRequest, error) {
	var req domain.StockInRequest
	query := `SELECT ` + stockInColumns + ` FROM stock_in WHERE id = $1 FOR UPDATE`
	if err := r.db.Conn(ctx).GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stock-in request")
		}
		return nil, err
	}
	return &req, nil
}

// TransitionStatus moves the request from one status to another. It reports
// false when the request was not in from.
func (r *StockInRepository) TransitionStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
	query := `
		UPDATE stock_in
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkRejected moves a processing request to rejected and stores the reason
func (r *StockInRepository) MarkRejected(ctx context.Context, id, reason string) error {
	query := `
		UPDATE stock_in
		SET status = 'rejected', rejection_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, id, reason)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Conflict("stock-in request is not processing")
	}
	return nil
}
