package repository

import (
	"context"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/database"
)

// InventoryRepository handles box, batch item and inventory persistence
type InventoryRepository struct {
	db *database.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *database.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// BarcodeExists reports whether a barcode is already persisted as a box or an inventory unit
func (r *InventoryRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM boxes WHERE barcode = $1
			UNION ALL
			SELECT 1 FROM inventory WHERE barcode = $1
		)
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &exists, query, barcode); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateBox inserts a box
func (r *InventoryRepository) CreateBox(ctx context.Context, b *domain.BoxRecord) error {
	query := `
		INSERT INTO boxes (
			id, batch_id, product_id, barcode, sequence, quantity, color, size,
			warehouse_id, location_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query,
		b.ID, b.BatchID, b.ProductID, b.Barcode, b.Sequence, b.Quantity, b.Color, b.Size,
		b.WarehouseID, b.LocationID,
	)
	return err
}

// CreateBatchItem inserts a batch item
func (r *InventoryRepository) CreateBatchItem(ctx context.Context, item *domain.BatchItemRecord) error {
	query := `
		INSERT INTO batch_items (
			id, batch_id, box_id, barcode, quantity, color, size, location_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query,
		item.ID, item.BatchID, item.BoxID, item.Barcode, item.Quantity, item.Color, item.Size, item.LocationID,
	)
	return err
}

// CreateInventory inserts an inventory unit
func (r *InventoryRepository) CreateInventory(ctx context.Context, inv *domain.InventoryRecord) error {
	query := `
		INSERT INTO inventory (
			id, batch_id, product_id, barcode, quantity, color, size,
			warehouse_id, location_id, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query,
		inv.ID, inv.BatchID, inv.ProductID, inv.Barcode, inv.Quantity, inv.Color, inv.Size,
		inv.WarehouseID, inv.LocationID, inv.Status,
	)
	return err
}

// ListByBatch lists the inventory units of a batch
func (r *InventoryRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.InventoryRecord, error) {
	var units []*domain.InventoryRecord
	query := `
		SELECT id, batch_id, product_id, barcode, quantity, color, size,
			warehouse_id, location_id, status
		FROM inventory
		WHERE batch_id = $1
		ORDER BY barcode
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &units, query, batchID); err != nil {
		return nil, err
	}
	return units, nil
}
