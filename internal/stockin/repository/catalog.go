package repository

import (
	"context"
	"database/sql"

	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// CatalogRepository reads products and warehouse locations
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetProduct gets a product by ID
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	query := `SELECT id, name, sku, COALESCE(category, '') AS category FROM products WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &p, nil
}

// LocationInWarehouse reports whether the location belongs to the warehouse
func (r *CatalogRepository) LocationInWarehouse(ctx context.Context, warehouseID, locationID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1 AND warehouse_id = $2)`
	if err := r.db.Conn(ctx).GetContext(ctx, &exists, query, locationID, warehouseID); err != nil {
		return false, err
	}
	return exists, nil
}
