// Package repository is the PostgreSQL store of the stock-in engine.
package repository

import (
	"context"

	"github.com/wareflow/wareflow-backend/pkg/database"
)

// Store bundles the repositories behind one transaction boundary. It
// satisfies the commit ledger, the barcode checker and the catalog.
type Store struct {
	*StockInRepository
	*BatchRepository
	*InventoryRepository
	*CatalogRepository

	db *database.DB
}

// NewStore creates a store over db
func NewStore(db *database.DB) *Store {
	return &Store{
		StockInRepository:   NewStockInRepository(db),
		BatchRepository:     NewBatchRepository(db),
		InventoryRepository: NewInventoryRepository(db),
		CatalogRepository:   NewCatalogRepository(db),
		db:                  db,
	}
}

// RunInTx runs fn in one transaction; repository calls made with the ctx
// passed to fn join it
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.RunInTx(ctx, fn)
}
