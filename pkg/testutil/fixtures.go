package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ProductFixture represents test product data
type ProductFixture struct {
	ID       string
	Name     string
	SKU      string
	Category string
}

// WarehouseFixture represents test warehouse data
type WarehouseFixture struct {
	ID   string
	Name string
	Code string
}

// LocationFixture represents a storage location inside a warehouse
type LocationFixture struct {
	ID          string
	WarehouseID string
	Code        string
	Name        string
}

// StockInFixture represents a stock-in request awaiting placement
type StockInFixture struct {
	ID             string
	ProductID      string
	RequestedBoxes int
	Source         string
	Notes          string
	Status         string
	CreatedBy      string
	CreatedAt      time.Time
}

// StockInSeed is the minimal catalog a stock-in needs: one product, one
// warehouse with two locations, and a pending request.
type StockInSeed struct {
	Product   ProductFixture
	Warehouse WarehouseFixture
	LocationA LocationFixture
	LocationB LocationFixture
	StockIn   StockInFixture
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

func (f *FixtureFactory) next() int {
	f.sequence++
	return f.sequence
}

// Product creates the "Widget" product used across stock-in tests
func (f *FixtureFactory) Product() ProductFixture {
	n := f.next()
	sku := "WID-1"
	if n > 1 {
		sku = fmt.Sprintf("WID-%d", n)
	}
	return ProductFixture{
		ID:       uuid.NewString(),
		Name:     "Widget",
		SKU:      sku,
		Category: "Widgets",
	}
}

// Warehouse creates a warehouse fixture
func (f *FixtureFactory) Warehouse() WarehouseFixture {
	n := f.next()
	return WarehouseFixture{
		ID:   uuid.NewString(),
		Name: fmt.Sprintf("Warehouse %d", n),
		Code: fmt.Sprintf("WH%d", n),
	}
}

// Location creates a location fixture inside warehouseID
func (f *FixtureFactory) Location(warehouseID, code string) LocationFixture {
	return LocationFixture{
		ID:          uuid.NewString(),
		WarehouseID: warehouseID,
		Code:        code,
		Name:        "Location " + code,
	}
}

// StockIn creates a pending stock-in fixture
func (f *FixtureFactory) StockIn(productID string, boxes int) StockInFixture {
	n := f.next()
	return StockInFixture{
		ID:             uuid.NewString(),
		ProductID:      productID,
		RequestedBoxes: boxes,
		Source:         fmt.Sprintf("supplier-%d", n),
		Status:         "pending",
		CreatedBy:      uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
	}
}

// StockInSeed creates a complete seed for a pending request of boxes boxes
func (f *FixtureFactory) StockInSeed(boxes int) *StockInSeed {
	product := f.Product()
	warehouse := f.Warehouse()
	return &StockInSeed{
		Product:   product,
		Warehouse: warehouse,
		LocationA: f.Location(warehouse.ID, "LocA"),
		LocationB: f.Location(warehouse.ID, "LocB"),
		StockIn:   f.StockIn(product.ID, boxes),
	}
}

// InsertStockInSeed writes seed to the database
func InsertStockInSeed(ctx context.Context, db *sqlx.DB, seed *StockInSeed) error {
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{
			`INSERT INTO products (id, name, sku, category) VALUES ($1, $2, $3, $4)`,
			[]interface{}{seed.Product.ID, seed.Product.Name, seed.Product.SKU, seed.Product.Category},
		},
		{
			`INSERT INTO warehouses (id, name, code) VALUES ($1, $2, $3)`,
			[]interface{}{seed.Warehouse.ID, seed.Warehouse.Name, seed.Warehouse.Code},
		},
		{
			`INSERT INTO locations (id, warehouse_id, code, name) VALUES ($1, $2, $3, $4)`,
			[]interface{}{seed.LocationA.ID, seed.LocationA.WarehouseID, seed.LocationA.Code, seed.LocationA.Name},
		},
		{
			`INSERT INTO locations (id, warehouse_id, code, name) VALUES ($1, $2, $3, $4)`,
			[]interface{}{seed.LocationB.ID, seed.LocationB.WarehouseID, seed.LocationB.Code, seed.LocationB.Name},
		},
		{
			`INSERT INTO stock_in (id, product_id, requested_boxes, source, status, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			[]interface{}{
				seed.StockIn.ID, seed.StockIn.ProductID, seed.StockIn.RequestedBoxes,
				seed.StockIn.Source, seed.StockIn.Status, seed.StockIn.CreatedBy, seed.StockIn.CreatedAt,
			},
		},
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("failed to insert fixture: %w", err)
		}
	}
	return nil
}

// CountRows returns the row count of table, optionally filtered by a WHERE clause
func CountRows(ctx context.Context, db *sqlx.DB, table, where string, args ...interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}
