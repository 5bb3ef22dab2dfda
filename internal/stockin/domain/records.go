package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatusActive is the status of a freshly committed batch
const BatchStatusActive = "active"

// InventoryStatusInStock is the status of a freshly placed inventory unit
const InventoryStatusInStock = "in_stock"

// BatchRecord is the durable row of one committed batch (processed_batches)
type BatchRecord struct {
	ID            string          `db:"id" json:"id"`
	StockInID     string          `db:"stock_in_id" json:"stock_in_id"`
	RunID         string          `db:"run_id" json:"run_id"`
	Sequence      int             `db:"sequence" json:"sequence"`
	BatchCode     string          `db:"batch_code" json:"batch_code"`
	ProductID     string          `db:"product_id" json:"product_id"`
	WarehouseID   string          `db:"warehouse_id" json:"warehouse_id"`
	LocationID    string          `db:"location_id" json:"location_id"`
	TotalBoxes    int             `db:"total_boxes" json:"total_boxes"`
	TotalQuantity decimal.Decimal `db:"total_quantity" json:"total_quantity"`
	ProcessedBy   string          `db:"processed_by" json:"processed_by"`
	ProcessedAt   time.Time       `db:"processed_at" json:"processed_at"`
	Status        string          `db:"status" json:"status"`
}

// BoxRecord is the per-box detail row, written before the batch item
type BoxRecord struct {
	ID          string          `db:"id" json:"id"`
	BatchID     string          `db:"batch_id" json:"batch_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	Barcode     string          `db:"barcode" json:"barcode"`
	Sequence    int             `db:"sequence" json:"sequence"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Color       *string         `db:"color" json:"color,omitempty"`
	Size        *string         `db:"size" json:"size,omitempty"`
	WarehouseID string          `db:"warehouse_id" json:"warehouse_id"`
	LocationID  string          `db:"location_id" json:"location_id"`
}

// BatchItemRecord links a box to its batch
type BatchItemRecord struct {
	ID         string          `db:"id" json:"id"`
	BatchID    string          `db:"batch_id" json:"batch_id"`
	BoxID      string          `db:"box_id" json:"box_id"`
	Barcode    string          `db:"barcode" json:"barcode"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	Color      *string         `db:"color" json:"color,omitempty"`
	Size       *string         `db:"size" json:"size,omitempty"`
	LocationID string          `db:"location_id" json:"location_id"`
}

// InventoryRecord is the placed, countable unit
type InventoryRecord struct {
	ID          string          `db:"id" json:"id"`
	BatchID     string          `db:"batch_id" json:"batch_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	Barcode     string          `db:"barcode" json:"barcode"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Color       *string         `db:"color" json:"color,omitempty"`
	Size        *string         `db:"size" json:"size,omitempty"`
	WarehouseID string          `db:"warehouse_id" json:"warehouse_id"`
	LocationID  string          `db:"location_id" json:"location_id"`
	Status      string          `db:"status" json:"status"`
}

// OptionalString maps "" to nil for nullable text columns
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
