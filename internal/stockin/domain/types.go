// Package domain holds the stock-in types shared by the allocator, the draft
// session and the commit processor.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Quantities travel as JSON numbers on the commit endpoint.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the lifecycle state of a stock-in request
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further commit work can happen for s
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// StockInRequest is a "N boxes of product P arrived" request. It is created
// elsewhere; here only its status moves.
type StockInRequest struct {
	ID              string    `db:"id" json:"id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	RequestedBoxes  int       `db:"requested_boxes" json:"requested_boxes"`
	Source          *string   `db:"source" json:"source,omitempty"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	Status          Status    `db:"status" json:"status"`
	RejectionReason *string   `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedBy       *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Product is the catalog entry a stock-in refers to
type Product struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	SKU      string `db:"sku" json:"sku"`
	Category string `db:"category" json:"category,omitempty"`
}

// LabelSource is the text the barcode prefix is derived from
func (p Product) LabelSource() string {
	if strings.TrimSpace(p.Category) != "" {
		return p.Category
	}
	return p.Name
}

// DraftBox is one physical box with its issued barcode, held in a session until commit
type DraftBox struct {
	TempID      string          `json:"temp_id"`
	Barcode     string          `json:"barcode"`
	Sequence    int             `json:"sequence"`
	Quantity    decimal.Decimal `json:"quantity"`
	Color       string          `json:"color,omitempty"`
	Size        string          `json:"size,omitempty"`
	WarehouseID string          `json:"warehouse_id"`
	LocationID  string          `json:"location_id"`
}

// DraftBatch groups boxes bound for one (warehouse, location)
type DraftBatch struct {
	TempID      string     `json:"temp_id"`
	WarehouseID string     `json:"warehouse_id"`
	LocationID  string     `json:"location_id"`
	Boxes       []DraftBox `json:"boxes"`
}

// BoxCount is the number of boxes in the batch
func (b DraftBatch) BoxCount() int {
	return len(b.Boxes)
}

// TotalQuantity sums the box quantities
func (b DraftBatch) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, box := range b.Boxes {
		total = total.Add(box.Quantity)
	}
	return total
}

// Barcodes returns the batch's barcodes in generation order
func (b DraftBatch) Barcodes() []string {
	codes := make([]string, len(b.Boxes))
	for i, box := range b.Boxes {
		codes[i] = box.Barcode
	}
	return codes
}

// BatchLabel is the finalize-stage projection of a draft batch
type BatchLabel struct {
	BatchID       string          `json:"batch_id"`
	Code          string          `json:"code"`
	WarehouseID   string          `json:"warehouse_id"`
	LocationID    string          `json:"location_id"`
	BoxCount      int             `json:"box_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Barcodes      []string        `json:"barcodes"`
}

// BatchCode derives the human-facing code of the n-th (1-based) batch of a stock-in
func BatchCode(stockInID string, n int) string {
	short := strings.ReplaceAll(stockInID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("SI-%s-%02d", strings.ToUpper(short), n)
}

// Progress is the informational "current batch / total batches" signal of a commit
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ProgressFunc observes commit progress
type ProgressFunc func(Progress)
