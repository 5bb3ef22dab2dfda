package domain

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// Commit strategy names reported in CommitResult.Strategy
const (
	StrategyRemote = "remote"
	StrategyLocal  = "local"
	StrategyReplay = "replay"
)

var barcodePattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// CommitBox is one box of the commit payload
type CommitBox struct {
	Barcode   string          `json:"barcode" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Color     string          `json:"color,omitempty"`
	Size      string          `json:"size,omitempty"`
	ProductID string          `json:"product_id" validate:"required"`
	Sequence  int             `json:"sequence,omitempty"`
}

// CommitBatch is one batch of the commit payload
type CommitBatch struct {
	WarehouseID string      `json:"warehouse_id" validate:"required"`
	LocationID  string      `json:"location_id" validate:"required"`
	BatchCode   string      `json:"batch_code,omitempty"`
	Boxes       []CommitBox `json:"boxes" validate:"required,min=1,dive"`
}

// TotalQuantity sums the box quantities
func (b CommitBatch) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, box := range b.Boxes {
		total = total.Add(box.Quantity)
	}
	return total
}

// CommitRequest is the full finalized batch set of one submission. RunID is
// the idempotence key and is reused across retries of the same submission.
type CommitRequest struct {
	RunID     string        `json:"run_id" validate:"required"`
	StockInID string        `json:"stock_in_id" validate:"required"`
	UserID    string        `json:"user_id" validate:"required"`
	Batches   []CommitBatch `json:"batches" validate:"required,min=1,dive"`
}

// BoxCount is the number of boxes across all batches
func (r CommitRequest) BoxCount() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Boxes)
	}
	return n
}

// Validate checks the payload before any durable work is attempted
func (r CommitRequest) Validate() error {
	details := make(map[string]string)

	if _, err := uuid.Parse(r.RunID); err != nil {
		details["run_id"] = "must be a valid UUID"
	}
	if _, err := uuid.Parse(r.StockInID); err != nil {
		details["stock_in_id"] = "must be a valid UUID"
	}
	if r.UserID == "" {
		details["user_id"] = "this field is required"
	}
	if len(r.Batches) == 0 {
		details["batches"] = "at least one batch is required"
	}

	seen := make(map[string]struct{}, r.BoxCount())
	for i, b := range r.Batches {
		field := fmt.Sprintf("batches[%d]", i)
		if b.WarehouseID == "" || b.LocationID == "" {
			details[field] = "warehouse_id and location_id are required"
		}
		if len(b.Boxes) == 0 {
			details[field+".boxes"] = "at least one box is required"
		}
		for j, box := range b.Boxes {
			boxField := fmt.Sprintf("%s.boxes[%d]", field, j)
			switch {
			case !barcodePattern.MatchString(box.Barcode):
				details[boxField+".barcode"] = "must contain only A-Z, 0-9 and '-'"
			case !box.Quantity.IsPositive():
				details[boxField+".quantity"] = "must be greater than zero"
			case box.ProductID == "":
				details[boxField+".product_id"] = "this field is required"
			}
			if _, dup := seen[box.Barcode]; dup {
				details[boxField+".barcode"] = "duplicate barcode in request"
			}
			seen[box.Barcode] = struct{}{}
		}
	}

	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// CommitResult is the outcome of a successful commit
type CommitResult struct {
	BatchIDs []string `json:"batch_ids"`
	Strategy string   `json:"strategy,omitempty"`
	Replayed bool     `json:"replayed,omitempty"`
}
