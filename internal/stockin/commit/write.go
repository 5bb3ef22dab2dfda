package commit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// matchRequest rejects a payload that does not place exactly the requested
// boxes of the requested product
func matchRequest(req domain.CommitRequest, current *domain.StockInRequest) error {
	if n := req.BoxCount(); n != current.RequestedBoxes {
		return errors.ValidationField("batches", fmt.Sprintf("payload places %d boxes, stock-in request expects %d", n, current.RequestedBoxes))
	}
	for i, b := range req.Batches {
		for j, box := range b.Boxes {
			if box.ProductID != current.ProductID {
				return errors.ValidationField(fmt.Sprintf("batches[%d].boxes[%d].product_id", i, j), "does not match the stock-in request product")
			}
		}
	}
	return nil
}

// writeBatches persists req in order: per batch its BatchRecord, then per
// box its BoxRecord, BatchItemRecord and InventoryRecord. Every barcode is
// re-checked against the store right before its first insert.
func writeBatches(ctx context.Context, ledger Ledger, req domain.CommitRequest, now time.Time, progress domain.ProgressFunc) ([]string, error) {
	total := len(req.Batches)
	ids := make([]string, 0, total)

	for i, b := range req.Batches {
		code := b.BatchCode
		if code == "" {
			code = domain.BatchCode(req.StockInID, i+1)
		}

		batch := &domain.BatchRecord{
			ID:            uuid.NewString(),
			StockInID:     req.StockInID,
			RunID:         req.RunID,
			Sequence:      i + 1,
			BatchCode:     code,
			ProductID:     b.Boxes[0].ProductID,
			WarehouseID:   b.WarehouseID,
			LocationID:    b.LocationID,
			TotalBoxes:    len(b.Boxes),
			TotalQuantity: b.TotalQuantity(),
			ProcessedBy:   req.UserID,
			ProcessedAt:   now,
			Status:        domain.BatchStatusActive,
		}
		if err := ledger.CreateBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i+1, err)
		}

		for j, box := range b.Boxes {
			if err := writeBox(ctx, ledger, batch, box, j); err != nil {
				return nil, fmt.Errorf("batch %d box %d: %w", i+1, j+1, err)
			}
		}

		ids = append(ids, batch.ID)
		if progress != nil {
			progress(domain.Progress{Current: i + 1, Total: total})
		}
	}
	return ids, nil
}

func writeBox(ctx context.Context, ledger Ledger, batch *domain.BatchRecord, box domain.CommitBox, index int) error {
	exists, err := ledger.BarcodeExists(ctx, box.Barcode)
	if err != nil {
		return err
	}
	if exists {
		return errors.Conflict(fmt.Sprintf("barcode %s has already been issued", box.Barcode))
	}

	seq := box.Sequence
	if seq == 0 {
		seq = index + 1
	}
	color := domain.OptionalString(box.Color)
	size := domain.OptionalString(box.Size)

	record := &domain.BoxRecord{
		ID:          uuid.NewString(),
		BatchID:     batch.ID,
		ProductID:   box.ProductID,
		Barcode:     box.Barcode,
		Sequence:    seq,
		Quantity:    box.Quantity,
		Color:       color,
		Size:        size,
		WarehouseID: batch.WarehouseID,
		LocationID:  batch.LocationID,
	}
	if err := ledger.CreateBox(ctx, record); err != nil {
		return err
	}

	if err := ledger.CreateBatchItem(ctx, &domain.BatchItemRecord{
		ID:         uuid.NewString(),
		BatchID:    batch.ID,
		BoxID:      record.ID,
		Barcode:    box.Barcode,
		Quantity:   box.Quantity,
		Color:      color,
		Size:       size,
		LocationID: batch.LocationID,
	}); err != nil {
		return err
	}

	return ledger.CreateInventory(ctx, &domain.InventoryRecord{
		ID:          uuid.NewString(),
		BatchID:     batch.ID,
		ProductID:   box.ProductID,
		Barcode:     box.Barcode,
		Quantity:    box.Quantity,
		Color:       color,
		Size:        size,
		WarehouseID: batch.WarehouseID,
		LocationID:  batch.LocationID,
		Status:      domain.InventoryStatusInStock,
	})
}
