package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

func TestBatchCode(t *testing.T) {
	assert.Equal(t, "SI-3F2A9C1B-01", BatchCode("3f2a9c1b-0000-4000-8000-000000000000", 1))
	assert.Equal(t, "SI-ABC-12", BatchCode("abc", 12))
}

func TestProduct_LabelSource(t *testing.T) {
	assert.Equal(t, "Widgets", Product{Name: "Widget", Category: "Widgets"}.LabelSource())
	assert.Equal(t, "Widget", Product{Name: "Widget", Category: "  "}.LabelSource())
}

func TestDraftBatch_Totals(t *testing.T) {
	b := DraftBatch{Boxes: []DraftBox{
		{Barcode: "A", Quantity: decimal.RequireFromString("2.5")},
		{Barcode: "B", Quantity: decimal.RequireFromString("1.5")},
	}}

	assert.Equal(t, 2, b.BoxCount())
	assert.True(t, b.TotalQuantity().Equal(decimal.NewFromInt(4)))
	assert.Equal(t, []string{"A", "B"}, b.Barcodes())
}

func validRequest() CommitRequest {
	return CommitRequest{
		RunID:     uuid.NewString(),
		StockInID: uuid.NewString(),
		UserID:    "user-1",
		Batches: []CommitBatch{{
			WarehouseID: "wh",
			LocationID:  "loc",
			Boxes: []CommitBox{
				{Barcode: "WID-WID-1-0001-AB12", Quantity: decimal.NewFromInt(10), ProductID: "p"},
				{Barcode: "WID-WID-1-0002-CD34", Quantity: decimal.NewFromInt(10), ProductID: "p"},
			},
		}},
	}
}

func TestCommitRequest_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validRequest().Validate())
	})

	tests := []struct {
		name   string
		mutate func(r *CommitRequest)
		field  string
	}{
		{"bad run id", func(r *CommitRequest) { r.RunID = "nope" }, "run_id"},
		{"no batches", func(r *CommitRequest) { r.Batches = nil }, "batches"},
		{"missing location", func(r *CommitRequest) { r.Batches[0].LocationID = "" }, "batches[0]"},
		{"lowercase barcode", func(r *CommitRequest) { r.Batches[0].Boxes[0].Barcode = "wid-1" }, "batches[0].boxes[0].barcode"},
		{"zero quantity", func(r *CommitRequest) { r.Batches[0].Boxes[1].Quantity = decimal.Zero }, "batches[0].boxes[1].quantity"},
		{"duplicate barcode", func(r *CommitRequest) {
			r.Batches[0].Boxes[1].Barcode = r.Batches[0].Boxes[0].Barcode
		}, "batches[0].boxes[1].barcode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := req.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))

			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Contains(t, appErr.Details, tt.field)
		})
	}
}

func TestCommitRequest_QuantityIsJSONNumber(t *testing.T) {
	body, err := json.Marshal(CommitBox{Barcode: "X", Quantity: decimal.RequireFromString("2.5"), ProductID: "p"})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"quantity":2.5`)

	var box CommitBox
	require.NoError(t, json.Unmarshal([]byte(`{"barcode":"X","quantity":3,"product_id":"p"}`), &box))
	assert.True(t, box.Quantity.Equal(decimal.NewFromInt(3)))
}
