// Package allocation places the boxes of a stock-in into draft batches, one
// batch per (warehouse, location).
//
// Allocation is split in three steps so identifier issuance, which does
// network round-trips, can run without holding the session:
//
//	Reserve  validate against the session, reserve sequence numbers  (locked)
//	Build    issue barcodes and build the draft batch(es)            (unlocked)
//	Apply    append to the session, re-checking stage and remaining  (locked)
//
// Allocate and AllocateBoxes run all three on a session the caller owns.
package allocation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wareflow/wareflow-backend/internal/stockin/barcode"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/internal/stockin/session"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// Issuer issues count barcodes for sequence numbers start..start+count-1
type Issuer interface {
	GenerateBatch(ctx context.Context, prefix, sku string, start, count int) ([]string, error)
}

// Input places Count boxes of QuantityPerBox at one location
type Input struct {
	WarehouseID    string
	LocationID     string
	Count          int
	QuantityPerBox decimal.Decimal
	Color          string
	Size           string
}

// BoxSpec is one box that already carries its own destination
type BoxSpec struct {
	WarehouseID string
	LocationID  string
	Quantity    decimal.Decimal
	Color       string
	Size        string
}

// Reservation is the validated, sequence-numbered intent of an allocation
type Reservation struct {
	SessionID string
	Prefix    string
	SKU       string
	Start     int
	Boxes     []BoxSpec
}

// Allocator turns allocation requests into draft batches
type Allocator struct {
	issuer Issuer
	logger *logger.Logger
}

// New creates an allocator
func New(issuer Issuer, log *logger.Logger) *Allocator {
	return &Allocator{
		issuer: issuer,
		logger: log,
	}
}

// Reserve validates in against s and reserves len(boxes) sequence numbers.
// A validation failure leaves s untouched.
func (a *Allocator) Reserve(s *session.Session, in Input) (*Reservation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	specs := make([]BoxSpec, in.Count)
	for i := range specs {
		specs[i] = BoxSpec{
			WarehouseID: in.WarehouseID,
			LocationID:  in.LocationID,
			Quantity:    in.QuantityPerBox,
			Color:       in.Color,
			Size:        in.Size,
		}
	}
	return a.reserve(s, specs)
}

// ReserveBoxes is Reserve for boxes that carry individual destinations
func (a *Allocator) ReserveBoxes(s *session.Session, boxes []BoxSpec) (*Reservation, error) {
	if len(boxes) == 0 {
		return nil, errors.ValidationField("boxes", "at least one box is required")
	}
	details := make(map[string]string)
	for i, b := range boxes {
		if err := validateSpec(b); err != "" {
			details[fmt.Sprintf("boxes[%d]", i)] = err
		}
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}
	return a.reserve(s, boxes)
}

func (a *Allocator) reserve(s *session.Session, specs []BoxSpec) (*Reservation, error) {
	if err := s.RequireStage(session.StageDefinition); err != nil {
		return nil, err
	}
	if remaining := s.Remaining(); len(specs) > remaining {
		return nil, errors.ValidationField("count", fmt.Sprintf("cannot place %d boxes, only %d remaining", len(specs), remaining))
	}

	return &Reservation{
		SessionID: s.ID,
		Prefix:    barcode.Prefix(s.Product.LabelSource()),
		SKU:       s.Product.SKU,
		Start:     s.ReserveSequence(len(specs)),
		Boxes:     specs,
	}, nil
}

// Build issues the barcodes of r and groups the boxes into draft batches.
// It does not touch the session.
func (a *Allocator) Build(ctx context.Context, r *Reservation) ([]domain.DraftBatch, error) {
	ctx = barcode.WithOwner(ctx, r.SessionID)

	codes, err := a.issuer.GenerateBatch(ctx, r.Prefix, r.SKU, r.Start, len(r.Boxes))
	if err != nil {
		a.logger.Warn().Err(err).
			Str("session_id", r.SessionID).
			Int("count", len(r.Boxes)).
			Msg("barcode issuance failed, allocation discarded")
		return nil, err
	}

	boxes := make([]domain.DraftBox, len(r.Boxes))
	for i, spec := range r.Boxes {
		boxes[i] = domain.DraftBox{
			TempID:      uuid.NewString(),
			Barcode:     codes[i],
			Sequence:    r.Start + i,
			Quantity:    spec.Quantity,
			Color:       strings.TrimSpace(spec.Color),
			Size:        strings.TrimSpace(spec.Size),
			WarehouseID: spec.WarehouseID,
			LocationID:  spec.LocationID,
		}
	}
	return GroupByLocation(boxes), nil
}

// Apply appends the built batches to s
func (a *Allocator) Apply(s *session.Session, batches []domain.DraftBatch) error {
	if err := s.AddBatches(batches...); err != nil {
		return err
	}

	a.logger.Debug().
		Str("session_id", s.ID).
		Int("batches", len(batches)).
		Int("remaining", s.Remaining()).
		Msg("allocation applied")
	return nil
}

// Allocate places in.Count boxes at one location and returns the new batch
func (a *Allocator) Allocate(ctx context.Context, s *session.Session, in Input) (*domain.DraftBatch, error) {
	r, err := a.Reserve(s, in)
	if err != nil {
		return nil, err
	}
	batches, err := a.Build(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := a.Apply(s, batches); err != nil {
		return nil, err
	}
	return &batches[0], nil
}

// AllocateBoxes places boxes with individual destinations, one batch per
// distinct location, and returns the new batches
func (a *Allocator) AllocateBoxes(ctx context.Context, s *session.Session, boxes []BoxSpec) ([]domain.DraftBatch, error) {
	r, err := a.ReserveBoxes(s, boxes)
	if err != nil {
		return nil, err
	}
	batches, err := a.Build(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := a.Apply(s, batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// GroupByLocation groups boxes by warehouse and location. Each distinct
// pair yields one batch; batches follow first appearance and boxes keep
// their order.
func GroupByLocation(boxes []domain.DraftBox) []domain.DraftBatch {
	index := make(map[string]int)
	batches := make([]domain.DraftBatch, 0)

	for _, box := range boxes {
		key := LocationKey(box.WarehouseID, box.LocationID)
		i, ok := index[key]
		if !ok {
			i = len(batches)
			index[key] = i
			batches = append(batches, domain.DraftBatch{
				TempID:      uuid.NewString(),
				WarehouseID: box.WarehouseID,
				LocationID:  box.LocationID,
			})
		}
		batches[i].Boxes = append(batches[i].Boxes, box)
	}
	return batches
}

// LocationKey is the grouping key of a (warehouse, location) pair
func LocationKey(warehouseID, locationID string) string {
	return warehouseID + "::" + locationID
}

func validateInput(in Input) error {
	details := make(map[string]string)
	if in.WarehouseID == "" {
		details["warehouse_id"] = "this field is required"
	}
	if in.LocationID == "" {
		details["location_id"] = "this field is required"
	}
	if in.Count < 1 {
		details["count"] = "must be at least 1"
	}
	if !in.QuantityPerBox.IsPositive() {
		details["quantity_per_box"] = "must be greater than zero"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func validateSpec(b BoxSpec) string {
	switch {
	case b.WarehouseID == "" || b.LocationID == "":
		return "warehouse_id and location_id are required"
	case !b.Quantity.IsPositive():
		return "quantity must be greater than zero"
	}
	return ""
}
