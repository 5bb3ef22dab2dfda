// Package session implements the staged draft workflow of a stock-in:
// review -> definition -> finalize -> submitted, with cancel available
// until submission. A Session is a plain value; callers serialize access
// and persist it through a Store.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// Stage is a step of the draft workflow
type Stage string

const (
	StageReview     Stage = "review"
	StageDefinition Stage = "definition"
	StageFinalize   Stage = "finalize"
	StageSubmitted  Stage = "submitted"
	StageCancelled  Stage = "cancelled"
)

// Terminal reports whether the workflow has ended
func (s Stage) Terminal() bool {
	return s == StageSubmitted || s == StageCancelled
}

// CommitState tracks the commit attempt started by Submit
type CommitState string

const (
	CommitNone      CommitState = ""
	CommitInFlight  CommitState = "in_flight"
	CommitSucceeded CommitState = "succeeded"
	CommitFailed    CommitState = "failed"
)

// CommitOutcome is what the session remembers of its commit attempt
type CommitOutcome struct {
	State     CommitState `json:"state,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	BatchIDs  []string    `json:"batch_ids,omitempty"`
	Strategy  string      `json:"strategy,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
}

// Session is the serializable draft state of one stock-in placement
type Session struct {
	ID             string              `json:"id"`
	RunID          string              `json:"run_id"`
	StockInID      string              `json:"stock_in_id"`
	UserID         string              `json:"user_id"`
	Product        domain.Product      `json:"product"`
	RequestedBoxes int                 `json:"requested_boxes"`
	Stage          Stage               `json:"stage"`
	Batches        []domain.DraftBatch `json:"batches"`
	NextSequence   int                 `json:"next_sequence"`
	Commit         CommitOutcome       `json:"commit"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// New opens a session in the review stage. The run ID is fixed for the
// lifetime of the session so every submit retry shares it.
func New(req *domain.StockInRequest, product domain.Product, userID string, now time.Time) *Session {
	return &Session{
		ID:             uuid.NewString(),
		RunID:          uuid.NewString(),
		StockInID:      req.ID,
		UserID:         userID,
		Product:        product,
		RequestedBoxes: req.RequestedBoxes,
		Stage:          StageReview,
		Batches:        []domain.DraftBatch{},
		NextSequence:   1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Allocated is the number of boxes placed in draft batches
func (s *Session) Allocated() int {
	n := 0
	for _, b := range s.Batches {
		n += b.BoxCount()
	}
	return n
}

// Remaining is the number of boxes still to place
func (s *Session) Remaining() int {
	return s.RequestedBoxes - s.Allocated()
}

// Proceed moves one stage forward. Leaving definition requires every
// requested box to be placed.
func (s *Session) Proceed() error {
	switch s.Stage {
	case StageReview:
		s.Stage = StageDefinition
	case StageDefinition:
		if remaining := s.Remaining(); remaining != 0 {
			return errors.ValidationField("remaining", fmt.Sprintf("%d boxes still need a location", remaining))
		}
		s.Stage = StageFinalize
	case StageFinalize:
		return errors.InvalidStage("use submit to leave the finalize stage")
	default:
		return errors.InvalidStage(fmt.Sprintf("session is %s", s.Stage))
	}
	return nil
}

// Back moves one stage backward, keeping all draft batches
func (s *Session) Back() error {
	switch s.Stage {
	case StageFinalize:
		s.Stage = StageDefinition
	case StageDefinition:
		s.Stage = StageReview
	case StageReview:
		return errors.InvalidStage("session is already at the first stage")
	default:
		return errors.InvalidStage(fmt.Sprintf("session is %s", s.Stage))
	}
	return nil
}

// Cancel abandons the draft. Nothing durable has happened yet.
func (s *Session) Cancel() error {
	if s.Stage.Terminal() {
		return errors.InvalidStage(fmt.Sprintf("session is already %s", s.Stage))
	}
	s.Stage = StageCancelled
	s.Batches = nil
	return nil
}

// RequireStage fails unless the session is in stage
func (s *Session) RequireStage(stage Stage) error {
	if s.Stage != stage {
		return errors.InvalidStage(fmt.Sprintf("operation requires the %s stage, session is %s", stage, s.Stage))
	}
	return nil
}

// ReserveSequence hands out n consecutive box sequence numbers and returns
// the first. Reserved numbers are never reused, even if the allocation that
// reserved them is later rejected.
func (s *Session) ReserveSequence(n int) int {
	start := s.NextSequence
	s.NextSequence += n
	return start
}

// AddBatches appends batches built outside the session lock. The stage and
// the remaining count are checked again here since the session may have
// moved on while identifiers were being issued.
func (s *Session) AddBatches(batches ...domain.DraftBatch) error {
	if err := s.RequireStage(StageDefinition); err != nil {
		return err
	}

	boxes := 0
	for _, b := range batches {
		boxes += b.BoxCount()
	}
	if boxes > s.Remaining() {
		return errors.ValidationField("count", fmt.Sprintf("cannot place %d boxes, only %d remaining", boxes, s.Remaining()))
	}

	s.Batches = append(s.Batches, batches...)
	return nil
}

// RemoveBatch discards one draft batch, returning its boxes to the pool
func (s *Session) RemoveBatch(batchID string) error {
	if err := s.RequireStage(StageDefinition); err != nil {
		return err
	}

	for i, b := range s.Batches {
		if b.TempID == batchID {
			s.Batches = append(s.Batches[:i], s.Batches[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("draft batch")
}

// HasBarcode reports whether code was issued to a box of this session
func (s *Session) HasBarcode(code string) bool {
	for _, b := range s.Batches {
		for _, box := range b.Boxes {
			if box.Barcode == code {
				return true
			}
		}
	}
	return false
}

// Barcodes lists every barcode issued to the draft, in batch order
func (s *Session) Barcodes() []string {
	var codes []string
	for _, b := range s.Batches {
		codes = append(codes, b.Barcodes()...)
	}
	return codes
}

// Holding reports whether the draft still needs its barcodes reserved
func (s *Session) Holding() bool {
	return s.Stage != StageCancelled && s.Commit.State != CommitSucceeded
}

// Preview projects every draft batch to its printable label
func (s *Session) Preview() []domain.BatchLabel {
	labels := make([]domain.BatchLabel, len(s.Batches))
	for i, b := range s.Batches {
		labels[i] = domain.BatchLabel{
			BatchID:       b.TempID,
			Code:          domain.BatchCode(s.StockInID, i+1),
			WarehouseID:   b.WarehouseID,
			LocationID:    b.LocationID,
			BoxCount:      b.BoxCount(),
			TotalQuantity: b.TotalQuantity(),
			Barcodes:      b.Barcodes(),
		}
	}
	return labels
}

// BeginSubmit freezes the draft and returns the commit payload. A retry is
// allowed once the previous attempt has finished; it reuses the run ID so
// the commit side can recognize it. A submit while a commit is in flight
// is rejected.
func (s *Session) BeginSubmit() (domain.CommitRequest, error) {
	switch {
	case s.Stage == StageFinalize:
	case s.Stage == StageSubmitted && s.Commit.State == CommitInFlight:
		return domain.CommitRequest{}, errors.ConcurrencyConflict("a commit is already in flight for this session")
	case s.Stage == StageSubmitted:
	default:
		return domain.CommitRequest{}, errors.InvalidStage(fmt.Sprintf("submit requires the finalize stage, session is %s", s.Stage))
	}

	if s.Remaining() != 0 {
		return domain.CommitRequest{}, errors.ValidationField("remaining", fmt.Sprintf("%d boxes still need a location", s.Remaining()))
	}

	s.Stage = StageSubmitted
	s.Commit.State = CommitInFlight
	s.Commit.Attempts++
	s.Commit.Error = ""
	s.Commit.ErrorCode = ""
	return s.CommitRequest(), nil
}

// CompleteSubmit records the outcome of the commit started by BeginSubmit
func (s *Session) CompleteSubmit(result *domain.CommitResult, err error) {
	if err != nil {
		s.Commit.State = CommitFailed
		s.Commit.Error = err.Error()
		s.Commit.ErrorCode = errors.Code(err)
		return
	}
	s.Commit.State = CommitSucceeded
	if result != nil {
		s.Commit.BatchIDs = result.BatchIDs
		s.Commit.Strategy = result.Strategy
	}
}

// CommitRequest builds the commit payload from the draft batches
func (s *Session) CommitRequest() domain.CommitRequest {
	req := domain.CommitRequest{
		RunID:     s.RunID,
		StockInID: s.StockInID,
		UserID:    s.UserID,
		Batches:   make([]domain.CommitBatch, len(s.Batches)),
	}
	for i, b := range s.Batches {
		batch := domain.CommitBatch{
			WarehouseID: b.WarehouseID,
			LocationID:  b.LocationID,
			BatchCode:   domain.BatchCode(s.StockInID, i+1),
			Boxes:       make([]domain.CommitBox, len(b.Boxes)),
		}
		for j, box := range b.Boxes {
			batch.Boxes[j] = domain.CommitBox{
				Barcode:   box.Barcode,
				Quantity:  box.Quantity,
				Color:     box.Color,
				Size:      box.Size,
				ProductID: s.Product.ID,
				Sequence:  box.Sequence,
			}
		}
		req.Batches[i] = batch
	}
	return req
}
