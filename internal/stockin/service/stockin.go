// Package service drives a stock-in from draft session to durable commit.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wareflow/wareflow-backend/internal/stockin/allocation"
	"github.com/wareflow/wareflow-backend/internal/stockin/barcode"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/internal/stockin/session"
	"github.com/wareflow/wareflow-backend/internal/stockin/status"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// Catalog is the read side the service needs from the store
type Catalog interface {
	GetRequest(ctx context.Context, id string) (*domain.StockInRequest, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	LocationInWarehouse(ctx context.Context, warehouseID, locationID string) (bool, error)
}

// Committer makes a finalized draft durable
type Committer interface {
	Commit(ctx context.Context, req domain.CommitRequest, observer domain.ProgressFunc) (*domain.CommitResult, error)
}

// ClaimRefresher keeps the barcode reservations of a draft alive
type ClaimRefresher interface {
	Refresh(ctx context.Context, owner string, codes []string) error
}

// StockInService handles the stock-in workflow
type StockInService struct {
	catalog   Catalog
	sessions  session.Store
	allocator *allocation.Allocator
	committer Committer
	board     *status.Board
	claims    ClaimRefresher
	locks     *keyedMutex
	now       func() time.Time
	logger    *logger.Logger
}

// Option configures a StockInService
type Option func(*StockInService)

// WithClaimRefresher renews the barcode claims of a draft every time the
// session is saved, so they last as long as the session does
func WithClaimRefresher(r ClaimRefresher) Option {
	return func(s *StockInService) {
		s.claims = r
	}
}

// NewStockInService creates a new stock-in service
func NewStockInService(
	catalog Catalog,
	sessions session.Store,
	allocator *allocation.Allocator,
	committer Committer,
	board *status.Board,
	log *logger.Logger,
	opts ...Option,
) *StockInService {
	s := &StockInService{
		catalog:   catalog,
		sessions:  sessions,
		allocator: allocator,
		committer: committer,
		board:     board,
		locks:     newKeyedMutex(),
		now:       time.Now,
		logger:    log.WithComponent("stockin.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitResult is the outcome of Submit
type SubmitResult struct {
	Session *session.Session     `json:"session"`
	Result  *domain.CommitResult `json:"result"`
}

// Session operations

// StartSession opens a draft session for a pending stock-in request
func (s *StockInService) StartSession(ctx context.Context, stockInID, userID string) (*session.Session, error) {
	req, err := s.catalog.GetRequest(ctx, stockInID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPending {
		return nil, errors.Conflict(fmt.Sprintf("stock-in request is %s, only pending requests can be placed", req.Status))
	}
	if req.RequestedBoxes < 1 {
		return nil, errors.ValidationField("requested_boxes", "stock-in request has no boxes to place")
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	sess := session.New(req, *product, userID, s.now().UTC())
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.WithSession(sess.ID).Info().
		Str("stock_in_id", stockInID).
		Int("requested_boxes", req.RequestedBoxes).
		Msg("stock-in session started")
	return sess, nil
}

// GetSession loads a session owned by userID
func (s *StockInService) GetSession(ctx context.Context, id, userID string) (*session.Session, error) {
	return s.load(ctx, id, userID)
}

// Proceed moves the session one stage forward
func (s *StockInService) Proceed(ctx context.Context, id, userID string) (*session.Session, error) {
	return s.mutate(ctx, id, userID, (*session.Session).Proceed)
}

// Back moves the session one stage backward
func (s *StockInService) Back(ctx context.Context, id, userID string) (*session.Session, error) {
	return s.mutate(ctx, id, userID, (*session.Session).Back)
}

// Cancel abandons the session. It never waits for a running allocation.
func (s *StockInService) Cancel(ctx context.Context, id, userID string) (*session.Session, error) {
	sess, err := s.mutate(ctx, id, userID, (*session.Session).Cancel)
	if err != nil {
		return nil, err
	}
	s.logger.WithSession(id).Info().Msg("stock-in session cancelled")
	return sess, nil
}

// Allocation

// AllocateBatch places in.Count boxes at one location
func (s *StockInService) AllocateBatch(ctx context.Context, id, userID string, in allocation.Input) (*domain.DraftBatch, *session.Session, error) {
	if err := s.checkLocation(ctx, "", in.WarehouseID, in.LocationID); err != nil {
		return nil, nil, err
	}

	var r *allocation.Reservation
	if _, err := s.mutate(ctx, id, userID, func(sess *session.Session) (err error) {
		r, err = s.allocator.Reserve(sess, in)
		return err
	}); err != nil {
		return nil, nil, err
	}

	batches, sess, err := s.build(ctx, id, userID, r)
	if err != nil {
		return nil, nil, err
	}
	return &batches[0], sess, nil
}

// AllocateBoxes places boxes that carry their own destinations
func (s *StockInService) AllocateBoxes(ctx context.Context, id, userID string, boxes []allocation.BoxSpec) ([]domain.DraftBatch, *session.Session, error) {
	seen := make(map[string]bool)
	for i, b := range boxes {
		key := allocation.LocationKey(b.WarehouseID, b.LocationID)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.checkLocation(ctx, fmt.Sprintf("boxes[%d].", i), b.WarehouseID, b.LocationID); err != nil {
			return nil, nil, err
		}
	}

	var r *allocation.Reservation
	if _, err := s.mutate(ctx, id, userID, func(sess *session.Session) (err error) {
		r, err = s.allocator.ReserveBoxes(sess, boxes)
		return err
	}); err != nil {
		return nil, nil, err
	}

	return s.build(ctx, id, userID, r)
}

// build issues identifiers without holding the session, then applies
func (s *StockInService) build(ctx context.Context, id, userID string, r *allocation.Reservation) ([]domain.DraftBatch, *session.Session, error) {
	batches, err := s.allocator.Build(ctx, r)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.mutate(ctx, id, userID, func(sess *session.Session) error {
		return s.allocator.Apply(sess, batches)
	})
	if err != nil {
		return nil, nil, err
	}
	return batches, sess, nil
}

func (s *StockInService) checkLocation(ctx context.Context, field, warehouseID, locationID string) error {
	if warehouseID == "" || locationID == "" {
		return nil
	}
	ok, err := s.catalog.LocationInWarehouse(ctx, warehouseID, locationID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ValidationField(field+"location_id", "location does not belong to the warehouse")
	}
	return nil
}

// RemoveBatch discards a draft batch
func (s *StockInService) RemoveBatch(ctx context.Context, id, userID, batchID string) (*session.Session, error) {
	return s.mutate(ctx, id, userID, func(sess *session.Session) error {
		return sess.RemoveBatch(batchID)
	})
}

// Preview returns the printable labels of every draft batch
func (s *StockInService) Preview(ctx context.Context, id, userID string) ([]domain.BatchLabel, error) {
	sess, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return sess.Preview(), nil
}

// Label renders the Code 128 label of a barcode issued in the session
func (s *StockInService) Label(ctx context.Context, id, userID, code string, width, height int) ([]byte, error) {
	sess, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !sess.HasBarcode(code) {
		return nil, errors.NotFound("barcode")
	}
	return barcode.RenderLabel(code, width, height)
}

// Submission

// Submit commits the finalized draft. The session is released while the
// commit runs; a second submit meanwhile gets ConcurrencyConflict.
func (s *StockInService) Submit(ctx context.Context, id, userID string) (*SubmitResult, error) {
	var req domain.CommitRequest
	if _, err := s.mutate(ctx, id, userID, func(sess *session.Session) (err error) {
		req, err = sess.BeginSubmit()
		return err
	}); err != nil {
		return nil, err
	}

	log := s.logger.WithSession(id).WithStockIn(req.StockInID, req.RunID)
	log.Info().Int("batches", len(req.Batches)).Int("boxes", req.BoxCount()).Msg("submitting stock-in")

	result, commitErr := s.committer.Commit(ctx, req, func(p domain.Progress) {
		if err := s.board.RecordProgress(context.WithoutCancel(ctx), req.StockInID, req.RunID, p); err != nil {
			log.Warn().Err(err).Msg("failed to record commit progress")
		}
	})
	s.recordOutcome(context.WithoutCancel(ctx), req, result, commitErr)

	sess, err := s.mutate(context.WithoutCancel(ctx), id, userID, func(sess *session.Session) error {
		sess.CompleteSubmit(result, commitErr)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to store submit outcome in session")
	}
	if commitErr != nil {
		return nil, commitErr
	}
	return &SubmitResult{Session: sess, Result: result}, nil
}

// recordOutcome puts the commit outcome on the board so polling works
// without the event consumer
func (s *StockInService) recordOutcome(ctx context.Context, req domain.CommitRequest, result *domain.CommitResult, commitErr error) {
	var err error
	if commitErr == nil {
		err = s.board.RecordCommitted(ctx, req.StockInID, req.RunID, result.Strategy, result.BatchIDs)
	} else if current, getErr := s.catalog.GetRequest(ctx, req.StockInID); getErr == nil {
		reason := commitErr.Error()
		if current.RejectionReason != nil {
			reason = *current.RejectionReason
		}
		err = s.board.RecordStatus(ctx, req.StockInID, req.RunID, current.Status, reason)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("stock_in_id", req.StockInID).Msg("failed to update status board")
	}
}

// RequestStatus reports the status of a stock-in request. The store is
// authoritative for the status; the board adds progress and outcome.
func (s *StockInService) RequestStatus(ctx context.Context, stockInID string) (*status.Snapshot, error) {
	req, err := s.catalog.GetRequest(ctx, stockInID)
	if err != nil {
		return nil, err
	}

	snap, err := s.board.Get(ctx, stockInID)
	if err != nil {
		s.logger.Warn().Err(err).Str("stock_in_id", stockInID).Msg("status board unavailable")
		snap = nil
	}
	if snap == nil {
		snap = &status.Snapshot{StockInID: stockInID, UpdatedAt: req.UpdatedAt}
	}

	snap.Status = req.Status
	if req.RejectionReason != nil {
		snap.Reason = *req.RejectionReason
	}
	return snap, nil
}

// load fetches a session and hides it from other users
func (s *StockInService) load(ctx context.Context, id, userID string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, errors.NotFound("session")
	}
	return sess, nil
}

// mutate runs fn on the session under its lock and saves it if fn succeeds
func (s *StockInService) mutate(ctx context.Context, id, userID string, fn func(*session.Session) error) (*session.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}

	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.refreshClaims(ctx, sess)
	return sess, nil
}

// refreshClaims is best-effort: a lapsed claim is still caught by the
// barcode check at commit time
func (s *StockInService) refreshClaims(ctx context.Context, sess *session.Session) {
	if s.claims == nil || !sess.Holding() {
		return
	}
	codes := sess.Barcodes()
	if len(codes) == 0 {
		return
	}
	if err := s.claims.Refresh(ctx, sess.ID, codes); err != nil {
		s.logger.WithSession(sess.ID).Warn().Err(err).Int("barcodes", len(codes)).Msg("failed to refresh barcode claims")
	}
}
