// Package stockintest provides an in-memory stock-in store for tests. It
// implements the commit ledger, the barcode checker and the catalog lookups
// with real transaction rollback and failure injection.
package stockintest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// Transition is one recorded status change
type Transition struct {
	StockInID string
	From      domain.Status
	To        domain.Status
}

type failure struct {
	at  int
	err error
}

type txKey struct{}

type journal struct {
	undo []func()
}

// Ledger is an in-memory stock-in store. Transactions are serialized and
// rolled back by replaying an undo journal.
type Ledger struct {
	mu   sync.Mutex
	txMu sync.Mutex

	requests  map[string]*domain.StockInRequest
	products  map[string]domain.Product
	locations map[string]string
	barcodes  map[string]bool

	batches   []domain.BatchRecord
	boxes     []domain.BoxRecord
	items     []domain.BatchItemRecord
	inventory []domain.InventoryRecord
	history   []Transition

	calls    map[string]int
	failures map[string]failure
	hook     func(op string)
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		requests:  make(map[string]*domain.StockInRequest),
		products:  make(map[string]domain.Product),
		locations: make(map[string]string),
		barcodes:  make(map[string]bool),
		calls:     make(map[string]int),
		failures:  make(map[string]failure),
	}
}

// Seed is the Widget catalog with one pending request
type Seed struct {
	Request     *domain.StockInRequest
	Product     domain.Product
	WarehouseID string
	LocationA   string
	LocationB   string
}

// SeedWidget adds product "Widget" (SKU WID-1), warehouse WH1 with
// locations LocA and LocB, and a pending request for boxes boxes
func (l *Ledger) SeedWidget(boxes int) Seed {
	product := domain.Product{ID: uuid.NewString(), Name: "Widget", SKU: "WID-1", Category: "Widgets"}
	seed := Seed{
		Product:     product,
		WarehouseID: uuid.NewString(),
		LocationA:   uuid.NewString(),
		LocationB:   uuid.NewString(),
	}
	l.AddProduct(product)
	l.AddLocation(seed.WarehouseID, seed.LocationA)
	l.AddLocation(seed.WarehouseID, seed.LocationB)
	seed.Request = l.AddRequest(product.ID, boxes)
	return seed
}

// AddProduct registers a product
func (l *Ledger) AddProduct(p domain.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products[p.ID] = p
}

// AddLocation registers a location inside a warehouse
func (l *Ledger) AddLocation(warehouseID, locationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locations[locationID] = warehouseID
}

// AddRequest creates a pending stock-in request
func (l *Ledger) AddRequest(productID string, boxes int) *domain.StockInRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	req := &domain.StockInRequest{
		ID:             uuid.NewString(),
		ProductID:      productID,
		RequestedBoxes: boxes,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.requests[req.ID] = req
	cp := *req
	return &cp
}

// AddIssuedBarcode marks code as already persisted
func (l *Ledger) AddIssuedBarcode(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.barcodes[code] = true
}

// FailAt makes the n-th call (1-based, counted from now) of op return err.
// op is a method name such as "CreateInventory".
func (l *Ledger) FailAt(op string, n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op] = failure{at: l.calls[op] + n, err: err}
}

// SetHook installs fn, called with the method name before every operation
func (l *Ledger) SetHook(fn func(op string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = fn
}

// enter runs the hook and counts the call. It returns with mu held.
func (l *Ledger) enter(op string) error {
	l.mu.Lock()
	hook := l.hook
	l.mu.Unlock()
	if hook != nil {
		hook(op)
	}

	l.mu.Lock()
	l.calls[op]++
	if f, ok := l.failures[op]; ok && l.calls[op] == f.at {
		return f.err
	}
	return nil
}

func (l *Ledger) onRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// RunInTx implements commit.Ledger
func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		l.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

// GetRequest implements commit.Ledger
func (l *Ledger) GetRequest(ctx context.Context, id string) (*domain.StockInRequest, error) {
	err := l.enter("GetRequest")
	defer l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	req, ok := l.requests[id]
	if !ok {
		return nil, errors.NotFound("stock-in request")
	}
	cp := *req
	return &cp, nil
}

// LockRequest implements commit.Ledger. Transactions are serialized, so
// the lock itself is implicit.
func (l *Ledger) LockRequest(ctx context.Context, id string) (*domain.StockInRequest, error) {
	if _, ok := ctx.Value(txKey{}).(*journal); !ok {
		return nil, fmt.Errorf("LockRequest outside a transaction")
	}
	return l.GetRequest(ctx, id)
}

// TransitionStatus implements commit.Ledger
func (l *Ledger) TransitionStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
	err := l.enter("TransitionStatus")
	defer l.mu.Unlock()
	if err != nil {
		return false, err
	}

	req, ok := l.requests[id]
	if !ok || req.Status != from {
		return false, nil
	}
	l.setStatus(ctx, req, to, nil)
	return true, nil
}

// MarkRejected implements commit.Ledger
func (l *Ledger) MarkRejected(ctx context.Context, id, reason string) error {
	err := l.enter("MarkRejected")
	defer l.mu.Unlock()
	if err != nil {
		return err
	}

	req, ok := l.requests[id]
	if !ok || req.Status != domain.StatusProcessing {
		return errors.Conflict("stock-in request is not processing")
	}
	l.setStatus(ctx, req, domain.StatusRejected, &reason)
	return nil
}

// setStatus must be called with mu held
func (l *Ledger) setStatus(ctx context.Context, req *domain.StockInRequest, to domain.Status, reason *string) {
	prev, prevReason, n := req.Status, req.RejectionReason, len(l.history)
	l.history = append(l.history, Transition{StockInID: req.ID, From: prev, To: to})
	req.Status = to
	req.RejectionReason = reason
	l.onRollback(ctx, func() {
		req.Status = prev
		req.RejectionReason = prevReason
		l.history = l.history[:n]
	})
}

// FindBatchIDsByRun implements commit.Ledger
func (l *Ledger) FindBatchIDsByRun(ctx context.Context, stockInID, runID string) ([]string, error) {
	err := l.enter("FindBatchIDsByRun")
	defer l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var matched []domain.BatchRecord
	for _, b := range l.batches {
		if b.StockInID == stockInID && b.RunID == runID {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Sequence < matched[j].Sequence })

	ids := make([]string, len(matched))
	for i, b := range matched {
		ids[i] = b.ID
	}
	return ids, nil
}

// BarcodeExists implements commit.Ledger and barcode.Checker
func (l *Ledger) BarcodeExists(ctx context.Context, code string) (bool, error) {
	err := l.enter("BarcodeExists")
	defer l.mu.Unlock()
	if err != nil {
		return false, err
	}
	return l.barcodes[code], nil
}

// CreateBatch implements commit.Ledger
func (l *Ledger) CreateBatch(ctx context.Context, batch *domain.BatchRecord) error {
	err := l.enter("CreateBatch")
	defer l.mu.Unlock()
	if err != nil {
		return err
	}
	for _, b := range l.batches {
		if b.StockInID == batch.StockInID && b.RunID == batch.RunID && b.Sequence == batch.Sequence {
			return errors.Conflict("this batch was already recorded for the submission run")
		}
	}

	n := len(l.batches)
	l.batches = append(l.batches, *batch)
	l.onRollback(ctx, func() { l.batches = l.batches[:n] })
	return nil
}

// CreateBox implements commit.Ledger
func (l *Ledger) CreateBox(ctx context.Context, box *domain.BoxRecord) error {
	err := l.enter("CreateBox")
	defer l.mu.Unlock()
	if err != nil {
		return err
	}
	if l.barcodes[box.Barcode] {
		return errors.Conflict("a box with this barcode has already been issued")
	}

	n := len(l.boxes)
	l.boxes = append(l.boxes, *box)
	l.barcodes[box.Barcode] = true
	code := box.Barcode
	l.onRollback(ctx, func() {
		l.boxes = l.boxes[:n]
		delete(l.barcodes, code)
	})
	return nil
}

// CreateBatchItem implements commit.Ledger
func (l *Ledger) CreateBatchItem(ctx context.Context, item *domain.BatchItemRecord) error {
	err := l.enter("CreateBatchItem")
	defer l.mu.Unlock()
	if err != nil {
		return err
	}
	if !l.batchExists(item.BatchID) {
		return errors.BadRequest("referenced batch does not exist")
	}

	n := len(l.items)
	l.items = append(l.items, *item)
	l.onRollback(ctx, func() { l.items = l.items[:n] })
	return nil
}

// CreateInventory implements commit.Ledger
func (l *Ledger) CreateInventory(ctx context.Context, inv *domain.InventoryRecord) error {
	err := l.enter("CreateInventory")
	defer l.mu.Unlock()
	if err != nil {
		return err
	}
	if !l.batchExists(inv.BatchID) {
		return errors.BadRequest("referenced batch does not exist")
	}

	n := len(l.inventory)
	l.inventory = append(l.inventory, *inv)
	l.onRollback(ctx, func() { l.inventory = l.inventory[:n] })
	return nil
}

func (l *Ledger) batchExists(id string) bool {
	for _, b := range l.batches {
		if b.ID == id {
			return true
		}
	}
	return false
}

// GetProduct returns a registered product
func (l *Ledger) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	err := l.enter("GetProduct")
	defer l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p, ok := l.products[id]
	if !ok {
		return nil, errors.NotFound("product")
	}
	return &p, nil
}

// LocationInWarehouse reports whether locationID belongs to warehouseID
func (l *Ledger) LocationInWarehouse(ctx context.Context, warehouseID, locationID string) (bool, error) {
	err := l.enter("LocationInWarehouse")
	defer l.mu.Unlock()
	if err != nil {
		return false, err
	}
	return l.locations[locationID] == warehouseID, nil
}

// Status returns the current status of a request
func (l *Ledger) Status(id string) domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if req, ok := l.requests[id]; ok {
		return req.Status
	}
	return ""
}

// RejectionReason returns the stored rejection reason of a request
func (l *Ledger) RejectionReason(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if req, ok := l.requests[id]; ok && req.RejectionReason != nil {
		return *req.RejectionReason
	}
	return ""
}

// History returns every status transition so far
func (l *Ledger) History() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.history...)
}

// Batches returns the committed batch records
func (l *Ledger) Batches() []domain.BatchRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.BatchRecord(nil), l.batches...)
}

// Boxes returns the committed box records
func (l *Ledger) Boxes() []domain.BoxRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.BoxRecord(nil), l.boxes...)
}

// Items returns the committed batch items
func (l *Ledger) Items() []domain.BatchItemRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.BatchItemRecord(nil), l.items...)
}

// Inventory returns the committed inventory records
func (l *Ledger) Inventory() []domain.InventoryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.InventoryRecord(nil), l.inventory...)
}

// Calls returns how often op was invoked
func (l *Ledger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}
