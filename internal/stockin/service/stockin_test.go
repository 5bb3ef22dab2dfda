package service

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stockin/allocation"
	"github.com/wareflow/wareflow-backend/internal/stockin/barcode"
	"github.com/wareflow/wareflow-backend/internal/stockin/commit"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/internal/stockin/session"
	"github.com/wareflow/wareflow-backend/internal/stockin/status"
	"github.com/wareflow/wareflow-backend/internal/stockin/stockintest"
	"github.com/wareflow/wareflow-backend/pkg/cache"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

const testUser = "user-1"

type fixture struct {
	svc    *StockInService
	ledger *stockintest.Ledger
	seed   stockintest.Seed
	board  *status.Board
}

type issuerFunc func(ctx context.Context, prefix, sku string, start, count int) ([]string, error)

func (f issuerFunc) GenerateBatch(ctx context.Context, prefix, sku string, start, count int) ([]string, error) {
	return f(ctx, prefix, sku, start, count)
}

func newFixture(t *testing.T, boxes int, issuer allocation.Issuer) *fixture {
	t.Helper()
	ledger := stockintest.NewLedger()
	seed := ledger.SeedWidget(boxes)
	mem := cache.NewMemoryClient()

	if issuer == nil {
		issuer = barcode.NewGenerator(ledger, barcode.NewCacheClaimer(mem, time.Minute))
	}
	processor := commit.NewProcessor(ledger, nil, commit.NewLocalStrategy(ledger, nil, logger.Nop()), nil, logger.Nop())
	board := status.NewBoard(mem, time.Hour)

	svc := NewStockInService(
		ledger,
		session.NewCacheStore(mem, time.Hour),
		allocation.New(issuer, logger.Nop()),
		processor,
		board,
		logger.Nop(),
	)
	return &fixture{svc: svc, ledger: ledger, seed: seed, board: board}
}

func (f *fixture) start(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.svc.StartSession(context.Background(), f.seed.Request.ID, testUser)
	require.NoError(t, err)
	return sess
}

func (f *fixture) toDefinition(t *testing.T) *session.Session {
	t.Helper()
	sess := f.start(t)
	sess, err := f.svc.Proceed(context.Background(), sess.ID, testUser)
	require.NoError(t, err)
	require.Equal(t, session.StageDefinition, sess.Stage)
	return sess
}

func (f *fixture) input(locationID string, count int) allocation.Input {
	return allocation.Input{
		WarehouseID:    f.seed.WarehouseID,
		LocationID:     locationID,
		Count:          count,
		QuantityPerBox: decimal.NewFromInt(10),
	}
}

func TestStockInService_WidgetEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := f.toDefinition(t)
	assert.Equal(t, 6, sess.Remaining())

	batchA, sess, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, batchA.BoxCount())
	assert.Equal(t, 2, sess.Remaining())
	for _, code := range batchA.Barcodes() {
		assert.True(t, strings.HasPrefix(code, "WID-WID-1-"), code)
	}

	_, sess, err = f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationB, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Remaining())

	sess, err = f.svc.Proceed(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, session.StageFinalize, sess.Stage)

	labels, err := f.svc.Preview(ctx, sess.ID, testUser)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, domain.BatchCode(f.seed.Request.ID, 1), labels[0].Code)

	out, err := f.svc.Submit(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Len(t, out.Result.BatchIDs, 2)
	assert.Equal(t, session.StageSubmitted, out.Session.Stage)
	assert.Equal(t, session.CommitSucceeded, out.Session.Commit.State)

	assert.Len(t, f.ledger.Batches(), 2)
	assert.Len(t, f.ledger.Items(), 6)
	assert.Len(t, f.ledger.Inventory(), 6)
	assert.Equal(t, domain.StatusCompleted, f.ledger.Status(f.seed.Request.ID))

	snap, err := f.svc.RequestStatus(ctx, f.seed.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.Equal(t, out.Result.BatchIDs, snap.BatchIDs)
}

func TestStockInService_CountAboveRemainingLeavesSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := f.toDefinition(t)

	_, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 7))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	sess, err = f.svc.GetSession(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, 6, sess.Remaining())
	assert.Empty(t, sess.Batches)
	assert.Equal(t, 1, sess.NextSequence)
}

func TestStockInService_LocationMustBelongToWarehouse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := f.toDefinition(t)

	_, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input("elsewhere", 2))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestStockInService_AllocateBoxesGroupsByLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := f.toDefinition(t)
	spec := func(loc string) allocation.BoxSpec {
		return allocation.BoxSpec{WarehouseID: f.seed.WarehouseID, LocationID: loc, Quantity: decimal.NewFromInt(5)}
	}

	batches, sess, err := f.svc.AllocateBoxes(ctx, sess.ID, testUser, []allocation.BoxSpec{
		spec(f.seed.LocationA), spec(f.seed.LocationB), spec(f.seed.LocationA),
	})

	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 2, batches[0].BoxCount())
	assert.Equal(t, 1, batches[1].BoxCount())
	assert.Equal(t, 3, sess.Remaining())
}

func TestStockInService_RemoveBatchReturnsBoxes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := f.toDefinition(t)

	batch, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 4))
	require.NoError(t, err)

	sess, err = f.svc.RemoveBatch(ctx, sess.ID, testUser, batch.TempID)
	require.NoError(t, err)
	assert.Equal(t, 6, sess.Remaining())
	assert.Equal(t, 5, sess.NextSequence)
}

func TestStockInService_CancelDuringIssuanceDiscardsTheAllocation(t *testing.T) {
	ctx := context.Background()
	reached := make(chan struct{})
	release := make(chan struct{})
	issuer := issuerFunc(func(_ context.Context, prefix, sku string, start, count int) ([]string, error) {
		close(reached)
		<-release
		codes := make([]string, count)
		for i := range codes {
			codes[i] = barcode.Compose(prefix, sku, start+i, "TEST")
		}
		return codes, nil
	})
	f := newFixture(t, 6, issuer)
	sess := f.toDefinition(t)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 4))
		errCh <- err
	}()
	<-reached

	cancelled, err := f.svc.Cancel(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, session.StageCancelled, cancelled.Stage)

	close(release)
	assert.True(t, errors.Is(<-errCh, errors.ErrInvalidStage))

	sess, err = f.svc.GetSession(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Empty(t, sess.Batches)
}

func TestStockInService_IssuanceFailureLeavesNoDraft(t *testing.T) {
	ctx := context.Background()
	issuer := issuerFunc(func(context.Context, string, string, int, int) ([]string, error) {
		return nil, errors.GenerationExhausted(5, "WID-WID-1-0001-AAAA")
	})
	f := newFixture(t, 6, issuer)
	sess := f.toDefinition(t)

	_, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 2))
	assert.True(t, errors.Is(err, errors.ErrGenerationExhausted))

	sess, err = f.svc.GetSession(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, 6, sess.Remaining())
}

func TestStockInService_StartRequiresPendingRequest(t *testing.T) {
	f := newFixture(t, 6, nil)
	_, err := f.ledger.TransitionStatus(context.Background(), f.seed.Request.ID, domain.StatusPending, domain.StatusCompleted)
	require.NoError(t, err)

	_, err = f.svc.StartSession(context.Background(), f.seed.Request.ID, testUser)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestStockInService_SessionsAreHiddenFromOtherUsers(t *testing.T) {
	f := newFixture(t, 6, nil)
	sess := f.start(t)

	_, err := f.svc.GetSession(context.Background(), sess.ID, "someone-else")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStockInService_Label(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := f.toDefinition(t)
	batch, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 1))
	require.NoError(t, err)

	png, err := f.svc.Label(ctx, sess.ID, testUser, batch.Boxes[0].Barcode, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	_, err = f.svc.Label(ctx, sess.ID, testUser, "NOT-ISSUED", 0, 0)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func finalized(t *testing.T, f *fixture) *session.Session {
	t.Helper()
	ctx := context.Background()
	sess := f.toDefinition(t)
	_, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 4))
	require.NoError(t, err)
	_, _, err = f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationB, 2))
	require.NoError(t, err)
	sess, err = f.svc.Proceed(ctx, sess.ID, testUser)
	require.NoError(t, err)
	return sess
}

func TestStockInService_FailedSubmitIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := finalized(t, f)
	f.ledger.FailAt("CreateInventory", 3, stderrors.New("disk full"))

	_, err := f.svc.Submit(ctx, sess.ID, testUser)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLocalCommit))

	sess, err = f.svc.GetSession(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, session.CommitFailed, sess.Commit.State)
	assert.Equal(t, "LOCAL_COMMIT_FAILURE", sess.Commit.ErrorCode)

	snap, err := f.svc.RequestStatus(ctx, f.seed.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, snap.Status)
	assert.Contains(t, snap.Reason, "disk full")
	assert.Empty(t, f.ledger.Inventory())
}

func TestStockInService_ResubmitAfterSuccessReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := finalized(t, f)

	first, err := f.svc.Submit(ctx, sess.ID, testUser)
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, sess.ID, testUser)
	require.NoError(t, err)

	assert.True(t, second.Result.Replayed)
	assert.Equal(t, first.Result.BatchIDs, second.Result.BatchIDs)
	assert.Equal(t, 2, second.Session.Commit.Attempts)
	assert.Len(t, f.ledger.Inventory(), 6)
}

func TestStockInService_SecondSubmitWhileInFlightConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	sess := finalized(t, f)

	reached := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.ledger.SetHook(func(op string) {
		if op == "CreateBatch" {
			once.Do(func() {
				close(reached)
				<-release
			})
		}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(ctx, sess.ID, testUser)
		errCh <- err
	}()
	<-reached

	_, err := f.svc.Submit(ctx, sess.ID, testUser)
	assert.True(t, errors.Is(err, errors.ErrConcurrencyConflict))

	_, err = f.svc.Cancel(ctx, sess.ID, testUser)
	assert.True(t, errors.Is(err, errors.ErrInvalidStage))

	close(release)
	require.NoError(t, <-errCh)
	assert.Len(t, f.ledger.Batches(), 2)
}

func TestStockInService_RequestStatusWithoutBoardEntry(t *testing.T) {
	f := newFixture(t, 6, nil)

	snap, err := f.svc.RequestStatus(context.Background(), f.seed.Request.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, snap.Status)
	assert.Nil(t, snap.Progress)
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)
}

type recordingRefresher struct {
	mu    sync.Mutex
	owner []string
	codes [][]string
}

func (r *recordingRefresher) Refresh(_ context.Context, owner string, codes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = append(r.owner, owner)
	r.codes = append(r.codes, codes)
	return nil
}

func TestStockInService_SavingADraftRefreshesItsClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6, nil)
	refresher := &recordingRefresher{}
	WithClaimRefresher(refresher)(f.svc)

	sess := f.toDefinition(t)
	assert.Empty(t, refresher.owner)

	batch, _, err := f.svc.AllocateBatch(ctx, sess.ID, testUser, f.input(f.seed.LocationA, 4))
	require.NoError(t, err)
	require.Len(t, refresher.codes, 1)
	assert.Equal(t, sess.ID, refresher.owner[0])
	assert.Equal(t, batch.Barcodes(), refresher.codes[0])

	_, err = f.svc.Back(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Len(t, refresher.codes, 2)

	_, err = f.svc.Cancel(ctx, sess.ID, testUser)
	require.NoError(t, err)
	assert.Len(t, refresher.codes, 2)
}
