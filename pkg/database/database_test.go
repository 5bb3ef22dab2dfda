package database_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/testutil"
)

func TestRunInTx_NestedCallsShareTransaction(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	db := mockDB.Database()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE stock_in").WillReturnResult(testutil.MockResult(1))
	mockDB.ExpectExec("INSERT INTO processed_batches").WillReturnResult(testutil.MockResult(1))
	mockDB.ExpectCommit()

	err := db.RunInTx(context.Background(), func(ctx context.Context) error {
		if _, err := db.Conn(ctx).ExecContext(ctx, "UPDATE stock_in SET status = 'processing'"); err != nil {
			return err
		}
		return db.RunInTx(ctx, func(ctx context.Context) error {
			_, err := db.Conn(ctx).ExecContext(ctx, "INSERT INTO processed_batches DEFAULT VALUES")
			return err
		})
	})

	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestRunInTx_ErrorRollsBack(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	db := mockDB.Database()
	boom := stderrors.New("write failed")

	mockDB.ExpectBegin()
	mockDB.ExpectRollback()

	err := db.RunInTx(context.Background(), func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	mockDB.ExpectationsWereMet(t)
}

func TestRunInTx_PanicRollsBack(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	db := mockDB.Database()

	mockDB.ExpectBegin()
	mockDB.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.RunInTx(context.Background(), func(context.Context) error { panic("boom") })
	})
	mockDB.ExpectationsWereMet(t)
}

func TestRunInTx_CommitConstraintMapped(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	db := mockDB.Database()

	mockDB.ExpectBegin()
	mockDB.ExpectCommit().WillReturnError(&pq.Error{Code: "23505", Constraint: "boxes_barcode_key"})

	err := db.RunInTx(context.Background(), func(context.Context) error { return nil })

	assert.True(t, errors.Is(err, errors.ErrConflict))
	mockDB.ExpectationsWereMet(t)
}

func TestConn_OutsideTransactionUsesPool(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	db := mockDB.Database()

	assert.Same(t, db.DB, db.Conn(context.Background()))
}
