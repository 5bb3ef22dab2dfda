package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stockin/domain"
	"github.com/wareflow/wareflow-backend/pkg/cache"
)

func TestBoard_Lifecycle(t *testing.T) {
	ctx := context.Background()
	board := NewBoard(cache.NewMemoryClient(), 0)

	snap, err := board.Get(ctx, "si-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, board.RecordStatus(ctx, "si-1", "run-1", domain.StatusProcessing, ""))
	require.NoError(t, board.RecordProgress(ctx, "si-1", "run-1", domain.Progress{Current: 1, Total: 2}))
	require.NoError(t, board.RecordCommitted(ctx, "si-1", "run-1", domain.StrategyLocal, []string{"b1", "b2"}))

	snap, err = board.Get(ctx, "si-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.Equal(t, []string{"b1", "b2"}, snap.BatchIDs)
	assert.Equal(t, 2, snap.Progress.Current)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestBoard_ProgressNeverGoesBack(t *testing.T) {
	ctx := context.Background()
	board := NewBoard(cache.NewMemoryClient(), 0)

	require.NoError(t, board.RecordProgress(ctx, "si-1", "run-1", domain.Progress{Current: 2, Total: 3}))
	require.NoError(t, board.RecordProgress(ctx, "si-1", "run-1", domain.Progress{Current: 1, Total: 3}))

	snap, err := board.Get(ctx, "si-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Progress.Current)
}

func TestBoard_LateStatusDoesNotReopenTerminal(t *testing.T) {
	ctx := context.Background()
	board := NewBoard(cache.NewMemoryClient(), 0)

	require.NoError(t, board.RecordStatus(ctx, "si-1", "run-1", domain.StatusRejected, "disk full"))
	require.NoError(t, board.RecordStatus(ctx, "si-1", "run-1", domain.StatusProcessing, ""))

	snap, err := board.Get(ctx, "si-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, snap.Status)
	assert.Equal(t, "disk full", snap.Reason)
}

func TestBoard_NewRunStartsFresh(t *testing.T) {
	ctx := context.Background()
	board := NewBoard(cache.NewMemoryClient(), 0)

	require.NoError(t, board.RecordProgress(ctx, "si-1", "run-1", domain.Progress{Current: 2, Total: 2}))
	require.NoError(t, board.RecordFallback(ctx, "si-1", "run-2", "remote down"))

	snap, err := board.Get(ctx, "si-1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", snap.RunID)
	assert.Nil(t, snap.Progress)
	assert.True(t, snap.FellBack)
}
