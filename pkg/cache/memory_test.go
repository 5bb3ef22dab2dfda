package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_SetNX(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()

	ok, err := c.SetNX(ctx, "claim", "session-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "claim", "session-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claimer must lose")

	got, _ := c.Get(ctx, "claim")
	assert.Equal(t, "session-a", got)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ok, err := c.SetNX(ctx, "claim", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, err = c.Get(ctx, "claim")
	assert.ErrorIs(t, err, ErrCacheMiss)

	ok, err = c.SetNX(ctx, "claim", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim can be taken again")
}
