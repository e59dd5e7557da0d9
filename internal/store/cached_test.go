package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/buyer-universe/internal/cache"
)

func TestNewCached_NilCachePassesThrough(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.Same(t, st, NewCached(st, nil, "u:", time.Minute))
}

func TestCachedStore_ReadThroughAndInvalidate(t *testing.T) {
	base := newTestSQLiteStore(t)
	mem := cache.NewMemory()
	st := NewCached(base, mem, "u:", time.Minute)
	ctx := context.Background()
	_, b, _ := seedUniverse(t, st)

	got, err := st.GetBuyer(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Comfort Partners", got.Name)
	_, hit, _ := mem.Get(ctx, "u:buyer:"+b.ID)
	assert.True(t, hit)

	// A write that bypasses the wrapper is invisible until invalidation.
	got.Name = "Renamed Directly"
	require.NoError(t, base.UpdateBuyer(ctx, got))
	stale, err := st.GetBuyer(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Comfort Partners", stale.Name)

	got.Name = "Renamed Through Cache"
	require.NoError(t, st.UpdateBuyer(ctx, got))
	fresh, err := st.GetBuyer(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Through Cache", fresh.Name)
}

func TestCachedStore_DeleteTrackerDropsChildren(t *testing.T) {
	base := newTestSQLiteStore(t)
	mem := cache.NewMemory()
	st := NewCached(base, mem, "u:", time.Minute)
	ctx := context.Background()
	tr, b, d := seedUniverse(t, st)

	_, err := st.GetTracker(ctx, tr.ID)
	require.NoError(t, err)
	_, err = st.GetBuyer(ctx, b.ID)
	require.NoError(t, err)
	_, err = st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, mem.Len())

	require.NoError(t, st.DeleteTracker(ctx, tr.ID))
	assert.Equal(t, 0, mem.Len())

	_, err = st.GetBuyer(ctx, b.ID)
	assert.True(t, IsNotFound(err))
}

func TestCachedStore_MissIsNotCached(t *testing.T) {
	base := newTestSQLiteStore(t)
	mem := cache.NewMemory()
	st := NewCached(base, mem, "u:", time.Minute)

	_, err := st.GetDeal(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, mem.Len())
}
