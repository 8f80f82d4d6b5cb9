package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

func TestStatsStore_RanksAndTotals(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := newStores(pool)

	recordSwap(t, ctx, st, "s1", "0xa", "", "500")
	recordSwap(t, ctx, st, "s2", "0xb", "", "300")
	recordSwap(t, ctx, st, "s3", "0xc", "", "300")
	completeSwap(t, ctx, st, "s1", "h1", ptr("550"))
	completeSwap(t, ctx, st, "s2", "h2", ptr("270"))

	rank, err := st.stats.UserRank(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)

	rank, err = st.stats.UserRank(ctx, "0xc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	_, err = st.stats.UserRank(ctx, "0xnobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	totals, err := st.stats.GlobalTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.TotalUsers)
	assert.Equal(t, int64(2), totals.CompletedSwaps)
	assert.True(t, totals.TotalVolumeUSD.Equal(dec("800")))
	assert.True(t, totals.TotalPnlUSD.Equal(dec("20")))
}

func TestStatsStore_BestWorstSwaps(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := newStores(pool)

	bw, err := st.stats.BestWorstSwaps(ctx, "0xa")
	require.NoError(t, err)
	assert.Nil(t, bw.Best)

	recordSwap(t, ctx, st, "s1", "0xa", "", "100")
	recordSwap(t, ctx, st, "s2", "0xa", "", "100")
	recordSwap(t, ctx, st, "s3", "0xa", "", "100")
	completeSwap(t, ctx, st, "s1", "h1", ptr("140"))
	completeSwap(t, ctx, st, "s2", "h2", ptr("80"))
	completeSwap(t, ctx, st, "s3", "h3", nil)

	bw, err = st.stats.BestWorstSwaps(ctx, "0xa")
	require.NoError(t, err)
	require.NotNil(t, bw.Best)
	require.NotNil(t, bw.Worst)
	assert.Equal(t, "s1", bw.Best.ID)
	assert.Equal(t, "s2", bw.Worst.ID)
}

func TestStatsStore_GroupDailyVolumeAndRank(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := newStores(pool)

	_, err := st.groups.CreateGroup(ctx, domain.NewGroup{GroupID: "g1"})
	require.NoError(t, err)
	_, err = st.groups.CreateGroup(ctx, domain.NewGroup{GroupID: "g2"})
	require.NoError(t, err)
	_, err = st.groups.AddMember(ctx, "g1", "0xa")
	require.NoError(t, err)

	recordSwap(t, ctx, st, "s1", "0xa", "g1", "12.5")
	recordSwap(t, ctx, st, "s2", "0xa", "g1", "7.5")
	recordSwap(t, ctx, st, "s3", "0xa", "g2", "100")
	completeSwap(t, ctx, st, "s1", "h1", nil)
	completeSwap(t, ctx, st, "s2", "h2", nil)

	// Move one completion to an earlier day.
	_, err = pool.Exec(ctx, `UPDATE swaps SET completed_at = completed_at - INTERVAL '2 days' WHERE id = 's2'`)
	require.NoError(t, err)

	days, err := st.stats.GroupDailyVolume(ctx, "g1", time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.True(t, days[0].Volume.Equal(dec("7.5")))
	assert.True(t, days[1].Volume.Equal(dec("12.5")))
	assert.Equal(t, time.UTC, days[0].Day.Location())
	assert.Equal(t, 0, days[0].Day.Hour())

	rank, err := st.stats.GroupRank(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	n, err := st.stats.CountGroupMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
