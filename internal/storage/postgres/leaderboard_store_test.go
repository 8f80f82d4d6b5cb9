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

func TestLeaderboardStore_TopUsers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := newStores(pool)

	recordSwap(t, ctx, st, "s1", "0xc", "", "100")
	recordSwap(t, ctx, st, "s2", "0xa", "", "300")
	recordSwap(t, ctx, st, "s3", "0xb", "", "500")
	recordSwap(t, ctx, st, "s4", "0xd", "", "100")
	_, err := st.groups.UpsertProfile(ctx, "0xb", "bob", "https://img/b.png")
	require.NoError(t, err)

	entries, err := st.leaderboard.TopUsers(ctx, storage.LeaderboardFilter{SortBy: domain.SortByVolume, Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 4)

	want := []string{"0xb", "0xa", "0xc", "0xd"}
	for i, e := range entries {
		assert.Equal(t, want[i], e.Address)
	}
	assert.Equal(t, "bob", entries[0].Username)

	page, err := st.leaderboard.TopUsers(ctx, storage.LeaderboardFilter{SortBy: domain.SortByVolume, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "0xc", page[0].Address)
}

func TestLeaderboardStore_TopUsersWindowed(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := newStores(pool)

	recordSwap(t, ctx, st, "s1", "0xa", "", "100")
	recordSwap(t, ctx, st, "s2", "0xb", "", "50")
	recordSwap(t, ctx, st, "s3", "0xc", "", "1000")
	completeSwap(t, ctx, st, "s1", "h1", ptr("90"))
	completeSwap(t, ctx, st, "s2", "h2", ptr("60"))

	since := time.Now().Add(-24 * time.Hour)
	entries, err := st.leaderboard.TopUsers(ctx, storage.LeaderboardFilter{
		SortBy: domain.SortByPnlPercent, Since: &since, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2, "pending swaps are excluded from windowed boards")
	assert.Equal(t, "0xb", entries[0].Address)
	assert.True(t, entries[0].TotalPnlPercent.Equal(dec("20")))
	assert.Equal(t, int64(1), entries[0].TotalSwaps)

	future := time.Now().Add(time.Hour)
	entries, err = st.leaderboard.TopUsers(ctx, storage.LeaderboardFilter{SortBy: domain.SortByVolume, Since: &future, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLeaderboardStore_MembersWithoutCompletedSwaps(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := newStores(pool)

	_, err := st.groups.CreateGroup(ctx, domain.NewGroup{GroupID: "g1", Name: "g1"})
	require.NoError(t, err)
	for _, addr := range []string{"0xa", "0xb"} {
		_, err := st.groups.AddMember(ctx, "g1", addr)
		require.NoError(t, err)
	}

	recordSwap(t, ctx, st, "s1", "0xa", "g1", "100")
	recordSwap(t, ctx, st, "s2", "0xb", "g1", "250")
	_, _, err = st.ledger.FailSwap(ctx, "s2")
	require.NoError(t, err)

	members, err := st.leaderboard.TopGroupMembers(ctx, "g1", 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestLeaderboardStore_TopGroupsAndMembers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := newStores(pool)

	for _, id := range []string{"g1", "g2", "g3"} {
		_, err := st.groups.CreateGroup(ctx, domain.NewGroup{GroupID: id, Name: id})
		require.NoError(t, err)
	}
	for _, addr := range []string{"0xa", "0xb", "0xc"} {
		_, err := st.groups.AddMember(ctx, "g1", addr)
		require.NoError(t, err)
	}

	recordSwap(t, ctx, st, "s1", "0xa", "g1", "10")
	recordSwap(t, ctx, st, "s2", "0xb", "g1", "30")
	recordSwap(t, ctx, st, "s3", "0xc", "g1", "30")
	recordSwap(t, ctx, st, "s4", "0xa", "g2", "5")
	recordSwap(t, ctx, st, "s5", "0xa", "g3", "500")
	require.NoError(t, st.groups.SetGroupActive(ctx, "g3", false))

	groups, err := st.leaderboard.TopGroups(ctx, storage.LeaderboardFilter{SortBy: domain.SortByVolume, Limit: 10})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "g1", groups[0].GroupID)
	assert.Equal(t, int64(3), groups[0].MemberCount)
	assert.Equal(t, "g2", groups[1].GroupID)

	members, err := st.leaderboard.TopGroupMembers(ctx, "g1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, members, "no completed swaps yet")

	completeSwap(t, ctx, st, "s1", "h1", nil)
	completeSwap(t, ctx, st, "s2", "h2", nil)
	completeSwap(t, ctx, st, "s3", "h3", nil)

	members, err = st.leaderboard.TopGroupMembers(ctx, "g1", 10, 0)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "0xb", members[0].Address, "tie on volume breaks by address")
	assert.Equal(t, "0xc", members[1].Address)
	assert.Equal(t, "0xa", members[2].Address)
}
