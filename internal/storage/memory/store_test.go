package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSwap(id, user, group, usd string) *domain.Swap {
	return &domain.Swap{
		ID:            id,
		UserAddress:   user,
		GroupID:       group,
		FromToken:     "USDC",
		ToToken:       "ETH",
		FromAmount:    dec("1000000"),
		ToAmount:      dec("285000000000000000"),
		FromAmountUSD: dec(usd),
		ToAmountUSD:   dec(usd),
	}
}

// fakeClock returns a controllable clock starting at a fixed instant.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore() (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewStoreWithClock(clock.now), clock
}

func TestStore_RecordSwapIncrementsRollups(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.CreateGroup(ctx, domain.NewGroup{GroupID: "g1", Name: "alpha"}); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := store.AddMember(ctx, "g1", "0xa"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	for i, usd := range []string{"100", "50.5"} {
		sw := newSwap([]string{"s1", "s2"}[i], "0xa", "g1", usd)
		if err := store.RecordSwap(ctx, sw); err != nil {
			t.Fatalf("RecordSwap failed: %v", err)
		}
		if sw.Status != domain.SwapStatusPending {
			t.Errorf("Status = %s, want PENDING", sw.Status)
		}
	}

	user, err := store.GetUser(ctx, "0xa")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !user.TotalVolume.Equal(dec("150.5")) || user.TotalSwaps != 2 {
		t.Errorf("user rollup = (%s, %d), want (150.5, 2)", user.TotalVolume, user.TotalSwaps)
	}

	group, _ := store.GetGroup(ctx, "g1")
	if !group.TotalVolume.Equal(dec("150.5")) || group.TotalSwaps != 2 {
		t.Errorf("group rollup = (%s, %d), want (150.5, 2)", group.TotalVolume, group.TotalSwaps)
	}

	member, _ := store.GetMember(ctx, "g1", "0xa")
	if !member.VolumeInGroup.Equal(dec("150.5")) || member.SwapsInGroup != 2 {
		t.Errorf("member rollup = (%s, %d), want (150.5, 2)", member.VolumeInGroup, member.SwapsInGroup)
	}
}

func TestStore_RecordSwapUnknownGroup(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.RecordSwap(ctx, newSwap("s1", "0xa", "missing", "10"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetUser(ctx, "0xa"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("user must not be created when the write is rejected, got %v", err)
	}
}

func TestStore_RecordSwapDuplicateID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.RecordSwap(ctx, newSwap("s1", "0xa", "", "10")); err != nil {
		t.Fatalf("RecordSwap failed: %v", err)
	}
	if err := store.RecordSwap(ctx, newSwap("s1", "0xa", "", "10")); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestStore_CompleteSwapAppliesPnl(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.RecordSwap(ctx, newSwap("s1", "0xa", "", "100")); err != nil {
		t.Fatalf("RecordSwap failed: %v", err)
	}

	sw, changed, err := store.CompleteSwap(ctx, "s1", "0xhash", decimal.NewNullDecimal(dec("110")))
	if err != nil {
		t.Fatalf("CompleteSwap failed: %v", err)
	}
	if !changed {
		t.Error("Expected first completion to report changed")
	}
	if sw.Status != domain.SwapStatusCompleted || sw.TxHash != "0xhash" || sw.CompletedAt == nil {
		t.Errorf("unexpected completed swap: %+v", sw)
	}
	if !sw.PnlUSD.Decimal.Equal(dec("10")) || !sw.PnlPercent.Decimal.Equal(dec("10")) {
		t.Errorf("pnl = (%s, %s), want (10, 10)", sw.PnlUSD.Decimal, sw.PnlPercent.Decimal)
	}

	user, _ := store.GetUser(ctx, "0xa")
	if !user.TotalPnlUSD.Equal(dec("10")) || !user.TotalPnlPercent.Equal(dec("10")) {
		t.Errorf("user pnl = (%s, %s), want (10, 10)", user.TotalPnlUSD, user.TotalPnlPercent)
	}
}

func TestStore_CompleteSwapIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "", "100"))
	if _, _, err := store.CompleteSwap(ctx, "s1", "0xhash", decimal.NewNullDecimal(dec("110"))); err != nil {
		t.Fatalf("CompleteSwap failed: %v", err)
	}

	sw, changed, err := store.CompleteSwap(ctx, "s1", "0xhash", decimal.NewNullDecimal(dec("500")))
	if err != nil {
		t.Fatalf("repeat CompleteSwap failed: %v", err)
	}
	if changed {
		t.Error("Expected repeat completion to be a no-op")
	}
	if !sw.PnlUSD.Decimal.Equal(dec("10")) {
		t.Errorf("repeat completion changed pnl to %s", sw.PnlUSD.Decimal)
	}

	if _, _, err := store.CompleteSwap(ctx, "s1", "0xother", decimal.NullDecimal{}); !errors.Is(err, storage.ErrSwapFinalized) {
		t.Errorf("Expected ErrSwapFinalized for a different hash, got %v", err)
	}
}

func TestStore_CompleteSwapNotFound(t *testing.T) {
	store := NewStore()

	_, _, err := store.CompleteSwap(context.Background(), "nope", "0xhash", decimal.NullDecimal{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_FailSwapKeepsCreationAccounting(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "", "75"))

	sw, changed, err := store.FailSwap(ctx, "s1")
	if err != nil {
		t.Fatalf("FailSwap failed: %v", err)
	}
	if !changed || sw.Status != domain.SwapStatusFailed {
		t.Errorf("unexpected fail result: changed=%v status=%s", changed, sw.Status)
	}

	if _, changed, _ := store.FailSwap(ctx, "s1"); changed {
		t.Error("Expected repeat FailSwap to be a no-op")
	}
	if _, _, err := store.CompleteSwap(ctx, "s1", "0xhash", decimal.NullDecimal{}); !errors.Is(err, storage.ErrSwapFinalized) {
		t.Errorf("Expected ErrSwapFinalized completing a failed swap, got %v", err)
	}

	user, _ := store.GetUser(ctx, "0xa")
	if !user.TotalVolume.Equal(dec("75")) || user.TotalSwaps != 1 {
		t.Errorf("user rollup = (%s, %d), want (75, 1)", user.TotalVolume, user.TotalSwaps)
	}
}

func TestStore_GroupRecomputeUpdatesMembers(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, _ = store.CreateGroup(ctx, domain.NewGroup{GroupID: "g1"})
	_, _ = store.AddMember(ctx, "g1", "0xa")
	_, _ = store.AddMember(ctx, "g1", "0xb")

	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "g1", "100"))
	_ = store.RecordSwap(ctx, newSwap("s2", "0xb", "g1", "200"))
	_, _, _ = store.CompleteSwap(ctx, "s1", "h1", decimal.NewNullDecimal(dec("120")))
	_, _, _ = store.CompleteSwap(ctx, "s2", "h2", decimal.NewNullDecimal(dec("180")))

	group, _ := store.GetGroup(ctx, "g1")
	if !group.TotalPnlUSD.Equal(decimal.Zero) || !group.TotalPnlPercent.Equal(decimal.Zero) {
		t.Errorf("group pnl = (%s, %s), want (0, 0)", group.TotalPnlUSD, group.TotalPnlPercent)
	}

	a, _ := store.GetMember(ctx, "g1", "0xa")
	b, _ := store.GetMember(ctx, "g1", "0xb")
	if !a.PnlInGroupUSD.Equal(dec("20")) || !b.PnlInGroupUSD.Equal(dec("-20")) {
		t.Errorf("member pnl = (%s, %s), want (20, -20)", a.PnlInGroupUSD, b.PnlInGroupUSD)
	}
	if a.CompletedSwapsInGroup != 1 {
		t.Errorf("CompletedSwapsInGroup = %d, want 1", a.CompletedSwapsInGroup)
	}
}

func TestStore_ListCompletedSwapsKeyset(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "d", "b"} {
		_ = store.RecordSwap(ctx, newSwap(id, "0xa", "", "1"))
	}
	for _, id := range []string{"a", "b", "c"} {
		_, _, _ = store.CompleteSwap(ctx, id, "h"+id, decimal.NullDecimal{})
	}

	first, _ := store.ListCompletedSwaps(ctx, "", 2)
	if len(first) != 2 || first[0].ID != "a" || first[1].ID != "b" {
		t.Fatalf("first page = %v", ids(first))
	}
	second, _ := store.ListCompletedSwaps(ctx, first[1].ID, 2)
	if len(second) != 1 || second[0].ID != "c" {
		t.Errorf("second page = %v", ids(second))
	}
}

func TestStore_MarkSwapRequiresCompleted(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "", "1"))

	err := store.MarkSwap(ctx, domain.SwapMark{SwapID: "s1", CurrentValueUSD: dec("2")})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound marking a pending swap, got %v", err)
	}
}

func TestStore_UserSwapsNewestFirst(t *testing.T) {
	store, clock := newClockedStore()
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		_ = store.RecordSwap(ctx, newSwap(id, "0xa", "", "1"))
		clock.advance(time.Second)
	}

	swaps, _ := store.GetUserSwaps(ctx, "0xa", 2, 0)
	if got := ids(swaps); len(got) != 2 || got[0] != "s3" || got[1] != "s2" {
		t.Errorf("GetUserSwaps = %v, want [s3 s2]", got)
	}
	swaps, _ = store.GetUserSwaps(ctx, "0xa", 2, 2)
	if got := ids(swaps); len(got) != 1 || got[0] != "s1" {
		t.Errorf("GetUserSwaps page 2 = %v, want [s1]", got)
	}
}

func TestStore_TopUsersTieBreak(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.RecordSwap(ctx, newSwap("s1", "0xc", "", "100"))
	_ = store.RecordSwap(ctx, newSwap("s2", "0xa", "", "100"))
	_ = store.RecordSwap(ctx, newSwap("s3", "0xb", "", "300"))

	entries, err := store.TopUsers(ctx, storage.LeaderboardFilter{SortBy: domain.SortByVolume, Limit: 10})
	if err != nil {
		t.Fatalf("TopUsers failed: %v", err)
	}
	want := []string{"0xb", "0xa", "0xc"}
	for i, e := range entries {
		if e.Address != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.Address, want[i])
		}
	}
}

func TestStore_TopUsersWindowed(t *testing.T) {
	store, clock := newClockedStore()
	ctx := context.Background()

	_ = store.RecordSwap(ctx, newSwap("old", "0xa", "", "1000"))
	_, _, _ = store.CompleteSwap(ctx, "old", "h0", decimal.NullDecimal{})
	clock.advance(48 * time.Hour)

	_ = store.RecordSwap(ctx, newSwap("new", "0xb", "", "10"))
	_, _, _ = store.CompleteSwap(ctx, "new", "h1", decimal.NewNullDecimal(dec("12")))
	_ = store.RecordSwap(ctx, newSwap("pending", "0xc", "", "500"))

	since := clock.t.Add(-24 * time.Hour)
	entries, _ := store.TopUsers(ctx, storage.LeaderboardFilter{SortBy: domain.SortByVolume, Since: &since, Limit: 10})
	if len(entries) != 1 || entries[0].Address != "0xb" {
		t.Fatalf("windowed entries = %+v, want only 0xb", entries)
	}
	if !entries[0].TotalPnlPercent.Equal(dec("20")) {
		t.Errorf("windowed pnlPercent = %s, want 20", entries[0].TotalPnlPercent)
	}
}

func TestStore_TopGroupsSkipsInactive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, _ = store.CreateGroup(ctx, domain.NewGroup{GroupID: "live"})
	_, _ = store.CreateGroup(ctx, domain.NewGroup{GroupID: "gone"})
	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "live", "10"))
	_ = store.RecordSwap(ctx, newSwap("s2", "0xa", "gone", "999"))
	_ = store.SetGroupActive(ctx, "gone", false)

	entries, _ := store.TopGroups(ctx, storage.LeaderboardFilter{SortBy: domain.SortByVolume, Limit: 10})
	if len(entries) != 1 || entries[0].GroupID != "live" {
		t.Errorf("TopGroups = %+v, want only live", entries)
	}
}

func TestStore_TopGroupMembersRequiresCompleted(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, _ = store.CreateGroup(ctx, domain.NewGroup{GroupID: "g1"})
	_, _ = store.AddMember(ctx, "g1", "0xa")
	_, _ = store.AddMember(ctx, "g1", "0xb")
	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "g1", "10"))

	entries, _ := store.TopGroupMembers(ctx, "g1", 10, 0)
	if len(entries) != 0 {
		t.Fatalf("Expected no members before any completion, got %d", len(entries))
	}

	_, _, _ = store.CompleteSwap(ctx, "s1", "h", decimal.NullDecimal{})
	entries, _ = store.TopGroupMembers(ctx, "g1", 10, 0)
	if len(entries) != 1 || entries[0].Address != "0xa" {
		t.Errorf("TopGroupMembers = %+v, want only 0xa", entries)
	}
}

func TestStore_RankAndTotals(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "", "500"))
	_ = store.RecordSwap(ctx, newSwap("s2", "0xb", "", "300"))
	_ = store.RecordSwap(ctx, newSwap("s3", "0xc", "", "300"))
	_, _, _ = store.CompleteSwap(ctx, "s1", "h", decimal.NewNullDecimal(dec("450")))

	for addr, want := range map[string]int64{"0xa": 1, "0xb": 2, "0xc": 2} {
		rank, err := store.UserRank(ctx, addr)
		if err != nil {
			t.Fatalf("UserRank failed: %v", err)
		}
		if rank != want {
			t.Errorf("UserRank(%s) = %d, want %d", addr, rank, want)
		}
	}

	totals, _ := store.GlobalTotals(ctx)
	if totals.TotalUsers != 3 || totals.CompletedSwaps != 1 {
		t.Errorf("totals = %+v", totals)
	}
	if !totals.TotalVolumeUSD.Equal(dec("500")) || !totals.TotalPnlUSD.Equal(dec("-50")) {
		t.Errorf("totals sums = (%s, %s), want (500, -50)", totals.TotalVolumeUSD, totals.TotalPnlUSD)
	}
}

func TestStore_BestWorstSwaps(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "", "100"))
	_ = store.RecordSwap(ctx, newSwap("s2", "0xa", "", "100"))
	_ = store.RecordSwap(ctx, newSwap("s3", "0xa", "", "100"))
	_, _, _ = store.CompleteSwap(ctx, "s1", "h1", decimal.NewNullDecimal(dec("150")))
	_, _, _ = store.CompleteSwap(ctx, "s2", "h2", decimal.NewNullDecimal(dec("90")))
	_, _, _ = store.CompleteSwap(ctx, "s3", "h3", decimal.NullDecimal{})

	bw, _ := store.BestWorstSwaps(ctx, "0xa")
	if bw.Best == nil || bw.Best.ID != "s1" {
		t.Errorf("Best = %+v, want s1", bw.Best)
	}
	if bw.Worst == nil || bw.Worst.ID != "s2" {
		t.Errorf("Worst = %+v, want s2", bw.Worst)
	}
}

func TestStore_GroupDailyVolume(t *testing.T) {
	store, clock := newClockedStore()
	ctx := context.Background()
	_, _ = store.CreateGroup(ctx, domain.NewGroup{GroupID: "g1"})

	_ = store.RecordSwap(ctx, newSwap("s1", "0xa", "g1", "10"))
	_, _, _ = store.CompleteSwap(ctx, "s1", "h1", decimal.NullDecimal{})
	_ = store.RecordSwap(ctx, newSwap("s2", "0xa", "g1", "5"))
	_, _, _ = store.CompleteSwap(ctx, "s2", "h2", decimal.NullDecimal{})
	clock.advance(24 * time.Hour)
	_ = store.RecordSwap(ctx, newSwap("s3", "0xa", "g1", "7"))
	_, _, _ = store.CompleteSwap(ctx, "s3", "h3", decimal.NullDecimal{})

	days, _ := store.GroupDailyVolume(ctx, "g1", clock.t.Add(-72*time.Hour))
	if len(days) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(days))
	}
	if !days[0].Volume.Equal(dec("15")) || !days[1].Volume.Equal(dec("7")) {
		t.Errorf("volumes = (%s, %s), want (15, 7)", days[0].Volume, days[1].Volume)
	}
	if days[0].Day.Hour() != 0 || days[0].Day.Location() != time.UTC {
		t.Errorf("day bucket not at UTC midnight: %v", days[0].Day)
	}
}

func TestStore_MembershipLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.AddMember(ctx, "nope", "0xa"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown group, got %v", err)
	}

	_, _ = store.CreateGroup(ctx, domain.NewGroup{GroupID: "g1"})
	if _, err := store.CreateGroup(ctx, domain.NewGroup{GroupID: "g1"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	_, _ = store.AddMember(ctx, "g1", "0xa")

	groups, _ := store.GetUserGroups(ctx, "0xa")
	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}

	_ = store.RemoveMember(ctx, "g1", "0xa")
	if n, _ := store.CountGroupMembers(ctx, "g1"); n != 0 {
		t.Errorf("CountGroupMembers after removal = %d, want 0", n)
	}

	m, _ := store.AddMember(ctx, "g1", "0xa")
	if !m.IsActive {
		t.Error("Expected AddMember to reactivate membership")
	}
}

func ids(swaps []*domain.Swap) []string {
	out := make([]string, len(swaps))
	for i, s := range swaps {
		out[i] = s.ID
	}
	return out
}
