package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
)

// LedgerStore provides access to the swaps ledger and maintains the
// user, group and group-member rollups in the same transaction as each write.
type LedgerStore interface {
	// RecordSwap inserts a PENDING swap, creating the user if absent, and
	// increments user, group and member volume and swap counts atomically.
	// Sets swap.CreatedAt. Returns ErrNotFound if swap.GroupID names no group.
	RecordSwap(ctx context.Context, swap *domain.Swap) error

	// CompleteSwap moves a swap to COMPLETED, applies PNL when currentValueUSD
	// is valid, and recomputes the user and group PNL rollups under row locks.
	// Completing an already COMPLETED swap with the same txHash returns it with
	// changed=false. Returns ErrNotFound if the swap does not exist and
	// ErrSwapFinalized if it is FAILED or was completed with another hash.
	CompleteSwap(ctx context.Context, id, txHash string, currentValueUSD decimal.NullDecimal) (swap *domain.Swap, changed bool, err error)

	// FailSwap moves a PENDING swap to FAILED. Rollups are left untouched.
	// Failing a FAILED swap returns it with changed=false.
	// Returns ErrNotFound or ErrSwapFinalized for a COMPLETED swap.
	FailSwap(ctx context.Context, id string) (swap *domain.Swap, changed bool, err error)

	// GetSwap retrieves a swap by ID. Returns ErrNotFound if not exists.
	GetSwap(ctx context.Context, id string) (*domain.Swap, error)

	// GetUserSwaps retrieves a user's swaps, newest first.
	GetUserSwaps(ctx context.Context, address string, limit, offset int) ([]*domain.Swap, error)

	// GetGroupSwaps retrieves a group's swaps, newest first.
	GetGroupSwaps(ctx context.Context, groupID string, limit, offset int) ([]*domain.Swap, error)

	// ListCompletedSwaps retrieves up to limit COMPLETED swaps with ID > afterID, ordered by ID ASC.
	ListCompletedSwaps(ctx context.Context, afterID string, limit int) ([]*domain.Swap, error)

	// MarkSwap overwrites the mark-to-market fields of a COMPLETED swap.
	// Returns ErrNotFound if no completed swap has that ID.
	MarkSwap(ctx context.Context, mark domain.SwapMark) error

	// RecomputeUserPnl rewrites the user's PNL rollup from its completed swaps
	// while holding the user's row lock. Returns ErrNotFound if the user does not exist.
	RecomputeUserPnl(ctx context.Context, address string) error

	// RecomputeGroupPnl rewrites the group's and its members' PNL rollups while
	// holding the group's row lock. Returns ErrNotFound if the group does not exist.
	RecomputeGroupPnl(ctx context.Context, groupID string) error
}

// UserStore provides access to user profiles.
type UserStore interface {
	// GetUser retrieves a user by address. Returns ErrNotFound if not exists.
	GetUser(ctx context.Context, address string) (*domain.User, error)

	// UpsertProfile sets username and avatar, creating the user if absent.
	UpsertProfile(ctx context.Context, address, username, avatarURL string) (*domain.User, error)
}

// GroupStore provides access to groups and memberships.
type GroupStore interface {
	// CreateGroup registers a group. Returns ErrDuplicateKey if group_id exists.
	CreateGroup(ctx context.Context, g domain.NewGroup) (*domain.Group, error)

	// GetGroup retrieves a group by ID. Returns ErrNotFound if not exists.
	GetGroup(ctx context.Context, groupID string) (*domain.Group, error)

	// SetGroupActive toggles the soft-delete flag. Returns ErrNotFound if not exists.
	SetGroupActive(ctx context.Context, groupID string, active bool) error

	// AddMember joins an address to a group, reactivating a previous membership.
	// Returns ErrNotFound if the group does not exist.
	AddMember(ctx context.Context, groupID, address string) (*domain.GroupMember, error)

	// RemoveMember deactivates a membership. Returns ErrNotFound if not a member.
	RemoveMember(ctx context.Context, groupID, address string) error

	// GetMember retrieves a membership. Returns ErrNotFound if not exists.
	GetMember(ctx context.Context, groupID, address string) (*domain.GroupMember, error)

	// GetUserGroups retrieves the active groups the address is an active member of, by group_id ASC.
	GetUserGroups(ctx context.Context, address string) ([]*domain.Group, error)
}

// LeaderboardFilter selects and pages leaderboard rows.
// A non-nil Since switches from rollups to completed swaps in the window.
type LeaderboardFilter struct {
	SortBy domain.SortBy
	Since  *time.Time
	Limit  int
	Offset int
}

// LeaderboardStore provides ranked reads. Entries are returned in rank order
// with Rank and AvgSwapSize left for the caller to fill.
type LeaderboardStore interface {
	// TopUsers orders users with at least one swap by the sort key DESC, address ASC.
	TopUsers(ctx context.Context, f LeaderboardFilter) ([]domain.UserLeaderboardEntry, error)

	// TopGroups orders active groups with at least one swap by the sort key DESC, group_id ASC.
	TopGroups(ctx context.Context, f LeaderboardFilter) ([]domain.GroupLeaderboardEntry, error)

	// TopGroupMembers orders members with completed swaps in the group by volume_in_group DESC, address ASC.
	TopGroupMembers(ctx context.Context, groupID string, limit, offset int) ([]domain.MemberLeaderboardEntry, error)
}

// StatsStore provides the aggregate reads behind the stats views.
type StatsStore interface {
	// UserRank returns 1 + the number of users with strictly greater total volume.
	// Returns ErrNotFound if the user does not exist.
	UserRank(ctx context.Context, address string) (int64, error)

	// GroupRank returns 1 + the number of active groups with strictly greater total volume.
	// Returns ErrNotFound if the group does not exist.
	GroupRank(ctx context.Context, groupID string) (int64, error)

	// CountGroupMembers counts active members of a group.
	CountGroupMembers(ctx context.Context, groupID string) (int64, error)

	// BestWorstSwaps returns the user's completed swaps with the highest and lowest PNL percent.
	BestWorstSwaps(ctx context.Context, address string) (domain.BestWorst, error)

	// GroupDailyVolume sums completed from_amount_usd per UTC day of completed_at since the given time.
	// Days without swaps are omitted.
	GroupDailyVolume(ctx context.Context, groupID string, since time.Time) ([]domain.DailyVolume, error)

	// GlobalTotals summarises the whole ledger.
	GlobalTotals(ctx context.Context) (domain.GlobalStats, error)
}

// TokenPriceStore provides access to token_prices history.
type TokenPriceStore interface {
	// InsertPrices appends price snapshots.
	InsertPrices(ctx context.Context, prices []*domain.TokenPrice) error

	// GetPrices retrieves snapshots for a token within [start, end] (inclusive), ordered by timestamp ASC.
	GetPrices(ctx context.Context, tokenAddress string, start, end time.Time) ([]*domain.TokenPrice, error)
}
