// Package stats builds the detail views of users, groups and the whole ledger.
package stats

import (
	"context"
	"errors"
	"strings"
	"time"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/ledger"
	"swap-ledger/internal/pnl"
	"swap-ledger/internal/storage"
)

// View sizes.
const (
	RecentSwaps = 10
	TopMembers  = 10
	DailyDays   = 30
)

// Options configures a Service. All stores are required.
type Options struct {
	Ledger      storage.LedgerStore
	Users       storage.UserStore
	Groups      storage.GroupStore
	Leaderboard storage.LeaderboardStore
	Stats       storage.StatsStore
	Now         func() time.Time
}

// Service answers stats queries.
type Service struct {
	ledger      storage.LedgerStore
	users       storage.UserStore
	groups      storage.GroupStore
	leaderboard storage.LeaderboardStore
	stats       storage.StatsStore
	now         func() time.Time
}

// NewService creates a stats service.
func NewService(opts Options) *Service {
	s := &Service{
		ledger:      opts.Ledger,
		users:       opts.Users,
		groups:      opts.Groups,
		leaderboard: opts.Leaderboard,
		stats:       opts.Stats,
		now:         opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// UserStats returns a user's rollups, rank, recent swaps, best and worst
// completed swaps and active groups.
func (s *Service) UserStats(ctx context.Context, address string) (*domain.UserStats, error) {
	address = ledger.CanonicalAddress(address)
	if address == "" {
		return nil, &ledger.ValidationError{Field: "address", Reason: "is required"}
	}

	user, err := s.users.GetUser(ctx, address)
	if err != nil {
		return nil, notFoundOr("get user", "user", address, err)
	}

	rank, err := s.stats.UserRank(ctx, address)
	if err != nil {
		return nil, notFoundOr("user rank", "user", address, err)
	}
	recent, err := s.ledger.GetUserSwaps(ctx, address, RecentSwaps, 0)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "recent user swaps", Err: err}
	}
	bw, err := s.stats.BestWorstSwaps(ctx, address)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "best and worst swaps", Err: err}
	}
	groups, err := s.groups.GetUserGroups(ctx, address)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "user groups", Err: err}
	}

	return &domain.UserStats{
		User:        *user,
		Rank:        rank,
		RecentSwaps: recent,
		BestSwap:    bw.Best,
		WorstSwap:   bw.Worst,
		Groups:      groups,
		AvgSwapSize: pnl.AvgSwapSize(user.TotalVolume, user.TotalSwaps),
	}, nil
}

// GroupStats returns a group's rollups, rank, member count, top members,
// recent swaps and a 30-day daily volume series ending today (UTC).
func (s *Service) GroupStats(ctx context.Context, groupID string) (*domain.GroupStats, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, &ledger.ValidationError{Field: "groupId", Reason: "is required"}
	}

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, notFoundOr("get group", "group", groupID, err)
	}

	rank, err := s.stats.GroupRank(ctx, groupID)
	if err != nil {
		return nil, notFoundOr("group rank", "group", groupID, err)
	}
	members, err := s.stats.CountGroupMembers(ctx, groupID)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "count group members", Err: err}
	}
	top, err := s.leaderboard.TopGroupMembers(ctx, groupID, TopMembers, 0)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "top group members", Err: err}
	}
	for i := range top {
		top[i].Rank = i + 1
	}
	recent, err := s.ledger.GetGroupSwaps(ctx, groupID, RecentSwaps, 0)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "recent group swaps", Err: err}
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(DailyDays - 1))
	rows, err := s.stats.GroupDailyVolume(ctx, groupID, start)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "group daily volume", Err: err}
	}

	return &domain.GroupStats{
		Group:       *group,
		Rank:        rank,
		MemberCount: members,
		TopMembers:  top,
		RecentSwaps: recent,
		DailyVolume: fillDays(rows, start, DailyDays),
		AvgSwapSize: pnl.AvgSwapSize(group.TotalVolume, group.TotalSwaps),
	}, nil
}

// GlobalStats summarises the whole ledger.
func (s *Service) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	totals, err := s.stats.GlobalTotals(ctx)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "global totals", Err: err}
	}
	return &totals, nil
}

// fillDays expands sparse per-day rows into exactly n days from start, oldest first.
func fillDays(rows []domain.DailyVolume, start time.Time, n int) []domain.DailyVolume {
	byDay := make(map[int64]domain.DailyVolume, len(rows))
	for _, r := range rows {
		byDay[r.Day.UTC().Truncate(24*time.Hour).Unix()] = r
	}

	out := make([]domain.DailyVolume, n)
	for i := range out {
		day := start.AddDate(0, 0, i)
		out[i] = domain.DailyVolume{Day: day}
		if r, ok := byDay[day.Unix()]; ok {
			out[i].Volume = r.Volume
		}
	}
	return out
}

func notFoundOr(op, kind, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return &ledger.PersistenceError{Op: op, Err: err}
}
