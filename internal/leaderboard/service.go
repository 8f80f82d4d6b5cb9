// Package leaderboard serves ranked views of users, groups and group members.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/ledger"
	"swap-ledger/internal/pnl"
	"swap-ledger/internal/storage"
)

// Pagination limits.
const (
	DefaultLimit       = 100
	MaxLimit           = 500
	DefaultMemberLimit = 50
	MaxMemberLimit     = 200
)

// Cache is a read-through cache for leaderboard pages. Get returns the
// version it read at; Set stores under that version so a page computed
// across an invalidation is never served.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (hit bool, version int64, err error)
	Set(ctx context.Context, key string, version int64, value any) error
}

// Query is an unvalidated leaderboard request. Empty fields take defaults.
type Query struct {
	SortBy string
	Period string
	Limit  int
	Offset int
}

// Options configures a Service. Store and Groups are required.
type Options struct {
	Store  storage.LeaderboardStore
	Groups storage.GroupStore
	Cache  Cache // optional
	Logger *slog.Logger
	Now    func() time.Time
}

// Service answers leaderboard queries.
type Service struct {
	store  storage.LeaderboardStore
	groups storage.GroupStore
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a leaderboard service.
func NewService(opts Options) *Service {
	s := &Service{
		store:  opts.Store,
		groups: opts.Groups,
		cache:  opts.Cache,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Users ranks users with at least one swap.
func (s *Service) Users(ctx context.Context, q Query) ([]domain.UserLeaderboardEntry, error) {
	lq, err := parseQuery(q)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("users:%s:%s:%d:%d", lq.SortBy, lq.Period, lq.Limit, lq.Offset)
	var entries []domain.UserLeaderboardEntry
	version, hit, cacheable := s.cached(ctx, key, &entries)
	if hit {
		return entries, nil
	}

	entries, err = s.store.TopUsers(ctx, s.filter(lq))
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "top users", Err: err}
	}
	for i := range entries {
		e := &entries[i]
		e.Rank = lq.Offset + i + 1
		e.AvgSwapSize = pnl.AvgSwapSize(e.TotalVolume, e.TotalSwaps)
	}

	if cacheable {
		s.remember(ctx, key, version, entries)
	}
	return entries, nil
}

// Groups ranks active groups with at least one swap.
func (s *Service) Groups(ctx context.Context, q Query) ([]domain.GroupLeaderboardEntry, error) {
	lq, err := parseQuery(q)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("groups:%s:%s:%d:%d", lq.SortBy, lq.Period, lq.Limit, lq.Offset)
	var entries []domain.GroupLeaderboardEntry
	version, hit, cacheable := s.cached(ctx, key, &entries)
	if hit {
		return entries, nil
	}

	entries, err = s.store.TopGroups(ctx, s.filter(lq))
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "top groups", Err: err}
	}
	for i := range entries {
		e := &entries[i]
		e.Rank = lq.Offset + i + 1
		e.AvgSwapSize = pnl.AvgSwapSize(e.TotalVolume, e.TotalSwaps)
	}

	if cacheable {
		s.remember(ctx, key, version, entries)
	}
	return entries, nil
}

// Members ranks a group's members by volume in the group. Members without a
// completed swap in the group are excluded.
func (s *Service) Members(ctx context.Context, groupID string, limit, offset int) ([]domain.MemberLeaderboardEntry, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, &ledger.ValidationError{Field: "groupId", Reason: "is required"}
	}
	limit, err := pageLimit(limit, offset, DefaultMemberLimit, MaxMemberLimit)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("members:%s:%d:%d", groupID, limit, offset)
	var entries []domain.MemberLeaderboardEntry
	version, hit, cacheable := s.cached(ctx, key, &entries)
	if hit {
		return entries, nil
	}

	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &ledger.NotFoundError{Kind: "group", ID: groupID}
		}
		return nil, &ledger.PersistenceError{Op: "get group", Err: err}
	}

	entries, err = s.store.TopGroupMembers(ctx, groupID, limit, offset)
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "top group members", Err: err}
	}
	for i := range entries {
		entries[i].Rank = offset + i + 1
	}

	if cacheable {
		s.remember(ctx, key, version, entries)
	}
	return entries, nil
}

func (s *Service) filter(q domain.LeaderboardQuery) storage.LeaderboardFilter {
	f := storage.LeaderboardFilter{SortBy: q.SortBy, Limit: q.Limit, Offset: q.Offset}
	if window, ok := periodWindow(q.Period); ok {
		since := s.now().UTC().Add(-window)
		f.Since = &since
	}
	return f
}

// cached reports the version read and whether it hit. Cache failures are
// logged and treated as an uncacheable miss.
func (s *Service) cached(ctx context.Context, key string, dest any) (version int64, hit, cacheable bool) {
	if s.cache == nil {
		return 0, false, false
	}
	hit, version, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("leaderboard cache read failed", "key", key, "err", err)
		return 0, false, false
	}
	return version, hit, true
}

func (s *Service) remember(ctx context.Context, key string, version int64, value any) {
	if err := s.cache.Set(ctx, key, version, value); err != nil {
		s.logger.Warn("leaderboard cache write failed", "key", key, "err", err)
	}
}

func parseQuery(q Query) (domain.LeaderboardQuery, error) {
	sortBy, err := domain.ParseSortBy(strings.TrimSpace(q.SortBy))
	if err != nil {
		return domain.LeaderboardQuery{}, &ledger.ValidationError{Field: "sortBy", Reason: err.Error()}
	}
	period, err := domain.ParsePeriod(strings.TrimSpace(q.Period))
	if err != nil {
		return domain.LeaderboardQuery{}, &ledger.ValidationError{Field: "period", Reason: err.Error()}
	}
	limit, err := pageLimit(q.Limit, q.Offset, DefaultLimit, MaxLimit)
	if err != nil {
		return domain.LeaderboardQuery{}, err
	}
	return domain.LeaderboardQuery{SortBy: sortBy, Period: period, Limit: limit, Offset: q.Offset}, nil
}

// pageLimit validates a page and returns the effective limit.
func pageLimit(limit, offset, def, max int) (int, error) {
	if limit < 0 {
		return 0, &ledger.ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	if offset < 0 {
		return 0, &ledger.ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	switch {
	case limit == 0:
		return def, nil
	case limit > max:
		return max, nil
	}
	return limit, nil
}

func periodWindow(p domain.Period) (time.Duration, bool) {
	switch p {
	case domain.PeriodDaily:
		return 24 * time.Hour, true
	case domain.PeriodWeekly:
		return 7 * 24 * time.Hour, true
	case domain.PeriodMonthly:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}
