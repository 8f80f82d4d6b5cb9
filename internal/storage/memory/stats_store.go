package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

// UserRank returns 1 + the number of users with strictly greater total volume.
func (s *Store) UserRank(_ context.Context, address string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[address]
	if !ok {
		return 0, storage.ErrNotFound
	}
	rank := int64(1)
	for _, other := range s.users {
		if other.TotalVolume.GreaterThan(u.TotalVolume) {
			rank++
		}
	}
	return rank, nil
}

// GroupRank returns 1 + the number of active groups with strictly greater total volume.
func (s *Store) GroupRank(_ context.Context, groupID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	rank := int64(1)
	for _, other := range s.groups {
		if other.IsActive && other.TotalVolume.GreaterThan(g.TotalVolume) {
			rank++
		}
	}
	return rank, nil
}

// CountGroupMembers counts active members of a group.
func (s *Store) CountGroupMembers(_ context.Context, groupID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activeMemberCount(groupID), nil
}

// BestWorstSwaps returns the user's completed swaps with the highest and lowest PNL percent.
// Ties resolve to the earliest completed swap.
func (s *Store) BestWorstSwaps(_ context.Context, address string) (domain.BestWorst, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*swapRow
	for _, row := range s.swaps {
		sw := &row.swap
		if sw.UserAddress == address && sw.Status == domain.SwapStatusCompleted && sw.PnlPercent.Valid {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return domain.BestWorst{}, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })

	best, worst := candidates[0], candidates[0]
	for _, row := range candidates[1:] {
		if row.swap.PnlPercent.Decimal.GreaterThan(best.swap.PnlPercent.Decimal) {
			best = row
		}
		if row.swap.PnlPercent.Decimal.LessThan(worst.swap.PnlPercent.Decimal) {
			worst = row
		}
	}

	b, w := copySwap(best.swap), copySwap(worst.swap)
	return domain.BestWorst{Best: &b, Worst: &w}, nil
}

// GroupDailyVolume sums completed volume per UTC day since the given time.
func (s *Store) GroupDailyVolume(_ context.Context, groupID string, since time.Time) ([]domain.DailyVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[time.Time]decimal.Decimal)
	for _, row := range s.swaps {
		sw := &row.swap
		if sw.GroupID != groupID || sw.Status != domain.SwapStatusCompleted || sw.CompletedAt == nil {
			continue
		}
		if sw.CompletedAt.Before(since) {
			continue
		}
		day := sw.CompletedAt.UTC().Truncate(24 * time.Hour)
		byDay[day] = byDay[day].Add(sw.FromAmountUSD)
	}

	result := make([]domain.DailyVolume, 0, len(byDay))
	for day, vol := range byDay {
		result = append(result, domain.DailyVolume{Day: day, Volume: vol})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result, nil
}

// GlobalTotals summarises the whole ledger.
func (s *Store) GlobalTotals(_ context.Context) (domain.GlobalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.GlobalStats{TotalUsers: int64(len(s.users))}
	for _, g := range s.groups {
		if g.IsActive {
			out.ActiveGroups++
		}
	}
	for _, row := range s.swaps {
		sw := &row.swap
		if sw.Status != domain.SwapStatusCompleted {
			continue
		}
		out.CompletedSwaps++
		out.TotalVolumeUSD = out.TotalVolumeUSD.Add(sw.FromAmountUSD)
		if sw.PnlUSD.Valid {
			out.TotalPnlUSD = out.TotalPnlUSD.Add(sw.PnlUSD.Decimal)
		}
	}
	return out, nil
}
