package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/pnl"
	"swap-ledger/internal/storage"
)

// totals is one leaderboard row before ranking.
type totals struct {
	key        string
	volume     decimal.Decimal
	swaps      int64
	pnlUSD     decimal.Decimal
	pnlPercent decimal.Decimal
}

// TopUsers orders users by the sort key DESC, address ASC.
func (s *Store) TopUsers(_ context.Context, f storage.LeaderboardFilter) ([]domain.UserLeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []totals
	if f.Since == nil {
		for addr, u := range s.users {
			if u.TotalSwaps == 0 {
				continue
			}
			rows = append(rows, totals{addr, u.TotalVolume, u.TotalSwaps, u.TotalPnlUSD, u.TotalPnlPercent})
		}
	} else {
		rows = s.windowTotals(func(sw *domain.Swap) string { return sw.UserAddress }, f)
	}
	rows = page(sortTotals(rows, f.SortBy), f.Limit, f.Offset)

	entries := make([]domain.UserLeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		e := domain.UserLeaderboardEntry{
			Address:         r.key,
			TotalVolume:     r.volume,
			TotalSwaps:      r.swaps,
			TotalPnlUSD:     r.pnlUSD,
			TotalPnlPercent: r.pnlPercent,
		}
		if u, ok := s.users[r.key]; ok {
			e.Username = u.Username
			e.AvatarURL = u.AvatarURL
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// TopGroups orders active groups by the sort key DESC, group_id ASC.
func (s *Store) TopGroups(_ context.Context, f storage.LeaderboardFilter) ([]domain.GroupLeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []totals
	if f.Since == nil {
		for id, g := range s.groups {
			if !g.IsActive || g.TotalSwaps == 0 {
				continue
			}
			rows = append(rows, totals{id, g.TotalVolume, g.TotalSwaps, g.TotalPnlUSD, g.TotalPnlPercent})
		}
	} else {
		all := s.windowTotals(func(sw *domain.Swap) string { return sw.GroupID }, f)
		for _, r := range all {
			if g, ok := s.groups[r.key]; ok && g.IsActive {
				rows = append(rows, r)
			}
		}
	}
	rows = page(sortTotals(rows, f.SortBy), f.Limit, f.Offset)

	entries := make([]domain.GroupLeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		g := s.groups[r.key]
		entries = append(entries, domain.GroupLeaderboardEntry{
			GroupID:         g.GroupID,
			Name:            g.Name,
			Description:     g.Description,
			ImageURL:        g.ImageURL,
			MemberCount:     s.activeMemberCount(g.GroupID),
			TotalVolume:     r.volume,
			TotalSwaps:      r.swaps,
			TotalPnlUSD:     r.pnlUSD,
			TotalPnlPercent: r.pnlPercent,
		})
	}
	return entries, nil
}

// TopGroupMembers orders members with completed swaps by volume_in_group DESC, address ASC.
func (s *Store) TopGroupMembers(_ context.Context, groupID string, limit, offset int) ([]domain.MemberLeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var members []*domain.GroupMember
	for key, m := range s.members {
		if key.groupID == groupID && m.SwapsInGroup > 0 && m.CompletedSwapsInGroup > 0 {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if c := members[i].VolumeInGroup.Cmp(members[j].VolumeInGroup); c != 0 {
			return c > 0
		}
		return members[i].Address < members[j].Address
	})
	members = page(members, limit, offset)

	entries := make([]domain.MemberLeaderboardEntry, 0, len(members))
	for _, m := range members {
		e := domain.MemberLeaderboardEntry{
			Address:       m.Address,
			VolumeInGroup: m.VolumeInGroup,
			SwapsInGroup:  m.SwapsInGroup,
			PnlInGroupUSD: m.PnlInGroupUSD,
		}
		if u, ok := s.users[m.Address]; ok {
			e.Username = u.Username
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// windowTotals aggregates completed swaps since f.Since by keyOf. Requires s.mu held.
func (s *Store) windowTotals(keyOf func(*domain.Swap) string, f storage.LeaderboardFilter) []totals {
	byKey := make(map[string]*totals)
	for _, row := range s.swaps {
		sw := &row.swap
		if sw.Status != domain.SwapStatusCompleted || sw.CompletedAt == nil || sw.CompletedAt.Before(*f.Since) {
			continue
		}
		key := keyOf(sw)
		if key == "" {
			continue
		}
		t, ok := byKey[key]
		if !ok {
			t = &totals{key: key}
			byKey[key] = t
		}
		t.volume = t.volume.Add(sw.FromAmountUSD)
		t.swaps++
		if sw.PnlUSD.Valid {
			t.pnlUSD = t.pnlUSD.Add(sw.PnlUSD.Decimal)
		}
	}

	rows := make([]totals, 0, len(byKey))
	for _, t := range byKey {
		t.pnlPercent = pnl.Percent(t.pnlUSD, t.volume)
		rows = append(rows, *t)
	}
	return rows
}

func sortTotals(rows []totals, by domain.SortBy) []totals {
	sort.Slice(rows, func(i, j int) bool {
		var c int
		switch by {
		case domain.SortByPnl:
			c = rows[i].pnlUSD.Cmp(rows[j].pnlUSD)
		case domain.SortByPnlPercent:
			c = rows[i].pnlPercent.Cmp(rows[j].pnlPercent)
		case domain.SortBySwaps:
			switch {
			case rows[i].swaps > rows[j].swaps:
				c = 1
			case rows[i].swaps < rows[j].swaps:
				c = -1
			}
		default:
			c = rows[i].volume.Cmp(rows[j].volume)
		}
		if c != 0 {
			return c > 0
		}
		return rows[i].key < rows[j].key
	})
	return rows
}
