package postgres

import (
	"context"
	"fmt"
	"time"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

// StatsStore implements storage.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *Pool
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(pool *Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StatsStore = (*StatsStore)(nil)

// UserRank returns 1 + the number of users with strictly greater total volume.
func (s *StatsStore) UserRank(ctx context.Context, address string) (int64, error) {
	var rank int64
	err := s.pool.QueryRow(ctx, `
		SELECT 1 + (SELECT COUNT(*) FROM users o WHERE o.total_volume > u.total_volume)
		FROM users u
		WHERE u.address = $1
	`, address).Scan(&rank)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("user rank: %w", err)
	}
	return rank, nil
}

// GroupRank returns 1 + the number of active groups with strictly greater total volume.
func (s *StatsStore) GroupRank(ctx context.Context, groupID string) (int64, error) {
	var rank int64
	err := s.pool.QueryRow(ctx, `
		SELECT 1 + (SELECT COUNT(*) FROM groups o WHERE o.is_active AND o.total_volume > g.total_volume)
		FROM groups g
		WHERE g.group_id = $1
	`, groupID).Scan(&rank)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("group rank: %w", err)
	}
	return rank, nil
}

// CountGroupMembers counts active members of a group.
func (s *StatsStore) CountGroupMembers(ctx context.Context, groupID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND is_active
	`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count group members: %w", err)
	}
	return n, nil
}

// BestWorstSwaps returns the user's completed swaps with the highest and lowest PNL percent.
// Ties resolve to the earliest completed swap.
func (s *StatsStore) BestWorstSwaps(ctx context.Context, address string) (domain.BestWorst, error) {
	const query = `
		SELECT ` + swapColumns + `
		FROM swaps
		WHERE user_address = $1 AND status = 'COMPLETED' AND pnl_percent IS NOT NULL
		ORDER BY pnl_percent %s, completed_at ASC, id ASC
		LIMIT 1
	`

	var out domain.BestWorst
	for _, dir := range []string{"DESC", "ASC"} {
		row := s.pool.QueryRow(ctx, fmt.Sprintf(query, dir), address)
		sw, err := scanSwap(row)
		if err != nil {
			if isNotFoundError(err) {
				return domain.BestWorst{}, nil
			}
			return domain.BestWorst{}, fmt.Errorf("best/worst swap: %w", err)
		}
		if dir == "DESC" {
			out.Best = sw
		} else {
			out.Worst = sw
		}
	}
	return out, nil
}

// GroupDailyVolume sums completed volume per UTC day since the given time.
func (s *StatsStore) GroupDailyVolume(ctx context.Context, groupID string, since time.Time) ([]domain.DailyVolume, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date_trunc('day', completed_at AT TIME ZONE 'UTC') AS day, SUM(from_amount_usd)
		FROM swaps
		WHERE group_id = $1 AND status = 'COMPLETED' AND completed_at >= $2
		GROUP BY day
		ORDER BY day ASC
	`, groupID, since)
	if err != nil {
		return nil, fmt.Errorf("group daily volume: %w", err)
	}
	defer rows.Close()

	var days []domain.DailyVolume
	for rows.Next() {
		var d domain.DailyVolume
		if err := rows.Scan(&d.Day, &d.Volume); err != nil {
			return nil, fmt.Errorf("scan daily volume row: %w", err)
		}
		d.Day = time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, time.UTC)
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily volume rows: %w", err)
	}
	return days, nil
}

// GlobalTotals summarises the whole ledger.
func (s *StatsStore) GlobalTotals(ctx context.Context) (domain.GlobalStats, error) {
	var out domain.GlobalStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM groups WHERE is_active),
			COUNT(*),
			COALESCE(SUM(from_amount_usd), 0),
			COALESCE(SUM(pnl_usd), 0)
		FROM swaps
		WHERE status = 'COMPLETED'
	`).Scan(&out.TotalUsers, &out.ActiveGroups, &out.CompletedSwaps, &out.TotalVolumeUSD, &out.TotalPnlUSD)
	if err != nil {
		return domain.GlobalStats{}, fmt.Errorf("global totals: %w", err)
	}
	return out, nil
}
