package postgres

import (
	"context"
	"fmt"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

// LeaderboardStore implements storage.LeaderboardStore using PostgreSQL.
type LeaderboardStore struct {
	pool *Pool
}

// NewLeaderboardStore creates a new LeaderboardStore.
func NewLeaderboardStore(pool *Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LeaderboardStore = (*LeaderboardStore)(nil)

// rollupOrder maps a sort key to a rollup column. Only these literals are
// ever interpolated into ORDER BY.
var rollupOrder = map[domain.SortBy]string{
	domain.SortByVolume:     "total_volume",
	domain.SortByPnl:        "total_pnl_usd",
	domain.SortByPnlPercent: "total_pnl_percent",
	domain.SortBySwaps:      "total_swaps",
}

// windowOrder maps a sort key to a column of the windowed aggregate.
var windowOrder = map[domain.SortBy]string{
	domain.SortByVolume:     "w.volume",
	domain.SortByPnl:        "w.pnl",
	domain.SortByPnlPercent: "w.pnl_percent",
	domain.SortBySwaps:      "w.swaps",
}

// windowCTE aggregates completed swaps since $1, keyed by %s.
const windowCTE = `
	WITH agg AS (
		SELECT %[1]s AS key,
		       SUM(from_amount_usd) AS volume,
		       COUNT(*) AS swaps,
		       COALESCE(SUM(pnl_usd), 0) AS pnl
		FROM swaps
		WHERE status = 'COMPLETED' AND completed_at >= $1 AND %[1]s IS NOT NULL
		GROUP BY %[1]s
	), w AS (
		SELECT key, volume, swaps, pnl,
		       CASE WHEN volume = 0 THEN 0 ELSE ROUND(pnl * 100 / volume, 8) END AS pnl_percent
		FROM agg
	)
`

func orderColumn(m map[domain.SortBy]string, by domain.SortBy) string {
	if col, ok := m[by]; ok {
		return col
	}
	return m[domain.SortByVolume]
}

// TopUsers orders users by the sort key DESC, address ASC.
func (s *LeaderboardStore) TopUsers(ctx context.Context, f storage.LeaderboardFilter) ([]domain.UserLeaderboardEntry, error) {
	var (
		query string
		args  []any
	)
	if f.Since == nil {
		query = fmt.Sprintf(`
			SELECT address, username, avatar_url, total_volume, total_swaps, total_pnl_usd, total_pnl_percent
			FROM users
			WHERE total_swaps > 0
			ORDER BY %s DESC, address ASC
			LIMIT $1 OFFSET $2
		`, orderColumn(rollupOrder, f.SortBy))
		args = []any{f.Limit, f.Offset}
	} else {
		query = fmt.Sprintf(windowCTE, "user_address") + fmt.Sprintf(`
			SELECT w.key, u.username, u.avatar_url, w.volume, w.swaps, w.pnl, w.pnl_percent
			FROM w
			JOIN users u ON u.address = w.key
			ORDER BY %s DESC, w.key ASC
			LIMIT $2 OFFSET $3
		`, orderColumn(windowOrder, f.SortBy))
		args = []any{*f.Since, f.Limit, f.Offset}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query user leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.UserLeaderboardEntry
	for rows.Next() {
		var e domain.UserLeaderboardEntry
		err := rows.Scan(
			&e.Address, &e.Username, &e.AvatarURL,
			&e.TotalVolume, &e.TotalSwaps, &e.TotalPnlUSD, &e.TotalPnlPercent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user leaderboard rows: %w", err)
	}
	return entries, nil
}

// TopGroups orders active groups by the sort key DESC, group_id ASC.
func (s *LeaderboardStore) TopGroups(ctx context.Context, f storage.LeaderboardFilter) ([]domain.GroupLeaderboardEntry, error) {
	const memberCount = `(
		SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.group_id AND m.is_active
	)`

	var (
		query string
		args  []any
	)
	if f.Since == nil {
		query = fmt.Sprintf(`
			SELECT g.group_id, g.name, g.description, g.image_url, %s,
			       g.total_volume, g.total_swaps, g.total_pnl_usd, g.total_pnl_percent
			FROM groups g
			WHERE g.is_active AND g.total_swaps > 0
			ORDER BY g.%s DESC, g.group_id ASC
			LIMIT $1 OFFSET $2
		`, memberCount, orderColumn(rollupOrder, f.SortBy))
		args = []any{f.Limit, f.Offset}
	} else {
		query = fmt.Sprintf(windowCTE, "group_id") + fmt.Sprintf(`
			SELECT g.group_id, g.name, g.description, g.image_url, %s,
			       w.volume, w.swaps, w.pnl, w.pnl_percent
			FROM w
			JOIN groups g ON g.group_id = w.key AND g.is_active
			ORDER BY %s DESC, w.key ASC
			LIMIT $2 OFFSET $3
		`, memberCount, orderColumn(windowOrder, f.SortBy))
		args = []any{*f.Since, f.Limit, f.Offset}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query group leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.GroupLeaderboardEntry
	for rows.Next() {
		var e domain.GroupLeaderboardEntry
		err := rows.Scan(
			&e.GroupID, &e.Name, &e.Description, &e.ImageURL, &e.MemberCount,
			&e.TotalVolume, &e.TotalSwaps, &e.TotalPnlUSD, &e.TotalPnlPercent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan group leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group leaderboard rows: %w", err)
	}
	return entries, nil
}

// TopGroupMembers orders members with completed swaps by volume_in_group DESC, address ASC.
func (s *LeaderboardStore) TopGroupMembers(ctx context.Context, groupID string, limit, offset int) ([]domain.MemberLeaderboardEntry, error) {
	query := `
		SELECT m.address, COALESCE(u.username, ''), m.volume_in_group, m.swaps_in_group, m.pnl_in_group_usd
		FROM group_members m
		LEFT JOIN users u ON u.address = m.address
		WHERE m.group_id = $1 AND m.swaps_in_group > 0 AND m.completed_swaps_in_group > 0
		ORDER BY m.volume_in_group DESC, m.address ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query member leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.MemberLeaderboardEntry, 0, limit)
	for rows.Next() {
		var e domain.MemberLeaderboardEntry
		if err := rows.Scan(&e.Address, &e.Username, &e.VolumeInGroup, &e.SwapsInGroup, &e.PnlInGroupUSD); err != nil {
			return nil, fmt.Errorf("scan member leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member leaderboard rows: %w", err)
	}
	return entries, nil
}
