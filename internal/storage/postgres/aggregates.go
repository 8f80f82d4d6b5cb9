package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"swap-ledger/internal/pnl"
	"swap-ledger/internal/storage"
)

// recomputeUser locks the user row and overwrites its PNL rollup from the
// user's completed swaps. Incremental columns are never touched here.
func recomputeUser(ctx context.Context, tx pgx.Tx, address string) error {
	var locked string
	err := tx.QueryRow(ctx, `SELECT address FROM users WHERE address = $1 FOR UPDATE`, address).Scan(&locked)
	if err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("user %s: %w", address, storage.ErrNotFound)
		}
		return fmt.Errorf("lock user: %w", err)
	}

	var sumPnl, sumInvested decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl_usd), 0), COALESCE(SUM(from_amount_usd), 0)
		FROM swaps
		WHERE user_address = $1 AND status = 'COMPLETED'
	`, address).Scan(&sumPnl, &sumInvested)
	if err != nil {
		return fmt.Errorf("sum user pnl: %w", err)
	}

	totalPnl, totalPercent := pnl.Aggregate(sumPnl, sumInvested)
	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET total_pnl_usd = $2, total_pnl_percent = $3, updated_at = now()
		WHERE address = $1
	`, address, totalPnl, totalPercent); err != nil {
		return fmt.Errorf("update user pnl: %w", err)
	}
	return nil
}

// recomputeGroup locks the group row, overwrites its PNL rollup and rewrites
// every member's pnl_in_group_usd from the group's completed swaps.
func recomputeGroup(ctx context.Context, tx pgx.Tx, groupID string) error {
	var locked string
	err := tx.QueryRow(ctx, `SELECT group_id FROM groups WHERE group_id = $1 FOR UPDATE`, groupID).Scan(&locked)
	if err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
		}
		return fmt.Errorf("lock group: %w", err)
	}

	var sumPnl, sumInvested decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl_usd), 0), COALESCE(SUM(from_amount_usd), 0)
		FROM swaps
		WHERE group_id = $1 AND status = 'COMPLETED'
	`, groupID).Scan(&sumPnl, &sumInvested)
	if err != nil {
		return fmt.Errorf("sum group pnl: %w", err)
	}

	totalPnl, totalPercent := pnl.Aggregate(sumPnl, sumInvested)
	if _, err := tx.Exec(ctx, `
		UPDATE groups
		SET total_pnl_usd = $2, total_pnl_percent = $3, updated_at = now()
		WHERE group_id = $1
	`, groupID, totalPnl, totalPercent); err != nil {
		return fmt.Errorf("update group pnl: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE group_members m
		SET pnl_in_group_usd = COALESCE((
			SELECT SUM(s.pnl_usd)
			FROM swaps s
			WHERE s.group_id = m.group_id
			  AND s.user_address = m.address
			  AND s.status = 'COMPLETED'
		), 0)
		WHERE m.group_id = $1
	`, groupID); err != nil {
		return fmt.Errorf("update member pnl: %w", err)
	}
	return nil
}
