package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/pnl"
	"swap-ledger/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
//
// Row locks are always taken in the order swap, user, group, group member.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const swapColumns = `
	id, user_address, group_id, from_token, to_token,
	from_amount, to_amount, from_amount_usd, to_amount_usd,
	status, tx_hash, completed_at,
	current_value_usd, pnl_usd, pnl_percent, gas_used, gas_price,
	created_at
`

// RecordSwap inserts a PENDING swap and increments the rollups it touches.
func (s *LedgerStore) RecordSwap(ctx context.Context, swap *domain.Swap) error {
	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		if swap.GroupID != "" {
			var exists bool
			err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE group_id = $1)`, swap.GroupID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check group: %w", err)
			}
			if !exists {
				return fmt.Errorf("group %s: %w", swap.GroupID, storage.ErrNotFound)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO users (address) VALUES ($1)
			ON CONFLICT (address) DO NOTHING
		`, swap.UserAddress); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO swaps (
				id, user_address, group_id, from_token, to_token,
				from_amount, to_amount, from_amount_usd, to_amount_usd,
				status, gas_used, gas_price
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDING', $10, $11)
			RETURNING created_at
		`,
			swap.ID,
			swap.UserAddress,
			nullString(swap.GroupID),
			swap.FromToken,
			swap.ToToken,
			swap.FromAmount,
			swap.ToAmount,
			swap.FromAmountUSD,
			swap.ToAmountUSD,
			swap.GasUsed,
			swap.GasPrice,
		).Scan(&swap.CreatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert swap: %w", err)
		}
		swap.Status = domain.SwapStatusPending

		if _, err := tx.Exec(ctx, `
			UPDATE users
			SET total_volume = total_volume + $2,
			    total_swaps = total_swaps + 1,
			    updated_at = now()
			WHERE address = $1
		`, swap.UserAddress, swap.FromAmountUSD); err != nil {
			return fmt.Errorf("increment user rollup: %w", err)
		}

		if swap.GroupID == "" {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE groups
			SET total_volume = total_volume + $2,
			    total_swaps = total_swaps + 1,
			    updated_at = now()
			WHERE group_id = $1
		`, swap.GroupID, swap.FromAmountUSD); err != nil {
			return fmt.Errorf("increment group rollup: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE group_members
			SET volume_in_group = volume_in_group + $3,
			    swaps_in_group = swaps_in_group + 1
			WHERE group_id = $1 AND address = $2
		`, swap.GroupID, swap.UserAddress, swap.FromAmountUSD); err != nil {
			return fmt.Errorf("increment member rollup: %w", err)
		}

		return nil
	})
}

// CompleteSwap finalizes a swap and recomputes the affected PNL rollups in the same transaction.
func (s *LedgerStore) CompleteSwap(ctx context.Context, id, txHash string, currentValueUSD decimal.NullDecimal) (*domain.Swap, bool, error) {
	var (
		out     *domain.Swap
		changed bool
	)

	err := s.pool.inTx(ctx, func(tx pgx.Tx) error {
		sw, err := lockSwap(ctx, tx, id)
		if err != nil {
			return err
		}

		switch sw.Status {
		case domain.SwapStatusCompleted:
			if sw.TxHash == txHash {
				out = sw
				return nil
			}
			return storage.ErrSwapFinalized
		case domain.SwapStatusFailed:
			return storage.ErrSwapFinalized
		}

		var pnlUSD, pnlPercent decimal.NullDecimal
		if currentValueUSD.Valid {
			mark := domain.SwapMark{CurrentValueUSD: currentValueUSD.Decimal}
			mark.PnlUSD, mark.PnlPercent = pnl.PerSwap(sw.ToAmountUSD, currentValueUSD.Decimal)
			if !mark.Fits() {
				return storage.ErrOutOfRange
			}
			pnlUSD, pnlPercent = decimal.NewNullDecimal(mark.PnlUSD), decimal.NewNullDecimal(mark.PnlPercent)
		}

		var completedAt time.Time
		err = tx.QueryRow(ctx, `
			UPDATE swaps
			SET status = 'COMPLETED',
			    tx_hash = $2,
			    completed_at = now(),
			    current_value_usd = $3,
			    pnl_usd = $4,
			    pnl_percent = $5
			WHERE id = $1
			RETURNING completed_at
		`, id, txHash, currentValueUSD, pnlUSD, pnlPercent).Scan(&completedAt)
		if err != nil {
			if isNumericOverflowError(err) {
				return fmt.Errorf("complete swap: %w", storage.ErrOutOfRange)
			}
			return fmt.Errorf("complete swap: %w", err)
		}

		sw.Status = domain.SwapStatusCompleted
		sw.TxHash = txHash
		sw.CompletedAt = &completedAt
		sw.CurrentValueUSD = currentValueUSD
		sw.PnlUSD = pnlUSD
		sw.PnlPercent = pnlPercent

		if err := recomputeUser(ctx, tx, sw.UserAddress); err != nil {
			return err
		}
		if sw.GroupID != "" {
			if err := recomputeGroup(ctx, tx, sw.GroupID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE group_members
				SET completed_swaps_in_group = completed_swaps_in_group + 1
				WHERE group_id = $1 AND address = $2
			`, sw.GroupID, sw.UserAddress); err != nil {
				return fmt.Errorf("increment member completed count: %w", err)
			}
		}

		out, changed = sw, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// FailSwap moves a PENDING swap to FAILED.
func (s *LedgerStore) FailSwap(ctx context.Context, id string) (*domain.Swap, bool, error) {
	var (
		out     *domain.Swap
		changed bool
	)

	err := s.pool.inTx(ctx, func(tx pgx.Tx) error {
		sw, err := lockSwap(ctx, tx, id)
		if err != nil {
			return err
		}

		switch sw.Status {
		case domain.SwapStatusFailed:
			out = sw
			return nil
		case domain.SwapStatusCompleted:
			return storage.ErrSwapFinalized
		}

		if _, err := tx.Exec(ctx, `UPDATE swaps SET status = 'FAILED' WHERE id = $1`, id); err != nil {
			return fmt.Errorf("fail swap: %w", err)
		}
		sw.Status = domain.SwapStatusFailed
		out, changed = sw, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// GetSwap retrieves a swap by ID.
func (s *LedgerStore) GetSwap(ctx context.Context, id string) (*domain.Swap, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE id = $1`, id)
	sw, err := scanSwap(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap: %w", err)
	}
	return sw, nil
}

// GetUserSwaps retrieves a user's swaps, newest first.
func (s *LedgerStore) GetUserSwaps(ctx context.Context, address string, limit, offset int) ([]*domain.Swap, error) {
	query := `
		SELECT ` + swapColumns + `
		FROM swaps
		WHERE user_address = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, address, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get user swaps: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// GetGroupSwaps retrieves a group's swaps, newest first.
func (s *LedgerStore) GetGroupSwaps(ctx context.Context, groupID string, limit, offset int) ([]*domain.Swap, error) {
	query := `
		SELECT ` + swapColumns + `
		FROM swaps
		WHERE group_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get group swaps: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// ListCompletedSwaps retrieves completed swaps with ID > afterID, ordered by ID ASC.
func (s *LedgerStore) ListCompletedSwaps(ctx context.Context, afterID string, limit int) ([]*domain.Swap, error) {
	query := `
		SELECT ` + swapColumns + `
		FROM swaps
		WHERE status = 'COMPLETED' AND id > $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed swaps: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// MarkSwap overwrites the mark-to-market fields of a completed swap.
func (s *LedgerStore) MarkSwap(ctx context.Context, mark domain.SwapMark) error {
	if !mark.Fits() {
		return storage.ErrOutOfRange
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE swaps
		SET current_value_usd = $2, pnl_usd = $3, pnl_percent = $4
		WHERE id = $1 AND status = 'COMPLETED'
	`, mark.SwapID, mark.CurrentValueUSD, mark.PnlUSD, mark.PnlPercent)
	if err != nil {
		if isNumericOverflowError(err) {
			return fmt.Errorf("mark swap: %w", storage.ErrOutOfRange)
		}
		return fmt.Errorf("mark swap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecomputeUserPnl rewrites a user's PNL rollup under the user's row lock.
func (s *LedgerStore) RecomputeUserPnl(ctx context.Context, address string) error {
	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		return recomputeUser(ctx, tx, address)
	})
}

// RecomputeGroupPnl rewrites a group's and its members' PNL rollups under the group's row lock.
func (s *LedgerStore) RecomputeGroupPnl(ctx context.Context, groupID string) error {
	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		return recomputeGroup(ctx, tx, groupID)
	})
}

func lockSwap(ctx context.Context, tx pgx.Tx, id string) (*domain.Swap, error) {
	row := tx.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE id = $1 FOR UPDATE`, id)
	sw, err := scanSwap(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock swap: %w", err)
	}
	return sw, nil
}

// scanSwap scans a single row into a Swap.
func scanSwap(row pgx.Row) (*domain.Swap, error) {
	var (
		sw      domain.Swap
		groupID *string
		txHash  *string
		status  string
	)

	err := row.Scan(
		&sw.ID,
		&sw.UserAddress,
		&groupID,
		&sw.FromToken,
		&sw.ToToken,
		&sw.FromAmount,
		&sw.ToAmount,
		&sw.FromAmountUSD,
		&sw.ToAmountUSD,
		&status,
		&txHash,
		&sw.CompletedAt,
		&sw.CurrentValueUSD,
		&sw.PnlUSD,
		&sw.PnlPercent,
		&sw.GasUsed,
		&sw.GasPrice,
		&sw.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sw.GroupID = derefString(groupID)
	sw.TxHash = derefString(txHash)
	sw.Status = domain.SwapStatus(status)
	return &sw, nil
}

// scanSwaps scans multiple rows into a slice of Swap.
func scanSwaps(rows pgx.Rows) ([]*domain.Swap, error) {
	var swaps []*domain.Swap

	for rows.Next() {
		sw, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap row: %w", err)
		}
		swaps = append(swaps, sw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap rows: %w", err)
	}

	return swaps, nil
}
