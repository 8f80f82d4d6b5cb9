package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/observability"
	"swap-ledger/internal/storage"
)

// TokenPriceStore implements storage.TokenPriceStore using ClickHouse.
type TokenPriceStore struct {
	conn *Conn
}

// NewTokenPriceStore creates a new TokenPriceStore.
func NewTokenPriceStore(conn *Conn) *TokenPriceStore {
	return &TokenPriceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TokenPriceStore = (*TokenPriceStore)(nil)

// InsertPrices appends price snapshots in one batch.
func (s *TokenPriceStore) InsertPrices(ctx context.Context, prices []*domain.TokenPrice) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "insert", time.Since(start).Seconds(), err) }()

	if len(prices) == 0 {
		return nil
	}
	for _, p := range prices {
		if p == nil || p.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_prices (
			token_address, symbol, price_usd, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range prices {
		err = batch.Append(p.TokenAddress, p.Symbol, p.PriceUSD, p.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetPrices retrieves snapshots for a token within [start, end] (inclusive), ordered by timestamp ASC.
func (s *TokenPriceStore) GetPrices(ctx context.Context, tokenAddress string, start, end time.Time) (prices []*domain.TokenPrice, err error) {
	began := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "select", time.Since(began).Seconds(), err) }()

	query := `
		SELECT token_address, symbol, price_usd, timestamp
		FROM token_prices
		WHERE token_address = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenAddress, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query token prices: %w", err)
	}
	defer rows.Close()

	return scanTokenPrices(rows)
}

// scanTokenPrices scans multiple rows.
func scanTokenPrices(rows chRows) ([]*domain.TokenPrice, error) {
	var prices []*domain.TokenPrice

	for rows.Next() {
		var p domain.TokenPrice
		var price decimal.Decimal

		if err := rows.Scan(&p.TokenAddress, &p.Symbol, &price, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan token price row: %w", err)
		}

		p.PriceUSD = price
		prices = append(prices, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token price rows: %w", err)
	}

	return prices, nil
}
