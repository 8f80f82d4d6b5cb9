package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-ledger/internal/domain"
)

func TestTokenPriceStore_InsertAndGetPrices(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenPriceStore(conn)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	prices := []*domain.TokenPrice{
		{TokenAddress: "0xeth", Symbol: "ETH", PriceUSD: decimal.RequireFromString("3050.123456789012345678"), Timestamp: base.Add(time.Minute)},
		{TokenAddress: "0xeth", Symbol: "ETH", PriceUSD: decimal.RequireFromString("3049.5"), Timestamp: base},
		{TokenAddress: "0xbtc", Symbol: "BTC", PriceUSD: decimal.RequireFromString("61000"), Timestamp: base},
	}
	require.NoError(t, store.InsertPrices(ctx, prices))

	result, err := store.GetPrices(ctx, "0xeth", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.True(t, result[0].PriceUSD.Equal(decimal.RequireFromString("3049.5")))
	assert.True(t, result[1].PriceUSD.Equal(decimal.RequireFromString("3050.123456789012345678")),
		"decimal precision lost: %s", result[1].PriceUSD)
	assert.Equal(t, "ETH", result[0].Symbol)
	assert.True(t, result[0].Timestamp.Equal(base))
}

func TestTokenPriceStore_EmptyInsert(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenPriceStore(conn)
	require.NoError(t, store.InsertPrices(context.Background(), nil))
}
