package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"swap-ledger/internal/domain"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations applies the SQL files shipped with the migrations package.
func runMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	files, err := filepath.Glob(filepath.Join("..", "migrations", "postgres", "*.sql"))
	require.NoError(t, err, "failed to list migrations")
	require.NotEmpty(t, files, "no postgres migrations found")
	sort.Strings(files)

	for _, file := range files {
		sql, err := os.ReadFile(file)
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration: %s", file)
	}
}

// stores bundles every PostgreSQL store over one pool.
type stores struct {
	ledger      *LedgerStore
	groups      *GroupStore
	leaderboard *LeaderboardStore
	stats       *StatsStore
}

func newStores(pool *Pool) stores {
	return stores{
		ledger:      NewLedgerStore(pool),
		groups:      NewGroupStore(pool),
		leaderboard: NewLeaderboardStore(pool),
		stats:       NewStatsStore(pool),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// recordSwap inserts a PENDING swap with equal USD legs.
func recordSwap(t *testing.T, ctx context.Context, st stores, id, user, group, usd string) *domain.Swap {
	t.Helper()

	sw := &domain.Swap{
		ID:            id,
		UserAddress:   user,
		GroupID:       group,
		FromToken:     "USDC",
		ToToken:       "ETH",
		FromAmount:    dec("1000000"),
		ToAmount:      dec("285000000000000000"),
		FromAmountUSD: dec(usd),
		ToAmountUSD:   dec(usd),
	}
	require.NoError(t, st.ledger.RecordSwap(ctx, sw))
	return sw
}

func completeSwap(t *testing.T, ctx context.Context, st stores, id, hash string, current *string) *domain.Swap {
	t.Helper()

	var cv decimal.NullDecimal
	if current != nil {
		cv = decimal.NewNullDecimal(dec(*current))
	}
	sw, _, err := st.ledger.CompleteSwap(ctx, id, hash, cv)
	require.NoError(t, err)
	return sw
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
