// Package backend opens the storage implementations the binaries run on.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"swap-ledger/internal/storage"
	chstore "swap-ledger/internal/storage/clickhouse"
	"swap-ledger/internal/storage/memory"
	"swap-ledger/internal/storage/migrations"
	pgstore "swap-ledger/internal/storage/postgres"
)

// Config selects the backends. An empty PostgresDSN selects the in-memory
// store; an empty ClickhouseDSN keeps price history in memory.
type Config struct {
	PostgresDSN   string
	ClickhouseDSN string
}

// Stores holds every store the services need.
type Stores struct {
	Ledger      storage.LedgerStore
	Users       storage.UserStore
	Groups      storage.GroupStore
	Leaderboard storage.LeaderboardStore
	Stats       storage.StatsStore
	Prices      storage.TokenPriceStore
	Kind        string // "memory" or "postgres"
}

// Open connects the configured backends and applies migrations. The returned
// func releases every connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Stores, func(), error) {
	var (
		stores  *Stores
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PostgresDSN == "" {
		mem := memory.NewStore()
		stores = &Stores{
			Ledger:      mem,
			Users:       mem,
			Groups:      mem,
			Leaderboard: mem,
			Stats:       mem,
			Kind:        "memory",
		}
		logger.Warn("POSTGRES_DSN not set, using in-memory store")
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if applied > 0 {
			logger.Info("postgres migrations applied", "count", applied)
		}

		groups := pgstore.NewGroupStore(pool)
		stores = &Stores{
			Ledger:      pgstore.NewLedgerStore(pool),
			Users:       groups,
			Groups:      groups,
			Leaderboard: pgstore.NewLeaderboardStore(pool),
			Stats:       pgstore.NewStatsStore(pool),
			Kind:        "postgres",
		}
	}

	if cfg.ClickhouseDSN == "" {
		stores.Prices = memory.NewTokenPriceStore()
	} else {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse", "err", err)
			}
		})
		stores.Prices = chstore.NewTokenPriceStore(conn)
	}

	logger.Info("storage ready", "kind", stores.Kind, "price_history", cfg.ClickhouseDSN != "")
	return stores, cleanup, nil
}
