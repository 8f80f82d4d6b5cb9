package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"swap-ledger/internal/storage/postgres"
)

// migrationLockKey serializes concurrent migrators (two server replicas
// starting together) through a transaction-scoped advisory lock.
const migrationLockKey int64 = 0x5357_4150 // "SWAP"

const createPostgresVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// RunPostgresMigrations applies every embedded ledger migration not yet
// recorded in schema_migrations. Each file runs in its own transaction
// together with its version row. Returns the number of files applied.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) (int, error) {
	migs, err := loadMigrations(PostgresFS, "postgres")
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migs {
		ran, err := applyPostgres(ctx, pool, m)
		if err != nil {
			return applied, err
		}
		if ran {
			applied++
		}
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, m migration) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", m.name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
		return false, fmt.Errorf("lock migration %s: %w", m.name, err)
	}
	// Created under the lock: concurrent CREATE TABLE IF NOT EXISTS can race.
	if _, err := tx.Exec(ctx, createPostgresVersionTable); err != nil {
		return false, fmt.Errorf("create schema_migrations: %w", err)
	}

	var done bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.name, err)
	}
	if done {
		return false, nil
	}

	if strings.TrimSpace(m.sql) != "" {
		// No arguments: pgx sends the file over the simple protocol, so it
		// may hold several statements.
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return false, fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.name, err)
	}
	return true, nil
}

// AppliedPostgresVersions lists the recorded migration versions in order.
func AppliedPostgresVersions(ctx context.Context, pool *postgres.Pool) ([]int, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}
