// Package main runs one PNL revaluation pass over the ledger from a price file
// and prints the report as JSON. Interrupting it is safe: rerun with -after
// set to the printed lastSwapId to resume.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"swap-ledger/internal/config"
	"swap-ledger/internal/ledger"
	"swap-ledger/internal/logging"
	"swap-ledger/internal/storage/backend"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadRevalueConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (config values as defaults)
	priceFile := flag.String("prices", cfg.PriceFile, "JSON file mapping token identifier to USD price")
	after := flag.String("after", "", "Resume after this swap ID")
	batchSize := flag.Int("batch-size", cfg.BatchSize, "Completed swaps re-marked per batch")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string for price history (optional)")
	flag.Parse()

	if *priceFile == "" {
		fmt.Fprintln(os.Stderr, "Error: --prices (or REVALUE_PRICE_FILE) is required")
		os.Exit(1)
	}
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn (or POSTGRES_DSN) is required")
		os.Exit(1)
	}

	logger, closeLog, err := logging.New("revalue", cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initialising logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	prices, err := ledger.LoadPriceFile(*priceFile)
	if err != nil {
		logger.Error("load prices failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := backend.Open(ctx, backend.Config{
		PostgresDSN:   *postgresDSN,
		ClickhouseDSN: *clickhouseDSN,
	}, logger)
	if err != nil {
		logger.Error("open storage failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	svc := ledger.NewService(ledger.Options{
		Ledger: stores.Ledger,
		Users:  stores.Users,
		Groups: stores.Groups,
		Prices: stores.Prices,
		Logger: logging.Component(logger, "ledger"),
	})

	logger.Info("revaluation starting", "tokens", len(prices), "after", *after, "batch_size", *batchSize)
	report, runErr := svc.UpdateAllPnl(ctx, prices, ledger.RevalueOptions{
		After:     *after,
		BatchSize: *batchSize,
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("write report failed", "err", err)
	}

	if runErr != nil {
		logger.Error("revaluation stopped", "err", runErr, "resume_after", report.LastSwapID)
		cleanup()
		closeLog()
		os.Exit(1)
	}
	logger.Info("revaluation complete", "updated", report.Updated, "failed", report.Failed)
}
