// Package main runs the swap ledger service:
// - HTTP API for recording swaps, leaderboards and stats
// - WebSocket feed of ledger events
// - optional scheduled PNL revaluation from a price file
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"swap-ledger/internal/api"
	"swap-ledger/internal/cache"
	"swap-ledger/internal/config"
	"swap-ledger/internal/events"
	"swap-ledger/internal/leaderboard"
	"swap-ledger/internal/ledger"
	"swap-ledger/internal/logging"
	"swap-ledger/internal/stats"
	"swap-ledger/internal/storage/backend"
)

// Server holds the long-running components.
type Server struct {
	cfg     config.ServerConfig
	logger  *slog.Logger
	ledger  *ledger.Service
	hub     *events.Hub
	storage string

	// State
	mu             sync.Mutex
	started        time.Time
	lastRevalueRun time.Time
	lastReport     *ledger.RevalueReport
	revalueRunning bool
	revalueRuns    int
}

func main() {
	// Load .env if present; real environment wins.
	_ = godotenv.Load()

	issueToken := flag.String("issue-token", "", "Print a bearer token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "Lifetime of a token printed by -issue-token")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := api.IssueToken([]byte(cfg.JWTSecret), *issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger, closeLog, err := logging.New("server", cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if src, err := config.CurrentConfigSource(); err == nil && src.Loaded {
		logger.Info("config file loaded", "path", src.Path, "phase", src.Phase)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Error("server error", "err", err)
		closeLog()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg config.ServerConfig, logger *slog.Logger) error {
	stores, cleanup, err := backend.Open(ctx, backend.Config{
		PostgresDSN:   cfg.PostgresDSN,
		ClickhouseDSN: cfg.ClickhouseDSN,
	}, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	hub := events.NewHub(logging.Component(logger, "ws"), cfg.AllowedOrigins)
	publishers := events.Multi{hub}

	var lbCache leaderboard.Cache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewLeaderboardCache(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rc.Close()
		lbCache = rc
		publishers = append(publishers, rc)
		logger.Info("leaderboard cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			BatchTimeout: cfg.KafkaBatchTimeout,
		})
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Warn("close kafka publisher", "err", err)
			}
		}()
		publishers = append(publishers, kp)
		logger.Info("kafka publisher enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	ledgerSvc := ledger.NewService(ledger.Options{
		Ledger:    stores.Ledger,
		Users:     stores.Users,
		Groups:    stores.Groups,
		Prices:    stores.Prices,
		Publisher: publishers,
		Logger:    logging.Component(logger, "ledger"),
	})
	lbSvc := leaderboard.NewService(leaderboard.Options{
		Store:  stores.Leaderboard,
		Groups: stores.Groups,
		Cache:  lbCache,
		Logger: logging.Component(logger, "leaderboard"),
	})
	statsSvc := stats.NewService(stats.Options{
		Ledger:      stores.Ledger,
		Users:       stores.Users,
		Groups:      stores.Groups,
		Leaderboard: stores.Leaderboard,
		Stats:       stores.Stats,
	})

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		ledger:  ledgerSvc,
		hub:     hub,
		storage: stores.Kind,
		started: time.Now(),
	}

	apiServer := api.NewServer(api.Options{
		Ledger:         ledgerSvc,
		Leaderboard:    lbSvc,
		Stats:          statsSvc,
		Prices:         stores.Prices,
		Events:         hub,
		Status:         http.HandlerFunc(s.handleStatus),
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logging.Component(logger, "api"),
	})
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, write routes are unauthenticated")
	}

	// Channel to signal completion
	done := make(chan struct{})
	defer close(done)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
			cancel()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing immediate shutdown", "signal", sig.String())
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	if cfg.RevalueInterval > 0 {
		go s.runRevalueScheduler(ctx)
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	if err := apiServer.Run(ctx, httpServer); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runRevalueScheduler re-marks completed swaps from the price file on a fixed interval.
func (s *Server) runRevalueScheduler(ctx context.Context) {
	s.logger.Info("starting revalue scheduler", "interval", s.cfg.RevalueInterval, "price_file", s.cfg.PriceFile)

	ticker := time.NewTicker(s.cfg.RevalueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runRevalue(ctx)
		}
	}
}

// runRevalue executes one revaluation unless one is already running.
func (s *Server) runRevalue(ctx context.Context) {
	s.mu.Lock()
	if s.revalueRunning {
		s.mu.Unlock()
		s.logger.Warn("revaluation already running, skipping")
		return
	}
	s.revalueRunning = true
	s.mu.Unlock()

	var report *ledger.RevalueReport
	defer func() {
		s.mu.Lock()
		s.revalueRunning = false
		s.lastRevalueRun = time.Now()
		s.revalueRuns++
		if report != nil {
			s.lastReport = report
		}
		s.mu.Unlock()
	}()

	prices, err := ledger.LoadPriceFile(s.cfg.PriceFile)
	if err != nil {
		s.logger.Error("load prices failed", "err", err)
		return
	}

	r, err := s.ledger.UpdateAllPnl(ctx, prices, ledger.RevalueOptions{BatchSize: s.cfg.RevalueBatch})
	if errors.Is(err, ledger.ErrRevalueRunning) {
		s.logger.Warn("another revaluation is running, skipping")
		return
	}
	report = &r
	if err != nil {
		s.logger.Error("revaluation failed", "err", err, "resume_after", r.LastSwapID)
		return
	}
	s.logger.Info("revaluation completed",
		"updated", r.Updated,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"users", r.UsersRecomputed,
		"groups", r.GroupsRecomputed,
	)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string                `json:"status"`
	Uptime         string                `json:"uptime"`
	Started        time.Time             `json:"started"`
	Storage        string                `json:"storage"`
	WSClients      int                   `json:"ws_clients"`
	LastRevalueRun time.Time             `json:"last_revalue_run,omitempty"`
	RevalueRuns    int                   `json:"revalue_runs"`
	RevalueRunning bool                  `json:"revalue_running"`
	LastReport     *ledger.RevalueReport `json:"last_report,omitempty"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		Started:        s.started,
		Storage:        s.storage,
		WSClients:      s.hub.ClientCount(),
		LastRevalueRun: s.lastRevalueRun,
		RevalueRuns:    s.revalueRuns,
		RevalueRunning: s.revalueRunning,
		LastReport:     s.lastReport,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to write status", "err", err)
	}
}
