// Package api exposes the ledger, leaderboard and stats services over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"swap-ledger/internal/leaderboard"
	"swap-ledger/internal/logging"
	"swap-ledger/internal/ledger"
	"swap-ledger/internal/observability"
	"swap-ledger/internal/stats"
	"swap-ledger/internal/storage"
)

const maxBodyBytes = 1 << 20

// Options configures a Server. Ledger, Leaderboard and Stats are required.
type Options struct {
	Ledger         *ledger.Service
	Leaderboard    *leaderboard.Service
	Stats          *stats.Service
	Prices         storage.TokenPriceStore // price history, optional
	Events         http.Handler // WebSocket endpoint, optional
	Status         http.Handler // process status endpoint, optional
	JWTSecret      string       // empty disables auth on write routes
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server routes HTTP requests to the services.
type Server struct {
	ledger      *ledger.Service
	leaderboard *leaderboard.Service
	stats       *stats.Service
	prices      storage.TokenPriceStore
	events      http.Handler
	status      http.Handler
	auth        *authenticator
	logger      *slog.Logger

	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allowAll := false
	originSet := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}
		originSet[trimmed] = struct{}{}
	}
	if len(originSet) == 0 {
		allowAll = true
	}

	var auth *authenticator
	if opts.JWTSecret != "" {
		auth = newAuthenticator([]byte(opts.JWTSecret))
	}

	return &Server{
		ledger:           opts.Ledger,
		leaderboard:      opts.Leaderboard,
		stats:            opts.Stats,
		prices:           opts.Prices,
		events:           opts.Events,
		status:           opts.Status,
		auth:             auth,
		logger:           logger,
		allowAllOrigins:  allowAll,
		allowedOriginSet: originSet,
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "GET /health", s.handleHealth, false)
	mux.Handle("GET /metrics", observability.Handler())
	if s.events != nil {
		mux.Handle("GET /ws", s.events)
	}
	if s.status != nil {
		mux.Handle("GET /status", s.status)
	}

	s.route(mux, "POST /api/swaps", s.handleRecordSwap, true)
	s.route(mux, "GET /api/swaps/{id}", s.handleGetSwap, false)
	s.route(mux, "POST /api/swaps/{id}/complete", s.handleCompleteSwap, true)
	s.route(mux, "POST /api/swaps/{id}/fail", s.handleFailSwap, true)
	s.route(mux, "GET /api/users/{address}/swaps", s.handleUserSwaps, false)
	s.route(mux, "PUT /api/users/{address}/profile", s.handleUpdateProfile, true)
	s.route(mux, "GET /api/groups/{groupId}/swaps", s.handleGroupSwaps, false)

	s.route(mux, "POST /api/groups", s.handleCreateGroup, true)
	s.route(mux, "GET /api/groups/{groupId}", s.handleGetGroup, false)
	s.route(mux, "DELETE /api/groups/{groupId}", s.handleDeactivateGroup, true)
	s.route(mux, "POST /api/groups/{groupId}/members", s.handleJoinGroup, true)
	s.route(mux, "DELETE /api/groups/{groupId}/members/{address}", s.handleLeaveGroup, true)

	s.route(mux, "GET /api/leaderboard/users", s.handleUserLeaderboard, false)
	s.route(mux, "GET /api/leaderboard/groups", s.handleGroupLeaderboard, false)
	s.route(mux, "GET /api/leaderboard/groups/{groupId}/members", s.handleMemberLeaderboard, false)

	s.route(mux, "GET /api/stats/users/{address}", s.handleUserStats, false)
	s.route(mux, "GET /api/stats/groups/{groupId}", s.handleGroupStats, false)
	s.route(mux, "GET /api/stats/global", s.handleGlobalStats, false)

	if s.prices != nil {
		s.route(mux, "GET /api/tokens/{token}/prices", s.handleTokenPrices, false)
	}
	s.route(mux, "POST /api/admin/pnl", s.handleRevalue, true)

	return withRequestID(s.withCORS(mux))
}

// Run serves addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, srv *http.Server) error {
	srv.Handler = s.Handler()

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("http server started",
		"listen_addr", srv.Addr,
		"auth", s.auth != nil,
	)

	select {
	case <-ctx.Done():
		s.logger.Info("http server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

// route registers h under pattern with request metrics, and auth when write is set.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc, write bool) {
	var handler http.Handler = h
	if write && s.auth != nil {
		handler = s.auth.require(handler, s.respondError)
	}
	mux.Handle(pattern, instrument(pattern, handler))
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if s.allowAllOrigins {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := s.allowedOriginSet[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// withRequestID tags each request with the caller's X-Request-ID, or a fresh
// one, and echoes it back.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		observability.RecordHTTPRequest(route, strconv.Itoa(rec.code), time.Since(start).Seconds())
	})
}

// respondServiceError maps the service error taxonomy onto HTTP status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		ve *ledger.ValidationError
		ne *ledger.NotFoundError
		ce *ledger.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: ve.Field})
	case errors.As(err, &ne):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &ce):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		s.respondError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.ErrorContext(r.Context(), op+" failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, op+" failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func decodeJSONBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: multiple JSON values")
	}
	return nil
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseOptionalTime(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

// parsePage reads limit and offset. A missing limit is passed as 0 so the
// service applies its own default.
func parsePage(r *http.Request) (int, int, error) {
	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err := parseOptionalInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
