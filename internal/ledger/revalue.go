package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/events"
	"swap-ledger/internal/observability"
	"swap-ledger/internal/pnl"
	"swap-ledger/internal/storage"
)

// Revaluation defaults.
const (
	DefaultRevalueBatchSize = 500
	DefaultRevalueRetries   = 3
	DefaultRetryDelay       = 100 * time.Millisecond
	DefaultMaxRetryDelay    = 2 * time.Second
	DefaultBackoffMult      = 2.0

	// recomputeGrace bounds rollup recompute after the run's context is cancelled.
	recomputeGrace = 30 * time.Second
)

// RevalueOptions controls an UpdateAllPnl run.
type RevalueOptions struct {
	After      string // resume after this swap ID
	BatchSize  int
	MaxRetries int // 0 uses the default, negative disables retries
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

func (o RevalueOptions) withDefaults() RevalueOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultRevalueBatchSize
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultRevalueRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxRetryDelay
	}
	return o
}

// ErrRevalueRunning is matched by the ConflictError UpdateAllPnl returns while
// another run on the same Service is in progress.
var ErrRevalueRunning = errors.New("revaluation already running")

// RevalueReport summarises an UpdateAllPnl run.
type RevalueReport struct {
	Updated           int // swaps re-marked
	Skipped           int // swaps whose to-token had no price
	Failed            int // swaps whose mark failed after retries
	UsersRecomputed   int
	GroupsRecomputed  int
	RecomputeFailures int
	LastSwapID        string // resume point for a follow-up run
}

// UpdateAllPnl re-marks every completed swap from prices, keyed by token
// identifier, then recomputes the PNL rollups of the users and groups it
// touched. Swaps whose to-token has no price are left unchanged.
//
// Swaps are paged by ID so a cancelled run can resume from LastSwapID. Each
// mark and each recompute is its own short transaction, and a failing swap
// never stops the run.
func (s *Service) UpdateAllPnl(ctx context.Context, prices map[string]decimal.Decimal, opts RevalueOptions) (RevalueReport, error) {
	start := time.Now()
	opts = opts.withDefaults()
	report := RevalueReport{LastSwapID: opts.After}

	if !s.revaluing.CompareAndSwap(false, true) {
		return report, &ConflictError{ID: "revalue", Reason: "a revaluation is already running", Err: ErrRevalueRunning}
	}
	defer s.revaluing.Store(false)

	lookup := make(map[string]decimal.Decimal, len(prices))
	for token, price := range prices {
		if price.IsNegative() {
			return report, &ValidationError{Field: "prices", Reason: fmt.Sprintf("negative price for %q", token)}
		}
		if err := domain.USDLimit.Check(price); err != nil {
			return report, &ValidationError{Field: "prices." + token, Reason: err.Error()}
		}
		lookup[strings.ToLower(token)] = price
	}
	priceOf := func(token string) (decimal.Decimal, bool) {
		if p, ok := prices[token]; ok {
			return p, true
		}
		p, ok := lookup[strings.ToLower(token)]
		return p, ok
	}

	applied := make(map[string]decimal.Decimal)
	runErr := s.revalueBatches(ctx, opts, priceOf, applied, &report)

	status := "success"
	if runErr != nil {
		status = "error"
	}
	observability.RecordRevalueRun(status, time.Since(start).Seconds(), report.Updated, report.Skipped, report.Failed)
	if runErr == nil {
		observability.MarkRevalueSuccess(time.Now().Unix())
	}

	s.recordSnapshots(ctx, applied)
	s.logger.InfoContext(ctx, "pnl revaluation finished",
		"updated", report.Updated, "skipped", report.Skipped, "failed", report.Failed,
		"users", report.UsersRecomputed, "groups", report.GroupsRecomputed,
		"last_swap_id", report.LastSwapID, "duration", time.Since(start), "err", runErr)
	return report, runErr
}

func (s *Service) revalueBatches(
	ctx context.Context,
	opts RevalueOptions,
	priceOf func(string) (decimal.Decimal, bool),
	applied map[string]decimal.Decimal,
	report *RevalueReport,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.ledger.ListCompletedSwaps(ctx, report.LastSwapID, opts.BatchSize)
		if err != nil {
			return &PersistenceError{Op: "list completed swaps", Err: err}
		}
		if len(batch) == 0 {
			return nil
		}

		users := make(map[string]struct{})
		groups := make(map[string]struct{})
		var runErr error

		for _, sw := range batch {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}

			price, ok := priceOf(sw.ToToken)
			if !ok {
				report.Skipped++
				report.LastSwapID = sw.ID
				continue
			}

			current := pnl.MarkToMarket(sw.ToAmount, price)
			pnlUSD, pnlPercent := pnl.PerSwap(sw.ToAmountUSD, current)
			mark := domain.SwapMark{SwapID: sw.ID, CurrentValueUSD: current, PnlUSD: pnlUSD, PnlPercent: pnlPercent}
			if !mark.Fits() {
				report.Failed++
				report.LastSwapID = sw.ID
				s.logger.WarnContext(ctx, "mark out of range", "swap_id", sw.ID, "current_value_usd", current.String())
				continue
			}

			if err := s.withRetry(ctx, opts, func() error { return s.ledger.MarkSwap(ctx, mark) }); err != nil {
				if ctx.Err() != nil {
					runErr = ctx.Err()
					break
				}
				report.Failed++
				s.logger.WarnContext(ctx, "mark swap failed", "swap_id", sw.ID, "err", err)
			} else {
				report.Updated++
				applied[sw.ToToken] = price
				users[sw.UserAddress] = struct{}{}
				if sw.GroupID != "" {
					groups[sw.GroupID] = struct{}{}
				}
			}
			report.LastSwapID = sw.ID
		}

		s.recomputeTouched(ctx, opts, users, groups, report)

		if runErr != nil {
			return runErr
		}
		if len(batch) < opts.BatchSize {
			return nil
		}
	}
}

// recomputeTouched rewrites the rollups of every entity whose swaps were re-marked.
// It runs even when ctx is cancelled so marks and rollups do not diverge.
func (s *Service) recomputeTouched(ctx context.Context, opts RevalueOptions, users, groups map[string]struct{}, report *RevalueReport) {
	if len(users) == 0 && len(groups) == 0 {
		return
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), recomputeGrace)
		defer cancel()
	}

	for _, address := range sortedKeys(users) {
		err := s.withRetry(ctx, opts, func() error { return s.ledger.RecomputeUserPnl(ctx, address) })
		if err != nil {
			report.RecomputeFailures++
			s.logger.ErrorContext(ctx, "recompute user pnl failed", "user", address, "err", err)
			continue
		}
		report.UsersRecomputed++
	}
	for _, groupID := range sortedKeys(groups) {
		err := s.withRetry(ctx, opts, func() error { return s.ledger.RecomputeGroupPnl(ctx, groupID) })
		if err != nil {
			report.RecomputeFailures++
			s.logger.ErrorContext(ctx, "recompute group pnl failed", "group", groupID, "err", err)
			continue
		}
		report.GroupsRecomputed++
	}

	evs := make([]events.Event, 0, len(users)+len(groups))
	now := s.now().UTC()
	for address := range users {
		evs = append(evs, events.Event{Type: events.PnlRevalued, UserAddress: address, At: now})
	}
	for groupID := range groups {
		evs = append(evs, events.Event{Type: events.PnlRevalued, GroupID: groupID, At: now})
	}
	s.publish(ctx, evs...)
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// exhausts opts.MaxRetries, backing off exponentially between attempts.
func (s *Service) withRetry(ctx context.Context, opts RevalueOptions, fn func() error) error {
	delay := opts.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * DefaultBackoffMult)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", opts.MaxRetries, lastErr)
}

// retryable reports whether a failed store call may succeed on another attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrOutOfRange),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// recordSnapshots appends the applied prices to the token price history.
func (s *Service) recordSnapshots(ctx context.Context, applied map[string]decimal.Decimal) {
	if s.prices == nil || len(applied) == 0 {
		return
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), recomputeGrace)
		defer cancel()
	}

	ts := s.now().UTC()
	snapshots := make([]*domain.TokenPrice, 0, len(applied))
	for _, token := range sortedKeys(applied) {
		snapshots = append(snapshots, &domain.TokenPrice{
			TokenAddress: token,
			Symbol:       token,
			PriceUSD:     applied[token],
			Timestamp:    ts,
		})
	}
	if err := s.prices.InsertPrices(ctx, snapshots); err != nil {
		s.logger.WarnContext(ctx, "record price snapshots failed", "count", len(snapshots), "err", err)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
