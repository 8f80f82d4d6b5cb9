// Package ledger is the write side of the swap ledger.
//
// It validates input, assigns swap IDs, translates storage failures into
// ValidationError, NotFoundError, ConflictError and PersistenceError, and
// publishes events once a write has committed. Rollup maintenance itself
// happens inside the store transaction.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/events"
	"swap-ledger/internal/observability"
	"swap-ledger/internal/storage"
)

// Swap listing limits.
const (
	DefaultSwapLimit = 50
	MaxSwapLimit     = 1000
)

// Options configures a Service. Ledger, Users and Groups are required.
type Options struct {
	Ledger    storage.LedgerStore
	Users     storage.UserStore
	Groups    storage.GroupStore
	Prices    storage.TokenPriceStore // optional, receives revaluation snapshots
	Publisher events.Publisher        // optional
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

// Service implements the ledger operations.
type Service struct {
	ledger    storage.LedgerStore
	users     storage.UserStore
	groups    storage.GroupStore
	prices    storage.TokenPriceStore
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	revaluing atomic.Bool // one UpdateAllPnl at a time
}

// NewService creates a ledger service.
func NewService(opts Options) *Service {
	s := &Service{
		ledger:    opts.Ledger,
		users:     opts.Users,
		groups:    opts.Groups,
		prices:    opts.Prices,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// RecordSwap validates input and records a PENDING swap together with its
// creation-time volume and count rollups.
func (s *Service) RecordSwap(ctx context.Context, in domain.NewSwap) (sw *domain.Swap, err error) {
	defer s.observe("record_swap", time.Now(), &err)

	sw, err = buildSwap(in)
	if err != nil {
		return nil, err
	}
	sw.ID = s.newID()

	if err := s.ledger.RecordSwap(ctx, sw); err != nil {
		// The only missing parent a swap can reference is its group.
		if sw.GroupID != "" && errors.Is(err, storage.ErrNotFound) {
			return nil, mapStoreError("record swap", "group", sw.GroupID, err)
		}
		return nil, mapStoreError("record swap", "swap", sw.ID, err)
	}

	observability.RecordSwapRecorded()
	s.logger.InfoContext(ctx, "swap recorded",
		"swap_id", sw.ID, "user", sw.UserAddress, "group", sw.GroupID,
		"from_token", sw.FromToken, "to_token", sw.ToToken, "volume_usd", sw.FromAmountUSD.String())
	s.publish(ctx, events.NewSwapEvent(events.SwapRecorded, sw, s.now()))
	return sw, nil
}

// CompleteSwap marks a swap COMPLETED. When currentValueUSD is non-nil the
// swap's PNL is computed against its entry value and the user and group PNL
// rollups are recomputed. Completing again with the same txHash returns the
// stored swap unchanged.
func (s *Service) CompleteSwap(ctx context.Context, id, txHash string, currentValueUSD *decimal.Decimal) (sw *domain.Swap, err error) {
	defer s.observe("complete_swap", time.Now(), &err)

	id = strings.TrimSpace(id)
	txHash = strings.TrimSpace(txHash)
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}
	if txHash == "" {
		return nil, &ValidationError{Field: "txHash", Reason: "is required"}
	}

	var current decimal.NullDecimal
	if currentValueUSD != nil {
		if currentValueUSD.IsNegative() {
			return nil, &ValidationError{Field: "currentValueUsd", Reason: "must not be negative"}
		}
		if err := domain.USDLimit.Check(*currentValueUSD); err != nil {
			return nil, &ValidationError{Field: "currentValueUsd", Reason: err.Error()}
		}
		current = decimal.NewNullDecimal(*currentValueUSD)
	}

	sw, changed, err := s.ledger.CompleteSwap(ctx, id, txHash, current)
	if errors.Is(err, storage.ErrOutOfRange) {
		return nil, &ValidationError{Field: "currentValueUsd", Reason: "resulting pnl is out of range"}
	}
	if err != nil {
		return nil, mapStoreError("complete swap", "swap", id, err)
	}
	if !changed {
		s.logger.DebugContext(ctx, "swap already completed", "swap_id", id, "tx_hash", txHash)
		return sw, nil
	}

	observability.RecordSwapCompleted()
	attrs := []any{"swap_id", sw.ID, "user", sw.UserAddress, "group", sw.GroupID, "tx_hash", sw.TxHash}
	if sw.PnlUSD.Valid {
		attrs = append(attrs, "pnl_usd", sw.PnlUSD.Decimal.String(), "pnl_percent", sw.PnlPercent.Decimal.String())
	}
	s.logger.InfoContext(ctx, "swap completed", attrs...)
	s.publish(ctx, events.NewSwapEvent(events.SwapCompleted, sw, s.now()))
	return sw, nil
}

// FailSwap marks a PENDING swap FAILED. Volume and swap counts recorded at
// creation are kept.
func (s *Service) FailSwap(ctx context.Context, id, reason string) (sw *domain.Swap, err error) {
	defer s.observe("fail_swap", time.Now(), &err)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}

	sw, changed, err := s.ledger.FailSwap(ctx, id)
	if err != nil {
		return nil, mapStoreError("fail swap", "swap", id, err)
	}
	if !changed {
		return sw, nil
	}

	observability.RecordSwapFailed()
	s.logger.InfoContext(ctx, "swap failed", "swap_id", sw.ID, "user", sw.UserAddress, "reason", reason)
	s.publish(ctx, events.NewSwapEvent(events.SwapFailed, sw, s.now()))
	return sw, nil
}

// GetSwap returns one swap.
func (s *Service) GetSwap(ctx context.Context, id string) (*domain.Swap, error) {
	sw, err := s.ledger.GetSwap(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, mapStoreError("get swap", "swap", id, err)
	}
	return sw, nil
}

// GetUserSwaps returns a user's swaps, newest first.
func (s *Service) GetUserSwaps(ctx context.Context, address string, limit, offset int) ([]*domain.Swap, error) {
	if err := validatePage(limit, offset); err != nil {
		return nil, err
	}
	address = CanonicalAddress(address)
	swaps, err := s.ledger.GetUserSwaps(ctx, address, clampLimit(limit, DefaultSwapLimit, MaxSwapLimit), offset)
	if err != nil {
		return nil, mapStoreError("get user swaps", "user", address, err)
	}
	return swaps, nil
}

// GetGroupSwaps returns a group's swaps, newest first.
func (s *Service) GetGroupSwaps(ctx context.Context, groupID string, limit, offset int) ([]*domain.Swap, error) {
	if err := validatePage(limit, offset); err != nil {
		return nil, err
	}
	swaps, err := s.ledger.GetGroupSwaps(ctx, groupID, clampLimit(limit, DefaultSwapLimit, MaxSwapLimit), offset)
	if err != nil {
		return nil, mapStoreError("get group swaps", "group", groupID, err)
	}
	return swaps, nil
}

// UpdateProfile sets a user's display fields, creating the user if absent.
func (s *Service) UpdateProfile(ctx context.Context, address, username, avatarURL string) (*domain.User, error) {
	address = CanonicalAddress(address)
	if address == "" {
		return nil, &ValidationError{Field: "address", Reason: "is required"}
	}
	u, err := s.users.UpsertProfile(ctx, address, strings.TrimSpace(username), strings.TrimSpace(avatarURL))
	if err != nil {
		return nil, mapStoreError("update profile", "user", address, err)
	}
	return u, nil
}

// CreateGroup registers a group minted by the messaging layer.
func (s *Service) CreateGroup(ctx context.Context, in domain.NewGroup) (*domain.Group, error) {
	in.GroupID = strings.TrimSpace(in.GroupID)
	in.CreatedBy = CanonicalAddress(in.CreatedBy)
	if in.GroupID == "" {
		return nil, &ValidationError{Field: "groupId", Reason: "is required"}
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, &ValidationError{Field: "metadata", Reason: "not valid JSON"}
	}

	g, err := s.groups.CreateGroup(ctx, in)
	if err != nil {
		return nil, mapStoreError("create group", "group", in.GroupID, err)
	}
	if in.CreatedBy != "" {
		if _, err := s.groups.AddMember(ctx, g.GroupID, in.CreatedBy); err != nil {
			return nil, mapStoreError("add group creator", "group", g.GroupID, err)
		}
	}

	s.logger.InfoContext(ctx, "group created", "group", g.GroupID, "created_by", g.CreatedBy)
	s.publish(ctx, events.Event{Type: events.GroupChanged, GroupID: g.GroupID, At: s.now().UTC()})
	return g, nil
}

// GetGroup returns one group.
func (s *Service) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	g, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, mapStoreError("get group", "group", groupID, err)
	}
	return g, nil
}

// DeactivateGroup hides a group from leaderboards. Its swaps and rollups are kept.
func (s *Service) DeactivateGroup(ctx context.Context, groupID string) error {
	if err := s.groups.SetGroupActive(ctx, groupID, false); err != nil {
		return mapStoreError("deactivate group", "group", groupID, err)
	}
	s.logger.InfoContext(ctx, "group deactivated", "group", groupID)
	s.publish(ctx, events.Event{Type: events.GroupChanged, GroupID: groupID, At: s.now().UTC()})
	return nil
}

// JoinGroup adds an address to a group, reactivating a previous membership.
func (s *Service) JoinGroup(ctx context.Context, groupID, address string) (*domain.GroupMember, error) {
	address = CanonicalAddress(address)
	if address == "" {
		return nil, &ValidationError{Field: "address", Reason: "is required"}
	}
	m, err := s.groups.AddMember(ctx, groupID, address)
	if err != nil {
		return nil, mapStoreError("join group", "group", groupID, err)
	}
	s.publish(ctx, events.Event{Type: events.GroupChanged, GroupID: groupID, UserAddress: address, At: s.now().UTC()})
	return m, nil
}

// LeaveGroup deactivates a membership. The member's rollups are kept.
func (s *Service) LeaveGroup(ctx context.Context, groupID, address string) error {
	address = CanonicalAddress(address)
	if err := s.groups.RemoveMember(ctx, groupID, address); err != nil {
		return mapStoreError("leave group", "member", groupID+"/"+address, err)
	}
	s.publish(ctx, events.Event{Type: events.GroupChanged, GroupID: groupID, UserAddress: address, At: s.now().UTC()})
	return nil
}

func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.WarnContext(ctx, "publish ledger event failed", "err", err, "count", len(evs))
	}
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	observability.RecordLedgerOp(op, time.Since(start).Seconds(), errorKind(*errp))
}
