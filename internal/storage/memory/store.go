package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/pnl"
	"swap-ledger/internal/storage"
)

type memberKey struct {
	groupID string
	address string
}

type swapRow struct {
	swap domain.Swap
	seq  int64 // insertion order, breaks created_at ties
}

// Store is an in-memory ledger implementing every relational store interface.
// A single mutex makes each call behave like a serializable transaction.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	seq     int64
	swaps   map[string]*swapRow
	users   map[string]*domain.User
	groups  map[string]*domain.Group
	members map[memberKey]*domain.GroupMember
}

// NewStore creates a new in-memory Store.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a Store whose timestamps come from now.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:     now,
		swaps:   make(map[string]*swapRow),
		users:   make(map[string]*domain.User),
		groups:  make(map[string]*domain.Group),
		members: make(map[memberKey]*domain.GroupMember),
	}
}

// RecordSwap inserts a PENDING swap and increments rollups.
func (s *Store) RecordSwap(_ context.Context, swap *domain.Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if swap.ID == "" || swap.UserAddress == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.swaps[swap.ID]; exists {
		return storage.ErrDuplicateKey
	}

	var group *domain.Group
	if swap.GroupID != "" {
		g, ok := s.groups[swap.GroupID]
		if !ok {
			return storage.ErrNotFound
		}
		group = g
	}

	now := s.now().UTC()
	user := s.ensureUser(swap.UserAddress, now)

	swap.Status = domain.SwapStatusPending
	swap.CreatedAt = now
	s.seq++
	s.swaps[swap.ID] = &swapRow{swap: copySwap(*swap), seq: s.seq}

	user.TotalVolume = user.TotalVolume.Add(swap.FromAmountUSD)
	user.TotalSwaps++
	user.UpdatedAt = now

	if group != nil {
		group.TotalVolume = group.TotalVolume.Add(swap.FromAmountUSD)
		group.TotalSwaps++
		group.UpdatedAt = now

		if m, ok := s.members[memberKey{swap.GroupID, swap.UserAddress}]; ok {
			m.VolumeInGroup = m.VolumeInGroup.Add(swap.FromAmountUSD)
			m.SwapsInGroup++
		}
	}

	return nil
}

// CompleteSwap finalizes a swap and recomputes the affected PNL rollups.
func (s *Store) CompleteSwap(_ context.Context, id, txHash string, currentValueUSD decimal.NullDecimal) (*domain.Swap, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.swaps[id]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	sw := &row.swap

	switch sw.Status {
	case domain.SwapStatusCompleted:
		if sw.TxHash == txHash {
			out := copySwap(*sw)
			return &out, false, nil
		}
		return nil, false, storage.ErrSwapFinalized
	case domain.SwapStatusFailed:
		return nil, false, storage.ErrSwapFinalized
	}

	var mark domain.SwapMark
	if currentValueUSD.Valid {
		mark.CurrentValueUSD = currentValueUSD.Decimal
		mark.PnlUSD, mark.PnlPercent = pnl.PerSwap(sw.ToAmountUSD, currentValueUSD.Decimal)
		if !mark.Fits() {
			return nil, false, storage.ErrOutOfRange
		}
	}

	now := s.now().UTC()
	sw.Status = domain.SwapStatusCompleted
	sw.TxHash = txHash
	sw.CompletedAt = &now
	if currentValueUSD.Valid {
		sw.CurrentValueUSD = currentValueUSD
		sw.PnlUSD = decimal.NewNullDecimal(mark.PnlUSD)
		sw.PnlPercent = decimal.NewNullDecimal(mark.PnlPercent)
	}

	if sw.GroupID != "" {
		if m, ok := s.members[memberKey{sw.GroupID, sw.UserAddress}]; ok {
			m.CompletedSwapsInGroup++
		}
	}

	s.recomputeUser(sw.UserAddress, now)
	if sw.GroupID != "" {
		s.recomputeGroup(sw.GroupID, now)
	}

	out := copySwap(*sw)
	return &out, true, nil
}

// FailSwap moves a PENDING swap to FAILED.
func (s *Store) FailSwap(_ context.Context, id string) (*domain.Swap, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.swaps[id]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	sw := &row.swap

	switch sw.Status {
	case domain.SwapStatusFailed:
		out := copySwap(*sw)
		return &out, false, nil
	case domain.SwapStatusCompleted:
		return nil, false, storage.ErrSwapFinalized
	}

	sw.Status = domain.SwapStatusFailed
	out := copySwap(*sw)
	return &out, true, nil
}

// GetSwap retrieves a swap by ID.
func (s *Store) GetSwap(_ context.Context, id string) (*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.swaps[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := copySwap(row.swap)
	return &out, nil
}

// GetUserSwaps retrieves a user's swaps, newest first.
func (s *Store) GetUserSwaps(_ context.Context, address string, limit, offset int) ([]*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.newestFirst(func(sw *domain.Swap) bool { return sw.UserAddress == address }, limit, offset), nil
}

// GetGroupSwaps retrieves a group's swaps, newest first.
func (s *Store) GetGroupSwaps(_ context.Context, groupID string, limit, offset int) ([]*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.newestFirst(func(sw *domain.Swap) bool { return sw.GroupID == groupID }, limit, offset), nil
}

// ListCompletedSwaps retrieves completed swaps with ID > afterID, ordered by ID ASC.
func (s *Store) ListCompletedSwaps(_ context.Context, afterID string, limit int) ([]*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, row := range s.swaps {
		if row.swap.Status == domain.SwapStatusCompleted && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]*domain.Swap, 0, len(ids))
	for _, id := range ids {
		out := copySwap(s.swaps[id].swap)
		result = append(result, &out)
	}
	return result, nil
}

// MarkSwap overwrites the mark-to-market fields of a completed swap.
func (s *Store) MarkSwap(_ context.Context, mark domain.SwapMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.swaps[mark.SwapID]
	if !ok || row.swap.Status != domain.SwapStatusCompleted {
		return storage.ErrNotFound
	}
	if !mark.Fits() {
		return storage.ErrOutOfRange
	}
	row.swap.CurrentValueUSD = decimal.NewNullDecimal(mark.CurrentValueUSD)
	row.swap.PnlUSD = decimal.NewNullDecimal(mark.PnlUSD)
	row.swap.PnlPercent = decimal.NewNullDecimal(mark.PnlPercent)
	return nil
}

// RecomputeUserPnl rewrites a user's PNL rollup.
func (s *Store) RecomputeUserPnl(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[address]; !ok {
		return storage.ErrNotFound
	}
	s.recomputeUser(address, s.now().UTC())
	return nil
}

// RecomputeGroupPnl rewrites a group's and its members' PNL rollups.
func (s *Store) RecomputeGroupPnl(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return storage.ErrNotFound
	}
	s.recomputeGroup(groupID, s.now().UTC())
	return nil
}

// recomputeUser requires s.mu held for writing.
func (s *Store) recomputeUser(address string, now time.Time) {
	user, ok := s.users[address]
	if !ok {
		return
	}
	sumPnl, sumInvested := s.sumCompleted(func(sw *domain.Swap) bool { return sw.UserAddress == address })
	user.TotalPnlUSD, user.TotalPnlPercent = pnl.Aggregate(sumPnl, sumInvested)
	user.UpdatedAt = now
}

// recomputeGroup requires s.mu held for writing.
func (s *Store) recomputeGroup(groupID string, now time.Time) {
	group, ok := s.groups[groupID]
	if !ok {
		return
	}
	sumPnl, sumInvested := s.sumCompleted(func(sw *domain.Swap) bool { return sw.GroupID == groupID })
	group.TotalPnlUSD, group.TotalPnlPercent = pnl.Aggregate(sumPnl, sumInvested)
	group.UpdatedAt = now

	for key, m := range s.members {
		if key.groupID != groupID {
			continue
		}
		addr := key.address
		memberPnl, _ := s.sumCompleted(func(sw *domain.Swap) bool {
			return sw.GroupID == groupID && sw.UserAddress == addr
		})
		m.PnlInGroupUSD = memberPnl
	}
}

// sumCompleted sums pnl_usd and from_amount_usd over matching completed swaps.
func (s *Store) sumCompleted(match func(*domain.Swap) bool) (sumPnl, sumInvested decimal.Decimal) {
	for _, row := range s.swaps {
		sw := &row.swap
		if sw.Status != domain.SwapStatusCompleted || !match(sw) {
			continue
		}
		if sw.PnlUSD.Valid {
			sumPnl = sumPnl.Add(sw.PnlUSD.Decimal)
		}
		sumInvested = sumInvested.Add(sw.FromAmountUSD)
	}
	return sumPnl, sumInvested
}

func (s *Store) newestFirst(match func(*domain.Swap) bool, limit, offset int) []*domain.Swap {
	var rows []*swapRow
	for _, row := range s.swaps {
		if match(&row.swap) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].swap.CreatedAt.Equal(rows[j].swap.CreatedAt) {
			return rows[i].swap.CreatedAt.After(rows[j].swap.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	rows = page(rows, limit, offset)

	result := make([]*domain.Swap, 0, len(rows))
	for _, row := range rows {
		out := copySwap(row.swap)
		result = append(result, &out)
	}
	return result
}

// ensureUser requires s.mu held for writing.
func (s *Store) ensureUser(address string, now time.Time) *domain.User {
	if u, ok := s.users[address]; ok {
		return u
	}
	u := &domain.User{Address: address, CreatedAt: now, UpdatedAt: now}
	s.users[address] = u
	return u
}

// page applies offset and limit. A non-positive limit returns everything after offset.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func copySwap(sw domain.Swap) domain.Swap {
	if sw.CompletedAt != nil {
		t := *sw.CompletedAt
		sw.CompletedAt = &t
	}
	return sw
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore      = (*Store)(nil)
	_ storage.UserStore        = (*Store)(nil)
	_ storage.GroupStore       = (*Store)(nil)
	_ storage.LeaderboardStore = (*Store)(nil)
	_ storage.StatsStore       = (*Store)(nil)
)
