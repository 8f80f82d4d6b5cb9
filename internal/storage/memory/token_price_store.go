package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

// TokenPriceStore is an in-memory implementation of storage.TokenPriceStore.
type TokenPriceStore struct {
	mu   sync.RWMutex
	data map[string][]domain.TokenPrice // keyed by token_address, append order
}

// NewTokenPriceStore creates a new in-memory token price store.
func NewTokenPriceStore() *TokenPriceStore {
	return &TokenPriceStore{
		data: make(map[string][]domain.TokenPrice),
	}
}

// InsertPrices appends price snapshots.
func (s *TokenPriceStore) InsertPrices(_ context.Context, prices []*domain.TokenPrice) error {
	if len(prices) == 0 {
		return nil
	}

	for _, p := range prices {
		if p == nil || p.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range prices {
		s.data[p.TokenAddress] = append(s.data[p.TokenAddress], *p)
	}
	return nil
}

// GetPrices retrieves snapshots for a token within [start, end], ordered by timestamp ASC.
func (s *TokenPriceStore) GetPrices(_ context.Context, tokenAddress string, start, end time.Time) ([]*domain.TokenPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TokenPrice
	for _, p := range s.data[tokenAddress] {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		cp := p
		result = append(result, &cp)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Compile-time interface check.
var _ storage.TokenPriceStore = (*TokenPriceStore)(nil)
