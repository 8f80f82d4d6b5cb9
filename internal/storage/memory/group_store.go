package memory

import (
	"context"
	"sort"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

// GetUser retrieves a user by address.
func (s *Store) GetUser(_ context.Context, address string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *u
	return &out, nil
}

// UpsertProfile sets username and avatar, creating the user if absent.
func (s *Store) UpsertProfile(_ context.Context, address, username, avatarURL string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	u := s.ensureUser(address, now)
	u.Username = username
	u.AvatarURL = avatarURL
	u.UpdatedAt = now

	out := *u
	return &out, nil
}

// CreateGroup registers a group.
func (s *Store) CreateGroup(_ context.Context, g domain.NewGroup) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.GroupID]; exists {
		return nil, storage.ErrDuplicateKey
	}

	now := s.now().UTC()
	group := &domain.Group{
		GroupID:     g.GroupID,
		Name:        g.Name,
		Description: g.Description,
		ImageURL:    g.ImageURL,
		CreatedBy:   g.CreatedBy,
		IsActive:    true,
		Metadata:    append([]byte(nil), g.Metadata...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.groups[g.GroupID] = group

	out := copyGroup(group)
	return &out, nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(_ context.Context, groupID string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := copyGroup(g)
	return &out, nil
}

// SetGroupActive toggles the soft-delete flag.
func (s *Store) SetGroupActive(_ context.Context, groupID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return storage.ErrNotFound
	}
	g.IsActive = active
	g.UpdatedAt = s.now().UTC()
	return nil
}

// AddMember joins an address to a group, reactivating a previous membership.
func (s *Store) AddMember(_ context.Context, groupID, address string) (*domain.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, storage.ErrNotFound
	}

	key := memberKey{groupID, address}
	m, ok := s.members[key]
	if !ok {
		m = &domain.GroupMember{GroupID: groupID, Address: address, JoinedAt: s.now().UTC()}
		s.members[key] = m
	}
	m.IsActive = true

	out := *m
	return &out, nil
}

// RemoveMember deactivates a membership.
func (s *Store) RemoveMember(_ context.Context, groupID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[memberKey{groupID, address}]
	if !ok {
		return storage.ErrNotFound
	}
	m.IsActive = false
	return nil
}

// GetMember retrieves a membership.
func (s *Store) GetMember(_ context.Context, groupID, address string) (*domain.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberKey{groupID, address}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *m
	return &out, nil
}

// GetUserGroups retrieves the active groups the address actively belongs to.
func (s *Store) GetUserGroups(_ context.Context, address string) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Group
	for key, m := range s.members {
		if key.address != address || !m.IsActive {
			continue
		}
		g, ok := s.groups[key.groupID]
		if !ok || !g.IsActive {
			continue
		}
		out := copyGroup(g)
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GroupID < result[j].GroupID })
	return result, nil
}

// activeMemberCount requires s.mu held.
func (s *Store) activeMemberCount(groupID string) int64 {
	var n int64
	for key, m := range s.members {
		if key.groupID == groupID && m.IsActive {
			n++
		}
	}
	return n
}

func copyGroup(g *domain.Group) domain.Group {
	out := *g
	if g.Metadata != nil {
		out.Metadata = append([]byte(nil), g.Metadata...)
	}
	return out
}
