package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/storage"
)

// GroupStore implements storage.GroupStore and storage.UserStore using PostgreSQL.
type GroupStore struct {
	pool *Pool
}

// NewGroupStore creates a new GroupStore.
func NewGroupStore(pool *Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.GroupStore = (*GroupStore)(nil)
	_ storage.UserStore  = (*GroupStore)(nil)
)

const userColumns = `
	address, username, avatar_url,
	total_volume, total_swaps, total_pnl_usd, total_pnl_percent,
	created_at, updated_at
`

const groupColumns = `
	group_id, name, description, image_url, created_by, is_active, metadata,
	total_volume, total_swaps, total_pnl_usd, total_pnl_percent,
	created_at, updated_at
`

const memberColumns = `
	group_id, address, is_active, joined_at,
	volume_in_group, swaps_in_group, completed_swaps_in_group, pnl_in_group_usd
`

// GetUser retrieves a user by address.
func (s *GroupStore) GetUser(ctx context.Context, address string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE address = $1`, address)
	u, err := scanUser(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpsertProfile sets username and avatar, creating the user if absent.
func (s *GroupStore) UpsertProfile(ctx context.Context, address, username, avatarURL string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (address, username, avatar_url) VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url, updated_at = now()
		RETURNING `+userColumns, address, username, avatarURL)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user profile: %w", err)
	}
	return u, nil
}

// CreateGroup registers a group.
func (s *GroupStore) CreateGroup(ctx context.Context, g domain.NewGroup) (*domain.Group, error) {
	var metadata []byte
	if len(g.Metadata) > 0 {
		metadata = g.Metadata
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO groups (group_id, name, description, image_url, created_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+groupColumns,
		g.GroupID, g.Name, g.Description, g.ImageURL, g.CreatedBy, metadata,
	)
	group, err := scanGroup(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return group, nil
}

// GetGroup retrieves a group by ID.
func (s *GroupStore) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE group_id = $1`, groupID)
	g, err := scanGroup(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// SetGroupActive toggles the soft-delete flag.
func (s *GroupStore) SetGroupActive(ctx context.Context, groupID string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE groups SET is_active = $2, updated_at = now() WHERE group_id = $1
	`, groupID, active)
	if err != nil {
		return fmt.Errorf("set group active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddMember joins an address to a group, reactivating a previous membership.
func (s *GroupStore) AddMember(ctx context.Context, groupID, address string) (*domain.GroupMember, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO group_members (group_id, address) VALUES ($1, $2)
		ON CONFLICT (group_id, address) DO UPDATE SET is_active = TRUE
		RETURNING `+memberColumns, groupID, address)
	m, err := scanMember(row)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	return m, nil
}

// RemoveMember deactivates a membership.
func (s *GroupStore) RemoveMember(ctx context.Context, groupID, address string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE group_members SET is_active = FALSE WHERE group_id = $1 AND address = $2
	`, groupID, address)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetMember retrieves a membership.
func (s *GroupStore) GetMember(ctx context.Context, groupID, address string) (*domain.GroupMember, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM group_members WHERE group_id = $1 AND address = $2
	`, groupID, address)
	m, err := scanMember(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// GetUserGroups retrieves the active groups the address actively belongs to.
func (s *GroupStore) GetUserGroups(ctx context.Context, address string) ([]*domain.Group, error) {
	query := `
		SELECT ` + prefixed("g", groupColumns) + `
		FROM groups g
		JOIN group_members m ON m.group_id = g.group_id
		WHERE m.address = $1 AND m.is_active AND g.is_active
		ORDER BY g.group_id ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get user groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.Address, &u.Username, &u.AvatarURL,
		&u.TotalVolume, &u.TotalSwaps, &u.TotalPnlUSD, &u.TotalPnlPercent,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanGroup(row pgx.Row) (*domain.Group, error) {
	var (
		g        domain.Group
		metadata []byte
	)
	err := row.Scan(
		&g.GroupID, &g.Name, &g.Description, &g.ImageURL, &g.CreatedBy, &g.IsActive, &metadata,
		&g.TotalVolume, &g.TotalSwaps, &g.TotalPnlUSD, &g.TotalPnlPercent,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Metadata = metadata
	return &g, nil
}

func scanMember(row pgx.Row) (*domain.GroupMember, error) {
	var m domain.GroupMember
	err := row.Scan(
		&m.GroupID, &m.Address, &m.IsActive, &m.JoinedAt,
		&m.VolumeInGroup, &m.SwapsInGroup, &m.CompletedSwapsInGroup, &m.PnlInGroupUSD,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
