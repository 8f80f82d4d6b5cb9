package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Group is a chat-scoped trading cohort. GroupID is minted by the
// messaging layer and treated as an opaque string.
type Group struct {
	GroupID     string
	Name        string
	Description string
	ImageURL    string
	CreatedBy   string
	IsActive    bool
	Metadata    json.RawMessage // opaque JSON blob, stored as JSONB

	TotalVolume     decimal.Decimal
	TotalSwaps      int64
	TotalPnlUSD     decimal.Decimal
	TotalPnlPercent decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupMember joins an address to a group and carries the per-group rollup.
type GroupMember struct {
	GroupID  string
	Address  string
	IsActive bool
	JoinedAt time.Time

	VolumeInGroup         decimal.Decimal
	SwapsInGroup          int64
	CompletedSwapsInGroup int64
	PnlInGroupUSD         decimal.Decimal
}

// NewGroup carries the fields required to register a group.
type NewGroup struct {
	GroupID     string
	Name        string
	Description string
	ImageURL    string
	CreatedBy   string
	Metadata    json.RawMessage
}
