package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is one distinct account, created lazily on its first swap.
// Rollup fields are maintained by the storage layer only.
type User struct {
	Address   string
	Username  string
	AvatarURL string

	TotalVolume     decimal.Decimal
	TotalSwaps      int64
	TotalPnlUSD     decimal.Decimal
	TotalPnlPercent decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}
