package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapStatus is the lifecycle state of a swap.
type SwapStatus string

// Swap status constants. COMPLETED and FAILED are terminal.
const (
	SwapStatusPending   SwapStatus = "PENDING"
	SwapStatusCompleted SwapStatus = "COMPLETED"
	SwapStatusFailed    SwapStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s SwapStatus) IsTerminal() bool {
	return s == SwapStatusCompleted || s == SwapStatusFailed
}

// Swap represents one attempted or completed token exchange.
// Corresponds to swaps table in PostgreSQL.
type Swap struct {
	ID          string // UUID, assigned at record time
	UserAddress string // lower-cased account address
	GroupID     string // empty when the swap is not tagged with a group

	FromToken     string
	ToToken       string
	FromAmount    decimal.Decimal // token-native units
	ToAmount      decimal.Decimal // token-native units
	FromAmountUSD decimal.Decimal // basis at trade time
	ToAmountUSD   decimal.Decimal // entry value at trade time

	Status      SwapStatus
	TxHash      string
	CompletedAt *time.Time

	// Mark-to-market, valid only once a current value is known.
	CurrentValueUSD decimal.NullDecimal
	PnlUSD          decimal.NullDecimal
	PnlPercent      decimal.NullDecimal

	GasUsed  decimal.NullDecimal
	GasPrice decimal.NullDecimal

	CreatedAt time.Time
}

// NewSwap carries the caller-supplied fields of a swap before it is recorded.
// Amounts are decimal strings so malformed input can be rejected before any write.
type NewSwap struct {
	UserAddress   string
	GroupID       string
	FromToken     string
	ToToken       string
	FromAmount    string
	ToAmount      string
	FromAmountUSD string
	ToAmountUSD   string
	GasUsed       string // optional
	GasPrice      string // optional
}

// SwapMark is a mark-to-market update for a completed swap.
type SwapMark struct {
	SwapID          string
	CurrentValueUSD decimal.Decimal
	PnlUSD          decimal.Decimal
	PnlPercent      decimal.Decimal
}
