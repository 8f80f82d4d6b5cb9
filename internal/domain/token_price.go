package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenPrice is an append-only price snapshot.
// Used for charting and audit, never for live computation.
type TokenPrice struct {
	TokenAddress string
	Symbol       string
	PriceUSD     decimal.Decimal
	Timestamp    time.Time
}
