// Package events publishes ledger changes after they commit.
//
// Sinks are a Kafka topic, connected WebSocket clients and the leaderboard
// cache. Publishing is best-effort: a failed sink never undoes a ledger write.
package events

import (
	"context"
	"errors"
	"time"

	"swap-ledger/internal/domain"
)

// Type names a ledger change.
type Type string

// Event types.
const (
	SwapRecorded  Type = "swap.recorded"
	SwapCompleted Type = "swap.completed"
	SwapFailed    Type = "swap.failed"
	PnlRevalued   Type = "pnl.revalued"
	GroupChanged  Type = "group.changed"
)

// Event is one committed ledger change.
type Event struct {
	Type        Type         `json:"type"`
	SwapID      string       `json:"swapId,omitempty"`
	UserAddress string       `json:"userAddress,omitempty"`
	GroupID     string       `json:"groupId,omitempty"`
	Swap        *SwapPayload `json:"swap,omitempty"`
	At          time.Time    `json:"at"`
}

// Key returns the partitioning key: the user address, else the group ID.
func (e Event) Key() string {
	if e.UserAddress != "" {
		return e.UserAddress
	}
	return e.GroupID
}

// SwapPayload is the wire form of a swap. Money fields are decimal strings.
type SwapPayload struct {
	ID              string     `json:"id"`
	UserAddress     string     `json:"userAddress"`
	GroupID         string     `json:"groupId,omitempty"`
	FromToken       string     `json:"fromToken"`
	ToToken         string     `json:"toToken"`
	FromAmountUSD   string     `json:"fromAmountUsd"`
	ToAmountUSD     string     `json:"toAmountUsd"`
	Status          string     `json:"status"`
	TxHash          string     `json:"txHash,omitempty"`
	CurrentValueUSD *string    `json:"currentValueUsd,omitempty"`
	PnlUSD          *string    `json:"pnlUsd,omitempty"`
	PnlPercent      *string    `json:"pnlPercent,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// NewSwapEvent builds an event carrying the swap.
func NewSwapEvent(t Type, sw *domain.Swap, at time.Time) Event {
	return Event{
		Type:        t,
		SwapID:      sw.ID,
		UserAddress: sw.UserAddress,
		GroupID:     sw.GroupID,
		Swap:        payloadFromSwap(sw),
		At:          at.UTC(),
	}
}

func payloadFromSwap(sw *domain.Swap) *SwapPayload {
	p := &SwapPayload{
		ID:            sw.ID,
		UserAddress:   sw.UserAddress,
		GroupID:       sw.GroupID,
		FromToken:     sw.FromToken,
		ToToken:       sw.ToToken,
		FromAmountUSD: sw.FromAmountUSD.String(),
		ToAmountUSD:   sw.ToAmountUSD.String(),
		Status:        string(sw.Status),
		TxHash:        sw.TxHash,
		CompletedAt:   sw.CompletedAt,
		CreatedAt:     sw.CreatedAt,
	}
	if sw.CurrentValueUSD.Valid {
		v := sw.CurrentValueUSD.Decimal.String()
		p.CurrentValueUSD = &v
	}
	if sw.PnlUSD.Valid {
		v := sw.PnlUSD.Decimal.String()
		p.PnlUSD = &v
	}
	if sw.PnlPercent.Valid {
		v := sw.PnlPercent.Decimal.String()
		p.PnlPercent = &v
	}
	return p
}

// Publisher delivers committed events to a sink.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Multi fans events out to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, ...Event) error { return nil }
