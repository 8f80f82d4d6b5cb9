package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserStats is the detail view of one user.
type UserStats struct {
	User        User
	Rank        int64
	RecentSwaps []*Swap
	BestSwap    *Swap // nil when no completed swap has PNL
	WorstSwap   *Swap
	Groups      []*Group
	AvgSwapSize decimal.Decimal
}

// GroupStats is the detail view of one group.
type GroupStats struct {
	Group       Group
	Rank        int64
	MemberCount int64
	TopMembers  []MemberLeaderboardEntry
	RecentSwaps []*Swap
	DailyVolume []DailyVolume // oldest first
	AvgSwapSize decimal.Decimal
}

// DailyVolume is the completed-swap volume of one UTC day.
type DailyVolume struct {
	Day    time.Time // midnight UTC
	Volume decimal.Decimal
}

// GlobalStats summarises the whole ledger.
type GlobalStats struct {
	TotalUsers     int64
	ActiveGroups   int64
	CompletedSwaps int64
	TotalVolumeUSD decimal.Decimal
	TotalPnlUSD    decimal.Decimal
}

// BestWorst holds the extreme completed swaps of an entity by PNL percent.
type BestWorst struct {
	Best  *Swap
	Worst *Swap
}
