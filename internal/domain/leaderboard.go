package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SortBy selects the leaderboard ranking metric.
type SortBy string

// Leaderboard sort keys.
const (
	SortByVolume     SortBy = "volume"
	SortByPnl        SortBy = "pnl"
	SortByPnlPercent SortBy = "pnlPercent"
	SortBySwaps      SortBy = "swaps"
)

// ParseSortBy validates a sort key. Empty defaults to volume.
func ParseSortBy(raw string) (SortBy, error) {
	switch SortBy(raw) {
	case "":
		return SortByVolume, nil
	case SortByVolume, SortByPnl, SortByPnlPercent, SortBySwaps:
		return SortBy(raw), nil
	default:
		return "", fmt.Errorf("unknown sort key %q", raw)
	}
}

// Period selects the time window a leaderboard covers.
type Period string

// Leaderboard periods. PeriodAll reads the maintained rollups,
// the windowed periods aggregate completed swaps.
const (
	PeriodAll     Period = "all"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates a period. Empty defaults to all.
func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodDaily, PeriodWeekly, PeriodMonthly:
		return Period(raw), nil
	default:
		return "", fmt.Errorf("unknown period %q", raw)
	}
}

// LeaderboardQuery is a validated leaderboard request.
type LeaderboardQuery struct {
	SortBy SortBy
	Period Period
	Limit  int
	Offset int
}

// UserLeaderboardEntry is one ranked user.
type UserLeaderboardEntry struct {
	Rank            int
	Address         string
	Username        string
	AvatarURL       string
	TotalVolume     decimal.Decimal
	TotalSwaps      int64
	TotalPnlUSD     decimal.Decimal
	TotalPnlPercent decimal.Decimal
	AvgSwapSize     decimal.Decimal
}

// GroupLeaderboardEntry is one ranked group.
type GroupLeaderboardEntry struct {
	Rank            int
	GroupID         string
	Name            string
	Description     string
	ImageURL        string
	MemberCount     int64
	TotalVolume     decimal.Decimal
	TotalSwaps      int64
	TotalPnlUSD     decimal.Decimal
	TotalPnlPercent decimal.Decimal
	AvgSwapSize     decimal.Decimal
}

// MemberLeaderboardEntry is one ranked member of a group.
type MemberLeaderboardEntry struct {
	Rank          int
	Address       string
	Username      string
	VolumeInGroup decimal.Decimal
	SwapsInGroup  int64
	PnlInGroupUSD decimal.Decimal
}
