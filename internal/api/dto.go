package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/ledger"
)

// Money fields are serialised by decimal.Decimal as JSON strings.

type recordSwapRequest struct {
	UserAddress   string `json:"userAddress"`
	GroupID       string `json:"groupId"`
	FromToken     string `json:"fromToken"`
	ToToken       string `json:"toToken"`
	FromAmount    string `json:"fromAmount"`
	ToAmount      string `json:"toAmount"`
	FromAmountUSD string `json:"fromAmountUsd"`
	ToAmountUSD   string `json:"toAmountUsd"`
	GasUsed       string `json:"gasUsed"`
	GasPrice      string `json:"gasPrice"`
}

func (r recordSwapRequest) toNewSwap() domain.NewSwap {
	return domain.NewSwap{
		UserAddress:   r.UserAddress,
		GroupID:       r.GroupID,
		FromToken:     r.FromToken,
		ToToken:       r.ToToken,
		FromAmount:    r.FromAmount,
		ToAmount:      r.ToAmount,
		FromAmountUSD: r.FromAmountUSD,
		ToAmountUSD:   r.ToAmountUSD,
		GasUsed:       r.GasUsed,
		GasPrice:      r.GasPrice,
	}
}

type completeSwapRequest struct {
	TxHash          string  `json:"txHash"`
	CurrentValueUSD *string `json:"currentValueUsd"`
}

type failSwapRequest struct {
	Reason string `json:"reason"`
}

type createGroupRequest struct {
	GroupID     string          `json:"groupId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"imageUrl"`
	CreatedBy   string          `json:"createdBy"`
	Metadata    json.RawMessage `json:"metadata"`
}

type joinGroupRequest struct {
	Address string `json:"address"`
}

type profileRequest struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

type revalueRequest struct {
	Prices    map[string]string `json:"prices"`
	After     string            `json:"after"`
	BatchSize int               `json:"batchSize"`
}

type swapResponse struct {
	ID              string              `json:"id"`
	UserAddress     string              `json:"userAddress"`
	GroupID         string              `json:"groupId,omitempty"`
	FromToken       string              `json:"fromToken"`
	ToToken         string              `json:"toToken"`
	FromAmount      decimal.Decimal     `json:"fromAmount"`
	ToAmount        decimal.Decimal     `json:"toAmount"`
	FromAmountUSD   decimal.Decimal     `json:"fromAmountUsd"`
	ToAmountUSD     decimal.Decimal     `json:"toAmountUsd"`
	Status          domain.SwapStatus   `json:"status"`
	TxHash          string              `json:"txHash,omitempty"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	CurrentValueUSD decimal.NullDecimal `json:"currentValueUsd"`
	PnlUSD          decimal.NullDecimal `json:"pnlUsd"`
	PnlPercent      decimal.NullDecimal `json:"pnlPercent"`
	GasUsed         decimal.NullDecimal `json:"gasUsed"`
	GasPrice        decimal.NullDecimal `json:"gasPrice"`
	CreatedAt       time.Time           `json:"createdAt"`
}

func toSwapResponse(sw *domain.Swap) *swapResponse {
	if sw == nil {
		return nil
	}
	return &swapResponse{
		ID:              sw.ID,
		UserAddress:     sw.UserAddress,
		GroupID:         sw.GroupID,
		FromToken:       sw.FromToken,
		ToToken:         sw.ToToken,
		FromAmount:      sw.FromAmount,
		ToAmount:        sw.ToAmount,
		FromAmountUSD:   sw.FromAmountUSD,
		ToAmountUSD:     sw.ToAmountUSD,
		Status:          sw.Status,
		TxHash:          sw.TxHash,
		CompletedAt:     sw.CompletedAt,
		CurrentValueUSD: sw.CurrentValueUSD,
		PnlUSD:          sw.PnlUSD,
		PnlPercent:      sw.PnlPercent,
		GasUsed:         sw.GasUsed,
		GasPrice:        sw.GasPrice,
		CreatedAt:       sw.CreatedAt,
	}
}

func toSwapResponses(swaps []*domain.Swap) []*swapResponse {
	out := make([]*swapResponse, len(swaps))
	for i, sw := range swaps {
		out[i] = toSwapResponse(sw)
	}
	return out
}

type userResponse struct {
	Address         string          `json:"address"`
	Username        string          `json:"username,omitempty"`
	AvatarURL       string          `json:"avatarUrl,omitempty"`
	TotalVolume     decimal.Decimal `json:"totalVolume"`
	TotalSwaps      int64           `json:"totalSwaps"`
	TotalPnlUSD     decimal.Decimal `json:"totalPnlUsd"`
	TotalPnlPercent decimal.Decimal `json:"totalPnlPercent"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		Address:         u.Address,
		Username:        u.Username,
		AvatarURL:       u.AvatarURL,
		TotalVolume:     u.TotalVolume,
		TotalSwaps:      u.TotalSwaps,
		TotalPnlUSD:     u.TotalPnlUSD,
		TotalPnlPercent: u.TotalPnlPercent,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

type groupResponse struct {
	GroupID         string          `json:"groupId"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	IsActive        bool            `json:"isActive"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	TotalVolume     decimal.Decimal `json:"totalVolume"`
	TotalSwaps      int64           `json:"totalSwaps"`
	TotalPnlUSD     decimal.Decimal `json:"totalPnlUsd"`
	TotalPnlPercent decimal.Decimal `json:"totalPnlPercent"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func toGroupResponse(g *domain.Group) groupResponse {
	return groupResponse{
		GroupID:         g.GroupID,
		Name:            g.Name,
		Description:     g.Description,
		ImageURL:        g.ImageURL,
		CreatedBy:       g.CreatedBy,
		IsActive:        g.IsActive,
		Metadata:        g.Metadata,
		TotalVolume:     g.TotalVolume,
		TotalSwaps:      g.TotalSwaps,
		TotalPnlUSD:     g.TotalPnlUSD,
		TotalPnlPercent: g.TotalPnlPercent,
		CreatedAt:       g.CreatedAt,
	}
}

type memberResponse struct {
	GroupID  string    `json:"groupId"`
	Address  string    `json:"address"`
	IsActive bool      `json:"isActive"`
	JoinedAt time.Time `json:"joinedAt"`
}

type userEntryResponse struct {
	Rank            int             `json:"rank"`
	Address         string          `json:"address"`
	Username        string          `json:"username,omitempty"`
	AvatarURL       string          `json:"avatarUrl,omitempty"`
	TotalVolume     decimal.Decimal `json:"totalVolume"`
	TotalSwaps      int64           `json:"totalSwaps"`
	TotalPnlUSD     decimal.Decimal `json:"totalPnlUsd"`
	TotalPnlPercent decimal.Decimal `json:"totalPnlPercent"`
	AvgSwapSize     decimal.Decimal `json:"avgSwapSize"`
}

type groupEntryResponse struct {
	Rank            int             `json:"rank"`
	GroupID         string          `json:"groupId"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	MemberCount     int64           `json:"memberCount"`
	TotalVolume     decimal.Decimal `json:"totalVolume"`
	TotalSwaps      int64           `json:"totalSwaps"`
	TotalPnlUSD     decimal.Decimal `json:"totalPnlUsd"`
	TotalPnlPercent decimal.Decimal `json:"totalPnlPercent"`
	AvgSwapSize     decimal.Decimal `json:"avgSwapSize"`
}

type memberEntryResponse struct {
	Rank          int             `json:"rank"`
	Address       string          `json:"address"`
	Username      string          `json:"username,omitempty"`
	VolumeInGroup decimal.Decimal `json:"volumeInGroup"`
	SwapsInGroup  int64           `json:"swapsInGroup"`
	PnlInGroupUSD decimal.Decimal `json:"pnlInGroupUsd"`
}

func toUserEntries(entries []domain.UserLeaderboardEntry) []userEntryResponse {
	out := make([]userEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = userEntryResponse(e)
	}
	return out
}

func toGroupEntries(entries []domain.GroupLeaderboardEntry) []groupEntryResponse {
	out := make([]groupEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = groupEntryResponse(e)
	}
	return out
}

func toMemberEntries(entries []domain.MemberLeaderboardEntry) []memberEntryResponse {
	out := make([]memberEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = memberEntryResponse(e)
	}
	return out
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type userStatsResponse struct {
	User        userResponse    `json:"user"`
	Rank        int64           `json:"rank"`
	AvgSwapSize decimal.Decimal `json:"avgSwapSize"`
	RecentSwaps []*swapResponse `json:"recentSwaps"`
	BestSwap    *swapResponse   `json:"bestSwap"`
	WorstSwap   *swapResponse   `json:"worstSwap"`
	Groups      []groupResponse `json:"groups"`
}

func toUserStatsResponse(st *domain.UserStats) userStatsResponse {
	groups := make([]groupResponse, len(st.Groups))
	for i, g := range st.Groups {
		groups[i] = toGroupResponse(g)
	}
	return userStatsResponse{
		User:        toUserResponse(&st.User),
		Rank:        st.Rank,
		AvgSwapSize: st.AvgSwapSize,
		RecentSwaps: toSwapResponses(st.RecentSwaps),
		BestSwap:    toSwapResponse(st.BestSwap),
		WorstSwap:   toSwapResponse(st.WorstSwap),
		Groups:      groups,
	}
}

type dailyVolumeResponse struct {
	Date   string          `json:"date"`
	Volume decimal.Decimal `json:"volume"`
}

type groupStatsResponse struct {
	Group       groupResponse         `json:"group"`
	Rank        int64                 `json:"rank"`
	MemberCount int64                 `json:"memberCount"`
	AvgSwapSize decimal.Decimal       `json:"avgSwapSize"`
	TopMembers  []memberEntryResponse `json:"topMembers"`
	RecentSwaps []*swapResponse       `json:"recentSwaps"`
	DailyVolume []dailyVolumeResponse `json:"dailyVolume"`
}

func toGroupStatsResponse(st *domain.GroupStats) groupStatsResponse {
	daily := make([]dailyVolumeResponse, len(st.DailyVolume))
	for i, d := range st.DailyVolume {
		daily[i] = dailyVolumeResponse{Date: d.Day.Format(time.DateOnly), Volume: d.Volume}
	}
	return groupStatsResponse{
		Group:       toGroupResponse(&st.Group),
		Rank:        st.Rank,
		MemberCount: st.MemberCount,
		AvgSwapSize: st.AvgSwapSize,
		TopMembers:  toMemberEntries(st.TopMembers),
		RecentSwaps: toSwapResponses(st.RecentSwaps),
		DailyVolume: daily,
	}
}

type globalStatsResponse struct {
	TotalUsers     int64           `json:"totalUsers"`
	ActiveGroups   int64           `json:"activeGroups"`
	CompletedSwaps int64           `json:"completedSwaps"`
	TotalVolumeUSD decimal.Decimal `json:"totalVolumeUsd"`
	TotalPnlUSD    decimal.Decimal `json:"totalPnlUsd"`
}

type revalueResponse struct {
	Updated           int    `json:"updated"`
	Skipped           int    `json:"skipped"`
	Failed            int    `json:"failed"`
	UsersRecomputed   int    `json:"usersRecomputed"`
	GroupsRecomputed  int    `json:"groupsRecomputed"`
	RecomputeFailures int    `json:"recomputeFailures"`
	LastSwapID        string `json:"lastSwapId,omitempty"`
}

func toRevalueResponse(r ledger.RevalueReport) revalueResponse {
	return revalueResponse(r)
}

type tokenPriceResponse struct {
	TokenAddress string          `json:"tokenAddress"`
	Symbol       string          `json:"symbol,omitempty"`
	PriceUSD     decimal.Decimal `json:"priceUsd"`
	Timestamp    time.Time       `json:"timestamp"`
}

type healthResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
