package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"swap-ledger/internal/domain"
	"swap-ledger/internal/leaderboard"
	"swap-ledger/internal/ledger"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Server) handleRecordSwap(w http.ResponseWriter, r *http.Request) {
	var req recordSwapRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.checkAddress(w, "userAddress", req.UserAddress) {
		return
	}

	sw, err := s.ledger.RecordSwap(r.Context(), req.toNewSwap())
	if err != nil {
		s.respondServiceError(w, r, "record swap", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toSwapResponse(sw))
}

func (s *Server) handleGetSwap(w http.ResponseWriter, r *http.Request) {
	sw, err := s.ledger.GetSwap(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, "get swap", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toSwapResponse(sw))
}

func (s *Server) handleCompleteSwap(w http.ResponseWriter, r *http.Request) {
	var req completeSwapRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var current *decimal.Decimal
	if req.CurrentValueUSD != nil {
		d, err := decimal.NewFromString(strings.TrimSpace(*req.CurrentValueUSD))
		if err != nil {
			s.respondServiceError(w, r, "complete swap", &ledger.ValidationError{Field: "currentValueUsd", Reason: "not a decimal number"})
			return
		}
		current = &d
	}

	sw, err := s.ledger.CompleteSwap(r.Context(), r.PathValue("id"), req.TxHash, current)
	if err != nil {
		s.respondServiceError(w, r, "complete swap", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toSwapResponse(sw))
}

func (s *Server) handleFailSwap(w http.ResponseWriter, r *http.Request) {
	var req failSwapRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sw, err := s.ledger.FailSwap(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.respondServiceError(w, r, "fail swap", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toSwapResponse(sw))
}

func (s *Server) handleUserSwaps(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !s.checkAddress(w, "address", address) {
		return
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	swaps, err := s.ledger.GetUserSwaps(r.Context(), address, limit, offset)
	if err != nil {
		s.respondServiceError(w, r, "list user swaps", err)
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[*swapResponse]{
		Items:  toSwapResponses(swaps),
		Limit:  effectiveLimit(limit, ledger.DefaultSwapLimit, ledger.MaxSwapLimit),
		Offset: offset,
	})
}

func (s *Server) handleGroupSwaps(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	swaps, err := s.ledger.GetGroupSwaps(r.Context(), r.PathValue("groupId"), limit, offset)
	if err != nil {
		s.respondServiceError(w, r, "list group swaps", err)
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[*swapResponse]{
		Items:  toSwapResponses(swaps),
		Limit:  effectiveLimit(limit, ledger.DefaultSwapLimit, ledger.MaxSwapLimit),
		Offset: offset,
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !s.checkAddress(w, "address", address) {
		return
	}
	var req profileRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.ledger.UpdateProfile(r.Context(), address, req.Username, req.AvatarURL)
	if err != nil {
		s.respondServiceError(w, r, "update profile", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CreatedBy != "" && !s.checkAddress(w, "createdBy", req.CreatedBy) {
		return
	}

	g, err := s.ledger.CreateGroup(r.Context(), domain.NewGroup{
		GroupID:     req.GroupID,
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		CreatedBy:   req.CreatedBy,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.respondServiceError(w, r, "create group", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toGroupResponse(g))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.ledger.GetGroup(r.Context(), r.PathValue("groupId"))
	if err != nil {
		s.respondServiceError(w, r, "get group", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toGroupResponse(g))
}

func (s *Server) handleDeactivateGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeactivateGroup(r.Context(), r.PathValue("groupId")); err != nil {
		s.respondServiceError(w, r, "deactivate group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	var req joinGroupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.checkAddress(w, "address", req.Address) {
		return
	}

	m, err := s.ledger.JoinGroup(r.Context(), r.PathValue("groupId"), req.Address)
	if err != nil {
		s.respondServiceError(w, r, "join group", err)
		return
	}
	s.respondJSON(w, http.StatusOK, memberResponse{
		GroupID:  m.GroupID,
		Address:  m.Address,
		IsActive: m.IsActive,
		JoinedAt: m.JoinedAt,
	})
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !s.checkAddress(w, "address", address) {
		return
	}
	if err := s.ledger.LeaveGroup(r.Context(), r.PathValue("groupId"), address); err != nil {
		s.respondServiceError(w, r, "leave group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserLeaderboard(w http.ResponseWriter, r *http.Request) {
	q, ok := s.leaderboardQuery(w, r)
	if !ok {
		return
	}
	entries, err := s.leaderboard.Users(r.Context(), q)
	if err != nil {
		s.respondServiceError(w, r, "user leaderboard", err)
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[userEntryResponse]{
		Items:  toUserEntries(entries),
		Limit:  effectiveLimit(q.Limit, leaderboard.DefaultLimit, leaderboard.MaxLimit),
		Offset: q.Offset,
	})
}

func (s *Server) handleGroupLeaderboard(w http.ResponseWriter, r *http.Request) {
	q, ok := s.leaderboardQuery(w, r)
	if !ok {
		return
	}
	entries, err := s.leaderboard.Groups(r.Context(), q)
	if err != nil {
		s.respondServiceError(w, r, "group leaderboard", err)
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[groupEntryResponse]{
		Items:  toGroupEntries(entries),
		Limit:  effectiveLimit(q.Limit, leaderboard.DefaultLimit, leaderboard.MaxLimit),
		Offset: q.Offset,
	})
}

func (s *Server) handleMemberLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.leaderboard.Members(r.Context(), r.PathValue("groupId"), limit, offset)
	if err != nil {
		s.respondServiceError(w, r, "member leaderboard", err)
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[memberEntryResponse]{
		Items:  toMemberEntries(entries),
		Limit:  effectiveLimit(limit, leaderboard.DefaultMemberLimit, leaderboard.MaxMemberLimit),
		Offset: offset,
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !s.checkAddress(w, "address", address) {
		return
	}
	st, err := s.stats.UserStats(r.Context(), address)
	if err != nil {
		s.respondServiceError(w, r, "user stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toUserStatsResponse(st))
}

func (s *Server) handleGroupStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.GroupStats(r.Context(), r.PathValue("groupId"))
	if err != nil {
		s.respondServiceError(w, r, "group stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toGroupStatsResponse(st))
}

func (s *Server) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.GlobalStats(r.Context())
	if err != nil {
		s.respondServiceError(w, r, "global stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, globalStatsResponse(*st))
}

func (s *Server) handleRevalue(w http.ResponseWriter, r *http.Request) {
	var req revalueRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	prices, err := ledger.ParsePrices(req.Prices)
	if err != nil {
		s.respondServiceError(w, r, "revalue", err)
		return
	}

	subject, _ := SubjectFromContext(r.Context())
	s.logger.InfoContext(r.Context(), "revaluation requested", "tokens", len(prices), "subject", subject)

	// A full pass can outlast the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline", "err", err)
	}

	report, err := s.ledger.UpdateAllPnl(r.Context(), prices, ledger.RevalueOptions{
		After:     strings.TrimSpace(req.After),
		BatchSize: req.BatchSize,
	})
	if err != nil {
		s.respondServiceError(w, r, "revalue", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRevalueResponse(report))
}

// defaultPriceWindow is the history returned when from is omitted.
const defaultPriceWindow = 7 * 24 * time.Hour

func (s *Server) handleTokenPrices(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.PathValue("token"))
	to, err := parseOptionalTime(r, "to", time.Now().UTC())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseOptionalTime(r, "from", to.Add(-defaultPriceWindow))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from.After(to) {
		s.respondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	prices, err := s.prices.GetPrices(r.Context(), token, from, to)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "get token prices failed", "token", token, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get token prices")
		return
	}
	items := make([]tokenPriceResponse, len(prices))
	for i, p := range prices {
		items[i] = tokenPriceResponse(*p)
	}
	s.respondJSON(w, http.StatusOK, listResponse[tokenPriceResponse]{Items: items, Limit: len(items)})
}

func (s *Server) leaderboardQuery(w http.ResponseWriter, r *http.Request) (leaderboard.Query, bool) {
	limit, offset, err := parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return leaderboard.Query{}, false
	}
	values := r.URL.Query()
	return leaderboard.Query{
		SortBy: values.Get("sortBy"),
		Period: values.Get("period"),
		Limit:  limit,
		Offset: offset,
	}, true
}

// checkAddress rejects anything that is not a 20-byte hex account address.
func (s *Server) checkAddress(w http.ResponseWriter, field, address string) bool {
	if common.IsHexAddress(strings.TrimSpace(address)) {
		return true
	}
	ve := &ledger.ValidationError{Field: field, Reason: "not a hex account address"}
	s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: field})
	return false
}

func effectiveLimit(limit, def, max int) int {
	switch {
	case limit == 0:
		return def
	case limit > max:
		return max
	}
	return limit
}
