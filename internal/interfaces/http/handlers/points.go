package handlers

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
	httpContracts "github.com/skillswap/swapd/internal/http"
	"github.com/skillswap/swapd/internal/persistence"
)

// History paging bounds, matching the balance endpoint's envelope.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Balance returns current balances plus recent ledger entries.
func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Economy.Balance(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// SpendPoints buys a priority boost or a no-reciprocity request slot.
func (h *Handlers) SpendPoints(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req httpContracts.SpendRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.DurationHours == 0 {
		req.DurationHours = 24
	}
	outcome, err := h.svc.Economy.Spend(r.Context(), uid, domain.TransactionReason(req.Reason), req.DurationHours)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg := "You can now request help without offering a skill in return."
	if outcome.Boost != nil {
		msg = fmt.Sprintf("Priority boost activated for %d hours!", req.DurationHours)
	}
	h.writeJSON(w, http.StatusOK, httpContracts.SpendResponse{
		Success:       true,
		NewBalance:    outcome.NewBalance,
		TransactionID: outcome.Transaction.ID,
		Message:       msg,
		Boost:         outcome.Boost,
	})
}

// TransactionHistory pages one ledger, filtered by direction. The ledger
// query parameter selects points (default) or credits.
func (h *Handlers) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	typ := r.URL.Query().Get("type")
	if typ != "" && typ != string(domain.TxEarned) && typ != string(domain.TxSpent) {
		h.writeError(w, r, apperr.Validationf("type must be earned or spent, got %q", typ))
		return
	}
	ledger := r.URL.Query().Get("ledger")
	if ledger == "" {
		ledger = "points"
	}
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	points, credits, err := h.svc.Economy.Transactions(r.Context(), uid, persistence.MaxFetch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch ledger {
	case "points":
		filtered := points[:0]
		for _, tx := range points {
			if typ == "" || string(tx.Type) == typ {
				filtered = append(filtered, tx)
			}
		}
		page, total := pageSlice(filtered, limit, offset)
		h.writeJSON(w, http.StatusOK, httpContracts.PointsHistory{
			Transactions: page,
			Total:        total,
			Limit:        limit,
			Offset:       offset,
			HasMore:      offset+len(page) < total,
		})
	case "credits":
		filtered := credits[:0]
		for _, tx := range credits {
			if typ == "" || string(tx.Type) == typ {
				filtered = append(filtered, tx)
			}
		}
		page, total := pageSlice(filtered, limit, offset)
		h.writeJSON(w, http.StatusOK, httpContracts.CreditsHistory{
			Transactions: page,
			Total:        total,
			Limit:        limit,
			Offset:       offset,
			HasMore:      offset+len(page) < total,
		})
	default:
		h.writeError(w, r, apperr.Validationf("ledger must be points or credits, got %q", ledger))
	}
}

func pageSlice[T any](all []T, limit, offset int) ([]T, int) {
	total := len(all)
	if offset >= total {
		return []T{}, total
	}
	page := all[offset:]
	if len(page) > limit {
		page = page[:limit]
	}
	return page, total
}

// ActiveBoosts lists a user's unexpired boosts with remaining hours.
func (h *Handlers) ActiveBoosts(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	boosts, err := h.svc.Economy.ActiveBoosts(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	now := time.Now()
	views := make([]httpContracts.BoostView, 0, len(boosts))
	for _, b := range boosts {
		remaining := b.EndsAt.Sub(now).Hours()
		views = append(views, httpContracts.BoostView{
			ID:             b.ID,
			Type:           string(b.Type),
			StartedAt:      b.StartedAt,
			EndsAt:         b.EndsAt,
			RemainingHours: math.Round(remaining*10) / 10,
		})
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ActiveBoostsResponse{
		UID:            uid,
		ActiveBoosts:   views,
		HasActiveBoost: len(views) > 0,
	})
}
