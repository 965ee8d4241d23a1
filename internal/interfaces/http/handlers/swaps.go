package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
	httpContracts "github.com/skillswap/swapd/internal/http"
	"github.com/skillswap/swapd/internal/swap"
)

// enrichSwaps stitches both participant cards onto each swap. Lookups are
// cached per call; a missing profile leaves its card nil.
func (h *Handlers) enrichSwaps(ctx context.Context, swaps []*domain.SwapRequest) []*httpContracts.SwapRequestView {
	cards := map[string]*httpContracts.SwapParticipant{}
	card := func(uid string) *httpContracts.SwapParticipant {
		if c, ok := cards[uid]; ok {
			return c
		}
		var c *httpContracts.SwapParticipant
		if p, err := h.svc.Profiles.Get(ctx, uid); err == nil {
			c = httpContracts.ParticipantCard(p)
		}
		cards[uid] = c
		return c
	}
	views := make([]*httpContracts.SwapRequestView, 0, len(swaps))
	for _, s := range swaps {
		views = append(views, &httpContracts.SwapRequestView{
			SwapRequest:      s,
			RequesterProfile: card(s.RequesterUID),
			RecipientProfile: card(s.RecipientUID),
		})
	}
	return views
}

func (h *Handlers) enrichSwap(ctx context.Context, s *domain.SwapRequest) *httpContracts.SwapRequestView {
	return h.enrichSwaps(ctx, []*domain.SwapRequest{s})[0]
}

// CreateSwapRequest records a new pending swap request from the acting
// user.
func (h *Handlers) CreateSwapRequest(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in swap.CreateInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.Swaps.Create(r.Context(), uid, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.enrichSwap(r.Context(), created))
}

// IncomingSwapRequests lists requests received by the acting user.
func (h *Handlers) IncomingSwapRequests(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := domain.SwapStatus(r.URL.Query().Get("status"))
	swaps, err := h.svc.Swaps.Incoming(r.Context(), uid, status, queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.enrichSwaps(r.Context(), swaps))
}

// OutgoingSwapRequests lists requests sent by the acting user.
func (h *Handlers) OutgoingSwapRequests(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := domain.SwapStatus(r.URL.Query().Get("status"))
	swaps, err := h.svc.Swaps.Outgoing(r.Context(), uid, status, queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.enrichSwaps(r.Context(), swaps))
}

// GetSwapRequest fetches one swap request, participants only.
func (h *Handlers) GetSwapRequest(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.svc.Swaps.Get(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.enrichSwap(r.Context(), s))
}

// RespondToSwapRequest accepts or declines a pending request.
func (h *Handlers) RespondToSwapRequest(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req httpContracts.RespondRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Action != "accept" && req.Action != "decline" {
		h.writeError(w, r, apperr.Validationf("action must be accept or decline, got %q", req.Action))
		return
	}
	s, err := h.svc.Swaps.Respond(r.Context(), mux.Vars(r)["id"], uid, req.Action == "accept")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.enrichSwap(r.Context(), s))
}

// CancelSwapRequest withdraws a pending request, requester only.
func (h *Handlers) CancelSwapRequest(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := h.svc.Swaps.Cancel(r.Context(), id, uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.CancelSwapResponse{
		Message: "Swap request cancelled",
		ID:      id,
	})
}
