package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	httpContracts "github.com/skillswap/swapd/internal/http"
	"github.com/skillswap/swapd/internal/review"
)

// CreateReview submits the acting user's review of a completed swap.
func (h *Handlers) CreateReview(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in review.CreateInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.svc.Reviews.Create(r.Context(), uid, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

// ReceivedReviews pages the reviews a user has received.
func (h *Handlers) ReceivedReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Reviews.Received(r.Context(), mux.Vars(r)["uid"],
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GivenReviews pages the reviews a user has written.
func (h *Handlers) GivenReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Reviews.Given(r.Context(), mux.Vars(r)["uid"],
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// SwapReviews returns both parties' reviews on one swap, participants
// only.
func (h *Handlers) SwapReviews(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sr, err := h.svc.Reviews.BySwap(r.Context(), mux.Vars(r)["swap_id"], uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sr)
}

// CheckReview reports whether the acting user has reviewed a swap yet.
func (h *Handlers) CheckReview(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	swapID := mux.Vars(r)["swap_id"]
	sr, err := h.svc.Reviews.BySwap(r.Context(), swapID, uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ReviewCheckResponse{
		SwapRequestID: swapID,
		HasReviewed:   sr.UserHasReviewed,
		CanReview:     sr.CanReview,
	})
}
