package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/completion"
	httpContracts "github.com/skillswap/swapd/internal/http"
)

// MarkComplete records the acting user's completion claim.
func (h *Handlers) MarkComplete(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in completion.MarkInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.svc.Completion.Mark(r.Context(), mux.Vars(r)["id"], uid, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.enrichSwap(r.Context(), s))
}

// VerifyCompletion settles or disputes the other party's completion claim.
func (h *Handlers) VerifyCompletion(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req httpContracts.VerifyRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]

	switch req.Action {
	case "verify":
		s, err := h.svc.Completion.Verify(r.Context(), id, uid)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, h.enrichSwap(r.Context(), s))
	case "dispute":
		s, err := h.svc.Completion.Dispute(r.Context(), id, uid, req.DisputeReason)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, h.enrichSwap(r.Context(), s))
	default:
		h.writeError(w, r, apperr.Validationf("action must be verify or dispute, got %q", req.Action))
	}
}

// CompletionStatus returns the completion snapshot, participants only.
func (h *Handlers) CompletionStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status, err := h.svc.Completion.Status(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// CompletedSwaps lists the acting user's settled swaps, newest first.
func (h *Handlers) CompletedSwaps(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	swaps, err := h.svc.Swaps.Completed(r.Context(), uid, queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.CompletedSwapsResponse{
		CompletedSwaps: h.enrichSwaps(r.Context(), swaps),
	})
}
