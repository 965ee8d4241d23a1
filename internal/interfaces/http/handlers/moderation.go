package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	httpContracts "github.com/skillswap/swapd/internal/http"
	"github.com/skillswap/swapd/internal/moderation"
)

// BlockUser blocks another user and closes their shared conversations.
func (h *Handlers) BlockUser(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req httpContracts.BlockRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	block, err := h.svc.Moderation.Block(r.Context(), uid, req.BlockedUID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, block)
}

// UnblockUser lifts a block and reopens conversations it had closed.
func (h *Handlers) UnblockUser(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	blockedUID := mux.Vars(r)["blocked_uid"]
	if err := h.svc.Moderation.Unblock(r.Context(), uid, blockedUID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.UnblockResponse{
		Message:    "User unblocked",
		BlockedUID: blockedUID,
	})
}

// ListBlocked lists the acting user's blocks, newest first.
func (h *Handlers) ListBlocked(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	blocks, err := h.svc.Moderation.ListBlocked(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, blocks)
}

// MyReports lists reports the acting user has filed, newest first.
func (h *Handlers) MyReports(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reports, err := h.svc.Moderation.MyReports(r.Context(), uid, queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reports)
}

// ReportUser records a policy violation report for review.
func (h *Handlers) ReportUser(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in moderation.ReportInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.svc.Moderation.Report(r.Context(), uid, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ReportResponse{
		ID:      report.ID,
		Status:  report.Status,
		Message: "Report submitted. We'll review it within 24-48 hours.",
	})
}
