package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/skillswap/swapd/internal/apperr"
	httpContracts "github.com/skillswap/swapd/internal/http"
)

// ListConversations pages the acting user's active conversations.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.svc.Messaging.ListConversations(r.Context(), uid,
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GetConversation fetches one conversation, participants only.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	conv, err := h.svc.Messaging.GetConversation(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// UnreadCount totals unread messages across the acting user's active
// conversations.
func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total, err := h.svc.Messaging.UnreadTotal(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.UnreadCountResponse{TotalUnread: total})
}

// GetMessages pages a conversation's history, newest first. The before
// query parameter is an RFC 3339 cursor.
func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, r, apperr.Validationf("before must be an RFC 3339 timestamp"))
			return
		}
		before = &t
	}
	msgs, err := h.svc.Messaging.GetMessages(r.Context(), mux.Vars(r)["id"], uid,
		queryInt(r, "limit", 0), before)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msgs)
}

// SendMessage posts one message into a conversation.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req httpContracts.SendMessageRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.svc.Messaging.SendMessage(r.Context(), mux.Vars(r)["id"], uid, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msg)
}

// MarkRead stamps the acting user's read receipts across a conversation.
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	marked, err := h.svc.Messaging.MarkRead(r.Context(), id, uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.MarkReadResponse{
		Message:        "Marked as read",
		ConversationID: id,
		MarkedRead:     marked,
	})
}
