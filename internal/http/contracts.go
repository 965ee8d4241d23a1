// Package http holds the wire contracts of the public API: request bodies,
// response envelopes, and the participant cards stitched onto swap views.
// Handlers in internal/interfaces/http own the routing and decoding.
package http

import (
	"time"

	"github.com/skillswap/swapd/internal/domain"
)

// ErrorResponse is the uniform error body: a single human-readable detail.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// SwapParticipant is the profile card embedded on enriched swap views.
type SwapParticipant struct {
	UID            string `json:"uid"`
	DisplayName    string `json:"display_name"`
	PhotoURL       string `json:"photo_url,omitempty"`
	Email          string `json:"email,omitempty"`
	SkillsToOffer  string `json:"skills_to_offer,omitempty"`
	ServicesNeeded string `json:"services_needed,omitempty"`
}

// ParticipantCard projects a profile onto the embedded card. Nil in, nil
// out, so absent profiles simply leave the field empty.
func ParticipantCard(p *domain.Profile) *SwapParticipant {
	if p == nil {
		return nil
	}
	return &SwapParticipant{
		UID:            p.UID,
		DisplayName:    p.DisplayName,
		PhotoURL:       p.PhotoURL,
		Email:          p.Email,
		SkillsToOffer:  p.SkillsToOffer,
		ServicesNeeded: p.ServicesNeeded,
	}
}

// SwapRequestView is a swap request enriched with both participant cards.
type SwapRequestView struct {
	*domain.SwapRequest
	RequesterProfile *SwapParticipant `json:"requester_profile,omitempty"`
	RecipientProfile *SwapParticipant `json:"recipient_profile,omitempty"`
}

// CompletedSwapsResponse lists a user's settled swaps, newest first.
type CompletedSwapsResponse struct {
	CompletedSwaps []*SwapRequestView `json:"completed_swaps"`
}

// RespondRequest answers a pending swap request.
type RespondRequest struct {
	Action string `json:"action"` // accept | decline
}

// VerifyRequest settles or escalates a pending completion.
type VerifyRequest struct {
	Action        string `json:"action"` // verify | dispute
	DisputeReason string `json:"dispute_reason,omitempty"`
}

// SearchRequest parameterises a semantic profile search.
type SearchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Mode      string  `json:"mode,omitempty"` // offers | needs | both
}

// RecommendSkillsRequest asks for complementary skill suggestions.
type RecommendSkillsRequest struct {
	CurrentSkills string `json:"current_skills"`
	Limit         int    `json:"limit,omitempty"`
}

// ReciprocalMatchRequest runs the two-way matcher. MyUID is optional and
// enables self/block filtering plus match notifications.
type ReciprocalMatchRequest struct {
	MyOfferText   string `json:"my_offer_text"`
	MyNeedText    string `json:"my_need_text"`
	Limit         int    `json:"limit,omitempty"`
	MyUID         string `json:"my_uid,omitempty"`
	NotifyMatches bool   `json:"notify_matches,omitempty"`
}

// SpendRequest buys a priority boost or a no-reciprocity request slot.
type SpendRequest struct {
	Reason        string `json:"reason"`
	DurationHours int    `json:"duration_hours,omitempty"`
}

// SpendResponse acknowledges a discretionary spend.
type SpendResponse struct {
	Success       bool                `json:"success"`
	NewBalance    int                 `json:"new_balance"`
	TransactionID string              `json:"transaction_id"`
	Message       string              `json:"message"`
	Boost         *domain.ActiveBoost `json:"boost,omitempty"`
}

// PointsHistory pages the points ledger.
type PointsHistory struct {
	Transactions []*domain.PointsTransaction `json:"transactions"`
	Total        int                         `json:"total"`
	Limit        int                         `json:"limit"`
	Offset       int                         `json:"offset"`
	HasMore      bool                        `json:"has_more"`
}

// CreditsHistory pages the credits ledger.
type CreditsHistory struct {
	Transactions []*domain.CreditsTransaction `json:"transactions"`
	Total        int                          `json:"total"`
	Limit        int                          `json:"limit"`
	Offset       int                          `json:"offset"`
	HasMore      bool                         `json:"has_more"`
}

// BoostView is one unexpired boost with the hours it has left.
type BoostView struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	StartedAt      time.Time `json:"started_at"`
	EndsAt         time.Time `json:"ends_at"`
	RemainingHours float64   `json:"remaining_hours"`
}

// ActiveBoostsResponse lists a user's live boosts.
type ActiveBoostsResponse struct {
	UID            string      `json:"uid"`
	ActiveBoosts   []BoostView `json:"active_boosts"`
	HasActiveBoost bool        `json:"has_active_boost"`
}

// ReviewCheckResponse reports whether the caller has reviewed a swap yet.
type ReviewCheckResponse struct {
	SwapRequestID string `json:"swap_request_id"`
	HasReviewed   bool   `json:"has_reviewed"`
	CanReview     bool   `json:"can_review"`
}

// SendMessageRequest posts one message into a conversation.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// UnreadCountResponse totals unread messages across active conversations.
type UnreadCountResponse struct {
	TotalUnread int `json:"total_unread"`
}

// MarkReadResponse acknowledges a read receipt sweep.
type MarkReadResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	MarkedRead     int    `json:"marked_read"`
}

// BlockRequest blocks another user.
type BlockRequest struct {
	BlockedUID string `json:"blocked_uid"`
	Reason     string `json:"reason,omitempty"`
}

// UnblockResponse acknowledges a lifted block.
type UnblockResponse struct {
	Message    string `json:"message"`
	BlockedUID string `json:"blocked_uid"`
}

// ReportResponse acknowledges a submitted report.
type ReportResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DeleteProfileResponse acknowledges a profile removal.
type DeleteProfileResponse struct {
	Message string `json:"message"`
	UID     string `json:"uid"`
}

// ReindexResponse acknowledges an embedding rebuild.
type ReindexResponse struct {
	Message string `json:"message"`
	UID     string `json:"uid"`
}

// CancelSwapResponse acknowledges a cancelled swap request.
type CancelSwapResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// HealthResponse reports liveness plus per-subsystem status.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}
