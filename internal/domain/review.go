package domain

import "time"

// Review text cap.
const MaxReviewTextLen = 1000

// Review is a post-completion rating; at most one per
// (swap_request_id, reviewer_uid), valid only on completed swaps.
type Review struct {
	ID             string    `json:"id"`
	SwapRequestID  string    `json:"swap_request_id"`
	ReviewerUID    string    `json:"reviewer_uid"`
	ReviewedUID    string    `json:"reviewed_uid"`
	Rating         int       `json:"rating"`
	ReviewText     string    `json:"review_text,omitempty"`
	SkillExchanged string    `json:"skill_exchanged,omitempty"`
	HoursExchanged float64   `json:"hours_exchanged,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
