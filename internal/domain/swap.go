package domain

import "time"

// SwapStatus is the lifecycle state of a swap request.
type SwapStatus string

const (
	SwapPending           SwapStatus = "pending"
	SwapAccepted          SwapStatus = "accepted"
	SwapDeclined          SwapStatus = "declined"
	SwapCancelled         SwapStatus = "cancelled"
	SwapPendingCompletion SwapStatus = "pending_completion"
	SwapDisputed          SwapStatus = "disputed"
	SwapCompleted         SwapStatus = "completed"
)

// Terminal reports whether no further transitions are allowed.
func (s SwapStatus) Terminal() bool {
	switch s {
	case SwapDeclined, SwapCancelled, SwapCompleted, SwapDisputed:
		return true
	}
	return false
}

// ValidSwapStatus reports whether s is a known status value.
func ValidSwapStatus(s string) bool {
	switch SwapStatus(s) {
	case SwapPending, SwapAccepted, SwapDeclined, SwapCancelled,
		SwapPendingCompletion, SwapDisputed, SwapCompleted:
		return true
	}
	return false
}

// SwapType distinguishes mutual exchanges from point-paid services.
type SwapType string

const (
	SwapDirect   SwapType = "direct"
	SwapIndirect SwapType = "indirect"
)

// SkillLevel grades the skill taught in a completed swap.
type SkillLevel string

const (
	LevelBeginner     SkillLevel = "beginner"
	LevelIntermediate SkillLevel = "intermediate"
	LevelAdvanced     SkillLevel = "advanced"
)

// ValidSkillLevel reports whether l is a known level.
func ValidSkillLevel(l string) bool {
	switch SkillLevel(l) {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// Hours claimed per completion must stay within this range.
const (
	MinHours = 0.5
	MaxHours = 100.0
)

// MaxSwapMessageLen caps the optional note on a swap request.
const MaxSwapMessageLen = 500

// AutoCompleteWindow is how long the second party has to respond after the
// first marks complete.
const AutoCompleteWindow = 48 * time.Hour

// SwapRequest is a proposal from requester to recipient.
type SwapRequest struct {
	ID             string     `json:"id"`
	RequesterUID   string     `json:"requester_uid"`
	RecipientUID   string     `json:"recipient_uid"`
	Status         SwapStatus `json:"status"`
	SwapType       SwapType   `json:"swap_type"`
	RequesterOffer string     `json:"requester_offer,omitempty"`
	RequesterNeed  string     `json:"requester_need"`
	PointsOffered  int        `json:"points_offered,omitempty"`
	PointsReserved int        `json:"points_reserved,omitempty"`
	Message        string     `json:"message,omitempty"`

	ConversationID string     `json:"conversation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`

	Completion Completion `json:"completion"`
}

// Participant reports whether uid is one of the two parties.
func (s *SwapRequest) Participant(uid string) bool {
	return uid == s.RequesterUID || uid == s.RecipientUID
}

// OtherParty returns the counterpart of uid, or "" when uid is not a party.
func (s *SwapRequest) OtherParty(uid string) string {
	switch uid {
	case s.RequesterUID:
		return s.RecipientUID
	case s.RecipientUID:
		return s.RequesterUID
	}
	return ""
}

// Completion tracks the two-sided completion protocol for one swap.
type Completion struct {
	Requester CompletionParty `json:"requester"`
	Recipient CompletionParty `json:"recipient"`

	AutoCompleteAt *time.Time `json:"auto_complete_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FinalHours     float64    `json:"final_hours,omitempty"`

	RequesterPointsEarned  int `json:"requester_points_earned,omitempty"`
	RequesterCreditsEarned int `json:"requester_credits_earned,omitempty"`
	RecipientPointsEarned  int `json:"recipient_points_earned,omitempty"`
	RecipientCreditsEarned int `json:"recipient_credits_earned,omitempty"`
}

// Party returns the completion record for uid. Second return is false when
// uid is not a participant.
func (s *SwapRequest) Party(uid string) (*CompletionParty, bool) {
	switch uid {
	case s.RequesterUID:
		return &s.Completion.Requester, true
	case s.RecipientUID:
		return &s.Completion.Recipient, true
	}
	return nil, false
}

// CompletionParty is one side's completion claim.
type CompletionParty struct {
	MarkedComplete bool       `json:"marked_complete"`
	MarkedAt       *time.Time `json:"marked_at,omitempty"`
	HoursClaimed   float64    `json:"hours_claimed,omitempty"`
	SkillLevel     SkillLevel `json:"skill_level,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	DisputeReason  string     `json:"dispute_reason,omitempty"`
	DisputedAt     *time.Time `json:"disputed_at,omitempty"`
}

// Dispute records an escalated completion disagreement. Adjudication is out
// of scope; the record is held for review.
type Dispute struct {
	ID            string    `json:"id"`
	SwapRequestID string    `json:"swap_request_id"`
	DisputerUID   string    `json:"disputer_uid"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
