package domain

import "time"

// TransactionType marks the direction of a ledger entry.
type TransactionType string

const (
	TxEarned TransactionType = "earned"
	TxSpent  TransactionType = "spent"
)

// TransactionReason classifies why a balance moved.
type TransactionReason string

const (
	ReasonSwapCompleted        TransactionReason = "swap_completed"
	ReasonPriorityBoost        TransactionReason = "priority_boost"
	ReasonRequestNoReciprocity TransactionReason = "request_without_reciprocity"
	ReasonIndirectReserved     TransactionReason = "indirect_swap_reserved"
	ReasonIndirectRefund       TransactionReason = "indirect_swap_refund"
	ReasonIndirectPayment      TransactionReason = "indirect_swap_payment"
	ReasonReviewBonus          TransactionReason = "review_bonus"
	ReasonBonus                TransactionReason = "bonus"
)

// PointsTransaction is an append-only record of a swap_points change.
// BalanceAfter is the profile balance immediately after the change;
// Amount is zero only for the indirect_swap_payment audit marker.
type PointsTransaction struct {
	ID            string            `json:"id"`
	UID           string            `json:"uid"`
	Type          TransactionType   `json:"type"`
	Amount        int               `json:"amount"`
	BalanceAfter  int               `json:"balance_after"`
	Reason        TransactionReason `json:"reason"`
	RelatedSwapID string            `json:"related_swap_id,omitempty"`
	RelatedSkill  string            `json:"related_skill,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// CreditsTransaction is the credits counterpart of PointsTransaction.
type CreditsTransaction struct {
	ID            string            `json:"id"`
	UID           string            `json:"uid"`
	Type          TransactionType   `json:"type"`
	Amount        int               `json:"amount"`
	BalanceAfter  int               `json:"balance_after"`
	Reason        TransactionReason `json:"reason"`
	RelatedSwapID string            `json:"related_swap_id,omitempty"`
	RelatedSkill  string            `json:"related_skill,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// BoostType names the kinds of purchasable boosts.
type BoostType string

// BoostPriority elevates a profile's search rank while active.
const BoostPriority BoostType = "priority"

// ActiveBoost is a time-bounded purchased boost on a profile.
type ActiveBoost struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	Type        BoostType `json:"type"`
	StartedAt   time.Time `json:"started_at"`
	EndsAt      time.Time `json:"ends_at"`
	PointsSpent int       `json:"points_spent"`
}

// ActiveAt reports whether the boost covers the given instant.
func (b *ActiveBoost) ActiveAt(t time.Time) bool {
	return !t.Before(b.StartedAt) && t.Before(b.EndsAt)
}
