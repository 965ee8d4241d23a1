package economy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
)

// Discretionary spend pricing.
const (
	// BoostCostPerHour prices a priority boost per hour of duration.
	BoostCostPerHour = 5
	// BoostMinHours and BoostMaxHours bound a boost purchase (one week max).
	BoostMinHours = 1
	BoostMaxHours = 168
	// RequestWithoutReciprocityCost is the flat fee for sending a request
	// that offers nothing in return.
	RequestWithoutReciprocityCost = 50
)

// SpendOutcome reports a discretionary spend: the ledger entry, the boost
// created when the reason was priority_boost, and the balance left.
type SpendOutcome struct {
	Transaction *domain.PointsTransaction `json:"transaction"`
	Boost       *domain.ActiveBoost       `json:"boost,omitempty"`
	NewBalance  int                       `json:"new_balance"`
}

// Spend handles the user-initiated point sinks. priority_boost charges
// 5 points per hour for durationHours in [1, 168] and records an
// ActiveBoost covering that window; request_without_reciprocity charges a
// flat 50.
func (s *Service) Spend(ctx context.Context, uid string, reason domain.TransactionReason, durationHours int) (*SpendOutcome, error) {
	switch reason {
	case domain.ReasonPriorityBoost:
		return s.purchaseBoost(ctx, uid, durationHours)
	case domain.ReasonRequestNoReciprocity:
		tx, err := s.SpendPoints(ctx, uid, RequestWithoutReciprocityCost, reason, "", "")
		if err != nil {
			return nil, err
		}
		return &SpendOutcome{Transaction: tx, NewBalance: tx.BalanceAfter}, nil
	}
	return nil, apperr.Validationf("unknown spend reason %q", reason)
}

func (s *Service) purchaseBoost(ctx context.Context, uid string, durationHours int) (*SpendOutcome, error) {
	if durationHours < BoostMinHours || durationHours > BoostMaxHours {
		return nil, apperr.Validationf("boost duration must be %d..%d hours, got %d",
			BoostMinHours, BoostMaxHours, durationHours)
	}
	cost := BoostCostPerHour * durationHours

	tx, err := s.SpendPoints(ctx, uid, cost, domain.ReasonPriorityBoost, "", "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	boost := &domain.ActiveBoost{
		ID:          uuid.NewString(),
		UID:         uid,
		Type:        domain.BoostPriority,
		StartedAt:   now,
		EndsAt:      now.Add(time.Duration(durationHours) * time.Hour),
		PointsSpent: cost,
	}
	if err := s.boosts.Put(ctx, boost); err != nil {
		// The points are gone but the boost record failed; reverse the
		// charge so the user is not billed for nothing.
		if _, rerr := s.creditPoints(ctx, uid, cost, domain.ReasonPriorityBoost, "", "", false); rerr != nil {
			s.log.Error().Str("uid", uid).Int("cost", cost).Err(rerr).
				Msg("boost write and charge reversal both failed")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "record boost")
	}

	s.log.Info().Str("uid", uid).Int("hours", durationHours).Int("cost", cost).
		Time("ends_at", boost.EndsAt).Msg("priority boost purchased")
	return &SpendOutcome{Transaction: tx, Boost: boost, NewBalance: tx.BalanceAfter}, nil
}

// ActiveBoosts returns the boosts covering now for uid.
func (s *Service) ActiveBoosts(ctx context.Context, uid string) ([]*domain.ActiveBoost, error) {
	boosts, err := s.boosts.ListActive(ctx, uid, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list active boosts")
	}
	return boosts, nil
}

// HasActiveBoost reports whether uid holds a live priority boost. Search
// decorates results with this flag; failures degrade to false.
func (s *Service) HasActiveBoost(ctx context.Context, uid string) bool {
	boosts, err := s.boosts.ListActive(ctx, uid, s.now())
	if err != nil {
		s.log.Warn().Str("uid", uid).Err(err).Msg("boost lookup failed")
		return false
	}
	return len(boosts) > 0
}
