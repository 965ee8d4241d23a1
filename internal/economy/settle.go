package economy

import (
	"context"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
)

// Settlement is the per-party outcome of settling one completed swap.
type Settlement struct {
	RequesterPoints  int
	RequesterCredits int
	RecipientPoints  int
	RecipientCredits int
}

// Settle applies the economic outcome of a completed swap. Direct swaps
// award both parties points and credits; indirect swaps award the provider
// full points and credits while the requester's reserved points are
// consumed (a zero-amount payment marker records the consumption) and the
// requester earns reduced credits. Both parties' completion counters and
// traded hours advance either way.
//
// level is the final skill level agreed by the completion protocol; the
// same multiplier applies to both sides. Each party is settled under its
// own profile lock; the caller serialises per swap so settlement runs at
// most once per swap.
func (s *Service) Settle(ctx context.Context, swap *domain.SwapRequest, finalHours float64, level domain.SkillLevel) (*Settlement, error) {
	if level == "" {
		level = domain.LevelIntermediate
	}

	requester := partyAward{
		uid:   swap.RequesterUID,
		skill: swap.RequesterOffer,
	}
	recipient := partyAward{
		uid:         swap.RecipientUID,
		skill:       swap.RequesterNeed,
		earnsPoints: true,
	}

	switch swap.SwapType {
	case domain.SwapDirect:
		requester.earnsPoints = true
	case domain.SwapIndirect:
		// The requester pays with the points reserved at creation.
		requester.skill = swap.RequesterNeed
		requester.halfCredits = true
		requester.paymentMarker = true
	default:
		return nil, apperr.Validationf("unknown swap type %q", swap.SwapType)
	}

	out := &Settlement{}
	var err error
	out.RequesterPoints, out.RequesterCredits, err = s.applyAward(ctx, swap.ID, requester, finalHours, level)
	if err != nil {
		return nil, err
	}
	out.RecipientPoints, out.RecipientCredits, err = s.applyAward(ctx, swap.ID, recipient, finalHours, level)
	if err != nil {
		s.log.Error().Str("swap_id", swap.ID).Str("uid", swap.RecipientUID).Err(err).
			Msg("settlement applied to requester but failed for recipient; manual reconciliation needed")
		return nil, err
	}

	s.log.Info().Str("swap_id", swap.ID).Str("swap_type", string(swap.SwapType)).
		Float64("final_hours", finalHours).Str("skill_level", string(level)).
		Int("requester_points", out.RequesterPoints).Int("recipient_points", out.RecipientPoints).
		Msg("swap settled")
	return out, nil
}

// partyAward describes one side's share of a settlement.
type partyAward struct {
	uid           string
	skill         string
	earnsPoints   bool
	halfCredits   bool
	paymentMarker bool
}

// applyAward performs the locked read-modify-write for one party: balance
// and counter changes plus the matching ledger entries in one critical
// section. Trust is read from the profile before its counters advance, so
// the swap being settled does not inflate its own multiplier.
func (s *Service) applyAward(ctx context.Context, swapID string, a partyAward, hours float64, level domain.SkillLevel) (points, credits int, err error) {
	s.locks.Lock(profileKey(a.uid))
	defer s.locks.Unlock(profileKey(a.uid))

	p, err := s.profiles.Get(ctx, a.uid)
	if err != nil {
		return 0, 0, lookupErr(a.uid, err)
	}

	if a.earnsPoints {
		trust := s.TrustFor(p)
		points = s.Points(hours, level, trust, s.demand.Multiplier(a.skill))
	}
	if a.halfCredits {
		credits = s.IndirectRequesterCredits(hours, level)
	} else {
		credits = s.Credits(hours, level)
	}

	p.SwapPoints += points
	p.LifetimePointsEarned += points
	p.SwapCredits += credits
	p.CompletedSwapCount++
	p.TotalHoursTraded += hours
	p.UpdatedAt = s.now()

	if err := s.profiles.Put(ctx, p); err != nil {
		return 0, 0, apperr.Wrap(apperr.Internal, err, "apply settlement to %s", a.uid)
	}

	if points > 0 {
		tx := s.pointsTx(a.uid, domain.TxEarned, points, p.SwapPoints, domain.ReasonSwapCompleted, swapID, a.skill)
		if err := s.ledger.AppendPoints(ctx, tx); err != nil {
			return 0, 0, apperr.Wrap(apperr.Internal, err, "record settlement points for %s", a.uid)
		}
	}
	if a.paymentMarker {
		marker := s.pointsTx(a.uid, domain.TxSpent, 0, p.SwapPoints, domain.ReasonIndirectPayment, swapID, a.skill)
		if err := s.ledger.AppendPoints(ctx, marker); err != nil {
			return 0, 0, apperr.Wrap(apperr.Internal, err, "record payment marker for %s", a.uid)
		}
	}
	if credits > 0 {
		tx := s.creditsTx(a.uid, domain.TxEarned, credits, p.SwapCredits, domain.ReasonSwapCompleted, swapID, a.skill)
		if err := s.ledger.AppendCredits(ctx, tx); err != nil {
			return 0, 0, apperr.Wrap(apperr.Internal, err, "record settlement credits for %s", a.uid)
		}
	}
	return points, credits, nil
}
