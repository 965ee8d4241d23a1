// Package economy owns every balance mutation: earning, spending,
// reservations, refunds, and swap settlement. All writes to a profile's
// balances go through here, serialised per uid, with an append-only
// transaction record written alongside each change.
package economy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/config"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/persistence"
)

// recentTransactions bounds the history returned with a balance lookup.
const recentTransactions = 20

// Service implements the points and credits engine.
type Service struct {
	profiles persistence.ProfileStore
	ledger   persistence.LedgerStore
	boosts   persistence.BoostStore
	locks    *kmutex.KMutex
	weights  *config.WeightsConfig
	demand   DemandIndex
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires the economy engine. The keyed mutex must be the same
// instance every profile-writing service shares, so balance writes and
// profile patches never interleave on one document.
func NewService(
	profiles persistence.ProfileStore,
	ledger persistence.LedgerStore,
	boosts persistence.BoostStore,
	locks *kmutex.KMutex,
	weights *config.WeightsConfig,
	demand DemandIndex,
	log zerolog.Logger,
) *Service {
	if demand == nil {
		demand = StaticDemand(1.0)
	}
	return &Service{
		profiles: profiles,
		ledger:   ledger,
		boosts:   boosts,
		locks:    locks,
		weights:  weights,
		demand:   demand,
		log:      log.With().Str("component", "economy").Logger(),
		now:      time.Now,
	}
}

func profileKey(uid string) string { return "profile:" + uid }

// TrustFor computes the trust score from the profile's current counters.
func (s *Service) TrustFor(p *domain.Profile) float64 {
	return TrustScore(p.CompletedSwapCount, p.AverageRating)
}

// AwardPoints adds amount to uid's points balance and lifetime total and
// records an earned transaction. Amount must be positive.
func (s *Service) AwardPoints(ctx context.Context, uid string, amount int, reason domain.TransactionReason, swapID, skill string) (*domain.PointsTransaction, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("award amount must be positive, got %d", amount)
	}
	return s.creditPoints(ctx, uid, amount, reason, swapID, skill, true)
}

// RefundPoints restores previously reserved points. The refund raises the
// balance but not lifetime_points_earned; returned reservations are not
// earnings.
func (s *Service) RefundPoints(ctx context.Context, uid string, amount int, swapID string) (*domain.PointsTransaction, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("refund amount must be positive, got %d", amount)
	}
	return s.creditPoints(ctx, uid, amount, domain.ReasonIndirectRefund, swapID, "", false)
}

func (s *Service) creditPoints(ctx context.Context, uid string, amount int, reason domain.TransactionReason, swapID, skill string, lifetime bool) (*domain.PointsTransaction, error) {
	s.locks.Lock(profileKey(uid))
	defer s.locks.Unlock(profileKey(uid))

	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return nil, lookupErr(uid, err)
	}

	p.SwapPoints += amount
	if lifetime {
		p.LifetimePointsEarned += amount
	}
	p.UpdatedAt = s.now()

	tx := s.pointsTx(uid, domain.TxEarned, amount, p.SwapPoints, reason, swapID, skill)
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "update points balance")
	}
	if err := s.ledger.AppendPoints(ctx, tx); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "record points transaction")
	}

	s.log.Debug().Str("uid", uid).Int("amount", amount).Str("reason", string(reason)).
		Int("balance", p.SwapPoints).Msg("points credited")
	return tx, nil
}

// SpendPoints deducts amount from uid's points balance and records a spent
// transaction. Fails when the balance does not cover the amount.
func (s *Service) SpendPoints(ctx context.Context, uid string, amount int, reason domain.TransactionReason, swapID, skill string) (*domain.PointsTransaction, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("spend amount must be positive, got %d", amount)
	}

	s.locks.Lock(profileKey(uid))
	defer s.locks.Unlock(profileKey(uid))

	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return nil, lookupErr(uid, err)
	}
	if p.SwapPoints < amount {
		return nil, apperr.InsufficientFundsf(amount, p.SwapPoints)
	}

	p.SwapPoints -= amount
	p.UpdatedAt = s.now()

	tx := s.pointsTx(uid, domain.TxSpent, amount, p.SwapPoints, reason, swapID, skill)
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "update points balance")
	}
	if err := s.ledger.AppendPoints(ctx, tx); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "record points transaction")
	}

	s.log.Debug().Str("uid", uid).Int("amount", amount).Str("reason", string(reason)).
		Int("balance", p.SwapPoints).Msg("points spent")
	return tx, nil
}

// Reserve holds amount from the requester's balance against an indirect
// swap. The hold is an ordinary spend with a dedicated reason so refunds
// and payments can be matched to it.
func (s *Service) Reserve(ctx context.Context, uid string, amount int, swapID string) (*domain.PointsTransaction, error) {
	return s.SpendPoints(ctx, uid, amount, domain.ReasonIndirectReserved, swapID, "")
}

// AwardCredits adds amount to uid's credits balance and records an earned
// transaction. Amount must be positive.
func (s *Service) AwardCredits(ctx context.Context, uid string, amount int, reason domain.TransactionReason, swapID, skill string) (*domain.CreditsTransaction, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("award amount must be positive, got %d", amount)
	}

	s.locks.Lock(profileKey(uid))
	defer s.locks.Unlock(profileKey(uid))

	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return nil, lookupErr(uid, err)
	}

	p.SwapCredits += amount
	p.UpdatedAt = s.now()

	tx := s.creditsTx(uid, domain.TxEarned, amount, p.SwapCredits, reason, swapID, skill)
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "update credits balance")
	}
	if err := s.ledger.AppendCredits(ctx, tx); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "record credits transaction")
	}

	s.log.Debug().Str("uid", uid).Int("amount", amount).Str("reason", string(reason)).
		Int("balance", p.SwapCredits).Msg("credits awarded")
	return tx, nil
}

// BalanceInfo is the points/credits snapshot returned by the balance
// endpoint.
type BalanceInfo struct {
	UID                  string                       `json:"uid"`
	SwapPoints           int                          `json:"swap_points"`
	SwapCredits          int                          `json:"swap_credits"`
	LifetimePointsEarned int                          `json:"lifetime_points_earned"`
	RecentPoints         []*domain.PointsTransaction  `json:"recent_points"`
	RecentCredits        []*domain.CreditsTransaction `json:"recent_credits"`
}

// Balance returns the current balances plus recent ledger entries.
func (s *Service) Balance(ctx context.Context, uid string) (*BalanceInfo, error) {
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return nil, lookupErr(uid, err)
	}
	points, err := s.ledger.ListPoints(ctx, uid, recentTransactions)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list points transactions")
	}
	credits, err := s.ledger.ListCredits(ctx, uid, recentTransactions)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list credits transactions")
	}
	return &BalanceInfo{
		UID:                  uid,
		SwapPoints:           p.SwapPoints,
		SwapCredits:          p.SwapCredits,
		LifetimePointsEarned: p.LifetimePointsEarned,
		RecentPoints:         points,
		RecentCredits:        credits,
	}, nil
}

// Transactions returns up to limit ledger entries of each kind for uid.
func (s *Service) Transactions(ctx context.Context, uid string, limit int) ([]*domain.PointsTransaction, []*domain.CreditsTransaction, error) {
	points, err := s.ledger.ListPoints(ctx, uid, limit)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, err, "list points transactions")
	}
	credits, err := s.ledger.ListCredits(ctx, uid, limit)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, err, "list credits transactions")
	}
	return points, credits, nil
}

func (s *Service) pointsTx(uid string, typ domain.TransactionType, amount, balanceAfter int, reason domain.TransactionReason, swapID, skill string) *domain.PointsTransaction {
	return &domain.PointsTransaction{
		ID:            uuid.NewString(),
		UID:           uid,
		Type:          typ,
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		Reason:        reason,
		RelatedSwapID: swapID,
		RelatedSkill:  skill,
		CreatedAt:     s.now(),
	}
}

func (s *Service) creditsTx(uid string, typ domain.TransactionType, amount, balanceAfter int, reason domain.TransactionReason, swapID, skill string) *domain.CreditsTransaction {
	return &domain.CreditsTransaction{
		ID:            uuid.NewString(),
		UID:           uid,
		Type:          typ,
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		Reason:        reason,
		RelatedSwapID: swapID,
		RelatedSkill:  skill,
		CreatedAt:     s.now(),
	}
}

func lookupErr(uid string, err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return apperr.NotFoundf("profile %s not found", uid)
	}
	return apperr.Wrap(apperr.Internal, err, "load profile %s", uid)
}
