// Package completion runs the two-sided completion protocol: each party
// marks the swap done, claims drive the settled hours and skill level, and
// an auto-complete sweep finalizes swaps the second party never answered.
// Disputes freeze the swap for out-of-band review instead of settling.
package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/economy"
	"github.com/skillswap/swapd/internal/email"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/metrics"
	"github.com/skillswap/swapd/internal/persistence"
)

// MarkInput is one party's completion claim.
type MarkInput struct {
	HoursSpent float64           `json:"hours_spent"`
	SkillLevel domain.SkillLevel `json:"skill_level,omitempty"`
	Notes      string            `json:"notes,omitempty"`
}

// Service owns completion marking, verification, disputes, and the
// auto-complete sweep.
type Service struct {
	swaps    persistence.SwapStore
	profiles persistence.ProfileStore
	disputes persistence.DisputeStore
	economy  *economy.Service
	mail     *email.Service
	metrics  *metrics.Registry
	locks    *kmutex.KMutex
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the completion service. mail may be nil.
func NewService(
	stores *persistence.Stores,
	eco *economy.Service,
	mail *email.Service,
	reg *metrics.Registry,
	locks *kmutex.KMutex,
	log zerolog.Logger,
) *Service {
	return &Service{
		swaps:    stores.Swaps,
		profiles: stores.Profiles,
		disputes: stores.Disputes,
		economy:  eco,
		mail:     mail,
		metrics:  reg,
		locks:    locks,
		log:      log.With().Str("component", "completion").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func swapKey(id string) string { return "swap:" + id }

// Mark records uid's completion claim. The first mark opens the
// auto-complete window; the second settles with the averaged hours and the
// second marker's level.
func (s *Service) Mark(ctx context.Context, swapID, uid string, in MarkInput) (*domain.SwapRequest, error) {
	if err := validateMark(swapID, uid, in); err != nil {
		return nil, err
	}

	s.locks.Lock(swapKey(swapID))
	defer s.locks.Unlock(swapKey(swapID))

	swap, err := s.loadForParty(ctx, swapID, uid)
	if err != nil {
		return nil, err
	}
	if swap.Status != domain.SwapAccepted && swap.Status != domain.SwapPendingCompletion {
		return nil, apperr.Conflictf("cannot mark a %s swap complete", swap.Status)
	}

	party, _ := swap.Party(uid)
	if party.MarkedComplete {
		return nil, apperr.Conflictf("you have already marked this swap complete")
	}

	now := s.now()
	party.MarkedComplete = true
	party.MarkedAt = &now
	party.HoursClaimed = in.HoursSpent
	party.SkillLevel = in.SkillLevel
	party.Notes = strings.TrimSpace(in.Notes)

	other, _ := swap.Party(swap.OtherParty(uid))
	if other.MarkedComplete {
		finalHours := (party.HoursClaimed + other.HoursClaimed) / 2
		level := in.SkillLevel
		if level == "" {
			level = other.SkillLevel
		}
		return s.finalize(ctx, swap, finalHours, level)
	}

	autoAt := now.Add(domain.AutoCompleteWindow)
	swap.Status = domain.SwapPendingCompletion
	swap.Completion.AutoCompleteAt = &autoAt
	swap.UpdatedAt = now
	if err := s.swaps.Put(ctx, swap); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store completion claim for swap %s", swap.ID)
	}

	if s.metrics != nil {
		s.metrics.SwapTransitions.WithLabelValues(string(domain.SwapPendingCompletion)).Inc()
	}
	s.notifyPending(ctx, swap, uid, autoAt)

	s.log.Info().Str("swap_id", swap.ID).Str("uid", uid).
		Float64("hours_claimed", in.HoursSpent).Time("auto_complete_at", autoAt).
		Msg("completion marked, waiting on other party")
	return swap, nil
}

func validateMark(swapID, uid string, in MarkInput) error {
	if swapID == "" {
		return apperr.Validationf("swap id is required")
	}
	if uid == "" {
		return apperr.Validationf("uid is required")
	}
	if in.HoursSpent < domain.MinHours || in.HoursSpent > domain.MaxHours {
		return apperr.Validationf("hours_spent must be between %.1f and %.0f", domain.MinHours, domain.MaxHours)
	}
	if in.SkillLevel != "" && !domain.ValidSkillLevel(string(in.SkillLevel)) {
		return apperr.Validationf("unknown skill_level %q", in.SkillLevel)
	}
	return nil
}

// Verify accepts the other party's claim as recorded: their hours and
// level become final with no averaging.
func (s *Service) Verify(ctx context.Context, swapID, uid string) (*domain.SwapRequest, error) {
	if swapID == "" || uid == "" {
		return nil, apperr.Validationf("swap id and uid are required")
	}

	s.locks.Lock(swapKey(swapID))
	defer s.locks.Unlock(swapKey(swapID))

	swap, err := s.loadForParty(ctx, swapID, uid)
	if err != nil {
		return nil, err
	}
	if swap.Status != domain.SwapPendingCompletion {
		return nil, apperr.Conflictf("swap has no completion claim awaiting verification")
	}

	party, _ := swap.Party(uid)
	if party.MarkedComplete {
		return nil, apperr.Conflictf("you already marked this swap complete; waiting on the other party")
	}
	other, _ := swap.Party(swap.OtherParty(uid))
	if !other.MarkedComplete {
		return nil, apperr.Conflictf("no completion claim to verify")
	}

	now := s.now()
	party.MarkedComplete = true
	party.MarkedAt = &now
	party.HoursClaimed = other.HoursClaimed

	return s.finalize(ctx, swap, other.HoursClaimed, other.SkillLevel)
}

// Dispute freezes a pending completion for manual review. Nothing settles
// and reserved points stay held until the dispute is resolved.
func (s *Service) Dispute(ctx context.Context, swapID, uid, reason string) (*domain.SwapRequest, error) {
	reason = strings.TrimSpace(reason)
	if swapID == "" || uid == "" {
		return nil, apperr.Validationf("swap id and uid are required")
	}
	if reason == "" {
		return nil, apperr.Validationf("dispute reason is required")
	}

	s.locks.Lock(swapKey(swapID))
	defer s.locks.Unlock(swapKey(swapID))

	swap, err := s.loadForParty(ctx, swapID, uid)
	if err != nil {
		return nil, err
	}
	if swap.Status != domain.SwapPendingCompletion {
		return nil, apperr.Conflictf("only a pending completion can be disputed")
	}

	now := s.now()
	party, _ := swap.Party(uid)
	party.DisputeReason = reason
	party.DisputedAt = &now
	swap.Status = domain.SwapDisputed
	swap.Completion.AutoCompleteAt = nil
	swap.UpdatedAt = now
	if err := s.swaps.Put(ctx, swap); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store disputed swap %s", swap.ID)
	}

	record := &domain.Dispute{
		ID:            s.newID(),
		SwapRequestID: swap.ID,
		DisputerUID:   uid,
		Reason:        reason,
		Status:        "pending",
		CreatedAt:     now,
	}
	if err := s.disputes.Put(ctx, record); err != nil {
		s.log.Error().Str("swap_id", swap.ID).Err(err).
			Msg("dispute record write failed, manual follow-up needed")
		return nil, apperr.Wrap(apperr.Internal, err, "record dispute for swap %s", swap.ID)
	}

	if s.metrics != nil {
		s.metrics.SwapTransitions.WithLabelValues(string(domain.SwapDisputed)).Inc()
	}
	s.notifyDisputed(ctx, swap, uid, reason)

	s.log.Info().Str("swap_id", swap.ID).Str("disputer", uid).
		Int("points_held", swap.PointsReserved).Msg("swap completion disputed")
	return swap, nil
}

// PartyView is one side of the completion snapshot.
type PartyView struct {
	UID            string            `json:"uid"`
	MarkedComplete bool              `json:"marked_complete"`
	MarkedAt       *time.Time        `json:"marked_at,omitempty"`
	HoursClaimed   float64           `json:"hours_claimed,omitempty"`
	SkillLevel     domain.SkillLevel `json:"skill_level,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// StatusView is the completion snapshot served to participants.
type StatusView struct {
	SwapID         string            `json:"swap_id"`
	Status         domain.SwapStatus `json:"status"`
	Requester      PartyView         `json:"requester"`
	Recipient      PartyView         `json:"recipient"`
	AutoCompleteAt *time.Time        `json:"auto_complete_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	FinalHours     float64           `json:"final_hours,omitempty"`
}

// Status returns the completion snapshot, participants only.
func (s *Service) Status(ctx context.Context, swapID, uid string) (*StatusView, error) {
	swap, err := s.loadForParty(ctx, swapID, uid)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		SwapID:         swap.ID,
		Status:         swap.Status,
		Requester:      partyView(swap.RequesterUID, swap.Completion.Requester),
		Recipient:      partyView(swap.RecipientUID, swap.Completion.Recipient),
		AutoCompleteAt: swap.Completion.AutoCompleteAt,
		CompletedAt:    swap.Completion.CompletedAt,
		FinalHours:     swap.Completion.FinalHours,
	}, nil
}

func partyView(uid string, p domain.CompletionParty) PartyView {
	return PartyView{
		UID:            uid,
		MarkedComplete: p.MarkedComplete,
		MarkedAt:       p.MarkedAt,
		HoursClaimed:   p.HoursClaimed,
		SkillLevel:     p.SkillLevel,
		Notes:          p.Notes,
	}
}

// SweepAutoComplete finalizes every pending completion whose 48h window
// has lapsed, settling on the marker's claim. Individual failures are
// logged and skipped so one bad document cannot stall the sweep.
func (s *Service) SweepAutoComplete(ctx context.Context) (int, error) {
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}
	due, err := s.swaps.ListCompletionDue(ctx, s.now(), persistence.MaxFetch)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "list swaps due for auto-complete")
	}

	finalized := 0
	for _, sw := range due {
		if err := s.sweepOne(ctx, sw.ID); err != nil {
			s.log.Error().Str("swap_id", sw.ID).Err(err).Msg("auto-complete failed")
			continue
		}
		finalized++
		if s.metrics != nil {
			s.metrics.SweepFinalized.Inc()
		}
	}
	if finalized > 0 || len(due) > 0 {
		s.log.Info().Int("due", len(due)).Int("finalized", finalized).
			Msg("auto-complete sweep finished")
	}
	return finalized, nil
}

// sweepOne re-checks one due swap under its lock; the listing ran without
// it, so the swap may have been verified or disputed in the meantime.
func (s *Service) sweepOne(ctx context.Context, swapID string) error {
	s.locks.Lock(swapKey(swapID))
	defer s.locks.Unlock(swapKey(swapID))

	swap, err := s.swaps.Get(ctx, swapID)
	if err != nil {
		return err
	}
	now := s.now()
	if swap.Status != domain.SwapPendingCompletion ||
		swap.Completion.AutoCompleteAt == nil ||
		swap.Completion.AutoCompleteAt.After(now) {
		return nil
	}

	marker, silent, silentUID := markerParty(swap)
	if marker == nil {
		return errors.New("pending completion has no marked party")
	}
	silent.MarkedComplete = true
	silent.MarkedAt = &now
	silent.HoursClaimed = marker.HoursClaimed

	s.log.Info().Str("swap_id", swap.ID).Str("silent_party", silentUID).
		Msg("auto-completing swap after unanswered window")
	_, err = s.finalize(ctx, swap, marker.HoursClaimed, marker.SkillLevel)
	return err
}

// markerParty returns the party that marked completion and the one that
// stayed silent. All nil when neither marked.
func markerParty(swap *domain.SwapRequest) (marker, silent *domain.CompletionParty, silentUID string) {
	req := &swap.Completion.Requester
	rec := &swap.Completion.Recipient
	switch {
	case req.MarkedComplete && !rec.MarkedComplete:
		return req, rec, swap.RecipientUID
	case rec.MarkedComplete && !req.MarkedComplete:
		return rec, req, swap.RequesterUID
	}
	return nil, nil, ""
}

// finalize writes the completed status, settles the economy, then records
// the per-party amounts on the swap. The status write is authoritative: a
// settlement failure after it needs reconciliation, not a retry.
func (s *Service) finalize(ctx context.Context, swap *domain.SwapRequest, finalHours float64, level domain.SkillLevel) (*domain.SwapRequest, error) {
	now := s.now()
	swap.Status = domain.SwapCompleted
	swap.Completion.CompletedAt = &now
	swap.Completion.FinalHours = finalHours
	swap.Completion.AutoCompleteAt = nil
	swap.PointsReserved = 0
	swap.UpdatedAt = now
	if err := s.swaps.Put(ctx, swap); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store completed swap %s", swap.ID)
	}

	settled, err := s.economy.Settle(ctx, swap, finalHours, level)
	if err != nil {
		s.log.Error().Str("swap_id", swap.ID).Err(err).
			Msg("swap marked completed but settlement failed, manual reconciliation needed")
		return nil, apperr.Wrap(apperr.Internal, err, "settle swap %s", swap.ID)
	}

	swap.Completion.RequesterPointsEarned = settled.RequesterPoints
	swap.Completion.RequesterCreditsEarned = settled.RequesterCredits
	swap.Completion.RecipientPointsEarned = settled.RecipientPoints
	swap.Completion.RecipientCreditsEarned = settled.RecipientCredits
	if err := s.swaps.Put(ctx, swap); err != nil {
		// The ledger already carries the amounts.
		s.log.Warn().Str("swap_id", swap.ID).Err(err).Msg("recording settlement amounts failed")
	}

	if s.metrics != nil {
		s.metrics.SwapTransitions.WithLabelValues(string(domain.SwapCompleted)).Inc()
		s.metrics.Settlements.WithLabelValues(string(swap.SwapType)).Inc()
		s.metrics.PointsAwarded.Add(float64(settled.RequesterPoints + settled.RecipientPoints))
		s.metrics.CreditsAwarded.Add(float64(settled.RequesterCredits + settled.RecipientCredits))
	}
	s.notifyCompleted(ctx, swap, settled)

	s.log.Info().Str("swap_id", swap.ID).Float64("final_hours", finalHours).
		Str("skill_level", string(level)).Msg("swap completed and settled")
	return swap, nil
}

func (s *Service) loadForParty(ctx context.Context, swapID, uid string) (*domain.SwapRequest, error) {
	swap, err := s.swaps.Get(ctx, swapID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("swap request not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load swap request %s", swapID)
	}
	if !swap.Participant(uid) {
		return nil, apperr.Forbiddenf("you are not a participant in this swap request")
	}
	return swap, nil
}

func (s *Service) notifyPending(ctx context.Context, swap *domain.SwapRequest, markerUID string, deadline time.Time) {
	if s.mail == nil {
		return
	}
	other, err := s.profiles.Get(ctx, swap.OtherParty(markerUID))
	if err != nil || !other.EmailUpdates || other.Email == "" {
		return
	}
	markerName := markerUID
	if mp, err := s.profiles.Get(ctx, markerUID); err == nil && mp.DisplayName != "" {
		markerName = mp.DisplayName
	}
	s.mail.SendCompletionPending(other.Email, other.DisplayName, markerName, deadline)
}

func (s *Service) notifyDisputed(ctx context.Context, swap *domain.SwapRequest, disputerUID, reason string) {
	if s.mail == nil {
		return
	}
	other, err := s.profiles.Get(ctx, swap.OtherParty(disputerUID))
	if err != nil || !other.EmailUpdates || other.Email == "" {
		return
	}
	s.mail.SendDisputeOpened(other.Email, other.DisplayName, reason)
}

func (s *Service) notifyCompleted(ctx context.Context, swap *domain.SwapRequest, settled *economy.Settlement) {
	if s.mail == nil {
		return
	}
	s.notifyOneCompleted(ctx, swap.RequesterUID, settled.RequesterPoints, settled.RequesterCredits)
	s.notifyOneCompleted(ctx, swap.RecipientUID, settled.RecipientPoints, settled.RecipientCredits)
}

func (s *Service) notifyOneCompleted(ctx context.Context, uid string, points, credits int) {
	p, err := s.profiles.Get(ctx, uid)
	if err != nil || !p.EmailUpdates || p.Email == "" {
		return
	}
	s.mail.SendSwapCompleted(p.Email, p.DisplayName, points, credits)
}
