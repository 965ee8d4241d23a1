// Package swap implements the swap request lifecycle: creation with
// blocking and reservation checks, recipient responses that spawn the
// conversation, cancellation, and the lists both parties page through.
// Completion is a separate protocol owned by internal/completion.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
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

// DefaultListLimit bounds incoming/outgoing listings.
const DefaultListLimit = 50

// CreateInput is the client payload for a new swap request.
type CreateInput struct {
	RecipientUID   string          `json:"recipient_uid"`
	SwapType       domain.SwapType `json:"swap_type"`
	RequesterOffer string          `json:"requester_offer"`
	RequesterNeed  string          `json:"requester_need"`
	PointsOffered  int             `json:"points_offered"`
	Message        string          `json:"message"`
}

// Service owns the pre-completion swap lifecycle.
type Service struct {
	swaps    persistence.SwapStore
	profiles persistence.ProfileStore
	convs    persistence.ConversationStore
	msgs     persistence.MessageStore
	blocks   persistence.BlockStore
	economy  *economy.Service
	mail     *email.Service
	metrics  *metrics.Registry
	locks    *kmutex.KMutex
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the swap request service. mail may be nil.
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
		convs:    stores.Conversations,
		msgs:     stores.Messages,
		blocks:   stores.Blocks,
		economy:  eco,
		mail:     mail,
		metrics:  reg,
		locks:    locks,
		log:      log.With().Str("component", "swap").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func swapKey(id string) string { return "swap:" + id }

func pairKey(requester, recipient string) string {
	return "swappair:" + requester + ":" + recipient
}

// Create validates and records a new pending swap request. Indirect swaps
// reserve the offered points immediately; a failed reservation removes the
// just-written record so no unpaid request survives.
func (s *Service) Create(ctx context.Context, requesterUID string, in CreateInput) (*domain.SwapRequest, error) {
	if err := validateCreate(requesterUID, in); err != nil {
		return nil, err
	}

	// One pending request per ordered pair; the pair lock closes the
	// check-then-insert race.
	s.locks.Lock(pairKey(requesterUID, in.RecipientUID))
	defer s.locks.Unlock(pairKey(requesterUID, in.RecipientUID))

	recipient, err := s.profiles.Get(ctx, in.RecipientUID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("recipient profile not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load recipient %s", in.RecipientUID)
	}

	if err := s.checkNotBlocked(ctx, requesterUID, in.RecipientUID); err != nil {
		return nil, err
	}

	pending, err := s.swaps.HasPending(ctx, requesterUID, in.RecipientUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "check pending requests")
	}
	if pending {
		return nil, apperr.Conflictf("you already have a pending swap request with this user")
	}

	now := s.now()
	swap := &domain.SwapRequest{
		ID:             s.newID(),
		RequesterUID:   requesterUID,
		RecipientUID:   in.RecipientUID,
		Status:         domain.SwapPending,
		SwapType:       in.SwapType,
		RequesterOffer: strings.TrimSpace(in.RequesterOffer),
		RequesterNeed:  strings.TrimSpace(in.RequesterNeed),
		Message:        in.Message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.SwapType == domain.SwapIndirect {
		swap.PointsOffered = in.PointsOffered
		swap.PointsReserved = in.PointsOffered
	}

	if err := s.swaps.Put(ctx, swap); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store swap request")
	}

	if in.SwapType == domain.SwapIndirect {
		if _, err := s.economy.Reserve(ctx, requesterUID, in.PointsOffered, swap.ID); err != nil {
			if delErr := s.swaps.Delete(ctx, swap.ID); delErr != nil {
				s.log.Error().Str("swap_id", swap.ID).Err(delErr).
					Msg("rollback of unfunded swap request failed")
			}
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.SwapTransitions.WithLabelValues(string(domain.SwapPending)).Inc()
	}
	s.notifyNewRequest(ctx, requesterUID, recipient, swap)

	s.log.Info().Str("swap_id", swap.ID).Str("requester", requesterUID).
		Str("recipient", in.RecipientUID).Str("swap_type", string(in.SwapType)).
		Msg("swap request created")
	return swap, nil
}

func validateCreate(requesterUID string, in CreateInput) error {
	if strings.TrimSpace(requesterUID) == "" {
		return apperr.Validationf("requester uid is required")
	}
	if strings.TrimSpace(in.RecipientUID) == "" {
		return apperr.Validationf("recipient_uid is required")
	}
	if requesterUID == in.RecipientUID {
		return apperr.Validationf("cannot send a swap request to yourself")
	}
	if strings.TrimSpace(in.RequesterNeed) == "" {
		return apperr.Validationf("requester_need is required")
	}
	if len([]rune(in.Message)) > domain.MaxSwapMessageLen {
		return apperr.Validationf("message must be at most %d characters", domain.MaxSwapMessageLen)
	}
	switch in.SwapType {
	case domain.SwapDirect:
		if strings.TrimSpace(in.RequesterOffer) == "" {
			return apperr.Validationf("requester_offer is required for direct swaps")
		}
	case domain.SwapIndirect:
		if in.PointsOffered < 1 {
			return apperr.Validationf("points_offered must be at least 1 for indirect swaps")
		}
	default:
		return apperr.Validationf("swap_type must be direct or indirect")
	}
	return nil
}

// checkNotBlocked refuses requests in either blocking direction.
func (s *Service) checkNotBlocked(ctx context.Context, a, b string) error {
	if _, err := s.blocks.Get(ctx, a, b); err == nil {
		return apperr.Forbiddenf("you have blocked this user")
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return apperr.Wrap(apperr.Internal, err, "check block %s->%s", a, b)
	}
	if _, err := s.blocks.Get(ctx, b, a); err == nil {
		return apperr.Forbiddenf("this user is not accepting requests from you")
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return apperr.Wrap(apperr.Internal, err, "check block %s->%s", b, a)
	}
	return nil
}

func (s *Service) notifyNewRequest(ctx context.Context, requesterUID string, recipient *domain.Profile, swap *domain.SwapRequest) {
	if s.mail == nil || !recipient.EmailUpdates || recipient.Email == "" {
		return
	}
	requesterName := requesterUID
	if rp, err := s.profiles.Get(ctx, requesterUID); err == nil && rp.DisplayName != "" {
		requesterName = rp.DisplayName
	}
	s.mail.SendSwapRequest(recipient.Email, recipient.DisplayName, requesterName, swap.RequesterNeed)
}

// Get returns one swap request, participants only.
func (s *Service) Get(ctx context.Context, swapID, uid string) (*domain.SwapRequest, error) {
	swap, err := s.loadSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !swap.Participant(uid) {
		return nil, apperr.Forbiddenf("you are not a participant in this swap request")
	}
	return swap, nil
}

// Incoming lists requests received by uid, newest first, optionally
// filtered by status.
func (s *Service) Incoming(ctx context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error) {
	if err := validateListArgs(uid, status); err != nil {
		return nil, err
	}
	swaps, err := s.swaps.ListByRecipient(ctx, uid, status, listLimit(limit))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list incoming requests")
	}
	sortByCreated(swaps)
	return swaps, nil
}

// Outgoing lists requests sent by uid, newest first, optionally filtered
// by status.
func (s *Service) Outgoing(ctx context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error) {
	if err := validateListArgs(uid, status); err != nil {
		return nil, err
	}
	swaps, err := s.swaps.ListByRequester(ctx, uid, status, listLimit(limit))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list outgoing requests")
	}
	sortByCreated(swaps)
	return swaps, nil
}

// Completed merges uid's completed swaps from both roles, most recently
// settled first.
func (s *Service) Completed(ctx context.Context, uid string, limit int) ([]*domain.SwapRequest, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, apperr.Validationf("uid is required")
	}
	limit = listLimit(limit)

	sent, err := s.swaps.ListByRequester(ctx, uid, domain.SwapCompleted, persistence.MaxFetch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list completed requests")
	}
	received, err := s.swaps.ListByRecipient(ctx, uid, domain.SwapCompleted, persistence.MaxFetch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list completed requests")
	}
	all := append(sent, received...)
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func validateListArgs(uid string, status domain.SwapStatus) error {
	if strings.TrimSpace(uid) == "" {
		return apperr.Validationf("uid is required")
	}
	if status != "" && !domain.ValidSwapStatus(string(status)) {
		return apperr.Validationf("unknown status %q", status)
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 || limit > persistence.MaxFetch {
		return DefaultListLimit
	}
	return limit
}

func sortByCreated(swaps []*domain.SwapRequest) {
	sort.Slice(swaps, func(i, j int) bool {
		return swaps[i].CreatedAt.After(swaps[j].CreatedAt)
	})
}

func (s *Service) loadSwap(ctx context.Context, swapID string) (*domain.SwapRequest, error) {
	swap, err := s.swaps.Get(ctx, swapID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("swap request not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load swap request %s", swapID)
	}
	return swap, nil
}

// refreshResponseRate recomputes the share of received requests uid has
// answered. Derived field: failures are logged, never surfaced.
func (s *Service) refreshResponseRate(ctx context.Context, uid string) {
	received, err := s.swaps.ListByRecipient(ctx, uid, "", persistence.MaxFetch)
	if err != nil {
		s.log.Warn().Str("uid", uid).Err(err).Msg("response rate: list failed")
		return
	}
	responded := 0
	for _, r := range received {
		switch r.Status {
		case domain.SwapAccepted, domain.SwapDeclined, domain.SwapCompleted:
			responded++
		}
	}
	rate := 0.0
	if len(received) > 0 {
		rate = math.Round(float64(responded)/float64(len(received))*1000) / 10
	}

	key := "profile:" + uid
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		s.log.Warn().Str("uid", uid).Err(err).Msg("response rate: profile load failed")
		return
	}
	p.ResponseRate = rate
	p.UpdatedAt = s.now()
	if err := s.profiles.Put(ctx, p); err != nil {
		s.log.Warn().Str("uid", uid).Err(err).Msg("response rate: profile write failed")
	}
}

// systemMessageText is what the conversation opens with.
func systemMessageText(swap *domain.SwapRequest) string {
	if swap.SwapType == domain.SwapIndirect {
		return fmt.Sprintf("Swap accepted! This is a points-based swap (%d points). You can now start chatting and coordinate your skill exchange.", swap.PointsReserved)
	}
	return "Swap accepted! You can now start chatting and coordinate your skill exchange."
}
