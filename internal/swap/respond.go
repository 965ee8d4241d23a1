package swap

import (
	"context"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
)

// Respond records the recipient's accept or decline. Accepting opens the
// conversation with a system message before the status flips, so an
// accepted swap is never observable without its channel. Declining
// releases any reserved points after the status write.
func (s *Service) Respond(ctx context.Context, swapID, uid string, accept bool) (*domain.SwapRequest, error) {
	if err := validateRespondArgs(swapID, uid); err != nil {
		return nil, err
	}

	s.locks.Lock(swapKey(swapID))
	defer s.locks.Unlock(swapKey(swapID))

	swap, err := s.loadSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if uid != swap.RecipientUID {
		return nil, apperr.Forbiddenf("only the recipient can respond to a swap request")
	}
	if swap.Status != domain.SwapPending {
		return nil, apperr.Conflictf("swap request is not pending")
	}

	if accept {
		return s.acceptSwap(ctx, swap)
	}
	return s.declineSwap(ctx, swap)
}

func validateRespondArgs(swapID, uid string) error {
	if swapID == "" {
		return apperr.Validationf("swap id is required")
	}
	if uid == "" {
		return apperr.Validationf("uid is required")
	}
	return nil
}

func (s *Service) acceptSwap(ctx context.Context, swap *domain.SwapRequest) (*domain.SwapRequest, error) {
	now := s.now()
	text := systemMessageText(swap)

	conv := &domain.Conversation{
		ID:              "conv_" + swap.ID,
		ParticipantUIDs: domain.SortedPair(swap.RequesterUID, swap.RecipientUID),
		SwapRequestID:   swap.ID,
		Status:          domain.ConversationActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastMessage: &domain.MessagePreview{
			Content:   domain.TruncatePreview(text),
			SenderUID: domain.SystemSender,
			SentAt:    now,
		},
		UnreadCounts: map[string]int{
			swap.RequesterUID: 0,
			swap.RecipientUID: 0,
		},
	}
	if err := s.convs.Put(ctx, conv); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "create conversation for swap %s", swap.ID)
	}
	msg := &domain.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		SenderUID:      domain.SystemSender,
		Content:        text,
		SentAt:         now,
		ReadBy:         []string{},
		Type:           domain.MessageSystem,
	}
	if err := s.msgs.Append(ctx, msg); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "write system message for swap %s", swap.ID)
	}

	swap.Status = domain.SwapAccepted
	swap.ConversationID = conv.ID
	swap.RespondedAt = &now
	swap.UpdatedAt = now
	if err := s.swaps.Put(ctx, swap); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store accepted swap %s", swap.ID)
	}

	if s.metrics != nil {
		s.metrics.SwapTransitions.WithLabelValues(string(domain.SwapAccepted)).Inc()
	}
	s.notifyResponse(ctx, swap, true)
	s.refreshResponseRate(ctx, swap.RecipientUID)

	s.log.Info().Str("swap_id", swap.ID).Str("conversation_id", conv.ID).
		Msg("swap request accepted")
	return swap, nil
}

func (s *Service) declineSwap(ctx context.Context, swap *domain.SwapRequest) (*domain.SwapRequest, error) {
	now := s.now()
	swap.Status = domain.SwapDeclined
	swap.RespondedAt = &now
	swap.UpdatedAt = now
	if err := s.swaps.Put(ctx, swap); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store declined swap %s", swap.ID)
	}

	if err := s.releaseReservation(ctx, swap); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SwapTransitions.WithLabelValues(string(domain.SwapDeclined)).Inc()
	}
	s.notifyResponse(ctx, swap, false)
	s.refreshResponseRate(ctx, swap.RecipientUID)

	s.log.Info().Str("swap_id", swap.ID).Msg("swap request declined")
	return swap, nil
}

// Cancel withdraws a still-pending request. Requester only.
func (s *Service) Cancel(ctx context.Context, swapID, uid string) (*domain.SwapRequest, error) {
	if err := validateRespondArgs(swapID, uid); err != nil {
		return nil, err
	}

	s.locks.Lock(swapKey(swapID))
	defer s.locks.Unlock(swapKey(swapID))

	swap, err := s.loadSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if uid != swap.RequesterUID {
		return nil, apperr.Forbiddenf("only the requester can cancel a swap request")
	}
	if swap.Status != domain.SwapPending {
		return nil, apperr.Conflictf("only pending swap requests can be cancelled")
	}

	now := s.now()
	swap.Status = domain.SwapCancelled
	swap.UpdatedAt = now
	if err := s.swaps.Put(ctx, swap); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store cancelled swap %s", swap.ID)
	}

	if err := s.releaseReservation(ctx, swap); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SwapTransitions.WithLabelValues(string(domain.SwapCancelled)).Inc()
	}
	s.log.Info().Str("swap_id", swap.ID).Msg("swap request cancelled")
	return swap, nil
}

// releaseReservation refunds held points once the request leaves the
// running set. The status write has already landed, so a failed refund is
// an inconsistency to reconcile, not to roll back.
func (s *Service) releaseReservation(ctx context.Context, swap *domain.SwapRequest) error {
	if swap.SwapType != domain.SwapIndirect || swap.PointsReserved <= 0 {
		return nil
	}
	if _, err := s.economy.RefundPoints(ctx, swap.RequesterUID, swap.PointsReserved, swap.ID); err != nil {
		s.log.Error().Str("swap_id", swap.ID).Str("uid", swap.RequesterUID).
			Int("points", swap.PointsReserved).Err(err).
			Msg("reserved points refund failed, manual reconciliation needed")
		return apperr.Wrap(apperr.Internal, err, "refund reserved points for swap %s", swap.ID)
	}
	swap.PointsReserved = 0
	if err := s.swaps.Put(ctx, swap); err != nil {
		s.log.Warn().Str("swap_id", swap.ID).Err(err).Msg("clearing reservation marker failed")
	}
	return nil
}

func (s *Service) notifyResponse(ctx context.Context, swap *domain.SwapRequest, accepted bool) {
	if s.mail == nil {
		return
	}
	requester, err := s.profiles.Get(ctx, swap.RequesterUID)
	if err != nil || !requester.EmailUpdates || requester.Email == "" {
		return
	}
	recipientName := swap.RecipientUID
	if rp, err := s.profiles.Get(ctx, swap.RecipientUID); err == nil && rp.DisplayName != "" {
		recipientName = rp.DisplayName
	}
	if accepted {
		s.mail.SendSwapAccepted(requester.Email, requester.DisplayName, recipientName)
	} else {
		s.mail.SendSwapDeclined(requester.Email, requester.DisplayName, recipientName)
	}
}
