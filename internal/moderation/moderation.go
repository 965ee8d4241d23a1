// Package moderation implements one-directional blocks, their effect on
// shared conversations, and user reports. Reports are record-only; review
// happens out of band.
package moderation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/persistence"
)

// ReportInput is the client payload for a new report.
type ReportInput struct {
	ReportedUID    string              `json:"reported_uid"`
	ConversationID string              `json:"conversation_id,omitempty"`
	MessageID      string              `json:"message_id,omitempty"`
	Reason         domain.ReportReason `json:"reason"`
	Details        string              `json:"details"`
}

// Service owns blocks and reports.
type Service struct {
	blocks   persistence.BlockStore
	reports  persistence.ReportStore
	convs    persistence.ConversationStore
	profiles persistence.ProfileStore
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the moderation service.
func NewService(stores *persistence.Stores, log zerolog.Logger) *Service {
	return &Service{
		blocks:   stores.Blocks,
		reports:  stores.Reports,
		convs:    stores.Conversations,
		profiles: stores.Profiles,
		log:      log.With().Str("component", "moderation").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Block records blocker → blocked and closes every shared conversation.
// The block is one-directional; the reverse pair is a separate block.
func (s *Service) Block(ctx context.Context, blockerUID, blockedUID, reason string) (*domain.Block, error) {
	if blockerUID == "" || blockedUID == "" {
		return nil, apperr.Validationf("blocker and blocked uids are required")
	}
	if blockerUID == blockedUID {
		return nil, apperr.Validationf("cannot block yourself")
	}
	if _, err := s.profiles.Get(ctx, blockedUID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("user not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load profile %s", blockedUID)
	}

	block := &domain.Block{
		ID:         s.newID(),
		BlockerUID: blockerUID,
		BlockedUID: blockedUID,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  s.now(),
	}
	if err := s.blocks.Put(ctx, block); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return nil, apperr.Conflictf("user is already blocked")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "store block %s->%s", blockerUID, blockedUID)
	}

	if err := s.setSharedConversations(ctx, blockerUID, blockedUID, domain.ConversationBlocked); err != nil {
		// The block itself holds; conversation status is derived and a
		// retry of the cascade is safe.
		s.log.Error().Str("blocker", blockerUID).Str("blocked", blockedUID).Err(err).
			Msg("blocking shared conversations failed")
	}

	s.log.Info().Str("blocker", blockerUID).Str("blocked", blockedUID).Msg("user blocked")
	return block, nil
}

// Unblock removes the block and reopens shared conversations, unless the
// other side still blocks back.
func (s *Service) Unblock(ctx context.Context, blockerUID, blockedUID string) error {
	if blockerUID == "" || blockedUID == "" {
		return apperr.Validationf("blocker and blocked uids are required")
	}
	if _, err := s.blocks.Get(ctx, blockerUID, blockedUID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return apperr.NotFoundf("block not found")
		}
		return apperr.Wrap(apperr.Internal, err, "load block %s->%s", blockerUID, blockedUID)
	}
	if err := s.blocks.Delete(ctx, blockerUID, blockedUID); err != nil {
		return apperr.Wrap(apperr.Internal, err, "delete block %s->%s", blockerUID, blockedUID)
	}

	reverse := true
	if _, err := s.blocks.Get(ctx, blockedUID, blockerUID); err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			return apperr.Wrap(apperr.Internal, err, "check reverse block %s->%s", blockedUID, blockerUID)
		}
		reverse = false
	}
	if reverse {
		s.log.Info().Str("blocker", blockerUID).Str("blocked", blockedUID).
			Msg("user unblocked, conversations stay closed by reverse block")
		return nil
	}

	if err := s.reopenBlockedConversations(ctx, blockerUID, blockedUID); err != nil {
		s.log.Error().Str("blocker", blockerUID).Str("blocked", blockedUID).Err(err).
			Msg("reopening shared conversations failed")
	}
	s.log.Info().Str("blocker", blockerUID).Str("blocked", blockedUID).Msg("user unblocked")
	return nil
}

func (s *Service) setSharedConversations(ctx context.Context, a, b string, status domain.ConversationStatus) error {
	convs, err := s.convs.ListByPair(ctx, a, b)
	if err != nil {
		return err
	}
	for _, c := range convs {
		if c.Status == status {
			continue
		}
		c.Status = status
		c.UpdatedAt = s.now()
		if err := s.convs.Put(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) reopenBlockedConversations(ctx context.Context, a, b string) error {
	convs, err := s.convs.ListByPair(ctx, a, b)
	if err != nil {
		return err
	}
	for _, c := range convs {
		if c.Status != domain.ConversationBlocked {
			continue
		}
		c.Status = domain.ConversationActive
		c.UpdatedAt = s.now()
		if err := s.convs.Put(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Report records a complaint. Nothing else changes for either user.
func (s *Service) Report(ctx context.Context, reporterUID string, in ReportInput) (*domain.Report, error) {
	if reporterUID == "" || in.ReportedUID == "" {
		return nil, apperr.Validationf("reporter and reported uids are required")
	}
	if reporterUID == in.ReportedUID {
		return nil, apperr.Validationf("cannot report yourself")
	}
	if !domain.ValidReportReason(string(in.Reason)) {
		return nil, apperr.Validationf("unknown report reason %q", in.Reason)
	}
	details := strings.TrimSpace(in.Details)
	if n := len([]rune(details)); n < domain.MinReportDetails || n > domain.MaxReportDetails {
		return nil, apperr.Validationf("details must be between %d and %d characters",
			domain.MinReportDetails, domain.MaxReportDetails)
	}
	if _, err := s.profiles.Get(ctx, in.ReportedUID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("user not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load profile %s", in.ReportedUID)
	}

	report := &domain.Report{
		ID:             s.newID(),
		ReporterUID:    reporterUID,
		ReportedUID:    in.ReportedUID,
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		Reason:         in.Reason,
		Details:        details,
		Status:         "pending",
		CreatedAt:      s.now(),
	}
	if err := s.reports.Put(ctx, report); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store report")
	}

	s.log.Info().Str("reporter", reporterUID).Str("reported", in.ReportedUID).
		Str("reason", string(in.Reason)).Msg("report filed")
	return report, nil
}

// ListBlocked returns uid's blocks, newest first.
func (s *Service) ListBlocked(ctx context.Context, uid string) ([]*domain.Block, error) {
	if uid == "" {
		return nil, apperr.Validationf("uid is required")
	}
	blocks, err := s.blocks.ListByBlocker(ctx, uid)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list blocks for %s", uid)
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].CreatedAt.After(blocks[j].CreatedAt)
	})
	return blocks, nil
}

// MyReports returns reports filed by uid, newest first.
func (s *Service) MyReports(ctx context.Context, uid string, limit int) ([]*domain.Report, error) {
	if uid == "" {
		return nil, apperr.Validationf("uid is required")
	}
	if limit <= 0 || limit > persistence.MaxFetch {
		limit = persistence.MaxFetch
	}
	reports, err := s.reports.ListByReporter(ctx, uid, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list reports for %s", uid)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// IsBlocked reports whether either direction of a block exists between the
// two users.
func (s *Service) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	if _, err := s.blocks.Get(ctx, a, b); err == nil {
		return true, nil
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return false, apperr.Wrap(apperr.Internal, err, "check block %s->%s", a, b)
	}
	if _, err := s.blocks.Get(ctx, b, a); err == nil {
		return true, nil
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return false, apperr.Wrap(apperr.Internal, err, "check block %s->%s", b, a)
	}
	return false, nil
}
