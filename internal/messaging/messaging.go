// Package messaging serves the conversations spawned by accepted swaps:
// paged listings, sends gated on the owning swap still being in progress,
// cursor-paged history, and read receipts. New-message emails are debounced
// per recipient and conversation.
package messaging

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
	"github.com/skillswap/swapd/internal/email"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/persistence"
)

// Listing bounds. Conversations page small; message history pages deeper.
const (
	DefaultConversationLimit = 20
	MaxConversationLimit     = 50
	DefaultMessageLimit      = 50
	MaxMessageLimit          = 100
)

// ParticipantSummary is the embedded counterpart card on a listing row.
type ParticipantSummary struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// ConversationView is one row of the conversations listing.
type ConversationView struct {
	ID               string                    `json:"id"`
	SwapRequestID    string                    `json:"swap_request_id"`
	Status           domain.ConversationStatus `json:"status"`
	OtherParticipant *ParticipantSummary       `json:"other_participant,omitempty"`
	LastMessage      *domain.MessagePreview    `json:"last_message,omitempty"`
	UnreadCount      int                       `json:"unread_count"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// ConversationList is the paged listing envelope.
type ConversationList struct {
	Conversations []ConversationView `json:"conversations"`
	Total         int                `json:"total"`
	HasMore       bool               `json:"has_more"`
}

// Service owns conversation listings, sends, history, and read receipts.
type Service struct {
	convs    persistence.ConversationStore
	msgs     persistence.MessageStore
	swaps    persistence.SwapStore
	profiles persistence.ProfileStore
	mail     *email.Service
	locks    *kmutex.KMutex
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the messaging service. mail may be nil.
func NewService(
	stores *persistence.Stores,
	mail *email.Service,
	locks *kmutex.KMutex,
	log zerolog.Logger,
) *Service {
	return &Service{
		convs:    stores.Conversations,
		msgs:     stores.Messages,
		swaps:    stores.Swaps,
		profiles: stores.Profiles,
		mail:     mail,
		locks:    locks,
		log:      log.With().Str("component", "messaging").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func convKey(id string) string { return "conv:" + id }

// ListConversations returns uid's active conversations, most recently
// touched first, with the counterpart's card and uid's unread count.
func (s *Service) ListConversations(ctx context.Context, uid string, limit, offset int) (*ConversationList, error) {
	if uid == "" {
		return nil, apperr.Validationf("uid is required")
	}
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	if limit > MaxConversationLimit {
		limit = MaxConversationLimit
	}
	if offset < 0 {
		offset = 0
	}

	all, err := s.convs.ListByParticipant(ctx, uid, persistence.MaxFetch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list conversations for %s", uid)
	}
	active := all[:0]
	for _, c := range all {
		if c.Status == domain.ConversationActive {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].UpdatedAt.After(active[j].UpdatedAt)
	})

	total := len(active)
	page := active
	if offset >= total {
		page = nil
	} else {
		page = active[offset:]
		if len(page) > limit {
			page = page[:limit]
		}
	}

	out := &ConversationList{
		Conversations: make([]ConversationView, 0, len(page)),
		Total:         total,
		HasMore:       offset+len(page) < total,
	}
	for _, c := range page {
		out.Conversations = append(out.Conversations, s.view(ctx, c, uid))
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, c *domain.Conversation, uid string) ConversationView {
	v := ConversationView{
		ID:            c.ID,
		SwapRequestID: c.SwapRequestID,
		Status:        c.Status,
		LastMessage:   c.LastMessage,
		UnreadCount:   c.UnreadCounts[uid],
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	otherUID := c.OtherParticipant(uid)
	if otherUID == "" {
		return v
	}
	v.OtherParticipant = &ParticipantSummary{UID: otherUID, DisplayName: otherUID}
	if p, err := s.profiles.Get(ctx, otherUID); err == nil {
		v.OtherParticipant.DisplayName = p.DisplayName
		v.OtherParticipant.PhotoURL = p.PhotoURL
	}
	return v
}

// GetConversation returns one conversation as seen by uid, participants
// only.
func (s *Service) GetConversation(ctx context.Context, conversationID, uid string) (*ConversationView, error) {
	if conversationID == "" || uid == "" {
		return nil, apperr.Validationf("conversation id and uid are required")
	}
	conv, err := s.loadForParticipant(ctx, conversationID, uid)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, conv, uid)
	return &v, nil
}

// SendMessage appends one message. The conversation must not be blocked
// and the owning swap must still be accepted; completion and disputes
// close the channel for new messages.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderUID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if conversationID == "" || senderUID == "" {
		return nil, apperr.Validationf("conversation id and sender uid are required")
	}
	if content == "" {
		return nil, apperr.Validationf("message content is required")
	}
	if len([]rune(content)) > domain.MaxMessageLen {
		return nil, apperr.Validationf("message content must be at most %d characters", domain.MaxMessageLen)
	}

	s.locks.Lock(convKey(conversationID))
	defer s.locks.Unlock(convKey(conversationID))

	conv, err := s.loadForParticipant(ctx, conversationID, senderUID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationBlocked {
		return nil, apperr.Forbiddenf("this conversation is no longer active")
	}
	swap, err := s.swaps.Get(ctx, conv.SwapRequestID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "load swap %s for conversation %s", conv.SwapRequestID, conv.ID)
	}
	if swap.Status != domain.SwapAccepted {
		return nil, apperr.Conflictf("messages are only allowed while the swap is in progress")
	}

	now := s.now()
	msg := &domain.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		SenderUID:      senderUID,
		Content:        content,
		SentAt:         now,
		ReadBy:         []string{senderUID},
		Type:           domain.MessageText,
	}
	if err := s.msgs.Append(ctx, msg); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "append message to %s", conv.ID)
	}

	otherUID := conv.OtherParticipant(senderUID)
	conv.LastMessage = &domain.MessagePreview{
		Content:   domain.TruncatePreview(content),
		SenderUID: senderUID,
		SentAt:    now,
	}
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = map[string]int{}
	}
	conv.UnreadCounts[otherUID]++
	conv.UpdatedAt = now
	if err := s.convs.Put(ctx, conv); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "update conversation %s", conv.ID)
	}

	s.notifyRecipient(ctx, conv, senderUID, otherUID, msg)
	return msg, nil
}

// GetMessages returns history, newest first. The cursor pages strictly
// backwards: pass the oldest sent_at already seen. Blocked conversations
// stay readable.
func (s *Service) GetMessages(ctx context.Context, conversationID, uid string, limit int, before *time.Time) ([]*domain.Message, error) {
	if conversationID == "" || uid == "" {
		return nil, apperr.Validationf("conversation id and uid are required")
	}
	if _, err := s.loadForParticipant(ctx, conversationID, uid); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}
	msgs, err := s.msgs.List(ctx, conversationID, limit, before)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list messages for %s", conversationID)
	}
	return msgs, nil
}

// MarkRead stamps uid on every unread incoming message and zeroes uid's
// unread counter. Returns how many messages were newly marked.
func (s *Service) MarkRead(ctx context.Context, conversationID, uid string) (int, error) {
	if conversationID == "" || uid == "" {
		return 0, apperr.Validationf("conversation id and uid are required")
	}

	s.locks.Lock(convKey(conversationID))
	defer s.locks.Unlock(convKey(conversationID))

	conv, err := s.loadForParticipant(ctx, conversationID, uid)
	if err != nil {
		return 0, err
	}

	msgs, err := s.msgs.List(ctx, conversationID, persistence.MaxFetch, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "list messages for %s", conversationID)
	}
	now := s.now()
	marked := 0
	for _, m := range msgs {
		if m.SenderUID == uid || m.ReadByUser(uid) {
			continue
		}
		m.ReadBy = append(m.ReadBy, uid)
		if m.ReadAt == nil {
			m.ReadAt = &now
		}
		if err := s.msgs.Update(ctx, m); err != nil {
			return marked, apperr.Wrap(apperr.Internal, err, "mark message %s read", m.ID)
		}
		marked++
	}

	if conv.UnreadCounts[uid] != 0 {
		conv.UnreadCounts[uid] = 0
		if err := s.convs.Put(ctx, conv); err != nil {
			return marked, apperr.Wrap(apperr.Internal, err, "reset unread count on %s", conv.ID)
		}
	}
	return marked, nil
}

// UnreadTotal sums uid's unread counters across active conversations.
func (s *Service) UnreadTotal(ctx context.Context, uid string) (int, error) {
	if uid == "" {
		return 0, apperr.Validationf("uid is required")
	}
	convs, err := s.convs.ListByParticipant(ctx, uid, persistence.MaxFetch)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "list conversations for %s", uid)
	}
	total := 0
	for _, c := range convs {
		if c.Status == domain.ConversationActive {
			total += c.UnreadCounts[uid]
		}
	}
	return total, nil
}

func (s *Service) loadForParticipant(ctx context.Context, conversationID, uid string) (*domain.Conversation, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("conversation not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load conversation %s", conversationID)
	}
	if !conv.Participant(uid) {
		return nil, apperr.Forbiddenf("you are not a participant in this conversation")
	}
	return conv, nil
}

func (s *Service) notifyRecipient(ctx context.Context, conv *domain.Conversation, senderUID, otherUID string, msg *domain.Message) {
	if s.mail == nil || otherUID == "" {
		return
	}
	other, err := s.profiles.Get(ctx, otherUID)
	if err != nil || !other.EmailUpdates || other.Email == "" {
		return
	}
	senderName := senderUID
	if sp, err := s.profiles.Get(ctx, senderUID); err == nil && sp.DisplayName != "" {
		senderName = sp.DisplayName
	}
	s.mail.SendNewMessage(other.Email, otherUID, senderName, conv.ID, domain.TruncatePreview(msg.Content))
}
