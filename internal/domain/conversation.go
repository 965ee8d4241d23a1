package domain

import (
	"sort"
	"time"
)

// ConversationStatus gates messaging on a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationBlocked  ConversationStatus = "blocked"
	ConversationArchived ConversationStatus = "archived"
)

// Message size limits and the stored preview length.
const (
	MaxMessageLen     = 5000
	MessagePreviewLen = 100
)

// SystemSender is the reserved sender uid for system messages.
const SystemSender = "system"

// Conversation is the message channel spawned by an accepted swap.
type Conversation struct {
	ID              string             `json:"id"`
	ParticipantUIDs []string           `json:"participant_uids"`
	SwapRequestID   string             `json:"swap_request_id"`
	Status          ConversationStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	LastMessage     *MessagePreview    `json:"last_message,omitempty"`
	UnreadCounts    map[string]int     `json:"unread_counts"`
}

// Participant reports whether uid takes part in the conversation.
func (c *Conversation) Participant(uid string) bool {
	for _, p := range c.ParticipantUIDs {
		if p == uid {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart of uid, or "".
func (c *Conversation) OtherParticipant(uid string) string {
	for _, p := range c.ParticipantUIDs {
		if p != uid {
			return p
		}
	}
	return ""
}

// SortedPair returns the two uids in lexicographic order, the canonical
// participant ordering for stored conversations.
func SortedPair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// MessagePreview is the truncated last-message snapshot on a conversation.
type MessagePreview struct {
	Content   string    `json:"content"`
	SenderUID string    `json:"sender_uid"`
	SentAt    time.Time `json:"sent_at"`
}

// MessageType separates user text from system notices.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
)

// Message is a single conversation entry. The sender is implicitly a
// reader of its own message.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderUID      string      `json:"sender_uid"`
	Content        string      `json:"content"`
	SentAt         time.Time   `json:"sent_at"`
	ReadAt         *time.Time  `json:"read_at,omitempty"`
	ReadBy         []string    `json:"read_by"`
	Type           MessageType `json:"type"`
}

// ReadByUser reports whether uid has read the message.
func (m *Message) ReadByUser(uid string) bool {
	for _, r := range m.ReadBy {
		if r == uid {
			return true
		}
	}
	return false
}

// TruncatePreview shortens content to the stored preview length.
func TruncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= MessagePreviewLen {
		return content
	}
	return string(runes[:MessagePreviewLen])
}
