package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/persistence"
)

type conversationsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewConversationsRepo creates the PostgreSQL conversation store.
func NewConversationsRepo(db *sqlx.DB, timeout time.Duration) persistence.ConversationStore {
	return &conversationsRepo{db: db, timeout: timeout}
}

func (r *conversationsRepo) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	doc, err := fetchDoc(ctx, r.db, r.timeout, "conversations", id)
	if err != nil {
		return nil, err
	}
	return decodeConversation(doc)
}

func (r *conversationsRepo) Put(ctx context.Context, c *domain.Conversation) error {
	return upsertDoc(ctx, r.db, r.timeout, "conversations", c.ID, c)
}

// jsonb_exists is the function form of the ? operator; the operator itself
// collides with bindvar parsing.
func (r *conversationsRepo) ListByParticipant(ctx context.Context, uid string, limit int) ([]*domain.Conversation, error) {
	query := `
		SELECT doc FROM conversations
		WHERE jsonb_exists(doc->'participant_uids', $1)
		ORDER BY updated_at DESC
		LIMIT $2`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, uid, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeConversations(docs)
}

func (r *conversationsRepo) ListByPair(ctx context.Context, uidA, uidB string) ([]*domain.Conversation, error) {
	query := `
		SELECT doc FROM conversations
		WHERE jsonb_exists(doc->'participant_uids', $1)
		  AND jsonb_exists(doc->'participant_uids', $2)
		LIMIT $3`
	docs, err := queryDocs(ctx, r.db, r.timeout, query, uidA, uidB, persistence.MaxFetch)
	if err != nil {
		return nil, err
	}
	return decodeConversations(docs)
}

func decodeConversation(doc []byte) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int)
	}
	return &c, nil
}

func decodeConversations(docs [][]byte) ([]*domain.Conversation, error) {
	out := make([]*domain.Conversation, 0, len(docs))
	for _, doc := range docs {
		c, err := decodeConversation(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type messagesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMessagesRepo creates the PostgreSQL message store.
func NewMessagesRepo(db *sqlx.DB, timeout time.Duration) persistence.MessageStore {
	return &messagesRepo{db: db, timeout: timeout}
}

func (r *messagesRepo) Append(ctx context.Context, m *domain.Message) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `INSERT INTO messages (id, conversation_id, doc, sent_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, m.ID, m.ConversationID, doc, m.SentAt); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *messagesRepo) List(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*domain.Message, error) {
	query := `
		SELECT doc FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`
	args := []any{conversationID, clampLimit(limit)}
	if before != nil {
		query = `
			SELECT doc FROM messages
			WHERE conversation_id = $1 AND sent_at < $2
			ORDER BY sent_at DESC
			LIMIT $3`
		args = []any{conversationID, *before, clampLimit(limit)}
	}

	docs, err := queryDocs(ctx, r.db, r.timeout, query, args...)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Message, 0, len(docs))
	for _, doc := range docs {
		var m domain.Message
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *messagesRepo) Update(ctx context.Context, m *domain.Message) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE messages SET doc = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, m.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
