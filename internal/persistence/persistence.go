// Package persistence defines the document-store interfaces the services
// depend on. Two implementations exist: postgres (JSONB collections) and
// memstore (in-process, used in tests and when no DATABASE_URL is set).
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/skillswap/swapd/internal/domain"
)

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrDuplicate is returned when an insert collides with an existing id.
var ErrDuplicate = errors.New("duplicate document")

// MaxFetch bounds candidate sets for list queries that sort in memory.
// Larger collections page through the API, not through wider fetches.
const MaxFetch = 500

// ProfileStore is keyed by uid.
type ProfileStore interface {
	Get(ctx context.Context, uid string) (*domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (*domain.Profile, error)
	// Put inserts or replaces the whole document.
	Put(ctx context.Context, p *domain.Profile) error
	Delete(ctx context.Context, uid string) error
	// List returns up to limit profiles, oldest first. Reindex tooling.
	List(ctx context.Context, limit int) ([]*domain.Profile, error)
}

// SwapStore holds swap request documents.
type SwapStore interface {
	Get(ctx context.Context, id string) (*domain.SwapRequest, error)
	Put(ctx context.Context, s *domain.SwapRequest) error
	// Delete exists for reservation rollback on create.
	Delete(ctx context.Context, id string) error
	ListByRequester(ctx context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error)
	ListByRecipient(ctx context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error)
	// HasPending reports an existing pending request for the ordered pair.
	HasPending(ctx context.Context, requesterUID, recipientUID string) (bool, error)
	// ListCompletionDue returns pending_completion swaps whose
	// auto_complete_at is at or before now.
	ListCompletionDue(ctx context.Context, now time.Time, limit int) ([]*domain.SwapRequest, error)
}

// ConversationStore holds conversation documents.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	Put(ctx context.Context, c *domain.Conversation) error
	ListByParticipant(ctx context.Context, uid string, limit int) ([]*domain.Conversation, error)
	// ListByPair returns conversations containing both uids.
	ListByPair(ctx context.Context, uidA, uidB string) ([]*domain.Conversation, error)
}

// MessageStore holds per-conversation message documents.
type MessageStore interface {
	Append(ctx context.Context, m *domain.Message) error
	// List returns messages for the conversation, sent_at descending,
	// optionally only those strictly before the cursor.
	List(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*domain.Message, error)
	// Update replaces a message document (read receipts).
	Update(ctx context.Context, m *domain.Message) error
}

// LedgerStore holds the append-only transaction records.
type LedgerStore interface {
	AppendPoints(ctx context.Context, tx *domain.PointsTransaction) error
	AppendCredits(ctx context.Context, tx *domain.CreditsTransaction) error
	ListPoints(ctx context.Context, uid string, limit int) ([]*domain.PointsTransaction, error)
	ListCredits(ctx context.Context, uid string, limit int) ([]*domain.CreditsTransaction, error)
}

// BoostStore holds purchased boosts.
type BoostStore interface {
	Put(ctx context.Context, b *domain.ActiveBoost) error
	// ListActive returns boosts covering the given instant.
	ListActive(ctx context.Context, uid string, now time.Time) ([]*domain.ActiveBoost, error)
}

// BlockStore holds one-directional blocks, unique per ordered pair.
type BlockStore interface {
	// Put fails with ErrDuplicate when the ordered pair already exists.
	Put(ctx context.Context, b *domain.Block) error
	Get(ctx context.Context, blockerUID, blockedUID string) (*domain.Block, error)
	Delete(ctx context.Context, blockerUID, blockedUID string) error
	ListByBlocker(ctx context.Context, uid string) ([]*domain.Block, error)
}

// ReportStore holds user reports.
type ReportStore interface {
	Put(ctx context.Context, r *domain.Report) error
	ListByReporter(ctx context.Context, uid string, limit int) ([]*domain.Report, error)
}

// ReviewStore holds reviews, unique per (swap, reviewer).
type ReviewStore interface {
	Put(ctx context.Context, r *domain.Review) error
	GetBySwapReviewer(ctx context.Context, swapID, reviewerUID string) (*domain.Review, error)
	ListByReviewed(ctx context.Context, uid string, limit int) ([]*domain.Review, error)
	ListByReviewer(ctx context.Context, uid string, limit int) ([]*domain.Review, error)
	ListBySwap(ctx context.Context, swapID string) ([]*domain.Review, error)
}

// DisputeStore holds escalation records for out-of-band review.
type DisputeStore interface {
	Put(ctx context.Context, d *domain.Dispute) error
	ListBySwap(ctx context.Context, swapID string) ([]*domain.Dispute, error)
}

// Stores bundles every collection for wiring.
type Stores struct {
	Profiles      ProfileStore
	Swaps         SwapStore
	Conversations ConversationStore
	Messages      MessageStore
	Ledger        LedgerStore
	Boosts        BoostStore
	Blocks        BlockStore
	Reports       ReportStore
	Reviews       ReviewStore
	Disputes      DisputeStore
}
