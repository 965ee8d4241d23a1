// Package memstore is the in-process document store: the test double for
// every persistence interface and the default backend when no DATABASE_URL
// is configured. Documents are deep-copied on the way in and out so callers
// never alias stored state.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/persistence"
)

// New builds a fresh store bundle backed by process memory.
func New() *persistence.Stores {
	return &persistence.Stores{
		Profiles:      &profileStore{docs: map[string]*domain.Profile{}},
		Swaps:         &swapStore{docs: map[string]*domain.SwapRequest{}},
		Conversations: &conversationStore{docs: map[string]*domain.Conversation{}},
		Messages:      &messageStore{docs: map[string]*domain.Message{}},
		Ledger:        &ledgerStore{},
		Boosts:        &boostStore{},
		Blocks:        &blockStore{docs: map[string]*domain.Block{}},
		Reports:       &reportStore{},
		Reviews:       &reviewStore{},
		Disputes:      &disputeStore{},
	}
}

// clone round-trips src through JSON into dst. Documents are plain data;
// the only failure mode is a programming error.
func clone[T any](src *T) *T {
	b, err := json.Marshal(src)
	if err != nil {
		panic(err)
	}
	dst := new(T)
	if err := json.Unmarshal(b, dst); err != nil {
		panic(err)
	}
	return dst
}

type profileStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.Profile
}

func (s *profileStore) Get(_ context.Context, uid string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.docs[uid]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return clone(p), nil
}

func (s *profileStore) GetByEmail(_ context.Context, email string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.docs {
		if p.Email == email {
			return clone(p), nil
		}
	}
	return nil, persistence.ErrNotFound
}

func (s *profileStore) Put(_ context.Context, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[p.UID] = clone(p)
	return nil
}

func (s *profileStore) Delete(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[uid]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.docs, uid)
	return nil
}

func (s *profileStore) List(_ context.Context, limit int) ([]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Profile, 0, len(s.docs))
	for _, p := range s.docs {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return capped(out, limit), nil
}

type swapStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.SwapRequest
}

func (s *swapStore) Get(_ context.Context, id string) (*domain.SwapRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.docs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return clone(sr), nil
}

func (s *swapStore) Put(_ context.Context, sr *domain.SwapRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sr.ID] = clone(sr)
	return nil
}

func (s *swapStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *swapStore) ListByRequester(_ context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error) {
	return s.listWhere(func(sr *domain.SwapRequest) bool {
		return sr.RequesterUID == uid && (status == "" || sr.Status == status)
	}, limit), nil
}

func (s *swapStore) ListByRecipient(_ context.Context, uid string, status domain.SwapStatus, limit int) ([]*domain.SwapRequest, error) {
	return s.listWhere(func(sr *domain.SwapRequest) bool {
		return sr.RecipientUID == uid && (status == "" || sr.Status == status)
	}, limit), nil
}

func (s *swapStore) HasPending(_ context.Context, requesterUID, recipientUID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sr := range s.docs {
		if sr.RequesterUID == requesterUID && sr.RecipientUID == recipientUID && sr.Status == domain.SwapPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *swapStore) ListCompletionDue(_ context.Context, now time.Time, limit int) ([]*domain.SwapRequest, error) {
	due := s.listWhere(func(sr *domain.SwapRequest) bool {
		at := sr.Completion.AutoCompleteAt
		return sr.Status == domain.SwapPendingCompletion && at != nil && !at.After(now)
	}, limit)
	sort.Slice(due, func(i, j int) bool {
		return due[i].Completion.AutoCompleteAt.Before(*due[j].Completion.AutoCompleteAt)
	})
	return due, nil
}

func (s *swapStore) listWhere(match func(*domain.SwapRequest) bool, limit int) []*domain.SwapRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.SwapRequest
	for _, sr := range s.docs {
		if match(sr) {
			out = append(out, clone(sr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return capped(out, limit)
}

type conversationStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.Conversation
}

func (s *conversationStore) Get(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.docs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return clone(c), nil
}

func (s *conversationStore) Put(_ context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[c.ID] = clone(c)
	return nil
}

func (s *conversationStore) ListByParticipant(_ context.Context, uid string, limit int) ([]*domain.Conversation, error) {
	return s.listWhere(func(c *domain.Conversation) bool { return c.Participant(uid) }, limit), nil
}

func (s *conversationStore) ListByPair(_ context.Context, uidA, uidB string) ([]*domain.Conversation, error) {
	return s.listWhere(func(c *domain.Conversation) bool {
		return c.Participant(uidA) && c.Participant(uidB)
	}, persistence.MaxFetch), nil
}

func (s *conversationStore) listWhere(match func(*domain.Conversation) bool, limit int) []*domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Conversation
	for _, c := range s.docs {
		if match(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return capped(out, limit)
}

type messageStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.Message
}

func (s *messageStore) Append(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[m.ID] = clone(m)
	return nil
}

func (s *messageStore) List(_ context.Context, conversationID string, limit int, before *time.Time) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Message
	for _, m := range s.docs {
		if m.ConversationID != conversationID {
			continue
		}
		if before != nil && !m.SentAt.Before(*before) {
			continue
		}
		out = append(out, clone(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return capped(out, limit), nil
}

func (s *messageStore) Update(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[m.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.docs[m.ID] = clone(m)
	return nil
}

type ledgerStore struct {
	mu      sync.RWMutex
	points  []*domain.PointsTransaction
	credits []*domain.CreditsTransaction
}

func (s *ledgerStore) AppendPoints(_ context.Context, tx *domain.PointsTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, clone(tx))
	return nil
}

func (s *ledgerStore) AppendCredits(_ context.Context, tx *domain.CreditsTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits = append(s.credits, clone(tx))
	return nil
}

func (s *ledgerStore) ListPoints(_ context.Context, uid string, limit int) ([]*domain.PointsTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.PointsTransaction
	// Newest first: walk the append order backwards.
	for i := len(s.points) - 1; i >= 0; i-- {
		if s.points[i].UID == uid {
			out = append(out, clone(s.points[i]))
		}
	}
	return capped(out, limit), nil
}

func (s *ledgerStore) ListCredits(_ context.Context, uid string, limit int) ([]*domain.CreditsTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.CreditsTransaction
	for i := len(s.credits) - 1; i >= 0; i-- {
		if s.credits[i].UID == uid {
			out = append(out, clone(s.credits[i]))
		}
	}
	return capped(out, limit), nil
}

type boostStore struct {
	mu     sync.RWMutex
	boosts []*domain.ActiveBoost
}

func (s *boostStore) Put(_ context.Context, b *domain.ActiveBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boosts = append(s.boosts, clone(b))
	return nil
}

func (s *boostStore) ListActive(_ context.Context, uid string, now time.Time) ([]*domain.ActiveBoost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ActiveBoost
	for _, b := range s.boosts {
		if b.UID == uid && b.ActiveAt(now) {
			out = append(out, clone(b))
		}
	}
	return out, nil
}

type blockStore struct {
	mu   sync.RWMutex
	docs map[string]*domain.Block
}

func pairKey(blockerUID, blockedUID string) string { return blockerUID + ":" + blockedUID }

func (s *blockStore) Put(_ context.Context, b *domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(b.BlockerUID, b.BlockedUID)
	if _, ok := s.docs[key]; ok {
		return persistence.ErrDuplicate
	}
	s.docs[key] = clone(b)
	return nil
}

func (s *blockStore) Get(_ context.Context, blockerUID, blockedUID string) (*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.docs[pairKey(blockerUID, blockedUID)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return clone(b), nil
}

func (s *blockStore) Delete(_ context.Context, blockerUID, blockedUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(blockerUID, blockedUID)
	if _, ok := s.docs[key]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.docs, key)
	return nil
}

func (s *blockStore) ListByBlocker(_ context.Context, uid string) ([]*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Block
	for _, b := range s.docs {
		if b.BlockerUID == uid {
			out = append(out, clone(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type reportStore struct {
	mu      sync.RWMutex
	reports []*domain.Report
}

func (s *reportStore) Put(_ context.Context, r *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, clone(r))
	return nil
}

func (s *reportStore) ListByReporter(_ context.Context, uid string, limit int) ([]*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Report
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].ReporterUID == uid {
			out = append(out, clone(s.reports[i]))
		}
	}
	return capped(out, limit), nil
}

type reviewStore struct {
	mu      sync.RWMutex
	reviews []*domain.Review
}

func (s *reviewStore) Put(_ context.Context, r *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews {
		if existing.SwapRequestID == r.SwapRequestID && existing.ReviewerUID == r.ReviewerUID {
			return persistence.ErrDuplicate
		}
	}
	s.reviews = append(s.reviews, clone(r))
	return nil
}

func (s *reviewStore) GetBySwapReviewer(_ context.Context, swapID, reviewerUID string) (*domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reviews {
		if r.SwapRequestID == swapID && r.ReviewerUID == reviewerUID {
			return clone(r), nil
		}
	}
	return nil, persistence.ErrNotFound
}

func (s *reviewStore) ListByReviewed(_ context.Context, uid string, limit int) ([]*domain.Review, error) {
	return s.listWhere(func(r *domain.Review) bool { return r.ReviewedUID == uid }, limit), nil
}

func (s *reviewStore) ListByReviewer(_ context.Context, uid string, limit int) ([]*domain.Review, error) {
	return s.listWhere(func(r *domain.Review) bool { return r.ReviewerUID == uid }, limit), nil
}

func (s *reviewStore) ListBySwap(_ context.Context, swapID string) ([]*domain.Review, error) {
	return s.listWhere(func(r *domain.Review) bool { return r.SwapRequestID == swapID }, persistence.MaxFetch), nil
}

func (s *reviewStore) listWhere(match func(*domain.Review) bool, limit int) []*domain.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Review
	for i := len(s.reviews) - 1; i >= 0; i-- {
		if match(s.reviews[i]) {
			out = append(out, clone(s.reviews[i]))
		}
	}
	return capped(out, limit)
}

type disputeStore struct {
	mu       sync.RWMutex
	disputes []*domain.Dispute
}

func (s *disputeStore) Put(_ context.Context, d *domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes = append(s.disputes, clone(d))
	return nil
}

func (s *disputeStore) ListBySwap(_ context.Context, swapID string) ([]*domain.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Dispute
	for _, d := range s.disputes {
		if d.SwapRequestID == swapID {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func capped[T any](items []T, limit int) []T {
	if limit <= 0 || limit > persistence.MaxFetch {
		limit = persistence.MaxFetch
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
