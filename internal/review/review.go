// Package review handles post-completion ratings: one review per
// (swap, reviewer), rating aggregates pushed onto the reviewed profile,
// and a small credit bonus for the reviewed user.
package review

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/economy"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/persistence"
)

// DefaultListLimit bounds review listings when the caller passes none.
const DefaultListLimit = 20

// CreateInput is the client payload for a new review.
type CreateInput struct {
	SwapRequestID string `json:"swap_request_id"`
	Rating        int    `json:"rating"`
	ReviewText    string `json:"review_text,omitempty"`
}

// View is a review enriched with the reviewer's public identity.
type View struct {
	*domain.Review
	ReviewerName  string `json:"reviewer_name,omitempty"`
	ReviewerPhoto string `json:"reviewer_photo,omitempty"`
}

// List is a paginated review listing with the aggregate rating over the
// whole result set, not just the page.
type List struct {
	Reviews       []*View `json:"reviews"`
	Total         int     `json:"total"`
	AverageRating float64 `json:"average_rating"`
}

// SwapReviews reports both parties' reviews on one swap and whether the
// caller may still add theirs.
type SwapReviews struct {
	SwapRequestID   string  `json:"swap_request_id"`
	Reviews         []*View `json:"reviews"`
	UserHasReviewed bool    `json:"user_has_reviewed"`
	CanReview       bool    `json:"can_review"`
}

// Service owns review writes and the derived rating fields on profiles.
type Service struct {
	reviews  persistence.ReviewStore
	swaps    persistence.SwapStore
	profiles persistence.ProfileStore
	economy  *economy.Service
	locks    *kmutex.KMutex
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the review service. The keyed mutex must be the shared
// instance so rating updates serialise with other profile writes.
func NewService(stores *persistence.Stores, eco *economy.Service, locks *kmutex.KMutex, log zerolog.Logger) *Service {
	return &Service{
		reviews:  stores.Reviews,
		swaps:    stores.Swaps,
		profiles: stores.Profiles,
		economy:  eco,
		locks:    locks,
		log:      log.With().Str("component", "review").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func reviewKey(swapID, uid string) string { return "review:" + swapID + ":" + uid }

// Create records a review on a completed swap. The reviewed user is the
// other participant; the skill recorded is what the reviewer received.
func (s *Service) Create(ctx context.Context, reviewerUID string, in CreateInput) (*View, error) {
	if reviewerUID == "" {
		return nil, apperr.Validationf("reviewer uid is required")
	}
	if in.SwapRequestID == "" {
		return nil, apperr.Validationf("swap_request_id is required")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Validationf("rating must be between 1 and 5, got %d", in.Rating)
	}
	text := strings.TrimSpace(in.ReviewText)
	if len([]rune(text)) > domain.MaxReviewTextLen {
		return nil, apperr.Validationf("review text exceeds %d characters", domain.MaxReviewTextLen)
	}

	swap, err := s.swaps.Get(ctx, in.SwapRequestID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("swap request %s not found", in.SwapRequestID)
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load swap %s", in.SwapRequestID)
	}
	if !swap.Participant(reviewerUID) {
		return nil, apperr.Forbiddenf("you can only review swaps you participated in")
	}
	if swap.Status != domain.SwapCompleted {
		return nil, apperr.Conflictf("can only review completed swaps")
	}

	// One review per (swap, reviewer); the lock closes the
	// check-then-insert race.
	s.locks.Lock(reviewKey(swap.ID, reviewerUID))
	defer s.locks.Unlock(reviewKey(swap.ID, reviewerUID))

	if _, err := s.reviews.GetBySwapReviewer(ctx, swap.ID, reviewerUID); err == nil {
		return nil, apperr.Conflictf("you have already reviewed this swap")
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return nil, apperr.Wrap(apperr.Internal, err, "check existing review")
	}

	hours := swap.Completion.FinalHours
	if hours <= 0 {
		hours = 1.0
	}

	review := &domain.Review{
		ID:             s.newID(),
		SwapRequestID:  swap.ID,
		ReviewerUID:    reviewerUID,
		ReviewedUID:    swap.OtherParty(reviewerUID),
		Rating:         in.Rating,
		ReviewText:     text,
		SkillExchanged: skillReceived(swap, reviewerUID),
		HoursExchanged: hours,
		CreatedAt:      s.now(),
	}
	if err := s.reviews.Put(ctx, review); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return nil, apperr.Conflictf("you have already reviewed this swap")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "store review")
	}

	if err := s.refreshRatingStats(ctx, review.ReviewedUID); err != nil {
		s.log.Warn().Str("uid", review.ReviewedUID).Err(err).Msg("rating stats update failed")
	}

	bonus := s.economy.ReviewBonusCredits(hours, in.Rating)
	if _, err := s.economy.AwardCredits(ctx, review.ReviewedUID, bonus,
		domain.ReasonReviewBonus, swap.ID, review.SkillExchanged); err != nil {
		s.log.Warn().Str("uid", review.ReviewedUID).Int("credits", bonus).Err(err).
			Msg("review bonus award failed")
	}

	s.log.Info().Str("swap_id", swap.ID).Str("reviewer", reviewerUID).
		Str("reviewed", review.ReviewedUID).Int("rating", in.Rating).Msg("review submitted")
	return s.view(ctx, review), nil
}

// skillReceived names what the reviewer got out of the swap: the requester
// received their stated need, the recipient received the requester's offer.
func skillReceived(swap *domain.SwapRequest, reviewerUID string) string {
	if reviewerUID == swap.RequesterUID {
		return swap.RequesterNeed
	}
	return swap.RequesterOffer
}

// refreshRatingStats recomputes the reviewed user's average rating and
// review count from all stored reviews.
func (s *Service) refreshRatingStats(ctx context.Context, uid string) error {
	reviews, err := s.reviews.ListByReviewed(ctx, uid, persistence.MaxFetch)
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		return nil
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := roundTo2(float64(sum) / float64(len(reviews)))

	s.locks.Lock("profile:" + uid)
	defer s.locks.Unlock("profile:" + uid)

	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return err
	}
	p.AverageRating = avg
	p.ReviewCount = len(reviews)
	p.UpdatedAt = s.now()
	return s.profiles.Put(ctx, p)
}

// Received returns reviews about uid, newest first, with the average over
// all of them.
func (s *Service) Received(ctx context.Context, uid string, limit, offset int) (*List, error) {
	reviews, err := s.reviews.ListByReviewed(ctx, uid, persistence.MaxFetch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list reviews for %s", uid)
	}
	return s.page(ctx, reviews, limit, offset), nil
}

// Given returns reviews written by uid, newest first.
func (s *Service) Given(ctx context.Context, uid string, limit, offset int) (*List, error) {
	reviews, err := s.reviews.ListByReviewer(ctx, uid, persistence.MaxFetch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list reviews by %s", uid)
	}
	return s.page(ctx, reviews, limit, offset), nil
}

// BySwap returns both parties' reviews on one swap, participant-only.
func (s *Service) BySwap(ctx context.Context, swapID, uid string) (*SwapReviews, error) {
	swap, err := s.swaps.Get(ctx, swapID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("swap request %s not found", swapID)
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load swap %s", swapID)
	}
	if !swap.Participant(uid) {
		return nil, apperr.Forbiddenf("you can only view reviews for swaps you participated in")
	}

	reviews, err := s.reviews.ListBySwap(ctx, swapID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list reviews for swap %s", swapID)
	}

	out := &SwapReviews{SwapRequestID: swapID, Reviews: make([]*View, 0, len(reviews))}
	for _, r := range reviews {
		out.Reviews = append(out.Reviews, s.view(ctx, r))
		if r.ReviewerUID == uid {
			out.UserHasReviewed = true
		}
	}
	out.CanReview = swap.Status == domain.SwapCompleted && !out.UserHasReviewed
	return out, nil
}

// HasReviewed reports whether uid already reviewed the swap.
func (s *Service) HasReviewed(ctx context.Context, swapID, uid string) (bool, error) {
	if _, err := s.reviews.GetBySwapReviewer(ctx, swapID, uid); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.Internal, err, "check review")
	}
	return true, nil
}

func (s *Service) page(ctx context.Context, reviews []*domain.Review, limit, offset int) *List {
	sort.Slice(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})
	total := len(reviews)

	avg := 0.0
	if total > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rating
		}
		avg = roundTo2(float64(sum) / float64(total))
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := &List{Reviews: make([]*View, 0, end-offset), Total: total, AverageRating: avg}
	for _, r := range reviews[offset:end] {
		out.Reviews = append(out.Reviews, s.view(ctx, r))
	}
	return out
}

// view attaches the reviewer's display name and photo; a missing profile
// leaves them empty.
func (s *Service) view(ctx context.Context, r *domain.Review) *View {
	v := &View{Review: r}
	if p, err := s.profiles.Get(ctx, r.ReviewerUID); err == nil {
		v.ReviewerName = p.DisplayName
		v.ReviewerPhoto = p.PhotoURL
	}
	return v
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
