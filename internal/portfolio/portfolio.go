// Package portfolio derives per-user statistics from completed swaps and
// received reviews: verified skills with exchange counts and ratings,
// recent activity, and the headline counters.
package portfolio

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/persistence"
	"github.com/skillswap/swapd/internal/review"
)

// Listing bounds. Callers outside these ranges are clamped, matching the
// query validation on the HTTP surface.
const (
	DefaultSwapLimit   = 10
	MaxSwapLimit       = 50
	DefaultReviewLimit = 5
	MaxReviewLimit     = 20
)

// driftTolerance is how far the stored hours counter may lag the computed
// total before the profile is rewritten.
const driftTolerance = 0.1

// Options selects the optional portfolio sections.
type Options struct {
	IncludeSwaps   bool
	IncludeReviews bool
	SwapLimit      int
	ReviewLimit    int
}

// DefaultOptions returns the portfolio defaults: both sections included.
func DefaultOptions() Options {
	return Options{IncludeSwaps: true, IncludeReviews: true,
		SwapLimit: DefaultSwapLimit, ReviewLimit: DefaultReviewLimit}
}

// VerifiedSkill is a skill with exchange history behind it.
type VerifiedSkill struct {
	SkillName      string     `json:"skill_name"`
	TimesExchanged int        `json:"times_exchanged"`
	TotalHours     float64    `json:"total_hours"`
	AverageRating  float64    `json:"average_rating"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
}

// SwapSummary is one completed swap from the portfolio owner's viewpoint.
type SwapSummary struct {
	SwapRequestID  string    `json:"swap_request_id"`
	PartnerUID     string    `json:"partner_uid"`
	PartnerName    string    `json:"partner_name,omitempty"`
	PartnerPhoto   string    `json:"partner_photo,omitempty"`
	SkillTaught    string    `json:"skill_taught,omitempty"`
	SkillLearned   string    `json:"skill_learned,omitempty"`
	HoursExchanged float64   `json:"hours_exchanged"`
	RatingGiven    int       `json:"rating_given,omitempty"`
	RatingReceived int       `json:"rating_received,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Portfolio is the full aggregated view of one user's exchange history.
type Portfolio struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`

	SwapCredits         int     `json:"swap_credits"`
	SwapPoints          int     `json:"swap_points"`
	TotalSwapsCompleted int     `json:"total_swaps_completed"`
	TotalHoursTraded    float64 `json:"total_hours_traded"`
	AverageRating       float64 `json:"average_rating"`
	ReviewCount         int     `json:"review_count"`
	ResponseRate        float64 `json:"response_rate"`

	VerifiedSkillsTaught  []VerifiedSkill `json:"verified_skills_taught"`
	VerifiedSkillsLearned []VerifiedSkill `json:"verified_skills_learned"`
	RecentSwaps           []SwapSummary   `json:"recent_swaps"`
	RecentReviews         []*review.View  `json:"recent_reviews"`

	MemberSince time.Time `json:"member_since"`
}

// Stats is the lightweight counter projection.
type Stats struct {
	UID                string  `json:"uid"`
	SwapCredits        int     `json:"swap_credits"`
	SwapPoints         int     `json:"swap_points"`
	CompletedSwapCount int     `json:"completed_swap_count"`
	TotalHoursTraded   float64 `json:"total_hours_traded"`
	AverageRating      float64 `json:"average_rating"`
	ReviewCount        int     `json:"review_count"`
}

// Service assembles portfolios from the profile, swap, and review stores.
type Service struct {
	profiles persistence.ProfileStore
	swaps    persistence.SwapStore
	reviews  persistence.ReviewStore
	rsvc     *review.Service
	locks    *kmutex.KMutex
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires the portfolio service. The review service supplies
// enriched review views for the recent-reviews section.
func NewService(stores *persistence.Stores, rsvc *review.Service, locks *kmutex.KMutex, log zerolog.Logger) *Service {
	return &Service{
		profiles: stores.Profiles,
		swaps:    stores.Swaps,
		reviews:  stores.Reviews,
		rsvc:     rsvc,
		locks:    locks,
		log:      log.With().Str("component", "portfolio").Logger(),
		now:      time.Now,
	}
}

// Get builds the portfolio for uid.
func (s *Service) Get(ctx context.Context, uid string, opts Options) (*Portfolio, error) {
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("user not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load profile %s", uid)
	}

	opts.SwapLimit = clamp(opts.SwapLimit, DefaultSwapLimit, MaxSwapLimit)
	opts.ReviewLimit = clamp(opts.ReviewLimit, DefaultReviewLimit, MaxReviewLimit)

	swaps, err := s.completedSwaps(ctx, uid)
	if err != nil {
		return nil, err
	}

	taught := map[string]*skillAgg{}
	learned := map[string]*skillAgg{}
	summaries := make([]SwapSummary, 0, len(swaps))
	totalHours := 0.0

	for _, sw := range swaps {
		sum, err := s.summarise(ctx, uid, sw)
		if err != nil {
			return nil, err
		}
		totalHours += sum.HoursExchanged

		if sum.SkillTaught != "" {
			accumulate(taught, sum.SkillTaught, sum.HoursExchanged, sum.RatingReceived, sum.CompletedAt)
		}
		if sum.SkillLearned != "" {
			accumulate(learned, sum.SkillLearned, sum.HoursExchanged, sum.RatingGiven, sum.CompletedAt)
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CompletedAt.After(summaries[j].CompletedAt)
	})
	if len(summaries) > opts.SwapLimit {
		summaries = summaries[:opts.SwapLimit]
	}

	// The stored counters are maintained by settlement; recompute here and
	// repair the profile when they have drifted.
	p = s.healCounters(ctx, p, len(swaps), totalHours)

	out := &Portfolio{
		UID:                   uid,
		DisplayName:           p.DisplayName,
		PhotoURL:              p.PhotoURL,
		SwapCredits:           p.SwapCredits,
		SwapPoints:            p.SwapPoints,
		TotalSwapsCompleted:   p.CompletedSwapCount,
		TotalHoursTraded:      roundTo1(p.TotalHoursTraded),
		AverageRating:         roundTo2(p.AverageRating),
		ReviewCount:           p.ReviewCount,
		ResponseRate:          p.ResponseRate,
		VerifiedSkillsTaught:  flatten(taught),
		VerifiedSkillsLearned: flatten(learned),
		RecentSwaps:           []SwapSummary{},
		RecentReviews:         []*review.View{},
		MemberSince:           p.CreatedAt,
	}
	if opts.IncludeSwaps {
		out.RecentSwaps = summaries
	}
	if opts.IncludeReviews {
		recent, err := s.rsvc.Received(ctx, uid, opts.ReviewLimit, 0)
		if err != nil {
			return nil, err
		}
		out.RecentReviews = recent.Reviews
	}
	return out, nil
}

// GetStats returns the stored counters without any aggregation work.
func (s *Service) GetStats(ctx context.Context, uid string) (*Stats, error) {
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("user not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load profile %s", uid)
	}
	return &Stats{
		UID:                uid,
		SwapCredits:        p.SwapCredits,
		SwapPoints:         p.SwapPoints,
		CompletedSwapCount: p.CompletedSwapCount,
		TotalHoursTraded:   p.TotalHoursTraded,
		AverageRating:      p.AverageRating,
		ReviewCount:        p.ReviewCount,
	}, nil
}

// completedSwaps returns uid's completed swaps in both roles.
func (s *Service) completedSwaps(ctx context.Context, uid string) ([]*domain.SwapRequest, error) {
	asRequester, err := s.swaps.ListByRequester(ctx, uid, domain.SwapCompleted, persistence.MaxFetch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list completed swaps for %s", uid)
	}
	asRecipient, err := s.swaps.ListByRecipient(ctx, uid, domain.SwapCompleted, persistence.MaxFetch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list completed swaps for %s", uid)
	}
	return append(asRequester, asRecipient...), nil
}

// summarise renders one completed swap from uid's side: which skill they
// taught, which they learned, and both review ratings if present.
func (s *Service) summarise(ctx context.Context, uid string, sw *domain.SwapRequest) (SwapSummary, error) {
	isRequester := sw.RequesterUID == uid

	sum := SwapSummary{
		SwapRequestID:  sw.ID,
		PartnerUID:     sw.OtherParty(uid),
		HoursExchanged: sw.Completion.FinalHours,
		CompletedAt:    sw.UpdatedAt,
	}
	if sum.HoursExchanged <= 0 {
		sum.HoursExchanged = 1.0
	}
	if sw.Completion.CompletedAt != nil {
		sum.CompletedAt = *sw.Completion.CompletedAt
	}
	if isRequester {
		sum.SkillTaught = sw.RequesterOffer
		sum.SkillLearned = sw.RequesterNeed
	} else {
		sum.SkillTaught = sw.RequesterNeed
		sum.SkillLearned = sw.RequesterOffer
	}

	if partner, err := s.profiles.Get(ctx, sum.PartnerUID); err == nil {
		sum.PartnerName = partner.DisplayName
		sum.PartnerPhoto = partner.PhotoURL
	}

	reviews, err := s.reviews.ListBySwap(ctx, sw.ID)
	if err != nil {
		return SwapSummary{}, apperr.Wrap(apperr.Internal, err, "list reviews for swap %s", sw.ID)
	}
	for _, r := range reviews {
		if r.ReviewerUID == uid {
			sum.RatingGiven = r.Rating
		} else {
			sum.RatingReceived = r.Rating
		}
	}
	return sum, nil
}

// healCounters rewrites the stored swap count and hours when they disagree
// with the aggregation. Failures are logged; the computed values are
// returned either way.
func (s *Service) healCounters(ctx context.Context, p *domain.Profile, count int, hours float64) *domain.Profile {
	if p.CompletedSwapCount == count && math.Abs(hours-p.TotalHoursTraded) <= driftTolerance {
		return p
	}

	s.locks.Lock("profile:" + p.UID)
	defer s.locks.Unlock("profile:" + p.UID)

	fresh, err := s.profiles.Get(ctx, p.UID)
	if err != nil {
		s.log.Warn().Str("uid", p.UID).Err(err).Msg("counter repair reload failed")
		fresh = p
	}
	fresh.CompletedSwapCount = count
	fresh.TotalHoursTraded = roundTo1(hours)
	fresh.UpdatedAt = s.now()
	if err := s.profiles.Put(ctx, fresh); err != nil {
		s.log.Warn().Str("uid", p.UID).Err(err).Msg("counter repair write failed")
	} else {
		s.log.Info().Str("uid", p.UID).Int("swaps", count).Float64("hours", hours).
			Msg("profile counters repaired from swap history")
	}
	return fresh
}

// skillAgg accumulates one skill's exchange history.
type skillAgg struct {
	times    int
	hours    float64
	ratings  []int
	lastUsed time.Time
}

func accumulate(m map[string]*skillAgg, skill string, hours float64, rating int, usedAt time.Time) {
	agg, ok := m[skill]
	if !ok {
		agg = &skillAgg{}
		m[skill] = agg
	}
	agg.times++
	agg.hours += hours
	if rating > 0 {
		agg.ratings = append(agg.ratings, rating)
	}
	if usedAt.After(agg.lastUsed) {
		agg.lastUsed = usedAt
	}
}

// flatten orders skills by exchange volume; ties break on name so the
// output is stable.
func flatten(m map[string]*skillAgg) []VerifiedSkill {
	out := make([]VerifiedSkill, 0, len(m))
	for name, agg := range m {
		vs := VerifiedSkill{
			SkillName:      name,
			TimesExchanged: agg.times,
			TotalHours:     roundTo1(agg.hours),
		}
		if len(agg.ratings) > 0 {
			sum := 0
			for _, r := range agg.ratings {
				sum += r
			}
			vs.AverageRating = roundTo2(float64(sum) / float64(len(agg.ratings)))
		}
		if !agg.lastUsed.IsZero() {
			used := agg.lastUsed
			vs.LastUsed = &used
		}
		out = append(out, vs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimesExchanged != out[j].TimesExchanged {
			return out[i].TimesExchanged > out[j].TimesExchanged
		}
		return out[i].SkillName < out[j].SkillName
	})
	return out
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func roundTo1(v float64) float64 { return math.Round(v*10) / 10 }

func roundTo2(v float64) float64 { return math.Round(v*100) / 100 }
