// Package profile orchestrates the canonical profile documents against the
// secondary surfaces that hang off them: the vector index, the search
// caches, and the welcome email. The document store is the source of
// truth; index writes are best-effort and repaired by reindexing.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/email"
	"github.com/skillswap/swapd/internal/embedding"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/persistence"
	"github.com/skillswap/swapd/internal/search"
	"github.com/skillswap/swapd/internal/vectorindex"
)

// Input is the upsert payload. The three visibility flags default to true
// when absent.
type Input struct {
	UID            string `json:"uid"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	PhotoURL       string `json:"photo_url"`
	Bio            string `json:"bio"`
	City           string `json:"city"`
	Timezone       string `json:"timezone"`
	SkillsToOffer  string `json:"skills_to_offer"`
	ServicesNeeded string `json:"services_needed"`
	DMOpen         *bool  `json:"dm_open"`
	EmailUpdates   *bool  `json:"email_updates"`
	ShowCity       *bool  `json:"show_city"`
}

// Service owns profile reads and writes.
type Service struct {
	profiles persistence.ProfileStore
	embed    embedding.Client
	index    vectorindex.Index
	cache    cache.Cache
	mail     *email.Service
	locks    *kmutex.KMutex
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires the profile service. mail may be nil to disable the
// welcome email.
func NewService(
	profiles persistence.ProfileStore,
	embed embedding.Client,
	index vectorindex.Index,
	c cache.Cache,
	mail *email.Service,
	locks *kmutex.KMutex,
	log zerolog.Logger,
) *Service {
	return &Service{
		profiles: profiles,
		embed:    embed,
		index:    index,
		cache:    c,
		mail:     mail,
		locks:    locks,
		log:      log.With().Str("component", "profile").Logger(),
		now:      time.Now,
	}
}

func lockKey(uid string) string { return "profile:" + uid }

// Upsert creates or replaces the client-owned fields of a profile, then
// refreshes the vector index entry and drops the search caches. Index and
// cache trouble is logged, not returned: the stored document wins.
func (s *Service) Upsert(ctx context.Context, in Input) (*domain.Profile, error) {
	uid := strings.TrimSpace(in.UID)
	if uid == "" {
		return nil, apperr.Validationf("uid is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return nil, apperr.Validationf("email is required")
	}

	s.locks.Lock(lockKey(uid))
	defer s.locks.Unlock(lockKey(uid))

	now := s.now()
	p := &domain.Profile{
		UID:            uid,
		Email:          in.Email,
		DisplayName:    in.DisplayName,
		PhotoURL:       in.PhotoURL,
		Bio:            in.Bio,
		City:           in.City,
		Timezone:       in.Timezone,
		SkillsToOffer:  in.SkillsToOffer,
		ServicesNeeded: in.ServicesNeeded,
		DMOpen:         boolOr(in.DMOpen, true),
		EmailUpdates:   boolOr(in.EmailUpdates, true),
		ShowCity:       boolOr(in.ShowCity, true),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	existing, err := s.profiles.Get(ctx, uid)
	switch {
	case err == nil:
		carryServerFields(p, existing)
	case errors.Is(err, persistence.ErrNotFound):
		// First upsert creates the profile.
	default:
		return nil, apperr.Wrap(apperr.Internal, err, "load profile %s", uid)
	}
	isNew := existing == nil

	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store profile %s", uid)
	}

	s.syncIndex(ctx, p)
	search.Invalidate(s.cache)

	if isNew && s.mail != nil && p.EmailUpdates && p.Email != "" {
		s.mail.SendWelcome(p.Email, p.DisplayName)
	}

	s.log.Info().Str("uid", uid).Bool("new", isNew).Bool("indexed", p.Indexable()).
		Msg("profile upserted")
	return p, nil
}

// Get fetches a profile by uid.
func (s *Service) Get(ctx context.Context, uid string) (*domain.Profile, error) {
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return nil, profileErr(uid, err)
	}
	return p, nil
}

// GetByEmail fetches a profile by email address.
func (s *Service) GetByEmail(ctx context.Context, addr string) (*domain.Profile, error) {
	p, err := s.profiles.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.NotFoundf("profile not found")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "load profile by email")
	}
	return p, nil
}

// Patch applies a partial update. The index entry is refreshed only when a
// skill text changed; the search caches are dropped either way.
func (s *Service) Patch(ctx context.Context, uid string, upd *domain.ProfileUpdate) (*domain.Profile, error) {
	s.locks.Lock(lockKey(uid))
	defer s.locks.Unlock(lockKey(uid))

	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return nil, profileErr(uid, err)
	}

	upd.Apply(p, s.now())
	if err := s.profiles.Put(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store profile %s", uid)
	}

	if upd.TouchesSkills() {
		s.syncIndex(ctx, p)
	}
	search.Invalidate(s.cache)

	s.log.Info().Str("uid", uid).Bool("reindexed", upd.TouchesSkills()).Msg("profile patched")
	return p, nil
}

// Delete removes the profile from the store and the index.
func (s *Service) Delete(ctx context.Context, uid string) error {
	s.locks.Lock(lockKey(uid))
	defer s.locks.Unlock(lockKey(uid))

	if _, err := s.profiles.Get(ctx, uid); err != nil {
		return profileErr(uid, err)
	}
	if err := s.profiles.Delete(ctx, uid); err != nil {
		return apperr.Wrap(apperr.Internal, err, "delete profile %s", uid)
	}
	if err := s.index.Delete(ctx, uid); err != nil {
		s.log.Warn().Str("uid", uid).Err(err).Msg("vector index delete failed; reindex will reconcile")
	}
	search.Invalidate(s.cache)

	s.log.Info().Str("uid", uid).Msg("profile deleted")
	return nil
}

// Reindex recomputes one profile's index entry from the stored document.
// The recovery path for index writes that failed during upsert.
func (s *Service) Reindex(ctx context.Context, uid string) error {
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return profileErr(uid, err)
	}
	return s.reindexOne(ctx, p)
}

// ReindexAll walks every stored profile and rebuilds its index entry.
// Returns how many profiles now carry vectors.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	profiles, err := s.profiles.List(ctx, persistence.MaxFetch)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "list profiles")
	}
	indexed := 0
	for _, p := range profiles {
		if err := s.reindexOne(ctx, p); err != nil {
			return indexed, err
		}
		if p.Indexable() {
			indexed++
		}
	}
	s.log.Info().Int("profiles", len(profiles)).Int("indexed", indexed).Msg("reindex complete")
	return indexed, nil
}

// reindexOne is syncIndex with the error surfaced, for the explicit
// recovery paths.
func (s *Service) reindexOne(ctx context.Context, p *domain.Profile) error {
	if !p.Indexable() {
		if err := s.index.Delete(ctx, p.UID); err != nil {
			return apperr.Wrap(apperr.Unavailable, err, "drop index entry for %s", p.UID)
		}
		return nil
	}
	vecs, err := s.embed.EncodeBatch(ctx, []string{p.SkillsToOffer, p.ServicesNeeded})
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "embed skills for %s", p.UID)
	}
	doc := vectorindex.Document{
		UID:      p.UID,
		OfferVec: vecs[0],
		NeedVec:  vecs[1],
		Payload:  payloadFor(p),
	}
	if err := s.index.Upsert(ctx, doc); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "index profile %s", p.UID)
	}
	return nil
}

// syncIndex refreshes the index entry after a store write. Failures are
// warnings: the stored profile is already durable and reindex recovers.
func (s *Service) syncIndex(ctx context.Context, p *domain.Profile) {
	if err := s.reindexOne(ctx, p); err != nil {
		s.log.Warn().Str("uid", p.UID).Err(err).Msg("index sync failed; profile stored, reindex will reconcile")
	}
}

func payloadFor(p *domain.Profile) vectorindex.Payload {
	return vectorindex.Payload{
		UID:            p.UID,
		DisplayName:    p.DisplayName,
		PhotoURL:       p.PhotoURL,
		Bio:            p.Bio,
		City:           p.City,
		ShowCity:       p.ShowCity,
		SkillsToOffer:  p.SkillsToOffer,
		ServicesNeeded: p.ServicesNeeded,
	}
}

// carryServerFields keeps the counters and economy state the services
// maintain; upsert only replaces what the client owns.
func carryServerFields(p, existing *domain.Profile) {
	p.SwapPoints = existing.SwapPoints
	p.LifetimePointsEarned = existing.LifetimePointsEarned
	p.SwapCredits = existing.SwapCredits
	p.CompletedSwapCount = existing.CompletedSwapCount
	p.TotalHoursTraded = existing.TotalHoursTraded
	p.AverageRating = existing.AverageRating
	p.ReviewCount = existing.ReviewCount
	p.ResponseRate = existing.ResponseRate
	p.CreatedAt = existing.CreatedAt
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func profileErr(uid string, err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return apperr.NotFoundf("profile not found")
	}
	return apperr.Wrap(apperr.Internal, err, "load profile %s", uid)
}
