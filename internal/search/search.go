// Package search serves semantic profile search and skill recommendations
// over the vector index, with cache-backed results. Cached entries hold the
// core hits only; boost flags are stamped per call so they never go stale.
package search

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/embedding"
	"github.com/skillswap/swapd/internal/metrics"
	"github.com/skillswap/swapd/internal/vectorindex"
)

// Mode selects which vector field a search runs against.
type Mode string

const (
	ModeOffers Mode = "offers"
	ModeNeeds  Mode = "needs"
	ModeBoth   Mode = "both"
)

// ValidMode reports whether m is a known search mode.
func ValidMode(m string) bool {
	switch Mode(m) {
	case ModeOffers, ModeNeeds, ModeBoth:
		return true
	}
	return false
}

const (
	DefaultK         = 10
	MaxK             = 50
	DefaultThreshold = 0.3

	// CachePrefix and RecommendPrefix key the two cached result families;
	// profile writes invalidate both.
	CachePrefix     = "search"
	RecommendPrefix = "skill_recommend"

	resultTTL    = time.Hour
	recommendTTL = 2 * time.Hour
)

// Request parameterises one profile search. The HTTP layer resolves absent
// fields to the defaults before calling in.
type Request struct {
	Query     string
	K         int
	Threshold float64
	Mode      Mode
}

// Result is one search hit. MatchedField tells which vector produced the
// score, which matters in both mode. HasActiveBoost is stamped after the
// cache layer.
type Result struct {
	UID            string              `json:"uid"`
	Score          float64             `json:"score"`
	MatchedField   string              `json:"matched_field"`
	Profile        vectorindex.Payload `json:"profile"`
	HasActiveBoost bool                `json:"has_active_boost"`
}

// Recommendation is one suggested complementary skill.
type Recommendation struct {
	Skill         string  `json:"skill"`
	Score         float64 `json:"score"`
	TimesSeen     int     `json:"times_seen"`
	AvgSimilarity float64 `json:"avg_similarity"`
	Reason        string  `json:"reason"`
}

// BoostChecker reports whether a profile holds an unexpired priority boost.
// The economy service implements it.
type BoostChecker interface {
	HasActiveBoost(ctx context.Context, uid string) bool
}

// Service runs cached searches over the vector index.
type Service struct {
	embed   embedding.Client
	index   vectorindex.Index
	cache   cache.Cache
	boosts  BoostChecker
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewService wires the search service. boosts may be nil; results then
// carry no boost flags.
func NewService(
	embed embedding.Client,
	index vectorindex.Index,
	c cache.Cache,
	boosts BoostChecker,
	reg *metrics.Registry,
	log zerolog.Logger,
) *Service {
	return &Service{
		embed:   embed,
		index:   index,
		cache:   c,
		boosts:  boosts,
		metrics: reg,
		log:     log.With().Str("component", "search").Logger(),
	}
}

// Invalidate drops every cached search and recommendation result. Profile
// writes call this before acknowledging, so no stale hit survives a
// change.
func Invalidate(c cache.Cache) {
	c.DeletePrefix(CachePrefix + ":")
	c.DeletePrefix(RecommendPrefix + ":")
}

// Search runs one semantic profile search.
func (s *Service) Search(ctx context.Context, req Request) ([]Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.Validationf("search query is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeOffers
	}
	if !ValidMode(string(mode)) {
		return nil, apperr.Validationf("unknown search mode %q", mode)
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return nil, apperr.Validationf("threshold must be within [0, 1], got %v", req.Threshold)
	}
	k := req.K
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}

	key := cache.Fingerprint(CachePrefix, map[string]any{
		"query":     query,
		"k":         k,
		"threshold": req.Threshold,
		"mode":      string(mode),
	})
	if cached, ok := s.cacheGet(key); ok {
		s.countCache(CachePrefix, true)
		s.decorate(ctx, cached)
		return cached, nil
	}
	s.countCache(CachePrefix, false)

	vec, err := s.embed.Encode(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "embedding provider failed")
	}

	results, err := s.runSearch(ctx, mode, vec, k, req.Threshold)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "vector search failed")
	}

	s.cachePut(key, results, resultTTL)
	if s.metrics != nil {
		s.metrics.SearchesServed.WithLabelValues(string(mode)).Inc()
	}
	s.log.Debug().Str("mode", string(mode)).Int("hits", len(results)).Msg("search served")

	s.decorate(ctx, results)
	return results, nil
}

// runSearch executes the mode-specific index calls. Both mode keeps the
// higher-scored hit per uid.
func (s *Service) runSearch(ctx context.Context, mode Mode, vec []float32, k int, threshold float64) ([]Result, error) {
	switch mode {
	case ModeOffers:
		hits, err := s.index.Search(ctx, vectorindex.FieldOffer, vec, k, threshold)
		if err != nil {
			return nil, err
		}
		return toResults(hits, ModeOffers), nil
	case ModeNeeds:
		hits, err := s.index.Search(ctx, vectorindex.FieldNeed, vec, k, threshold)
		if err != nil {
			return nil, err
		}
		return toResults(hits, ModeNeeds), nil
	}

	var offerHits, needHits []vectorindex.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		offerHits, err = s.index.Search(gctx, vectorindex.FieldOffer, vec, k, threshold)
		return err
	})
	g.Go(func() error {
		var err error
		needHits, err = s.index.Search(gctx, vectorindex.FieldNeed, vec, k, threshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := toResults(offerHits, ModeOffers)
	byUID := make(map[string]int, len(merged))
	for i, r := range merged {
		byUID[r.UID] = i
	}
	for _, r := range toResults(needHits, ModeNeeds) {
		if i, ok := byUID[r.UID]; ok {
			if r.Score > merged[i].Score {
				merged[i] = r
			}
			continue
		}
		merged = append(merged, r)
	}
	sortResults(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// RecommendSkills suggests complementary skills: phrases common among
// profiles semantically close to the caller's current skills, weighted by
// how often they appear and how similar their owners are.
func (s *Service) RecommendSkills(ctx context.Context, currentSkills string, limit int) ([]Recommendation, error) {
	skills := strings.TrimSpace(currentSkills)
	if skills == "" {
		return nil, apperr.Validationf("current_skills is required")
	}
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}
	if limit > MaxRecommendLimit {
		limit = MaxRecommendLimit
	}

	key := cache.Fingerprint(RecommendPrefix, map[string]any{
		"skills": skills,
		"limit":  limit,
	})
	if raw, ok := s.cache.Get(key); ok {
		var cached []Recommendation
		if err := json.Unmarshal(raw, &cached); err == nil {
			s.countCache(RecommendPrefix, true)
			return cached, nil
		}
	}
	s.countCache(RecommendPrefix, false)

	vec, err := s.embed.Encode(ctx, skills)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "embedding provider failed")
	}

	var offerHits, needHits []vectorindex.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		offerHits, err = s.index.Search(gctx, vectorindex.FieldOffer, vec, recommendWidth, recommendThreshold)
		return err
	})
	g.Go(func() error {
		var err error
		needHits, err = s.index.Search(gctx, vectorindex.FieldNeed, vec, recommendWidth, recommendThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "vector search failed")
	}

	recs := rankPhrases(dedupeHits(offerHits, needHits), skills, limit)
	s.cachePutRecs(key, recs)
	s.log.Debug().Int("hits", len(offerHits)+len(needHits)).Int("recommendations", len(recs)).
		Msg("skill recommendations computed")
	return recs, nil
}

func toResults(hits []vectorindex.Result, matched Mode) []Result {
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{
			UID:          h.UID,
			Score:        round4(h.Score),
			MatchedField: string(matched),
			Profile:      h.Payload,
		})
	}
	return out
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UID < results[j].UID
	})
}

// decorate stamps current boost flags onto results, after any cache read.
func (s *Service) decorate(ctx context.Context, results []Result) {
	if s.boosts == nil {
		return
	}
	for i := range results {
		results[i].HasActiveBoost = s.boosts.HasActiveBoost(ctx, results[i].UID)
	}
}

func (s *Service) cacheGet(key string) ([]Result, bool) {
	raw, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		s.log.Debug().Str("key", key).Err(err).Msg("dropping undecodable cache entry")
		s.cache.Delete(key)
		return nil, false
	}
	return results, true
}

func (s *Service) cachePut(key string, results []Result, ttl time.Duration) {
	// Boost flags are stamped per call; the cached copy stays unflagged.
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	s.cache.Set(key, raw, ttl)
}

func (s *Service) cachePutRecs(key string, recs []Recommendation) {
	raw, err := json.Marshal(recs)
	if err != nil {
		return
	}
	s.cache.Set(key, raw, recommendTTL)
}

func (s *Service) countCache(prefix string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHits.WithLabelValues(prefix).Inc()
		return
	}
	s.metrics.CacheMisses.WithLabelValues(prefix).Inc()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
