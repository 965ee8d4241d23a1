// Package match implements reciprocal matching: two directional vector
// searches fused by harmonic mean, so only mutual fits rank and lopsided
// ones are punished.
package match

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/email"
	"github.com/skillswap/swapd/internal/embedding"
	"github.com/skillswap/swapd/internal/metrics"
	"github.com/skillswap/swapd/internal/persistence"
	"github.com/skillswap/swapd/internal/vectorindex"
)

const (
	// KWide is how many candidates each directional search pulls before the
	// intersection; much wider than the returned k so few mutual fits are
	// lost to one-sided truncation.
	KWide = 50
	// SearchThreshold floors each directional score.
	SearchThreshold = 0.2
	// NotifyThreshold is the reciprocal score above which a match email
	// goes out.
	NotifyThreshold = 0.70

	DefaultK = 10
	MaxK     = 50

	// notifySeenSize bounds the process-local dedupe set; the cache-backed
	// key is the durable layer.
	notifySeenSize = 4096
)

// Match is one reciprocal result. NeedScore is how well my offer fits their
// need; OfferScore is how well their offer fits my need.
type Match struct {
	UID             string              `json:"uid"`
	ReciprocalScore float64             `json:"reciprocal_score"`
	NeedScore       float64             `json:"need_match_score"`
	OfferScore      float64             `json:"offer_match_score"`
	Profile         vectorindex.Payload `json:"profile"`
}

// Request parameterises one matching call. MyUID is optional; when present
// it enables self-filtering, block filtering, and (with NotifyMatches)
// match emails.
type Request struct {
	OfferText     string
	NeedText      string
	K             int
	MyUID         string
	NotifyMatches bool
}

// Service runs reciprocal matching over the vector index.
type Service struct {
	embed    embedding.Client
	index    vectorindex.Index
	profiles persistence.ProfileStore
	blocks   persistence.BlockStore
	mail     *email.Service
	metrics  *metrics.Registry
	log      zerolog.Logger

	// notified remembers pairs already mailed this process lifetime.
	notified *lru.Cache[string, struct{}]
}

// NewService wires the matcher. mail may be nil to disable notifications.
func NewService(
	embed embedding.Client,
	index vectorindex.Index,
	profiles persistence.ProfileStore,
	blocks persistence.BlockStore,
	mail *email.Service,
	reg *metrics.Registry,
	log zerolog.Logger,
) *Service {
	seen, _ := lru.New[string, struct{}](notifySeenSize)
	return &Service{
		embed:    embed,
		index:    index,
		profiles: profiles,
		blocks:   blocks,
		mail:     mail,
		metrics:  reg,
		log:      log.With().Str("component", "match").Logger(),
		notified: seen,
	}
}

// Harmonic is the reciprocal score: 2ab/(a+b), zero when both sides are.
func Harmonic(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}

// Reciprocal finds users who want what I offer AND offer what I need.
func (s *Service) Reciprocal(ctx context.Context, req Request) ([]Match, error) {
	offerText := strings.TrimSpace(req.OfferText)
	needText := strings.TrimSpace(req.NeedText)
	if offerText == "" || needText == "" {
		return nil, apperr.Validationf("both offer and need text are required for reciprocal matching")
	}
	k := req.K
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}

	vecs, err := s.embed.EncodeBatch(ctx, []string{offerText, needText})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "embedding provider failed")
	}
	offerVec, needVec := vecs[0], vecs[1]

	// Both directions in parallel: who needs what I offer, who offers what
	// I need.
	var wantMe, haveIt []vectorindex.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wantMe, err = s.index.Search(gctx, vectorindex.FieldNeed, offerVec, KWide, SearchThreshold)
		return err
	})
	g.Go(func() error {
		var err error
		haveIt, err = s.index.Search(gctx, vectorindex.FieldOffer, needVec, KWide, SearchThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "vector search failed")
	}

	matches := s.fuse(wantMe, haveIt, req.MyUID)
	matches, err = s.filterBlocked(ctx, req.MyUID, matches)
	if err != nil {
		return nil, err
	}

	if len(matches) > k {
		matches = matches[:k]
	}
	if s.metrics != nil {
		s.metrics.MatchesComputed.Add(float64(len(matches)))
	}
	s.log.Debug().Int("want_me", len(wantMe)).Int("have_it", len(haveIt)).
		Int("matches", len(matches)).Msg("reciprocal match computed")

	if req.NotifyMatches && req.MyUID != "" {
		s.notifyStrongMatches(ctx, req.MyUID, matches)
	}
	return matches, nil
}

// fuse intersects the two result sets and ranks by harmonic mean. Ties
// break on the higher worse-side score, then uid.
func (s *Service) fuse(wantMe, haveIt []vectorindex.Result, myUID string) []Match {
	needScores := make(map[string]vectorindex.Result, len(wantMe))
	for _, r := range wantMe {
		needScores[r.UID] = r
	}

	matches := make([]Match, 0, len(haveIt))
	for _, their := range haveIt {
		mine, ok := needScores[their.UID]
		if !ok || their.UID == myUID {
			continue
		}
		h := Harmonic(mine.Score, their.Score)
		if h == 0 {
			continue
		}
		matches = append(matches, Match{
			UID:             their.UID,
			ReciprocalScore: round4(h),
			NeedScore:       round4(mine.Score),
			OfferScore:      round4(their.Score),
			Profile:         their.Payload,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.ReciprocalScore != b.ReciprocalScore {
			return a.ReciprocalScore > b.ReciprocalScore
		}
		amin, bmin := minScore(a), minScore(b)
		if amin != bmin {
			return amin > bmin
		}
		return a.UID < b.UID
	})
	return matches
}

func minScore(m Match) float64 {
	if m.NeedScore < m.OfferScore {
		return m.NeedScore
	}
	return m.OfferScore
}

// round4 trims scores to the four decimals exposed in responses.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// filterBlocked removes candidates either side has blocked. Without a
// caller uid there is nothing to check.
func (s *Service) filterBlocked(ctx context.Context, myUID string, matches []Match) ([]Match, error) {
	if myUID == "" || len(matches) == 0 {
		return matches, nil
	}

	mine, err := s.blocks.ListByBlocker(ctx, myUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list blocks")
	}
	blockedByMe := make(map[string]bool, len(mine))
	for _, b := range mine {
		blockedByMe[b.BlockedUID] = true
	}

	out := matches[:0]
	for _, m := range matches {
		if blockedByMe[m.UID] {
			continue
		}
		reverse, err := s.blocks.Get(ctx, m.UID, myUID)
		if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return nil, apperr.Wrap(apperr.Internal, err, "check reverse block")
		}
		if reverse != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// notifyStrongMatches emails owners of matches at or above the notify
// threshold who opted into email updates. The pair is deduped locally and
// through the cache so repeated match calls do not spam.
func (s *Service) notifyStrongMatches(ctx context.Context, myUID string, matches []Match) {
	if s.mail == nil {
		return
	}
	me, err := s.profiles.Get(ctx, myUID)
	if err != nil {
		s.log.Warn().Str("uid", myUID).Err(err).Msg("match notify: caller profile lookup failed")
		return
	}

	for _, m := range matches {
		if m.ReciprocalScore < NotifyThreshold {
			continue
		}
		key := pairKey(myUID, m.UID)
		if _, dup := s.notified.Get(key); dup {
			continue
		}
		other, err := s.profiles.Get(ctx, m.UID)
		if err != nil {
			s.log.Warn().Str("uid", m.UID).Err(err).Msg("match notify: profile lookup failed")
			continue
		}
		if !other.EmailUpdates || other.Email == "" {
			continue
		}
		s.notified.Add(key, struct{}{})
		s.mail.SendMatchFound(other.Email, other.DisplayName, me.DisplayName, m.ReciprocalScore, key)
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
