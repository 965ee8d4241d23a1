package portfolio

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/config"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/economy"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/persistence"
	"github.com/skillswap/swapd/internal/persistence/memstore"
	"github.com/skillswap/swapd/internal/review"
)

type env struct {
	svc    *Service
	stores *persistence.Stores
}

func newEnv(t *testing.T) *env {
	t.Helper()
	loader := config.NewWeightsLoader()
	require.NoError(t, loader.LoadDefault())
	stores := memstore.New()
	locks := kmutex.New()
	eco := economy.NewService(stores.Profiles, stores.Ledger, stores.Boosts,
		locks, loader.Weights(), economy.StaticDemand(1.0), zerolog.Nop())
	rsvc := review.NewService(stores, eco, locks, zerolog.Nop())
	return &env{svc: NewService(stores, rsvc, locks, zerolog.Nop()), stores: stores}
}

func seedProfile(t *testing.T, stores *persistence.Stores, uid string, swaps int, hours float64) {
	t.Helper()
	require.NoError(t, stores.Profiles.Put(context.Background(), &domain.Profile{
		UID:                uid,
		Email:              uid + "@example.com",
		DisplayName:        strings.ToUpper(uid[:1]) + uid[1:],
		PhotoURL:           "https://img.test/" + uid + ".jpg",
		CompletedSwapCount: swaps,
		TotalHoursTraded:   hours,
		ResponseRate:       100,
		CreatedAt:          time.Now().Add(-90 * 24 * time.Hour),
	}))
}

type swapSeed struct {
	id        string
	requester string
	recipient string
	offer     string
	need      string
	typ       domain.SwapType
	hours     float64
	doneAgo   time.Duration
}

func seedSwap(t *testing.T, stores *persistence.Stores, s swapSeed) {
	t.Helper()
	if s.typ == "" {
		s.typ = domain.SwapDirect
	}
	done := time.Now().Add(-s.doneAgo)
	require.NoError(t, stores.Swaps.Put(context.Background(), &domain.SwapRequest{
		ID:             s.id,
		RequesterUID:   s.requester,
		RecipientUID:   s.recipient,
		Status:         domain.SwapCompleted,
		SwapType:       s.typ,
		RequesterOffer: s.offer,
		RequesterNeed:  s.need,
		CreatedAt:      done.Add(-72 * time.Hour),
		UpdatedAt:      done,
		Completion: domain.Completion{
			CompletedAt: &done,
			FinalHours:  s.hours,
		},
	}))
}

func seedReview(t *testing.T, stores *persistence.Stores, swapID, reviewer, reviewed string, rating int, ago time.Duration) {
	t.Helper()
	require.NoError(t, stores.Reviews.Put(context.Background(), &domain.Review{
		ID:            "rev_" + swapID + "_" + reviewer,
		SwapRequestID: swapID,
		ReviewerUID:   reviewer,
		ReviewedUID:   reviewed,
		Rating:        rating,
		CreatedAt:     time.Now().Add(-ago),
	}))
}

func TestPortfolioAggregatesBothRoles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 3, 6.5)
	seedProfile(t, e.stores, "bob", 1, 2)
	seedProfile(t, e.stores, "carol", 1, 1.5)
	seedProfile(t, e.stores, "dave", 1, 3)

	seedSwap(t, e.stores, swapSeed{id: "s1", requester: "alice", recipient: "bob",
		offer: "Python tutoring", need: "Guitar lessons", hours: 2.0, doneAgo: 3 * time.Hour})
	seedSwap(t, e.stores, swapSeed{id: "s2", requester: "alice", recipient: "carol",
		offer: "Python tutoring", need: "Spanish conversation", hours: 1.5, doneAgo: 2 * time.Hour})
	seedSwap(t, e.stores, swapSeed{id: "s3", requester: "dave", recipient: "alice",
		offer: "Photography basics", need: "Python tutoring", hours: 3.0, doneAgo: time.Hour})

	seedReview(t, e.stores, "s1", "bob", "alice", 5, 2*time.Hour)
	seedReview(t, e.stores, "s1", "alice", "bob", 4, time.Hour)

	got, err := e.svc.Get(ctx, "alice", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, 3, got.TotalSwapsCompleted)
	assert.Equal(t, 6.5, got.TotalHoursTraded)
	assert.Equal(t, 100.0, got.ResponseRate)
	assert.WithinDuration(t, time.Now().Add(-90*24*time.Hour), got.MemberSince, time.Minute)

	// Alice taught Python three times: to bob and carol as requester, and
	// to dave as the recipient providing his need.
	require.Len(t, got.VerifiedSkillsTaught, 1)
	taught := got.VerifiedSkillsTaught[0]
	assert.Equal(t, "Python tutoring", taught.SkillName)
	assert.Equal(t, 3, taught.TimesExchanged)
	assert.Equal(t, 6.5, taught.TotalHours)
	assert.Equal(t, 5.0, taught.AverageRating, "only the s1 review rated her teaching")
	require.NotNil(t, taught.LastUsed)

	require.Len(t, got.VerifiedSkillsLearned, 3)
	names := []string{
		got.VerifiedSkillsLearned[0].SkillName,
		got.VerifiedSkillsLearned[1].SkillName,
		got.VerifiedSkillsLearned[2].SkillName,
	}
	assert.Equal(t, []string{"Guitar lessons", "Photography basics", "Spanish conversation"}, names,
		"equal counts fall back to name order")
	assert.Equal(t, 4.0, got.VerifiedSkillsLearned[0].AverageRating, "her own rating of the guitar swap")

	require.Len(t, got.RecentSwaps, 3)
	assert.Equal(t, "s3", got.RecentSwaps[0].SwapRequestID, "newest first")
	assert.Equal(t, "dave", got.RecentSwaps[0].PartnerUID)
	assert.Equal(t, "Dave", got.RecentSwaps[0].PartnerName)
	assert.Equal(t, "Python tutoring", got.RecentSwaps[0].SkillTaught)
	assert.Equal(t, "Photography basics", got.RecentSwaps[0].SkillLearned)
	assert.Equal(t, "s1", got.RecentSwaps[2].SwapRequestID)
	assert.Equal(t, 4, got.RecentSwaps[2].RatingGiven)
	assert.Equal(t, 5, got.RecentSwaps[2].RatingReceived)

	require.Len(t, got.RecentReviews, 1)
	assert.Equal(t, "Bob", got.RecentReviews[0].ReviewerName)
	assert.Equal(t, 5, got.RecentReviews[0].Rating)
}

func TestPortfolioIndirectSkillsSkipped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 1, 2)
	seedProfile(t, e.stores, "bob", 1, 2)

	// Indirect swap: alice paid points, taught nothing.
	seedSwap(t, e.stores, swapSeed{id: "s1", requester: "alice", recipient: "bob",
		need: "Guitar lessons", typ: domain.SwapIndirect, hours: 2.0, doneAgo: time.Hour})

	got, err := e.svc.Get(ctx, "alice", DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got.VerifiedSkillsTaught)
	require.Len(t, got.VerifiedSkillsLearned, 1)
	assert.Equal(t, "Guitar lessons", got.VerifiedSkillsLearned[0].SkillName)

	// The provider side: taught the need, learned nothing.
	bob, err := e.svc.Get(ctx, "bob", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, bob.VerifiedSkillsTaught, 1)
	assert.Equal(t, "Guitar lessons", bob.VerifiedSkillsTaught[0].SkillName)
	assert.Empty(t, bob.VerifiedSkillsLearned)
}

func TestPortfolioHealsDriftedCounters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0, 0)
	seedProfile(t, e.stores, "bob", 0, 0)
	seedSwap(t, e.stores, swapSeed{id: "s1", requester: "alice", recipient: "bob",
		offer: "Python tutoring", need: "Guitar lessons", hours: 2.0, doneAgo: 2 * time.Hour})
	seedSwap(t, e.stores, swapSeed{id: "s2", requester: "alice", recipient: "bob",
		offer: "Python tutoring", need: "Knife sharpening", hours: 1.5, doneAgo: time.Hour})

	got, err := e.svc.Get(ctx, "alice", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalSwapsCompleted)
	assert.Equal(t, 3.5, got.TotalHoursTraded)

	stored, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CompletedSwapCount)
	assert.Equal(t, 3.5, stored.TotalHoursTraded)
}

func TestPortfolioOptions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 1, 2)
	seedProfile(t, e.stores, "bob", 1, 2)
	seedSwap(t, e.stores, swapSeed{id: "s1", requester: "alice", recipient: "bob",
		offer: "Python tutoring", need: "Guitar lessons", hours: 2.0, doneAgo: time.Hour})
	seedReview(t, e.stores, "s1", "bob", "alice", 5, time.Hour)

	got, err := e.svc.Get(ctx, "alice", Options{IncludeSwaps: false, IncludeReviews: false})
	require.NoError(t, err)
	assert.Empty(t, got.RecentSwaps)
	assert.Empty(t, got.RecentReviews)
	assert.NotEmpty(t, got.VerifiedSkillsTaught, "skill aggregation is unconditional")

	// Swap limit caps the recent list, not the aggregates.
	for i := 0; i < 3; i++ {
		seedSwap(t, e.stores, swapSeed{id: "x" + string(rune('a'+i)), requester: "alice", recipient: "bob",
			offer: "Python tutoring", need: "Guitar lessons", hours: 1.0, doneAgo: time.Duration(i+2) * time.Hour})
	}
	got, err = e.svc.Get(ctx, "alice", Options{IncludeSwaps: true, SwapLimit: 2})
	require.NoError(t, err)
	assert.Len(t, got.RecentSwaps, 2)
	assert.Equal(t, 4, got.VerifiedSkillsTaught[0].TimesExchanged)
}

func TestPortfolioUnknownUser(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Get(context.Background(), "ghost", DefaultOptions())
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
	_, err = e.svc.GetStats(context.Background(), "ghost")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestStatsProjection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.stores.Profiles.Put(ctx, &domain.Profile{
		UID:                "alice",
		SwapPoints:         120,
		SwapCredits:        45,
		CompletedSwapCount: 7,
		TotalHoursTraded:   16.5,
		AverageRating:      4.71,
		ReviewCount:        6,
	}))

	got, err := e.svc.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 120, got.SwapPoints)
	assert.Equal(t, 45, got.SwapCredits)
	assert.Equal(t, 7, got.CompletedSwapCount)
	assert.Equal(t, 16.5, got.TotalHoursTraded)
	assert.Equal(t, 4.71, got.AverageRating)
	assert.Equal(t, 6, got.ReviewCount)
}
