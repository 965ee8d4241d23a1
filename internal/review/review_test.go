package review

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
	return &env{svc: NewService(stores, eco, locks, zerolog.Nop()), stores: stores}
}

func seedProfile(t *testing.T, stores *persistence.Stores, uid string) {
	t.Helper()
	require.NoError(t, stores.Profiles.Put(context.Background(), &domain.Profile{
		UID:         uid,
		Email:       uid + "@example.com",
		DisplayName: strings.ToUpper(uid[:1]) + uid[1:],
		PhotoURL:    "https://img.test/" + uid + ".jpg",
	}))
}

func seedCompletedSwap(t *testing.T, stores *persistence.Stores, id string, finalHours float64) *domain.SwapRequest {
	t.Helper()
	now := time.Now()
	done := now.Add(-time.Hour)
	sw := &domain.SwapRequest{
		ID:             id,
		RequesterUID:   "alice",
		RecipientUID:   "bob",
		Status:         domain.SwapCompleted,
		SwapType:       domain.SwapDirect,
		RequesterOffer: "Python tutoring",
		RequesterNeed:  "Guitar lessons",
		ConversationID: "conv_" + id,
		CreatedAt:      now.Add(-48 * time.Hour),
		UpdatedAt:      now,
		Completion: domain.Completion{
			CompletedAt: &done,
			FinalHours:  finalHours,
		},
	}
	require.NoError(t, stores.Swaps.Put(context.Background(), sw))
	return sw
}

func profileOf(t *testing.T, stores *persistence.Stores, uid string) *domain.Profile {
	t.Helper()
	p, err := stores.Profiles.Get(context.Background(), uid)
	require.NoError(t, err)
	return p
}

func TestCreateReviewBothSides(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice")
	seedProfile(t, e.stores, "bob")
	seedCompletedSwap(t, e.stores, "s1", 2.0)

	// Requester reviews: the skill received is what they asked for.
	got, err := e.svc.Create(ctx, "alice", CreateInput{
		SwapRequestID: "s1", Rating: 5, ReviewText: "  patient and well prepared  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ReviewerUID)
	assert.Equal(t, "bob", got.ReviewedUID)
	assert.Equal(t, 5, got.Rating)
	assert.Equal(t, "patient and well prepared", got.ReviewText)
	assert.Equal(t, "Guitar lessons", got.SkillExchanged)
	assert.Equal(t, 2.0, got.HoursExchanged)
	assert.Equal(t, "Alice", got.ReviewerName)
	assert.Equal(t, "https://img.test/alice.jpg", got.ReviewerPhoto)

	bob := profileOf(t, e.stores, "bob")
	assert.Equal(t, 5.0, bob.AverageRating)
	assert.Equal(t, 1, bob.ReviewCount)
	// Bonus credits: round(2.0 * 5/3) = 3.
	assert.Equal(t, 3, bob.SwapCredits)

	credits, err := e.stores.Ledger.ListCredits(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, domain.ReasonReviewBonus, credits[0].Reason)
	assert.Equal(t, 3, credits[0].Amount)
	assert.Equal(t, "s1", credits[0].RelatedSwapID)

	// Recipient reviews back: they received the requester's offer.
	got, err = e.svc.Create(ctx, "bob", CreateInput{SwapRequestID: "s1", Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ReviewedUID)
	assert.Equal(t, "Python tutoring", got.SkillExchanged)

	alice := profileOf(t, e.stores, "alice")
	assert.Equal(t, 4.0, alice.AverageRating)
	assert.Equal(t, 1, alice.ReviewCount)
}

func TestCreateGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice")
	seedProfile(t, e.stores, "bob")
	seedCompletedSwap(t, e.stores, "s1", 2.0)

	_, err := e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: "missing", Rating: 5})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = e.svc.Create(ctx, "mallory", CreateInput{SwapRequestID: "s1", Rating: 5})
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))

	for _, rating := range []int{0, 6, -1} {
		_, err = e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: "s1", Rating: rating})
		assert.True(t, apperr.IsKind(err, apperr.Validation), "rating %d", rating)
	}

	_, err = e.svc.Create(ctx, "alice", CreateInput{
		SwapRequestID: "s1", Rating: 5,
		ReviewText: strings.Repeat("a", domain.MaxReviewTextLen+1),
	})
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	// Pending swaps cannot be reviewed.
	pending := seedCompletedSwap(t, e.stores, "s2", 1.0)
	pending.Status = domain.SwapAccepted
	require.NoError(t, e.stores.Swaps.Put(ctx, pending))
	_, err = e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: "s2", Rating: 5})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	// One review per reviewer per swap.
	_, err = e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: "s1", Rating: 5})
	require.NoError(t, err)
	_, err = e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: "s1", Rating: 3})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestBonusDefaultsMissingHours(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice")
	seedProfile(t, e.stores, "bob")
	seedCompletedSwap(t, e.stores, "s1", 0)

	got, err := e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: "s1", Rating: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.HoursExchanged)

	// round(1.0 * 1/3) = 0, floored to the 1-credit minimum.
	assert.Equal(t, 1, profileOf(t, e.stores, "bob").SwapCredits)
}

func TestAverageRatingAcrossSwaps(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice")
	seedProfile(t, e.stores, "bob")
	seedCompletedSwap(t, e.stores, "s1", 1.0)
	seedCompletedSwap(t, e.stores, "s2", 1.0)
	seedCompletedSwap(t, e.stores, "s3", 1.0)

	for i, rating := range []int{5, 4, 4} {
		_, err := e.svc.Create(ctx, "alice", CreateInput{
			SwapRequestID: []string{"s1", "s2", "s3"}[i], Rating: rating,
		})
		require.NoError(t, err)
	}

	bob := profileOf(t, e.stores, "bob")
	assert.Equal(t, 4.33, bob.AverageRating)
	assert.Equal(t, 3, bob.ReviewCount)
}

func TestReceivedAndGivenListings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice")
	seedProfile(t, e.stores, "bob")
	for _, id := range []string{"s1", "s2", "s3"} {
		seedCompletedSwap(t, e.stores, id, 1.0)
	}

	base := time.Now()
	step := 0
	e.svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	for i, id := range []string{"s1", "s2", "s3"} {
		_, err := e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: id, Rating: 3 + i})
		require.NoError(t, err)
	}

	received, err := e.svc.Received(ctx, "bob", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, received.Total)
	assert.Equal(t, 4.0, received.AverageRating)
	require.Len(t, received.Reviews, 2)
	assert.Equal(t, "s3", received.Reviews[0].SwapRequestID, "newest first")
	assert.Equal(t, "s2", received.Reviews[1].SwapRequestID)
	assert.Equal(t, "Alice", received.Reviews[0].ReviewerName)

	page2, err := e.svc.Received(ctx, "bob", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2.Reviews, 1)
	assert.Equal(t, "s1", page2.Reviews[0].SwapRequestID)

	given, err := e.svc.Given(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, given.Total)
	require.Len(t, given.Reviews, 3)

	none, err := e.svc.Received(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Total)
	assert.Equal(t, 0.0, none.AverageRating)
	assert.Empty(t, none.Reviews)
}

func TestBySwapAndHasReviewed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice")
	seedProfile(t, e.stores, "bob")
	seedCompletedSwap(t, e.stores, "s1", 2.0)

	_, err := e.svc.BySwap(ctx, "s1", "mallory")
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))
	_, err = e.svc.BySwap(ctx, "missing", "alice")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	before, err := e.svc.BySwap(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.Empty(t, before.Reviews)
	assert.False(t, before.UserHasReviewed)
	assert.True(t, before.CanReview)

	_, err = e.svc.Create(ctx, "alice", CreateInput{SwapRequestID: "s1", Rating: 5})
	require.NoError(t, err)

	after, err := e.svc.BySwap(ctx, "s1", "alice")
	require.NoError(t, err)
	require.Len(t, after.Reviews, 1)
	assert.True(t, after.UserHasReviewed)
	assert.False(t, after.CanReview)

	bobView, err := e.svc.BySwap(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.False(t, bobView.UserHasReviewed)
	assert.True(t, bobView.CanReview)

	has, err := e.svc.HasReviewed(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = e.svc.HasReviewed(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.False(t, has)
}
