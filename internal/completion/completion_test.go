package completion

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/config"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/economy"
	"github.com/skillswap/swapd/internal/email"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/metrics"
	"github.com/skillswap/swapd/internal/persistence"
	"github.com/skillswap/swapd/internal/persistence/memstore"
)

type env struct {
	svc    *Service
	stores *persistence.Stores
	rec    *email.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	loader := config.NewWeightsLoader()
	require.NoError(t, loader.LoadDefault())
	stores := memstore.New()
	locks := kmutex.New()
	eco := economy.NewService(stores.Profiles, stores.Ledger, stores.Boosts,
		locks, loader.Weights(), economy.StaticDemand(1.0), zerolog.Nop())
	rec := &email.Recorder{}
	mail := email.New(rec, cache.New(), "https://swap.test", false)
	svc := NewService(stores, eco, mail, metrics.New(), locks, zerolog.Nop())
	return &env{svc: svc, stores: stores, rec: rec}
}

func seedProfile(t *testing.T, stores *persistence.Stores, uid string, points int) {
	t.Helper()
	now := time.Now()
	require.NoError(t, stores.Profiles.Put(context.Background(), &domain.Profile{
		UID:          uid,
		Email:        uid + "@example.com",
		DisplayName:  uid,
		SwapPoints:   points,
		EmailUpdates: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func seedAcceptedSwap(t *testing.T, stores *persistence.Stores, id string, typ domain.SwapType, reserved int) *domain.SwapRequest {
	t.Helper()
	now := time.Now()
	sw := &domain.SwapRequest{
		ID:             id,
		RequesterUID:   "alice",
		RecipientUID:   "bob",
		Status:         domain.SwapAccepted,
		SwapType:       typ,
		RequesterOffer: "Python tutoring",
		RequesterNeed:  "Guitar lessons",
		ConversationID: "conv_" + id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if typ == domain.SwapIndirect {
		sw.RequesterOffer = ""
		sw.PointsOffered = reserved
		sw.PointsReserved = reserved
	}
	require.NoError(t, stores.Swaps.Put(context.Background(), sw))
	return sw
}

func TestFirstMarkOpensWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapDirect, 0)

	sw, err := e.svc.Mark(ctx, "s1", "alice", MarkInput{
		HoursSpent: 2, SkillLevel: domain.LevelAdvanced, Notes: "great session",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SwapPendingCompletion, sw.Status)
	assert.True(t, sw.Completion.Requester.MarkedComplete)
	assert.Equal(t, 2.0, sw.Completion.Requester.HoursClaimed)
	assert.Equal(t, domain.LevelAdvanced, sw.Completion.Requester.SkillLevel)
	assert.Equal(t, "great session", sw.Completion.Requester.Notes)
	assert.False(t, sw.Completion.Recipient.MarkedComplete)
	require.NotNil(t, sw.Completion.AutoCompleteAt)
	assert.WithinDuration(t, time.Now().Add(domain.AutoCompleteWindow), *sw.Completion.AutoCompleteAt, 5*time.Second)

	assert.Equal(t, 1, e.rec.CountTo("bob@example.com"), "other party nudged")

	_, err = e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 1})
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "double mark")
}

func TestDualMarkAveragesAndSettles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapDirect, 0)

	_, err := e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 3, SkillLevel: domain.LevelIntermediate})
	require.NoError(t, err)
	sw, err := e.svc.Mark(ctx, "s1", "bob", MarkInput{HoursSpent: 2, SkillLevel: domain.LevelAdvanced})
	require.NoError(t, err)

	assert.Equal(t, domain.SwapCompleted, sw.Status)
	assert.Equal(t, 2.5, sw.Completion.FinalHours, "claims averaged")
	require.NotNil(t, sw.Completion.CompletedAt)
	assert.Nil(t, sw.Completion.AutoCompleteAt)

	// Second marker's level governs: advanced, 2.5h, fresh profiles.
	// Points round(2.5*10*1.05)=26, credits round(2.5*10*1.25)=31.
	assert.Equal(t, 26, sw.Completion.RequesterPointsEarned)
	assert.Equal(t, 31, sw.Completion.RequesterCreditsEarned)
	assert.Equal(t, 26, sw.Completion.RecipientPointsEarned)
	assert.Equal(t, 31, sw.Completion.RecipientCreditsEarned)

	for _, uid := range []string{"alice", "bob"} {
		p, err := e.stores.Profiles.Get(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, 26, p.SwapPoints, uid)
		assert.Equal(t, 31, p.SwapCredits, uid)
		assert.Equal(t, 1, p.CompletedSwapCount, uid)
		assert.Equal(t, 2.5, p.TotalHoursTraded, uid)
	}

	assert.Equal(t, 1, e.rec.CountTo("alice@example.com"), "completed email")
	assert.Equal(t, 2, e.rec.CountTo("bob@example.com"), "pending nudge plus completed")
}

func TestSecondMarkWithoutLevelUsesFirstClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapDirect, 0)

	_, err := e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 2, SkillLevel: domain.LevelAdvanced})
	require.NoError(t, err)
	sw, err := e.svc.Mark(ctx, "s1", "bob", MarkInput{HoursSpent: 2})
	require.NoError(t, err)

	// Advanced carried over from the first claim: round(2*10*1.05)=21.
	assert.Equal(t, 21, sw.Completion.RequesterPointsEarned)
	assert.Equal(t, 25, sw.Completion.RequesterCreditsEarned)
}

func TestVerifyAdoptsClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapDirect, 0)

	_, err := e.svc.Verify(ctx, "s1", "bob")
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "nothing claimed yet")

	_, err = e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 2, SkillLevel: domain.LevelBeginner})
	require.NoError(t, err)

	_, err = e.svc.Verify(ctx, "s1", "alice")
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "marker cannot verify own claim")

	sw, err := e.svc.Verify(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCompleted, sw.Status)
	assert.Equal(t, 2.0, sw.Completion.FinalHours, "claim adopted, not averaged")
	assert.True(t, sw.Completion.Recipient.MarkedComplete)
	assert.Equal(t, 2.0, sw.Completion.Recipient.HoursClaimed)

	// Beginner level from the claim: points round(2*10*0.80)=16,
	// credits round(2*10*0.75)=15.
	assert.Equal(t, 16, sw.Completion.RequesterPointsEarned)
	assert.Equal(t, 15, sw.Completion.RequesterCreditsEarned)

	_, err = e.svc.Verify(ctx, "s1", "bob")
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "already completed")
}

func TestIndirectSettlementSplitsAwards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	// 30 points already reserved at creation, balance reflects it.
	seedProfile(t, e.stores, "alice", 70)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapIndirect, 30)

	_, err := e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 2, SkillLevel: domain.LevelIntermediate})
	require.NoError(t, err)
	sw, err := e.svc.Verify(ctx, "s1", "bob")
	require.NoError(t, err)

	assert.Zero(t, sw.PointsReserved, "reservation consumed")
	assert.Zero(t, sw.Completion.RequesterPointsEarned, "payer earns no points")
	assert.Equal(t, 10, sw.Completion.RequesterCreditsEarned, "half credits")
	assert.Equal(t, 19, sw.Completion.RecipientPointsEarned)
	assert.Equal(t, 20, sw.Completion.RecipientCreditsEarned)

	alice, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 70, alice.SwapPoints, "no refund, no award")
	assert.Equal(t, 10, alice.SwapCredits)
	assert.Equal(t, 1, alice.CompletedSwapCount)

	bob, err := e.stores.Profiles.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 19, bob.SwapPoints)
	assert.Equal(t, 20, bob.SwapCredits)

	// The payer's ledger shows a zero-amount payment marker.
	txs, err := e.stores.Ledger.ListPoints(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxSpent, txs[0].Type)
	assert.Equal(t, domain.ReasonIndirectPayment, txs[0].Reason)
	assert.Zero(t, txs[0].Amount)
}

func TestDisputeFreezesSwap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 70)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapIndirect, 30)

	_, err := e.svc.Dispute(ctx, "s1", "bob", "never showed up")
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "nothing pending yet")

	_, err = e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 2})
	require.NoError(t, err)

	_, err = e.svc.Dispute(ctx, "s1", "bob", "  ")
	assert.True(t, apperr.IsKind(err, apperr.Validation), "reason required")

	sw, err := e.svc.Dispute(ctx, "s1", "bob", "never showed up")
	require.NoError(t, err)
	assert.Equal(t, domain.SwapDisputed, sw.Status)
	assert.Nil(t, sw.Completion.AutoCompleteAt, "clock stopped")
	assert.Equal(t, "never showed up", sw.Completion.Recipient.DisputeReason)
	require.NotNil(t, sw.Completion.Recipient.DisputedAt)
	assert.Equal(t, 30, sw.PointsReserved, "reservation stays held")

	records, err := e.stores.Disputes.ListBySwap(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bob", records[0].DisputerUID)
	assert.Equal(t, "pending", records[0].Status)

	alice, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 70, alice.SwapPoints, "no refund")
	assert.Zero(t, alice.SwapCredits, "no settlement")
	bob, err := e.stores.Profiles.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bob.SwapPoints, "no settlement")

	// Pending nudge plus the dispute notice.
	assert.Equal(t, 2, e.rec.CountTo("alice@example.com"))

	_, err = e.svc.Mark(ctx, "s1", "bob", MarkInput{HoursSpent: 1})
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "disputed swap is frozen")
}

func TestSweepFinalizesLapsedWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapDirect, 0)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.svc.now = func() time.Time { return base }
	_, err := e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 2, SkillLevel: domain.LevelIntermediate})
	require.NoError(t, err)

	// Window still open: nothing to do.
	e.svc.now = func() time.Time { return base.Add(47 * time.Hour) }
	n, err := e.svc.SweepAutoComplete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.svc.now = func() time.Time { return base.Add(49 * time.Hour) }
	n, err = e.svc.SweepAutoComplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sw, err := e.stores.Swaps.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCompleted, sw.Status)
	assert.Equal(t, 2.0, sw.Completion.FinalHours, "marker's claim accepted")
	assert.True(t, sw.Completion.Recipient.MarkedComplete, "silent party auto-marked")
	assert.Equal(t, 2.0, sw.Completion.Recipient.HoursClaimed)
	assert.Equal(t, 19, sw.Completion.RequesterPointsEarned)
	assert.Equal(t, 20, sw.Completion.RequesterCreditsEarned)

	n, err = e.svc.SweepAutoComplete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sweep is idempotent")
}

func TestMarkGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapDirect, 0)

	_, err := e.svc.Mark(ctx, "missing", "alice", MarkInput{HoursSpent: 1})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = e.svc.Mark(ctx, "s1", "mallory", MarkInput{HoursSpent: 1})
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))

	for _, in := range []MarkInput{
		{HoursSpent: 0.4},
		{HoursSpent: 101},
		{HoursSpent: 1, SkillLevel: "expert"},
	} {
		_, err = e.svc.Mark(ctx, "s1", "alice", in)
		assert.True(t, apperr.IsKind(err, apperr.Validation), "input %+v", in)
	}

	pending := &domain.SwapRequest{
		ID: "s2", RequesterUID: "alice", RecipientUID: "bob",
		Status: domain.SwapPending, SwapType: domain.SwapDirect,
		RequesterOffer: "x", RequesterNeed: "y",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, e.stores.Swaps.Put(ctx, pending))
	_, err = e.svc.Mark(ctx, "s2", "alice", MarkInput{HoursSpent: 1})
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "not accepted yet")
}

func TestStatusSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedAcceptedSwap(t, e.stores, "s1", domain.SwapDirect, 0)

	_, err := e.svc.Mark(ctx, "s1", "alice", MarkInput{HoursSpent: 2, SkillLevel: domain.LevelAdvanced})
	require.NoError(t, err)

	view, err := e.svc.Status(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.SwapPendingCompletion, view.Status)
	assert.Equal(t, "alice", view.Requester.UID)
	assert.True(t, view.Requester.MarkedComplete)
	assert.Equal(t, 2.0, view.Requester.HoursClaimed)
	assert.Equal(t, domain.LevelAdvanced, view.Requester.SkillLevel)
	assert.False(t, view.Recipient.MarkedComplete)
	assert.NotNil(t, view.AutoCompleteAt)
	assert.Nil(t, view.CompletedAt)

	_, err = e.svc.Status(ctx, "s1", "mallory")
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))
}
