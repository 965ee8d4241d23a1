package swap

import (
	"context"
	"fmt"
	"strings"
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
	eco    *economy.Service
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
	return &env{svc: svc, stores: stores, eco: eco, rec: rec}
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

func directInput(recipient string) CreateInput {
	return CreateInput{
		RecipientUID:   recipient,
		SwapType:       domain.SwapDirect,
		RequesterOffer: "Python tutoring",
		RequesterNeed:  "Guitar lessons",
		Message:        "Trade?",
	}
}

func indirectInput(recipient string, points int) CreateInput {
	return CreateInput{
		RecipientUID:  recipient,
		SwapType:      domain.SwapIndirect,
		RequesterNeed: "Guitar lessons",
		PointsOffered: points,
	}
}

func TestCreateDirectSwap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)

	swap, err := e.svc.Create(ctx, "alice", directInput("bob"))
	require.NoError(t, err)
	assert.NotEmpty(t, swap.ID)
	assert.Equal(t, domain.SwapPending, swap.Status)
	assert.Equal(t, "alice", swap.RequesterUID)
	assert.Equal(t, "bob", swap.RecipientUID)
	assert.Equal(t, "Python tutoring", swap.RequesterOffer)
	assert.Zero(t, swap.PointsReserved)
	assert.False(t, swap.CreatedAt.IsZero())

	stored, err := e.stores.Swaps.Get(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapPending, stored.Status)

	require.Equal(t, 1, e.rec.CountTo("bob@example.com"), "recipient notified")
	assert.Contains(t, e.rec.Sent()[0].Subject, "wants to swap")
}

func TestCreateIndirectReservesPoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 100)
	seedProfile(t, e.stores, "bob", 0)

	swap, err := e.svc.Create(ctx, "alice", indirectInput("bob", 30))
	require.NoError(t, err)
	assert.Equal(t, 30, swap.PointsOffered)
	assert.Equal(t, 30, swap.PointsReserved)

	p, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 70, p.SwapPoints)

	txs, err := e.stores.Ledger.ListPoints(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxSpent, txs[0].Type)
	assert.Equal(t, domain.ReasonIndirectReserved, txs[0].Reason)
	assert.Equal(t, swap.ID, txs[0].RelatedSwapID)
}

func TestCreateIndirectInsufficientRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 10)
	seedProfile(t, e.stores, "bob", 0)

	_, err := e.svc.Create(ctx, "alice", indirectInput("bob", 50))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.InsufficientFunds))

	p, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, p.SwapPoints, "balance untouched")

	out, err := e.svc.Outgoing(ctx, "alice", "", 0)
	require.NoError(t, err)
	assert.Empty(t, out, "unfunded request removed")
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 100)
	seedProfile(t, e.stores, "bob", 0)

	cases := []struct {
		name string
		uid  string
		in   CreateInput
	}{
		{"self request", "bob", directInput("bob")},
		{"missing need", "alice", CreateInput{
			RecipientUID: "bob", SwapType: domain.SwapDirect, RequesterOffer: "x",
		}},
		{"direct without offer", "alice", CreateInput{
			RecipientUID: "bob", SwapType: domain.SwapDirect, RequesterNeed: "y",
		}},
		{"indirect without points", "alice", indirectInput("bob", 0)},
		{"unknown type", "alice", CreateInput{
			RecipientUID: "bob", SwapType: "barter", RequesterNeed: "y",
		}},
		{"missing recipient", "alice", CreateInput{
			SwapType: domain.SwapDirect, RequesterOffer: "x", RequesterNeed: "y",
		}},
		{"overlong message", "alice", CreateInput{
			RecipientUID: "bob", SwapType: domain.SwapDirect,
			RequesterOffer: "x", RequesterNeed: "y",
			Message: strings.Repeat("a", domain.MaxSwapMessageLen+1),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, tc.uid, tc.in)
			assert.True(t, apperr.IsKind(err, apperr.Validation), "got %v", err)
		})
	}
}

func TestCreateUnknownRecipient(t *testing.T) {
	e := newEnv(t)
	seedProfile(t, e.stores, "alice", 0)

	_, err := e.svc.Create(context.Background(), "alice", directInput("ghost"))
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestCreateBlockedEitherDirection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	require.NoError(t, e.stores.Blocks.Put(ctx, &domain.Block{
		BlockerUID: "bob", BlockedUID: "alice", CreatedAt: time.Now(),
	}))

	_, err := e.svc.Create(ctx, "alice", directInput("bob"))
	assert.True(t, apperr.IsKind(err, apperr.Forbidden), "blocked by recipient")

	_, err = e.svc.Create(ctx, "bob", directInput("alice"))
	assert.True(t, apperr.IsKind(err, apperr.Forbidden), "blocker cannot request either")
}

func TestCreateDuplicatePending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)

	_, err := e.svc.Create(ctx, "alice", directInput("bob"))
	require.NoError(t, err)

	_, err = e.svc.Create(ctx, "alice", directInput("bob"))
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	// The reverse direction is a different ordered pair.
	_, err = e.svc.Create(ctx, "bob", directInput("alice"))
	assert.NoError(t, err)
}

func TestAcceptOpensConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)

	created, err := e.svc.Create(ctx, "alice", directInput("bob"))
	require.NoError(t, err)

	swap, err := e.svc.Respond(ctx, created.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapAccepted, swap.Status)
	assert.Equal(t, "conv_"+created.ID, swap.ConversationID)
	require.NotNil(t, swap.RespondedAt)

	conv, err := e.stores.Conversations.Get(ctx, swap.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, conv.ParticipantUIDs)
	assert.Equal(t, domain.ConversationActive, conv.Status)
	assert.Equal(t, created.ID, conv.SwapRequestID)
	assert.Equal(t, 0, conv.UnreadCounts["alice"])
	assert.Equal(t, 0, conv.UnreadCounts["bob"])
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, domain.SystemSender, conv.LastMessage.SenderUID)

	msgs, err := e.stores.Messages.List(ctx, conv.ID, 10, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageSystem, msgs[0].Type)
	assert.Equal(t, domain.SystemSender, msgs[0].SenderUID)
	assert.Equal(t,
		"Swap accepted! You can now start chatting and coordinate your skill exchange.",
		msgs[0].Content)

	assert.Equal(t, 1, e.rec.CountTo("alice@example.com"), "requester notified")

	p, err := e.stores.Profiles.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.ResponseRate)
}

func TestAcceptIndirectMentionsPoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 100)
	seedProfile(t, e.stores, "bob", 0)

	created, err := e.svc.Create(ctx, "alice", indirectInput("bob", 30))
	require.NoError(t, err)

	swap, err := e.svc.Respond(ctx, created.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, 30, swap.PointsReserved, "reservation held until completion")

	msgs, err := e.stores.Messages.List(ctx, swap.ConversationID, 10, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "points-based swap (30 points)")
}

func TestDeclineRefundsReservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 100)
	seedProfile(t, e.stores, "bob", 0)

	created, err := e.svc.Create(ctx, "alice", indirectInput("bob", 30))
	require.NoError(t, err)

	swap, err := e.svc.Respond(ctx, created.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapDeclined, swap.Status)
	assert.Zero(t, swap.PointsReserved)

	p, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, p.SwapPoints, "reservation returned")

	txs, err := e.stores.Ledger.ListPoints(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.ReasonIndirectRefund, txs[0].Reason, "newest first")

	// No conversation for a declined request.
	_, err = e.stores.Conversations.Get(ctx, "conv_"+created.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	assert.Equal(t, 1, e.rec.CountTo("alice@example.com"), "requester notified of decline")
}

func TestRespondGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)

	created, err := e.svc.Create(ctx, "alice", directInput("bob"))
	require.NoError(t, err)

	_, err = e.svc.Respond(ctx, created.ID, "alice", true)
	assert.True(t, apperr.IsKind(err, apperr.Forbidden), "requester cannot respond")

	_, err = e.svc.Respond(ctx, "nope", "bob", true)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = e.svc.Respond(ctx, created.ID, "bob", true)
	require.NoError(t, err)
	_, err = e.svc.Respond(ctx, created.ID, "bob", false)
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "already answered")
}

func TestCancelRefundsAndGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 100)
	seedProfile(t, e.stores, "bob", 0)

	created, err := e.svc.Create(ctx, "alice", indirectInput("bob", 40))
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, created.ID, "bob")
	assert.True(t, apperr.IsKind(err, apperr.Forbidden), "recipient cannot cancel")

	swap, err := e.svc.Cancel(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCancelled, swap.Status)

	p, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, p.SwapPoints)

	_, err = e.svc.Cancel(ctx, created.ID, "alice")
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "no longer pending")
}

func TestResponseRateCountsAnsweredOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "carol", 0)
	seedProfile(t, e.stores, "bob", 0)

	first, err := e.svc.Create(ctx, "alice", directInput("bob"))
	require.NoError(t, err)
	_, err = e.svc.Create(ctx, "carol", directInput("bob"))
	require.NoError(t, err)

	_, err = e.svc.Respond(ctx, first.ID, "bob", false)
	require.NoError(t, err)

	p, err := e.stores.Profiles.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.ResponseRate, "one of two answered")
}

func TestListsSortedAndFiltered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)
	seedProfile(t, e.stores, "carol", 0)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	e.svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	first, err := e.svc.Create(ctx, "alice", directInput("bob"))
	require.NoError(t, err)
	second, err := e.svc.Create(ctx, "carol", directInput("bob"))
	require.NoError(t, err)
	_, err = e.svc.Respond(ctx, first.ID, "bob", true)
	require.NoError(t, err)

	incoming, err := e.svc.Incoming(ctx, "bob", "", 0)
	require.NoError(t, err)
	require.Len(t, incoming, 2)
	assert.Equal(t, second.ID, incoming[0].ID, "newest created first")
	assert.Equal(t, first.ID, incoming[1].ID)

	pending, err := e.svc.Incoming(ctx, "bob", domain.SwapPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	outgoing, err := e.svc.Outgoing(ctx, "alice", "", 0)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, first.ID, outgoing[0].ID)

	_, err = e.svc.Incoming(ctx, "bob", "sideways", 0)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestGetParticipantsOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "alice", 0)
	seedProfile(t, e.stores, "bob", 0)

	created, err := e.svc.Create(ctx, "alice", directInput("bob"))
	require.NoError(t, err)

	got, err := e.svc.Get(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = e.svc.Get(ctx, created.ID, "mallory")
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))

	_, err = e.svc.Get(ctx, "missing", "alice")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestManyRequestsKeepDistinctPairs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedProfile(t, e.stores, "hub", 0)
	for i := 0; i < 5; i++ {
		uid := fmt.Sprintf("user%d", i)
		seedProfile(t, e.stores, uid, 0)
		_, err := e.svc.Create(ctx, uid, directInput("hub"))
		require.NoError(t, err)
	}

	incoming, err := e.svc.Incoming(ctx, "hub", domain.SwapPending, 0)
	require.NoError(t, err)
	assert.Len(t, incoming, 5)
}
