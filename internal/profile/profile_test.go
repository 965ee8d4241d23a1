package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/swapd/internal/cache"
	"github.com/skillswap/swapd/internal/domain"
	"github.com/skillswap/swapd/internal/email"
	"github.com/skillswap/swapd/internal/kmutex"
	"github.com/skillswap/swapd/internal/persistence"
	"github.com/skillswap/swapd/internal/persistence/memstore"
	"github.com/skillswap/swapd/internal/vectorindex"
)

type stubEncoder struct {
	vecs map[string][]float32
}

func (s *stubEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0, 0}, nil
}

func (s *stubEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEncoder) Dim() int { return 4 }

type env struct {
	svc    *Service
	stores *persistence.Stores
	index  *vectorindex.Memory
	cache  cache.Cache
	rec    *email.Recorder
	enc    *stubEncoder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	stores := memstore.New()
	idx := vectorindex.NewMemory()
	c := cache.New()
	rec := &email.Recorder{}
	mail := email.New(rec, c, "https://swap.test", false)
	enc := &stubEncoder{vecs: map[string][]float32{}}
	svc := NewService(stores.Profiles, enc, idx, c, mail, kmutex.New(), zerolog.Nop())
	return &env{svc: svc, stores: stores, index: idx, cache: c, rec: rec, enc: enc}
}

func baseInput(uid string) Input {
	return Input{
		UID:            uid,
		Email:          uid + "@example.com",
		DisplayName:    uid,
		SkillsToOffer:  "Python, FastAPI",
		ServicesNeeded: "Guitar, music theory",
	}
}

func TestUpsertCreatesIndexesAndWelcomes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.cache.Set("search:stale", []byte("[]"), time.Minute)

	p, err := e.svc.Upsert(ctx, baseInput("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UID)
	assert.True(t, p.DMOpen)
	assert.True(t, p.EmailUpdates)
	assert.True(t, p.ShowCity)
	assert.False(t, p.CreatedAt.IsZero())

	stored, err := e.stores.Profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Python, FastAPI", stored.SkillsToOffer)

	assert.Equal(t, 1, e.index.Len())
	assert.Equal(t, 1, e.rec.CountTo("alice@example.com"), "welcome email")

	_, hit := e.cache.Get("search:stale")
	assert.False(t, hit, "search cache cleared on upsert")
}

func TestUpsertWithoutBothSkillsSkipsIndex(t *testing.T) {
	e := newEnv(t)
	in := baseInput("bob")
	in.ServicesNeeded = "  "

	p, err := e.svc.Upsert(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, p.Indexable())
	assert.Equal(t, 0, e.index.Len())
}

func TestUpsertPreservesServerFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, e.stores.Profiles.Put(ctx, &domain.Profile{
		UID: "carol", Email: "carol@example.com", DisplayName: "carol",
		SwapPoints: 120, LifetimePointsEarned: 300, SwapCredits: 40,
		CompletedSwapCount: 7, TotalHoursTraded: 15.5,
		AverageRating: 4.6, ReviewCount: 9, ResponseRate: 83.3,
		EmailUpdates: true, CreatedAt: created, UpdatedAt: created,
	}))

	in := baseInput("carol")
	in.Bio = "updated bio"
	p, err := e.svc.Upsert(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "updated bio", p.Bio)
	assert.Equal(t, 120, p.SwapPoints)
	assert.Equal(t, 300, p.LifetimePointsEarned)
	assert.Equal(t, 40, p.SwapCredits)
	assert.Equal(t, 7, p.CompletedSwapCount)
	assert.Equal(t, 15.5, p.TotalHoursTraded)
	assert.Equal(t, 4.6, p.AverageRating)
	assert.Equal(t, 9, p.ReviewCount)
	assert.Equal(t, 83.3, p.ResponseRate)
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, 0, e.rec.CountTo("carol@example.com"), "no welcome on update")
}

func TestUpsertValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := baseInput("  ")
	_, err := e.svc.Upsert(ctx, in)
	assert.Error(t, err)

	in = baseInput("dave")
	in.Email = ""
	_, err = e.svc.Upsert(ctx, in)
	assert.Error(t, err)
}

func TestUpsertRespectsEmailOptOut(t *testing.T) {
	e := newEnv(t)
	optOut := false
	in := baseInput("erin")
	in.EmailUpdates = &optOut

	p, err := e.svc.Upsert(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, p.EmailUpdates)
	assert.Empty(t, e.rec.Sent())
}

func TestPatchReindexesOnlyOnSkillChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.enc.vecs["Python, FastAPI"] = []float32{1, 0, 0, 0}
	e.enc.vecs["Violin repair and setup"] = []float32{0, 1, 0, 0}

	_, err := e.svc.Upsert(ctx, baseInput("alice"))
	require.NoError(t, err)

	bio := "new bio"
	_, err = e.svc.Patch(ctx, "alice", &domain.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	hits, err := e.index.Search(ctx, vectorindex.FieldOffer, []float32{1, 0, 0, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1, "vector untouched by a bio patch")

	skills := "Violin repair and setup"
	p, err := e.svc.Patch(ctx, "alice", &domain.ProfileUpdate{SkillsToOffer: &skills})
	require.NoError(t, err)
	assert.Equal(t, skills, p.SkillsToOffer)

	hits, err = e.index.Search(ctx, vectorindex.FieldOffer, []float32{0, 1, 0, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1, "vector follows the new skill text")
	assert.Equal(t, "alice", hits[0].UID)
}

func TestPatchDropsIndexEntryWhenSkillsEmptied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.Upsert(ctx, baseInput("alice"))
	require.NoError(t, err)
	require.Equal(t, 1, e.index.Len())

	empty := ""
	_, err = e.svc.Patch(ctx, "alice", &domain.ProfileUpdate{ServicesNeeded: &empty})
	require.NoError(t, err)
	assert.Equal(t, 0, e.index.Len())
}

func TestPatchUnknownProfile(t *testing.T) {
	e := newEnv(t)
	bio := "x"
	_, err := e.svc.Patch(context.Background(), "ghost", &domain.ProfileUpdate{Bio: &bio})
	assert.Error(t, err)
}

func TestPatchClearsSearchCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.Upsert(ctx, baseInput("alice"))
	require.NoError(t, err)

	e.cache.Set("search:abc", []byte("[]"), time.Minute)
	e.cache.Set("skill_recommend:abc", []byte("[]"), time.Minute)

	bio := "changed"
	_, err = e.svc.Patch(ctx, "alice", &domain.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)

	_, hit := e.cache.Get("search:abc")
	assert.False(t, hit)
	_, hit = e.cache.Get("skill_recommend:abc")
	assert.False(t, hit)
}

func TestDeleteRemovesStoreAndIndex(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.Upsert(ctx, baseInput("alice"))
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, "alice"))

	_, err = e.stores.Profiles.Get(ctx, "alice")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.Equal(t, 0, e.index.Len())

	assert.Error(t, e.svc.Delete(ctx, "alice"), "second delete misses")
}

func TestGetByEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.Upsert(ctx, baseInput("alice"))
	require.NoError(t, err)

	p, err := e.svc.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UID)

	_, err = e.svc.GetByEmail(ctx, "nobody@example.com")
	assert.Error(t, err)
}

func TestReindexAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	now := time.Now()
	for _, uid := range []string{"a", "b"} {
		require.NoError(t, e.stores.Profiles.Put(ctx, &domain.Profile{
			UID: uid, Email: uid + "@example.com", DisplayName: uid,
			SkillsToOffer: "Cooking classes", ServicesNeeded: "Photography",
			CreatedAt: now, UpdatedAt: now,
		}))
	}
	require.NoError(t, e.stores.Profiles.Put(ctx, &domain.Profile{
		UID: "c", Email: "c@example.com", DisplayName: "c",
		CreatedAt: now, UpdatedAt: now,
	}))

	indexed, err := e.svc.ReindexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
	assert.Equal(t, 2, e.index.Len(), "skill-less profile stays out of the index")
}

type failingIndex struct {
	vectorindex.Index
}

func (f *failingIndex) Upsert(context.Context, vectorindex.Document) error {
	return errors.New("index offline")
}

func TestUpsertSurvivesIndexOutage(t *testing.T) {
	stores := memstore.New()
	c := cache.New()
	enc := &stubEncoder{vecs: map[string][]float32{}}
	svc := NewService(stores.Profiles, enc, &failingIndex{Index: vectorindex.NewMemory()},
		c, nil, kmutex.New(), zerolog.Nop())

	p, err := svc.Upsert(context.Background(), baseInput("alice"))
	require.NoError(t, err, "store write wins even when the index is down")
	assert.Equal(t, "alice", p.UID)

	_, err = stores.Profiles.Get(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestReindexSurfacesIndexErrors(t *testing.T) {
	stores := memstore.New()
	enc := &stubEncoder{vecs: map[string][]float32{}}
	svc := NewService(stores.Profiles, enc, &failingIndex{Index: vectorindex.NewMemory()},
		cache.New(), nil, kmutex.New(), zerolog.Nop())

	now := time.Now()
	require.NoError(t, stores.Profiles.Put(context.Background(), &domain.Profile{
		UID: "alice", Email: "alice@example.com", DisplayName: "alice",
		SkillsToOffer: "A long skill", ServicesNeeded: "Another skill",
		CreatedAt: now, UpdatedAt: now,
	}))

	err := svc.Reindex(context.Background(), "alice")
	require.Error(t, err, "explicit reindex reports what upsert only warns about")
	assert.Contains(t, fmt.Sprint(err), "index")
}
