package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(uid string, offer, need []float32) Document {
	return Document{
		UID:      uid,
		OfferVec: offer,
		NeedVec:  need,
		Payload:  Payload{UID: uid, DisplayName: uid},
	}
}

func TestMemory_SearchRanksByScore(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc("close", []float32{1, 0}, []float32{0, 1})))
	require.NoError(t, idx.Upsert(ctx, doc("mid", []float32{0.8, 0.6}, []float32{0, 1})))
	require.NoError(t, idx.Upsert(ctx, doc("far", []float32{0, 1}, []float32{1, 0})))

	results, err := idx.Search(ctx, FieldOffer, []float32{1, 0}, 10, 0.2)
	require.NoError(t, err)

	require.Len(t, results, 2, "far has similarity 0 and must be filtered")
	assert.Equal(t, "close", results[0].UID)
	assert.Equal(t, "mid", results[1].UID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemory_SearchHonorsKAndThreshold(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc("a", []float32{1, 0}, nil)))
	require.NoError(t, idx.Upsert(ctx, doc("b", []float32{0.9, 0.43589}, nil)))
	require.NoError(t, idx.Upsert(ctx, doc("c", []float32{0.7, 0.714}, nil)))

	results, err := idx.Search(ctx, FieldOffer, []float32{1, 0}, 2, 0.0)
	require.NoError(t, err)
	assert.Len(t, results, 2, "k must cap the result set")

	results, err = idx.Search(ctx, FieldOffer, []float32{1, 0}, 10, 0.95)
	require.NoError(t, err)
	assert.Len(t, results, 1, "threshold must filter low scores")
	assert.Equal(t, "a", results[0].UID)
}

func TestMemory_SearchSelectsNamedVector(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc("u", []float32{1, 0}, []float32{0, 1})))

	offerHits, err := idx.Search(ctx, FieldOffer, []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, offerHits, 1)

	needHits, err := idx.Search(ctx, FieldNeed, []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, needHits, "need_vec is orthogonal to the query")
}

func TestMemory_UpsertReplacesAndDeleteRemoves(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc("u", []float32{1, 0}, nil)))
	require.NoError(t, idx.Upsert(ctx, doc("u", []float32{0, 1}, nil)))
	assert.Equal(t, 1, idx.Len(), "upsert must replace, not duplicate")

	hits, err := idx.Search(ctx, FieldOffer, []float32{0, 1}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1, "replaced vector must be searchable")

	require.NoError(t, idx.Delete(ctx, "u"))
	assert.Equal(t, 0, idx.Len())
	require.NoError(t, idx.Delete(ctx, "u"), "double delete is a no-op")
}

func TestMemory_TieBreakByUID(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, doc("bbb", []float32{1, 0}, nil)))
	require.NoError(t, idx.Upsert(ctx, doc("aaa", []float32{1, 0}, nil)))

	results, err := idx.Search(ctx, FieldOffer, []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "aaa", results[0].UID, "equal scores order by uid")
}
