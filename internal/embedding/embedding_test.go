package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_UnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-6, "normalised vector must have unit length")
}

func TestNormalize_ZeroVectorStaysZero(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestHashingEncoder_Deterministic(t *testing.T) {
	enc := NewHashingEncoder(256)
	ctx := context.Background()

	a, err := enc.Encode(ctx, "Python, FastAPI")
	require.NoError(t, err)
	b, err := enc.Encode(ctx, "Python, FastAPI")
	require.NoError(t, err)
	assert.Equal(t, a, b, "same text must encode identically")
}

func TestHashingEncoder_SharedTokensScoreHigher(t *testing.T) {
	enc := NewHashingEncoder(512)
	ctx := context.Background()

	python, err := enc.Encode(ctx, "Python, FastAPI")
	require.NoError(t, err)
	pythonWeb, err := enc.Encode(ctx, "Python, web development")
	require.NoError(t, err)
	guitar, err := enc.Encode(ctx, "Guitar lessons, music theory")
	require.NoError(t, err)

	related := Dot(python, pythonWeb)
	unrelated := Dot(python, guitar)
	assert.Greater(t, related, 0.3, "texts sharing a token should clear the search threshold")
	assert.Greater(t, related, unrelated, "shared-token similarity must beat disjoint texts")
}

func TestHashingEncoder_UnitVectors(t *testing.T) {
	enc := NewHashingEncoder(128)
	v, err := enc.Encode(context.Background(), "guitar music theory")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestHashingEncoder_Batch(t *testing.T) {
	enc := NewHashingEncoder(128)
	vecs, err := enc.EncodeBatch(context.Background(), []string{"guitar", "piano"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := enc.Encode(context.Background(), "guitar")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0], "batch encoding must match single encoding")
}

func TestDot_Symmetric(t *testing.T) {
	a := Normalize([]float32{1, 2, 3})
	b := Normalize([]float32{4, 5, 6})
	assert.InDelta(t, Dot(a, b), Dot(b, a), 1e-9)
	assert.LessOrEqual(t, math.Abs(Dot(a, b)), 1.0+1e-9, "cosine of unit vectors stays in [-1, 1]")
}
