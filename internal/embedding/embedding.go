// Package embedding converts free-text skill strings into fixed-dimension
// unit vectors. Vectors are L2-normalised by contract so downstream cosine
// similarity reduces to a dot product.
package embedding

import (
	"context"
	"math"
)

// Client encodes text into unit vectors of a fixed dimension. Retries are
// the caller's concern; implementations fail fast.
type Client interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// stay zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Dot is the cosine similarity of two unit vectors.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
