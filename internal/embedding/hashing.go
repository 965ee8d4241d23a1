package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashingEncoder is the deterministic offline encoder used when no provider
// is configured and in tests: tokens hash into signed buckets, so texts
// sharing words land near each other in cosine space. It is NOT a semantic
// model; production deployments configure the HTTP client.
type HashingEncoder struct {
	dim int
}

// NewHashingEncoder builds an encoder of the given dimension.
func NewHashingEncoder(dim int) *HashingEncoder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEncoder{dim: dim}
}

// Dim returns the vector dimension.
func (e *HashingEncoder) Dim() int { return e.dim }

// Encode hashes tokens into a unit vector.
func (e *HashingEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dim))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}
	return Normalize(vec), nil
}

// EncodeBatch encodes each text independently.
func (e *HashingEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
