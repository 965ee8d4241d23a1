package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/skillswap/swapd/internal/embedding"
)

// Memory is the in-process index used in tests and when no search endpoint
// is configured. Exhaustive cosine scan; fine for the cardinalities a
// single process handles without an external index.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemory builds an empty in-process index.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

// EnsureIndex is a no-op for the in-process index.
func (m *Memory) EnsureIndex(_ context.Context) error { return nil }

// Upsert inserts or replaces the document.
func (m *Memory) Upsert(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.OfferVec = append([]float32(nil), doc.OfferVec...)
	doc.NeedVec = append([]float32(nil), doc.NeedVec...)
	m.docs[doc.UID] = doc
	return nil
}

// Search ranks by cosine similarity (dot product on unit vectors), ties
// broken by uid for deterministic output.
func (m *Memory) Search(_ context.Context, field Field, vec []float32, k int, threshold float64) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.docs))
	for _, doc := range m.docs {
		target := doc.OfferVec
		if field == FieldNeed {
			target = doc.NeedVec
		}
		score := embedding.Dot(vec, target)
		if score >= threshold {
			results = append(results, Result{UID: doc.UID, Score: score, Payload: doc.Payload})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UID < results[j].UID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes the document; deleting an absent uid is a no-op.
func (m *Memory) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, uid)
	return nil
}

// Len reports the number of indexed documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
