// Package vectorindex adapts the profile search index: documents keyed by
// uid carrying two named dense vectors (offer_vec, need_vec) plus a
// projected profile payload. The index is NOT the source of truth; write
// failures are surfaced as warnings and repaired by reindexing.
package vectorindex

import (
	"context"
)

// Field selects which vector a search runs against. The value is the index
// field name.
type Field string

const (
	FieldOffer Field = "offer_vec"
	FieldNeed  Field = "need_vec"
)

// Payload is the profile projection stored alongside the vectors.
type Payload struct {
	UID            string `json:"uid"`
	DisplayName    string `json:"display_name"`
	PhotoURL       string `json:"photo_url,omitempty"`
	Bio            string `json:"bio,omitempty"`
	City           string `json:"city,omitempty"`
	ShowCity       bool   `json:"show_city"`
	SkillsToOffer  string `json:"skills_to_offer"`
	ServicesNeeded string `json:"services_needed"`
}

// Document is one indexed profile.
type Document struct {
	UID      string
	OfferVec []float32
	NeedVec  []float32
	Payload  Payload
}

// Result is one search hit; Score is cosine similarity in [0, 1].
type Result struct {
	UID     string
	Score   float64
	Payload Payload
}

// Index is the vector store adapter.
type Index interface {
	// EnsureIndex creates the schema idempotently; safe on every start.
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, doc Document) error
	// Search returns hits with score >= threshold, descending, at most k.
	Search(ctx context.Context, field Field, vec []float32, k int, threshold float64) ([]Result, error)
	Delete(ctx context.Context, uid string) error
}
