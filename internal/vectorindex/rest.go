package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	apiVersion     = "2023-11-01"
	requestTimeout = 5 * time.Second
)

// REST targets a hybrid-search service: index definitions with HNSW/cosine
// vector fields, mergeOrUpload document batches, and vectorQueries search.
type REST struct {
	endpoint string
	apiKey   string
	index    string
	dim      int
	http     *http.Client
	calls    *prometheus.CounterVec
}

// NewREST builds the production index adapter. dim is the dimensionality of
// both vector fields.
func NewREST(endpoint, apiKey, index string, dim int) *REST {
	return &REST{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		index:    index,
		dim:      dim,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// Instrument counts index calls by operation and result. Nil leaves calls
// uncounted.
func (r *REST) Instrument(calls *prometheus.CounterVec) *REST {
	r.calls = calls
	return r
}

func (r *REST) observe(op string, err error) {
	if r.calls == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.calls.WithLabelValues(op, outcome).Inc()
}

func (r *REST) url(path string) string {
	return fmt.Sprintf("%s%s?api-version=%s", r.endpoint, path, url.QueryEscape(apiVersion))
}

func (r *REST) do(ctx context.Context, method, rawURL string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", r.apiKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("index request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read index response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// EnsureIndex creates or updates the index schema. 409 from a concurrent
// create counts as success.
func (r *REST) EnsureIndex(ctx context.Context) (err error) {
	defer func() { r.observe("ensure", err) }()

	schema := map[string]any{
		"name": r.index,
		"fields": []map[string]any{
			{"name": "id", "type": "Edm.String", "key": true, "filterable": true},
			{"name": "display_name", "type": "Edm.String", "searchable": true},
			{"name": "photo_url", "type": "Edm.String", "retrievable": true},
			{"name": "bio", "type": "Edm.String", "searchable": true},
			{"name": "city", "type": "Edm.String", "filterable": true},
			{"name": "show_city", "type": "Edm.Boolean", "filterable": true},
			{"name": "skills_to_offer", "type": "Edm.String", "searchable": true},
			{"name": "services_needed", "type": "Edm.String", "searchable": true},
			{
				"name":                "offer_vec",
				"type":                "Collection(Edm.Single)",
				"searchable":          true,
				"dimensions":          r.dim,
				"vectorSearchProfile": "vec-profile",
			},
			{
				"name":                "need_vec",
				"type":                "Collection(Edm.Single)",
				"searchable":          true,
				"dimensions":          r.dim,
				"vectorSearchProfile": "vec-profile",
			},
		},
		"vectorSearch": map[string]any{
			"algorithms": []map[string]any{
				{
					"name": "hnsw-cosine",
					"kind": "hnsw",
					"hnswParameters": map[string]any{
						"metric":         "cosine",
						"m":              4,
						"efConstruction": 400,
						"efSearch":       500,
					},
				},
			},
			"profiles": []map[string]any{
				{"name": "vec-profile", "algorithm": "hnsw-cosine"},
			},
		},
	}

	data, status, err := r.do(ctx, http.MethodPut, r.url("/indexes/"+url.PathEscape(r.index)), schema)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusConflict:
		return nil
	}
	return fmt.Errorf("index creation returned %d: %s", status, truncate(string(data), 200))
}

type indexBatch struct {
	Value []map[string]any `json:"value"`
}

// Upsert merges or uploads one document.
func (r *REST) Upsert(ctx context.Context, doc Document) (err error) {
	defer func() { r.observe("upsert", err) }()

	batch := indexBatch{Value: []map[string]any{{
		"@search.action":  "mergeOrUpload",
		"id":              doc.UID,
		"display_name":    doc.Payload.DisplayName,
		"photo_url":       doc.Payload.PhotoURL,
		"bio":             doc.Payload.Bio,
		"city":            doc.Payload.City,
		"show_city":       doc.Payload.ShowCity,
		"skills_to_offer": doc.Payload.SkillsToOffer,
		"services_needed": doc.Payload.ServicesNeeded,
		"offer_vec":       doc.OfferVec,
		"need_vec":        doc.NeedVec,
	}}}

	data, status, err := r.do(ctx, http.MethodPost, r.url("/indexes/"+url.PathEscape(r.index)+"/docs/index"), batch)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("index upsert returned %d: %s", status, truncate(string(data), 200))
	}
	return nil
}

type searchRequest struct {
	Select        string        `json:"select"`
	Top           int           `json:"top"`
	VectorQueries []vectorQuery `json:"vectorQueries"`
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchResponse struct {
	Value []searchHit `json:"value"`
}

type searchHit struct {
	Score          float64 `json:"@search.score"`
	ID             string  `json:"id"`
	DisplayName    string  `json:"display_name"`
	PhotoURL       string  `json:"photo_url"`
	Bio            string  `json:"bio"`
	City           string  `json:"city"`
	ShowCity       bool    `json:"show_city"`
	SkillsToOffer  string  `json:"skills_to_offer"`
	ServicesNeeded string  `json:"services_needed"`
}

// Search runs a k-NN query on the chosen vector field.
func (r *REST) Search(ctx context.Context, field Field, vec []float32, k int, threshold float64) (results []Result, err error) {
	defer func() { r.observe("search", err) }()

	req := searchRequest{
		Select: "id,display_name,photo_url,bio,city,show_city,skills_to_offer,services_needed",
		Top:    k,
		VectorQueries: []vectorQuery{{
			Kind:   "vector",
			Vector: vec,
			Fields: string(field),
			K:      k,
		}},
	}

	data, status, err := r.do(ctx, http.MethodPost, r.url("/indexes/"+url.PathEscape(r.index)+"/docs/search"), req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("index search returned %d: %s", status, truncate(string(data), 200))
	}

	var parsed searchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results = make([]Result, 0, len(parsed.Value))
	for _, hit := range parsed.Value {
		if hit.Score < threshold {
			continue
		}
		results = append(results, Result{
			UID:   hit.ID,
			Score: hit.Score,
			Payload: Payload{
				UID:            hit.ID,
				DisplayName:    hit.DisplayName,
				PhotoURL:       hit.PhotoURL,
				Bio:            hit.Bio,
				City:           hit.City,
				ShowCity:       hit.ShowCity,
				SkillsToOffer:  hit.SkillsToOffer,
				ServicesNeeded: hit.ServicesNeeded,
			},
		})
	}
	return results, nil
}

// Delete removes the document from the index.
func (r *REST) Delete(ctx context.Context, uid string) (err error) {
	defer func() { r.observe("delete", err) }()

	batch := indexBatch{Value: []map[string]any{{
		"@search.action": "delete",
		"id":             uid,
	}}}

	data, status, err := r.do(ctx, http.MethodPost, r.url("/indexes/"+url.PathEscape(r.index)+"/docs/index"), batch)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("index delete returned %d: %s", status, truncate(string(data), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
