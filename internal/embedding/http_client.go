package embedding

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
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const requestTimeout = 10 * time.Second

// HTTPClient talks to an OpenAI-compatible embeddings endpoint. Deployment
// selects the model; an api_version query parameter is appended when set
// (Azure-style deployments expect it).
type HTTPClient struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	dim        int

	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	calls   *prometheus.CounterVec
}

// NewHTTPClient builds the production embedding client.
func NewHTTPClient(endpoint, apiKey, deployment, apiVersion string, dim int) *HTTPClient {
	c := &HTTPClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		deployment: deployment,
		apiVersion: apiVersion,
		dim:        dim,
		http:       &http.Client{Timeout: requestTimeout},
	}

	settings := gobreaker.Settings{
		Name:        "embeddings",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Embedding circuit breaker state changed")
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(settings)
	return c
}

// Instrument counts provider calls by result. Nil leaves calls uncounted.
func (c *HTTPClient) Instrument(calls *prometheus.CounterVec) *HTTPClient {
	c.calls = calls
	return c
}

// Dim returns the configured vector dimension.
func (c *HTTPClient) Dim() int { return c.dim }

// Encode embeds a single text.
func (c *HTTPClient) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EncodeBatch embeds several texts in one provider call.
func (c *HTTPClient) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.encodeBatch(ctx, texts)
	})
	if c.calls != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.calls.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *HTTPClient) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: c.deployment, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embeddings request: %w", err)
	}

	endpoint := c.endpoint + "/embeddings"
	if c.apiVersion != "" {
		endpoint += "?api-version=" + url.QueryEscape(c.apiVersion)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings provider returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embeddings provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings provider returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	// The provider may reorder; index is authoritative.
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embeddings provider returned out-of-range index %d", d.Index)
		}
		if len(d.Embedding) != c.dim {
			return nil, fmt.Errorf("embeddings dimension mismatch: got %d, want %d", len(d.Embedding), c.dim)
		}
		out[d.Index] = Normalize(d.Embedding)
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embeddings provider skipped input %d", i)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
