package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPSender delivers through a Resend-compatible REST API:
// POST {endpoint}/emails with a bearer key.
type HTTPSender struct {
	endpoint string
	apiKey   string
	from     string
	http     *http.Client
}

// NewHTTPSender builds the production sender.
func NewHTTPSender(endpoint, apiKey, from string) *HTTPSender {
	return &HTTPSender{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		from:     from,
		http:     &http.Client{Timeout: sendTimeout},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send posts one email.
func (s *HTTPSender) Send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(sendRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

// Recorder captures sends for tests.
type Recorder struct {
	mu    sync.Mutex
	Sends []RecordedSend
}

// RecordedSend is one captured email.
type RecordedSend struct {
	To      string
	Subject string
	HTML    string
}

// Send records the email and always succeeds.
func (r *Recorder) Send(_ context.Context, to, subject, html string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sends = append(r.Sends, RecordedSend{To: to, Subject: subject, HTML: html})
	return nil
}

// Sent returns a copy of the captured sends.
func (r *Recorder) Sent() []RecordedSend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedSend(nil), r.Sends...)
}

// CountTo returns how many emails went to the address.
func (r *Recorder) CountTo(to string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.Sends {
		if s.To == to {
			n++
		}
	}
	return n
}
