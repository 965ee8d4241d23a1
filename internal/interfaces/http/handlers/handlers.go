// Package handlers implements the HTTP endpoint handlers. Each handler
// resolves the acting user, decodes its payload, delegates to the owning
// service, and renders the service result or the mapped error body.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/skillswap/swapd/internal/apperr"
	"github.com/skillswap/swapd/internal/completion"
	"github.com/skillswap/swapd/internal/economy"
	httpContracts "github.com/skillswap/swapd/internal/http"
	"github.com/skillswap/swapd/internal/match"
	"github.com/skillswap/swapd/internal/messaging"
	"github.com/skillswap/swapd/internal/moderation"
	"github.com/skillswap/swapd/internal/portfolio"
	"github.com/skillswap/swapd/internal/profile"
	"github.com/skillswap/swapd/internal/review"
	"github.com/skillswap/swapd/internal/search"
	"github.com/skillswap/swapd/internal/swap"
)

// Services carries the domain services the API fronts.
type Services struct {
	Profiles   *profile.Service
	Search     *search.Service
	Match      *match.Service
	Swaps      *swap.Service
	Completion *completion.Service
	Economy    *economy.Service
	Messaging  *messaging.Service
	Moderation *moderation.Service
	Reviews    *review.Service
	Portfolio  *portfolio.Service
}

// Handlers binds the endpoint handlers to their services.
type Handlers struct {
	svc Services
	log zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(svc Services, log zerolog.Logger) *Handlers {
	return &Handlers{
		svc: svc,
		log: log.With().Str("component", "http").Logger(),
	}
}

// actingUID resolves the acting user from the uid query parameter, falling
// back to the X-User-Id header.
func actingUID(r *http.Request) string {
	if uid := strings.TrimSpace(r.URL.Query().Get("uid")); uid != "" {
		return uid
	}
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

// requireUID is actingUID with the missing case mapped to a validation
// error.
func requireUID(r *http.Request) (string, error) {
	uid := actingUID(r)
	if uid == "" {
		return "", apperr.Validationf("uid query parameter or X-User-Id header is required")
	}
	return uid, nil
}

// queryInt parses an integer query parameter, returning def when absent or
// unparseable.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// decode unmarshals the request body into v. Malformed payloads map to a
// validation error so the client sees a 422, not a 500.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validationf("malformed JSON body")
	}
	return nil
}

// writeJSON renders data with the given status.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("response encoding failed")
	}
}

// writeError maps err onto the uniform {detail} body. Internal faults are
// logged with the request context; their detail never leaks the cause.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	h.writeJSON(w, status, httpContracts.ErrorResponse{Detail: apperr.Detail(err)})
}

// NotFound answers unknown routes in the uniform error shape.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusNotFound, httpContracts.ErrorResponse{Detail: "not found"})
}

// MethodNotAllowed answers known paths hit with the wrong verb.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusMethodNotAllowed, httpContracts.ErrorResponse{Detail: "method not allowed"})
}
