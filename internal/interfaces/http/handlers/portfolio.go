package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/skillswap/swapd/internal/portfolio"
)

func queryBool(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// GetPortfolio aggregates a user's verified skills, recent swaps, and
// reviews.
func (h *Handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	opts := portfolio.Options{
		IncludeSwaps:   queryBool(r, "include_swaps", true),
		IncludeReviews: queryBool(r, "include_reviews", true),
		SwapLimit:      queryInt(r, "swap_limit", 0),
		ReviewLimit:    queryInt(r, "review_limit", 0),
	}
	p, err := h.svc.Portfolio.Get(r.Context(), mux.Vars(r)["uid"], opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetPortfolioStats returns the lightweight counter projection.
func (h *Handlers) GetPortfolioStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Portfolio.GetStats(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}
