package handlers

import (
	"net/http"

	httpContracts "github.com/skillswap/swapd/internal/http"
	"github.com/skillswap/swapd/internal/match"
	"github.com/skillswap/swapd/internal/search"
)

// SearchProfiles runs a semantic profile search.
func (h *Handlers) SearchProfiles(w http.ResponseWriter, r *http.Request) {
	var req httpContracts.SearchRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	results, err := h.svc.Search.Search(r.Context(), search.Request{
		Query:     req.Query,
		K:         req.Limit,
		Threshold: req.Threshold,
		Mode:      search.Mode(req.Mode),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

// RecommendSkills suggests complementary skills for a skill set.
func (h *Handlers) RecommendSkills(w http.ResponseWriter, r *http.Request) {
	var req httpContracts.RecommendSkillsRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.svc.Search.RecommendSkills(r.Context(), req.CurrentSkills, req.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, recs)
}

// ReciprocalMatch finds users who want what I offer and offer what I need.
func (h *Handlers) ReciprocalMatch(w http.ResponseWriter, r *http.Request) {
	var req httpContracts.ReciprocalMatchRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	myUID := req.MyUID
	if myUID == "" {
		myUID = actingUID(r)
	}
	matches, err := h.svc.Match.Reciprocal(r.Context(), match.Request{
		OfferText:     req.MyOfferText,
		NeedText:      req.MyNeedText,
		K:             req.Limit,
		MyUID:         myUID,
		NotifyMatches: req.NotifyMatches,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, matches)
}
