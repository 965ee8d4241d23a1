package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skillswap/swapd/internal/domain"
	httpContracts "github.com/skillswap/swapd/internal/http"
	"github.com/skillswap/swapd/internal/profile"
)

// UpsertProfile creates or replaces a profile and (re)indexes it.
func (h *Handlers) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	var in profile.Input
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Profiles.Upsert(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetProfile fetches one profile by uid.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profiles.Get(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetProfileByEmail fetches one profile by email address.
func (h *Handlers) GetProfileByEmail(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profiles.GetByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// PatchProfile applies a partial update, reindexing when skills changed.
func (h *Handlers) PatchProfile(w http.ResponseWriter, r *http.Request) {
	var upd domain.ProfileUpdate
	if err := decode(r, &upd); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Profiles.Patch(r.Context(), mux.Vars(r)["uid"], &upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// DeleteProfile removes a profile from the store, the index, and the cache.
func (h *Handlers) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	if err := h.svc.Profiles.Delete(r.Context(), uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.DeleteProfileResponse{
		Message: "Profile deleted successfully",
		UID:     uid,
	})
}

// ReindexProfile recomputes a profile's embeddings and index entry.
func (h *Handlers) ReindexProfile(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	if err := h.svc.Profiles.Reindex(r.Context(), uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ReindexResponse{
		Message: "Profile reindexed",
		UID:     uid,
	})
}
