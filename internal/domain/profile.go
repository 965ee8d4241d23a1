package domain

import (
	"strings"
	"time"
)

// Profile is the canonical user document, keyed by uid.
type Profile struct {
	UID            string `json:"uid"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	PhotoURL       string `json:"photo_url,omitempty"`
	Bio            string `json:"bio,omitempty"`
	City           string `json:"city,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	SkillsToOffer  string `json:"skills_to_offer"`
	ServicesNeeded string `json:"services_needed"`

	DMOpen       bool `json:"dm_open"`
	EmailUpdates bool `json:"email_updates"`
	ShowCity     bool `json:"show_city"`

	SwapPoints           int     `json:"swap_points"`
	LifetimePointsEarned int     `json:"lifetime_points_earned"`
	SwapCredits          int     `json:"swap_credits"`
	CompletedSwapCount   int     `json:"completed_swap_count"`
	TotalHoursTraded     float64 `json:"total_hours_traded"`
	AverageRating        float64 `json:"average_rating"`
	ReviewCount          int     `json:"review_count"`
	ResponseRate         float64 `json:"response_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Indexable reports whether the profile belongs in the vector index:
// both skill texts must be non-empty.
func (p *Profile) Indexable() bool {
	return strings.TrimSpace(p.SkillsToOffer) != "" && strings.TrimSpace(p.ServicesNeeded) != ""
}

// ProfileUpdate carries a partial profile update. Nil fields are untouched.
type ProfileUpdate struct {
	DisplayName    *string `json:"display_name,omitempty"`
	PhotoURL       *string `json:"photo_url,omitempty"`
	Bio            *string `json:"bio,omitempty"`
	City           *string `json:"city,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`
	SkillsToOffer  *string `json:"skills_to_offer,omitempty"`
	ServicesNeeded *string `json:"services_needed,omitempty"`
	DMOpen         *bool   `json:"dm_open,omitempty"`
	EmailUpdates   *bool   `json:"email_updates,omitempty"`
	ShowCity       *bool   `json:"show_city,omitempty"`
}

// TouchesSkills reports whether the update changes either skill text,
// which forces a reindex.
func (u *ProfileUpdate) TouchesSkills() bool {
	return u.SkillsToOffer != nil || u.ServicesNeeded != nil
}

// Apply copies the set fields onto p and stamps UpdatedAt.
func (u *ProfileUpdate) Apply(p *Profile, now time.Time) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.PhotoURL != nil {
		p.PhotoURL = *u.PhotoURL
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.City != nil {
		p.City = *u.City
	}
	if u.Timezone != nil {
		p.Timezone = *u.Timezone
	}
	if u.SkillsToOffer != nil {
		p.SkillsToOffer = *u.SkillsToOffer
	}
	if u.ServicesNeeded != nil {
		p.ServicesNeeded = *u.ServicesNeeded
	}
	if u.DMOpen != nil {
		p.DMOpen = *u.DMOpen
	}
	if u.EmailUpdates != nil {
		p.EmailUpdates = *u.EmailUpdates
	}
	if u.ShowCity != nil {
		p.ShowCity = *u.ShowCity
	}
	p.UpdatedAt = now
}
