package economy

import (
	"math"

	"github.com/skillswap/swapd/internal/domain"
)

// DemandIndex supplies the per-skill demand multiplier. Recomputation is
// out of scope; the default is a constant 1.0.
type DemandIndex interface {
	Multiplier(skill string) float64
}

// StaticDemand returns the same multiplier for every skill.
type StaticDemand float64

// Multiplier implements DemandIndex.
func (d StaticDemand) Multiplier(string) float64 { return float64(d) }

// TrustScore maps completion volume and rating into [0, 0.5].
//
// Volume component: 0 swaps → 0; 1..5 → linear 0.10..0.25;
// 6..20 → linear 0.25..0.35; 21+ → 0.35.
// Rating component: ((avg−1)/4)·0.15 clamped to [0, 0.15].
func TrustScore(completedSwaps int, averageRating float64) float64 {
	var swapTrust float64
	switch {
	case completedSwaps <= 0:
		swapTrust = 0
	case completedSwaps <= 5:
		swapTrust = 0.10 + float64(completedSwaps-1)/4*0.15
	case completedSwaps <= 20:
		swapTrust = 0.25 + float64(completedSwaps-6)/14*0.10
	default:
		swapTrust = 0.35
	}

	ratingBonus := 0.0
	if averageRating > 0 {
		ratingBonus = (averageRating - 1) / 4 * 0.15
		if ratingBonus < 0 {
			ratingBonus = 0
		}
		if ratingBonus > 0.15 {
			ratingBonus = 0.15
		}
	}

	t := swapTrust + ratingBonus
	if t > 0.5 {
		t = 0.5
	}
	return t
}

// Points computes the points earned for one completed swap:
// round(hours·10 · (w_base + w_level·L + w_trust·(0.5+T) + w_demand·D)),
// floored at 1.
func (s *Service) Points(hours float64, level domain.SkillLevel, trust, demand float64) int {
	w := s.weights.Effort
	base := hours * 10
	mult := w.BaseRate +
		w.SkillLevel*s.pointsMultiplier(level) +
		w.Trust*(0.5+trust) +
		w.Demand*demand
	return atLeastOne(math.Round(base * mult))
}

// Credits computes the full credits for one completed swap:
// round(hours·10 · L_c), floored at 1.
func (s *Service) Credits(hours float64, level domain.SkillLevel) int {
	return atLeastOne(math.Round(hours * 10 * s.creditsMultiplier(level)))
}

// IndirectRequesterCredits is the reduced award for the paying side of an
// indirect swap: half the full credits, floored at 1.
func (s *Service) IndirectRequesterCredits(hours float64, level domain.SkillLevel) int {
	return atLeastOne(math.Round(0.5 * hours * 10 * s.creditsMultiplier(level)))
}

// ReviewBonusCredits is the small top-up the reviewed user earns when a
// review lands: round(hours · rating/3), floored at 1. A 3-star review is
// neutral; 5 stars pays 5/3 of the hours.
func (s *Service) ReviewBonusCredits(hours float64, rating int) int {
	return atLeastOne(math.Round(hours * float64(rating) / 3))
}

func (s *Service) pointsMultiplier(level domain.SkillLevel) float64 {
	if m, ok := s.weights.Levels.Points[string(level)]; ok {
		return m
	}
	return s.weights.Levels.Points[string(domain.LevelIntermediate)]
}

func (s *Service) creditsMultiplier(level domain.SkillLevel) float64 {
	if m, ok := s.weights.Levels.Credits[string(level)]; ok {
		return m
	}
	return s.weights.Levels.Credits[string(domain.LevelIntermediate)]
}

func atLeastOne(v float64) int {
	n := int(v)
	if n < 1 {
		return 1
	}
	return n
}
