package search

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/skillswap/swapd/internal/vectorindex"
)

const (
	DefaultRecommendLimit = 5
	MaxRecommendLimit     = 20

	// recommendWidth is how many neighbours each directional search pulls
	// before phrase aggregation.
	recommendWidth     = 50
	recommendThreshold = 0.4

	// minPhraseRunes drops fragments too short to be a skill description.
	minPhraseRunes = 10

	// needsWeight discounts phrases sourced from what neighbours want to
	// learn versus what they already teach.
	needsWeight = 0.8
)

// phraseStats accumulates one candidate phrase across neighbour profiles.
type phraseStats struct {
	display  string
	weight   float64
	sumScore float64
	profiles int
}

// dedupeHits merges the two directional result sets keeping the higher
// score per uid, so a profile close on both vectors contributes once.
func dedupeHits(offerHits, needHits []vectorindex.Result) []vectorindex.Result {
	byUID := make(map[string]vectorindex.Result, len(offerHits)+len(needHits))
	for _, h := range offerHits {
		byUID[h.UID] = h
	}
	for _, h := range needHits {
		if prev, ok := byUID[h.UID]; !ok || h.Score > prev.Score {
			byUID[h.UID] = h
		}
	}
	out := make([]vectorindex.Result, 0, len(byUID))
	for _, h := range byUID {
		out = append(out, h)
	}
	return out
}

// rankPhrases tokenises neighbour skill texts into candidate phrases and
// ranks them by 0.3·frequency + 0.7·average similarity. Phrases already in
// the caller's own skills are skipped.
func rankPhrases(hits []vectorindex.Result, currentSkills string, limit int) []Recommendation {
	own := strings.ToLower(currentSkills)
	stats := make(map[string]*phraseStats)

	for _, h := range hits {
		for _, phrase := range splitPhrases(h.Payload.SkillsToOffer) {
			accumulate(stats, own, phrase, 1.0, h.Score)
		}
		for _, phrase := range splitPhrases(h.Payload.ServicesNeeded) {
			accumulate(stats, own, phrase, needsWeight, h.Score)
		}
	}

	recs := make([]Recommendation, 0, len(stats))
	for _, ps := range stats {
		avg := ps.sumScore / ps.weight
		recs = append(recs, Recommendation{
			Skill:         ps.display,
			Score:         round4(0.3*ps.weight + 0.7*avg),
			TimesSeen:     ps.profiles,
			AvgSimilarity: round4(avg),
			Reason:        reason(ps.display, ps.profiles, avg),
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].TimesSeen != recs[j].TimesSeen {
			return recs[i].TimesSeen > recs[j].TimesSeen
		}
		return recs[i].Skill < recs[j].Skill
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func accumulate(stats map[string]*phraseStats, own, phrase string, weight, score float64) {
	normalized := strings.ToLower(phrase)
	if strings.Contains(own, normalized) {
		return
	}
	ps, ok := stats[normalized]
	if !ok {
		ps = &phraseStats{display: phrase}
		stats[normalized] = ps
	}
	ps.weight += weight
	ps.sumScore += weight * score
	ps.profiles++
}

// splitPhrases cuts a skill text on commas and periods and keeps trimmed
// phrases long enough to describe a skill.
func splitPhrases(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '.'
	})
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) >= minPhraseRunes {
			out = append(out, p)
		}
	}
	return out
}

func reason(skill string, profiles int, avg float64) string {
	if profiles == 1 {
		return fmt.Sprintf("1 profile similar to yours lists %q (%.0f%% match)", skill, avg*100)
	}
	return fmt.Sprintf("%d profiles similar to yours list %q (%.0f%% avg match)", profiles, skill, avg*100)
}
