package session

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// labelThreshold is the lowest Jaro-Winkler similarity accepted for a
// fuzzy option label match.
const labelThreshold = 0.85

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// matchLabel returns the index of the option whose visible label matches
// want: exact (ignoring case and spacing) first, then the closest fuzzy
// match above labelThreshold. Returns -1 when nothing matches.
func matchLabel(options []Option, want string) int {
	target := normalizeLabel(want)
	for i, o := range options {
		if normalizeLabel(o.Label) == target {
			return i
		}
	}

	best, bestScore := -1, 0.0
	for i, o := range options {
		label := normalizeLabel(o.Label)
		if label == "" {
			continue
		}
		if score := matchr.JaroWinkler(label, target, false); score >= labelThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
