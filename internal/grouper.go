package internal

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Insight is a group of cross-stack matches sharing a root cause: the same
// underlying problem seen from stacks other than the caller's own.
type Insight struct {
	RootCause     string  `json:"root_cause"`
	Stacks        []Stack `json:"stacks"`
	Incidents     []Match `json:"representative_incidents"`
	TopSimilarity float64 `json:"top_similarity"`
}

// GroupConfig controls cross-stack root-cause grouping.
type GroupConfig struct {
	// FuzzyThreshold merges two normalized root causes whose Levenshtein
	// similarity ratio is at or above this value. Zero disables fuzzy
	// merging and only exact normalized matches collapse.
	FuzzyThreshold float64
}

// SplitMatches partitions a ranked match sequence into same-stack matches
// (rank order preserved) and cross-stack insight groups. Grouping compares
// normalized root-cause text; it is a deliberately imprecise heuristic, not
// entity resolution.
func SplitMatches(matches []Match, cfg GroupConfig) ([]Match, []Insight) {
	var same []Match
	var insights []Insight
	keyOf := make(map[int]string)
	byKey := make(map[string]int)

	for _, m := range matches {
		if m.SameStack {
			same = append(same, m)
			continue
		}

		key := NormalizeRootCause(m.Incident.RootCause)
		idx, exists := byKey[key]
		if !exists && cfg.FuzzyThreshold > 0 {
			for i := range insights {
				if levenshteinRatio(key, keyOf[i]) >= cfg.FuzzyThreshold {
					idx, exists = i, true
					break
				}
			}
		}

		if !exists {
			insights = append(insights, Insight{
				RootCause:     strings.TrimSpace(m.Incident.RootCause),
				TopSimilarity: m.Similarity,
			})
			idx = len(insights) - 1
			byKey[key] = idx
			keyOf[idx] = key
		}

		group := &insights[idx]
		group.Incidents = append(group.Incidents, m)
		if m.Similarity > group.TopSimilarity {
			group.TopSimilarity = m.Similarity
		}
		if !containsStack(group.Stacks, m.Incident.Stack) {
			group.Stacks = append(group.Stacks, m.Incident.Stack)
		}
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].TopSimilarity > insights[j].TopSimilarity
	})

	return same, insights
}

// NormalizeRootCause case-folds and collapses whitespace so trivially
// different spellings of the same cause compare equal.
func NormalizeRootCause(rootCause string) string {
	return strings.Join(strings.Fields(strings.ToLower(rootCause)), " ")
}

// levenshteinRatio returns 1 - distance/maxlen for two strings, 1 meaning
// identical.
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)

	return 1 - float64(distance)/float64(longest)
}

func containsStack(stacks []Stack, s Stack) bool {
	for _, candidate := range stacks {
		if candidate == s {
			return true
		}
	}
	return false
}
