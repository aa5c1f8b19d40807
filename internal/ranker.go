package internal

import "sort"

// RankConfig controls merging of vector hits with hydrated metadata.
type RankConfig struct {
	// Limit caps the ranked result length. Zero means no cap.
	Limit int
	// SameStackBoost multiplies the similarity of same-stack matches before
	// sorting. It is a pure monotonic transform, so relative vector-search
	// order within the same-stack and cross-stack groups is preserved.
	// Values <= 1 disable boosting.
	SameStackBoost float64
}

// MergeRank fuses raw vector hits with hydrated incidents into the final
// ranked, deduplicated match sequence. Hits whose id failed hydration are
// discarded. The sort is stable and ties keep vector-search order, so equal
// inputs always produce identical output.
func MergeRank(hits []VectorHit, incidents map[string]Incident, queryStack Stack, cfg RankConfig) []Match {
	if len(hits) == 0 {
		return nil
	}

	type ranked struct {
		match Match
		score float64
	}

	seen := make(map[string]bool, len(hits))
	merged := make([]ranked, 0, len(hits))

	for _, hit := range hits {
		if seen[hit.IncidentID] {
			continue
		}
		inc, hydrated := incidents[hit.IncidentID]
		if !hydrated {
			continue
		}
		seen[hit.IncidentID] = true

		sameStack := inc.Stack == queryStack
		score := hit.Similarity
		if sameStack && cfg.SameStackBoost > 1 {
			score *= cfg.SameStackBoost
		}

		merged = append(merged, ranked{
			match: Match{
				Incident:   inc,
				Similarity: hit.Similarity,
				SameStack:  sameStack,
			},
			score: score,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].score > merged[j].score
	})

	if cfg.Limit > 0 && len(merged) > cfg.Limit {
		merged = merged[:cfg.Limit]
	}

	matches := make([]Match, len(merged))
	for i, r := range merged {
		matches[i] = r.match
	}
	return matches
}
