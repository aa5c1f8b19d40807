package internal

// ContextCaps bounds the assembled context so downstream prompt size stays
// predictable.
type ContextCaps struct {
	MaxSameStack  int
	MaxCrossStack int
	// MaxPerInsight bounds the representative incidents kept per insight
	// group. Zero keeps all members.
	MaxPerInsight int
}

func DefaultContextCaps() ContextCaps {
	return ContextCaps{
		MaxSameStack:  5,
		MaxCrossStack: 5,
		MaxPerInsight: 3,
	}
}

// IncidentContext is the bounded structure handed to the downstream
// generator: the query, same-stack matches in rank order, and cross-stack
// insight groups. When retrieval had to give up on a backend it carries the
// degraded flag and reason instead of a partial result.
type IncidentContext struct {
	Query          Query     `json:"query"`
	SameStack      []Match   `json:"same_stack_matches"`
	CrossStack     []Insight `json:"cross_stack_insights"`
	Degraded       bool      `json:"degraded,omitempty"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
}

// AssembleContext is a pure transformation: it truncates both views to the
// configured caps and packages them with the query. It has no failure modes.
func AssembleContext(q Query, same []Match, insights []Insight, caps ContextCaps) IncidentContext {
	if caps.MaxSameStack > 0 && len(same) > caps.MaxSameStack {
		same = same[:caps.MaxSameStack]
	}
	if caps.MaxCrossStack > 0 && len(insights) > caps.MaxCrossStack {
		insights = insights[:caps.MaxCrossStack]
	}

	if caps.MaxPerInsight > 0 {
		bounded := make([]Insight, len(insights))
		for i, group := range insights {
			if len(group.Incidents) > caps.MaxPerInsight {
				group.Incidents = group.Incidents[:caps.MaxPerInsight]
			}
			bounded[i] = group
		}
		insights = bounded
	}

	return IncidentContext{
		Query:      q,
		SameStack:  same,
		CrossStack: insights,
	}
}

// DegradedContext is the explicit empty-but-well-formed response returned
// when retrieval backends stay unreachable after retries.
func DegradedContext(q Query, reason string) IncidentContext {
	return IncidentContext{
		Query:          q,
		Degraded:       true,
		DegradedReason: reason,
	}
}
