package v1

// Incident is a historical production issue in the corpus.
type Incident struct {
	ID            string            `json:"id"`
	Stack         string            `json:"stack"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	RootCause     string            `json:"root_cause"`
	SolutionSteps []string          `json:"solution_steps,omitempty"`
	InfraContext  map[string]string `json:"infra_context,omitempty"`
	Service       string            `json:"service,omitempty"`
}

// Query describes a current incident to search for.
type Query struct {
	Description  string `json:"description"`
	Stack        string `json:"stack"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Match is a retrieved incident with its similarity to the query, in [0,1].
type Match struct {
	Incident   Incident `json:"incident"`
	Similarity float64  `json:"similarity"`
}

// Insight groups cross-stack incidents that share a root cause.
type Insight struct {
	RootCause     string   `json:"root_cause"`
	Stacks        []string `json:"stacks"`
	Incidents     []Match  `json:"incidents"`
	TopSimilarity float64  `json:"top_similarity"`
}

// Result is the assembled response for one query.
type Result struct {
	Query              Query     `json:"query"`
	SameStackMatches   []Match   `json:"same_stack_matches"`
	CrossStackInsights []Insight `json:"cross_stack_insights"`
	Degraded           bool      `json:"degraded,omitempty"`
	DegradedReason     string    `json:"degraded_reason,omitempty"`
}

// Status reports corpus sizes.
type Status struct {
	IncidentsByStack map[string]int `json:"incidents_by_stack"`
	IndexedVectors   int            `json:"indexed_vectors"`
}
