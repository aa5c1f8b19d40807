package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Analysis pairs the retrieved context with the generated runbook.
type Analysis struct {
	Context IncidentContext `json:"context"`
	Runbook Runbook         `json:"runbook"`
}

// IncidentAnalyzer runs retrieval and asks the external generator for a
// runbook grounded strictly in the retrieved incidents.
type IncidentAnalyzer struct {
	pipeline *SearchPipeline
	provider Provider
}

func NewIncidentAnalyzer(pipeline *SearchPipeline, provider Provider) *IncidentAnalyzer {
	return &IncidentAnalyzer{
		pipeline: pipeline,
		provider: provider,
	}
}

func (a *IncidentAnalyzer) Analyze(ctx context.Context, q Query) (*Analysis, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("provider not available")
	}

	retrieved, err := a.pipeline.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search incidents: %w", err)
	}

	prompt := BuildRunbookPrompt(*retrieved)
	runbook, err := a.generateRunbook(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Context: *retrieved,
		Runbook: runbook,
	}, nil
}

// generateRunbook prefers the provider's structured-output path. Providers
// without native structured output get a plain completion prompted for JSON,
// which is then extracted and decoded.
func (a *IncidentAnalyzer) generateRunbook(ctx context.Context, prompt string) (Runbook, error) {
	var runbook Runbook
	objErr := a.provider.GenerateObject(ctx, prompt, &runbook)
	if objErr == nil {
		return runbook, nil
	}

	text, err := a.provider.Complete(ctx, prompt+runbookJSONSuffix)
	if err != nil {
		return Runbook{}, fmt.Errorf("generate runbook: %w", errors.Join(objErr, err))
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &runbook); err != nil {
		return Runbook{}, fmt.Errorf("decode runbook: %w", err)
	}
	return runbook, nil
}

const runbookJSONSuffix = "\nRespond with a single JSON object with keys " +
	`"root_cause" (string), "solution" (array of strings) and "reasoning" (string).` + "\n"

// AnalyzeStream runs retrieval and streams a free-form runbook as text
// deltas. The returned context is complete before the channel starts.
func (a *IncidentAnalyzer) AnalyzeStream(ctx context.Context, q Query) (*IncidentContext, <-chan string, error) {
	if a.provider == nil {
		return nil, nil, fmt.Errorf("provider not available")
	}

	retrieved, err := a.pipeline.Search(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("search incidents: %w", err)
	}

	ch, err := a.provider.Stream(ctx, BuildRunbookPrompt(*retrieved))
	if err != nil {
		return nil, nil, fmt.Errorf("stream runbook: %w", err)
	}
	return retrieved, ch, nil
}

// extractJSON trims markdown fences and any prose around the first
// top-level JSON object in a completion.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

// BuildRunbookPrompt renders the assembled context into a grounded prompt.
// The instructions pin the generator to the retrieved incidents so it
// cannot invent causes out of thin air.
func BuildRunbookPrompt(ctx IncidentContext) string {
	var sb strings.Builder

	sb.WriteString("You are a DevOps engineer analyzing a production incident. ")
	sb.WriteString("Use ONLY the provided similar incidents as reference. Do not invent information.\n\n")

	sb.WriteString("CURRENT INCIDENT:\n")
	fmt.Fprintf(&sb, "Tech Stack: %s\n", ctx.Query.Stack)
	fmt.Fprintf(&sb, "Description: %s\n", ctx.Query.Description)
	if ctx.Query.ErrorMessage != "" {
		fmt.Fprintf(&sb, "Error: %s\n", ctx.Query.ErrorMessage)
	}
	sb.WriteString("\n")

	if len(ctx.SameStack) > 0 {
		top := ctx.SameStack[0]
		fmt.Fprintf(&sb, "MOST SIMILAR INCIDENT (same stack, %s):\n", top.Incident.Stack)
		writeIncident(&sb, top)
	}

	for _, insight := range ctx.CrossStack {
		if len(insight.Incidents) == 0 {
			continue
		}
		top := insight.Incidents[0]
		fmt.Fprintf(&sb, "CROSS-STACK INSIGHT (%s):\n", stackList(insight.Stacks))
		fmt.Fprintf(&sb, "Shared Root Cause: %s\n", insight.RootCause)
		writeIncident(&sb, top)
	}

	if len(ctx.SameStack) == 0 && len(ctx.CrossStack) == 0 {
		sb.WriteString("NO SIMILAR INCIDENTS FOUND.\n\n")
	}

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("1. Identify the most likely root cause based on the incidents above.\n")
	fmt.Fprintf(&sb, "2. Provide a 5-step solution adapted to %s.\n", ctx.Query.Stack)
	sb.WriteString("3. Explain why the similar incidents apply, focusing on the shared root cause.\n")
	sb.WriteString("4. If no similar incidents exist, state that manual investigation is required.\n")

	return sb.String()
}

func writeIncident(sb *strings.Builder, m Match) {
	fmt.Fprintf(sb, "ID: %s\n", m.Incident.ID)
	fmt.Fprintf(sb, "Title: %s\n", m.Incident.Title)
	fmt.Fprintf(sb, "Similarity: %.0f%%\n", m.Similarity*100)
	fmt.Fprintf(sb, "Root Cause: %s\n", m.Incident.RootCause)
	if len(m.Incident.SolutionSteps) > 0 {
		fmt.Fprintf(sb, "Solution: %s\n", strings.Join(m.Incident.SolutionSteps, "; "))
	}
	sb.WriteString("\n")
}

func stackList(stacks []Stack) string {
	names := make([]string, len(stacks))
	for i, s := range stacks {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
