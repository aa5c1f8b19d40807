package internal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("incident not found")
	ErrInvalidStack     = errors.New("invalid stack")
	ErrEmptyText        = errors.New("empty text")
	ErrIndexEmpty       = errors.New("vector index is empty")
	ErrIndexUnavailable = errors.New("vector index unavailable")
	ErrStoreUnavailable = errors.New("incident store unavailable")
	ErrNoIndex          = errors.New("no vector index available")
)

type Stack string

const (
	StackJava   Stack = "java"
	StackPython Stack = "python"
	StackNode   Stack = "nodejs"
)

// DefaultStacks is the technology enumeration shipped with the default
// configuration. Deployments can narrow or extend it via config.
func DefaultStacks() []Stack {
	return []Stack{StackJava, StackPython, StackNode}
}

func ParseStack(s string, allowed []Stack) (Stack, error) {
	normalized := Stack(strings.ToLower(strings.TrimSpace(s)))
	if normalized == "" {
		return "", ErrInvalidStack
	}
	for _, st := range allowed {
		if st == normalized {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStack, s)
}

func (s Stack) String() string {
	return string(s)
}

// Incident is a recorded historical production issue. Records are created at
// dataset-load time and treated as immutable afterwards; the metadata store
// owns them exclusively.
type Incident struct {
	ID            string            `json:"id"`
	Stack         Stack             `json:"stack"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	RootCause     string            `json:"root_cause"`
	SolutionSteps []string          `json:"solution_steps"`
	InfraContext  map[string]string `json:"infra_context,omitempty"`
	Service       string            `json:"service,omitempty"`
}

// Query is the ephemeral caller input. It is never persisted.
type Query struct {
	Description  string `json:"description"`
	Stack        Stack  `json:"stack"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (q Query) Validate(allowed []Stack) error {
	if strings.TrimSpace(q.Description) == "" {
		return fmt.Errorf("query description: %w", ErrEmptyText)
	}
	if _, err := ParseStack(string(q.Stack), allowed); err != nil {
		return err
	}
	return nil
}

// SearchText is the text handed to the encoder: description plus the raw
// error message when present.
func (q Query) SearchText() string {
	if strings.TrimSpace(q.ErrorMessage) == "" {
		return q.Description
	}
	return q.Description + " " + q.ErrorMessage
}

// Match pairs a hydrated incident with its query similarity. Matches are
// derived per query and discarded after the response.
type Match struct {
	Incident   Incident `json:"incident"`
	Similarity float64  `json:"similarity"`
	SameStack  bool     `json:"same_stack"`
}
