package internal

import "context"

// IncidentStore resolves incident ids to full records and supports
// stack-scoped listing. Missing ids are silently dropped from FetchByIDs;
// "not found" is a valid state, distinct from ErrStoreUnavailable, which
// signals the backing store cannot be reached.
type IncidentStore interface {
	UpsertIncidents(ctx context.Context, incidents []Incident) error
	FetchByIDs(ctx context.Context, ids []string) (map[string]Incident, error)
	FetchByStack(ctx context.Context, stack Stack) ([]Incident, error)
	CountByStack(ctx context.Context) (map[Stack]int, error)
}
