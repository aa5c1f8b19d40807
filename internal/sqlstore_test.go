package internal

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "incidents.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore(): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema(): %v", err)
	}
	return store
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	incidents := []Incident{
		{
			ID:            "INC-1",
			Stack:         StackJava,
			Title:         "Payment API timeouts",
			Description:   "Payment API timing out after 30s",
			ErrorMessage:  "HikariPool-1 connection is not available",
			RootCause:     "Connection pool exhausted",
			SolutionSteps: []string{"Increase pool size", "Add leak detection"},
			InfraContext:  map[string]string{"db": "postgres-14", "pool_size": "10"},
			Service:       "payments",
		},
		{
			ID:          "INC-2",
			Stack:       StackPython,
			Title:       "Celery queue backlog",
			Description: "Workers stop consuming tasks",
			RootCause:   "Broker connection leak",
		},
	}
	if err := store.UpsertIncidents(ctx, incidents); err != nil {
		t.Fatalf("UpsertIncidents(): %v", err)
	}

	found, err := store.FetchByIDs(ctx, []string{"INC-1", "INC-2", "INC-MISSING"})
	if err != nil {
		t.Fatalf("FetchByIDs(): %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(found))
	}

	got := found["INC-1"]
	if got.Stack != StackJava || got.RootCause != "Connection pool exhausted" {
		t.Errorf("INC-1 = %+v", got)
	}
	if len(got.SolutionSteps) != 2 || got.SolutionSteps[0] != "Increase pool size" {
		t.Errorf("solution steps = %v", got.SolutionSteps)
	}
	if got.InfraContext["db"] != "postgres-14" {
		t.Errorf("infra context = %v", got.InfraContext)
	}

	// Nullable columns survive a record that never set them.
	if found["INC-2"].ErrorMessage != "" || found["INC-2"].Service != "" {
		t.Errorf("INC-2 optional fields = %+v", found["INC-2"])
	}
}

func TestSQLStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	first := Incident{ID: "INC-1", Stack: StackJava, Title: "old", Description: "d", RootCause: "r"}
	if err := store.UpsertIncidents(ctx, []Incident{first}); err != nil {
		t.Fatalf("UpsertIncidents(): %v", err)
	}

	first.Title = "new"
	first.Stack = StackNode
	if err := store.UpsertIncidents(ctx, []Incident{first}); err != nil {
		t.Fatalf("UpsertIncidents() second: %v", err)
	}

	found, err := store.FetchByIDs(ctx, []string{"INC-1"})
	if err != nil {
		t.Fatalf("FetchByIDs(): %v", err)
	}
	if found["INC-1"].Title != "new" || found["INC-1"].Stack != StackNode {
		t.Errorf("upsert did not overwrite: %+v", found["INC-1"])
	}
}

func TestSQLStoreFetchByStack(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	err := store.UpsertIncidents(ctx, []Incident{
		{ID: "b", Stack: StackJava, Title: "t", Description: "d", RootCause: "r"},
		{ID: "a", Stack: StackJava, Title: "t", Description: "d", RootCause: "r"},
		{ID: "c", Stack: StackNode, Title: "t", Description: "d", RootCause: "r"},
	})
	if err != nil {
		t.Fatalf("UpsertIncidents(): %v", err)
	}

	incidents, err := store.FetchByStack(ctx, StackJava)
	if err != nil {
		t.Fatalf("FetchByStack(): %v", err)
	}
	if len(incidents) != 2 {
		t.Fatalf("expected 2 java incidents, got %d", len(incidents))
	}
	if incidents[0].ID != "a" || incidents[1].ID != "b" {
		t.Errorf("order = %s, %s, want a, b", incidents[0].ID, incidents[1].ID)
	}
}

func TestSQLStoreCountByStack(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	counts, err := store.CountByStack(ctx)
	if err != nil {
		t.Fatalf("CountByStack() on empty store: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("empty store counts = %v", counts)
	}

	err = store.UpsertIncidents(ctx, []Incident{
		{ID: "1", Stack: StackJava, Title: "t", Description: "d", RootCause: "r"},
		{ID: "2", Stack: StackJava, Title: "t", Description: "d", RootCause: "r"},
		{ID: "3", Stack: StackPython, Title: "t", Description: "d", RootCause: "r"},
	})
	if err != nil {
		t.Fatalf("UpsertIncidents(): %v", err)
	}

	counts, err = store.CountByStack(ctx)
	if err != nil {
		t.Fatalf("CountByStack(): %v", err)
	}
	if counts[StackJava] != 2 || counts[StackPython] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestSQLStoreFetchByIDsEmptyInput(t *testing.T) {
	store := newTestSQLiteStore(t)

	found, err := store.FetchByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchByIDs(nil): %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected empty map, got %v", found)
	}
}
