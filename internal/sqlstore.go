package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var _ IncidentStore = (*SQLStore)(nil)

const incidentSchema = `
CREATE TABLE IF NOT EXISTS incidents (
	id TEXT PRIMARY KEY,
	stack TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	error_message TEXT,
	root_cause TEXT NOT NULL,
	solution_steps TEXT NOT NULL,
	infra_context TEXT,
	service TEXT
);
CREATE INDEX IF NOT EXISTS incidents_stack_idx ON incidents(stack);
`

// SQLStore is the relational incident store. Queries are written with "?"
// placeholders and rebound per driver, so the same implementation serves
// PostgreSQL (production) and SQLite (embedded local runs).
type SQLStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to PostgreSQL with a bounded connection pool.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", errors.Join(ErrStoreUnavailable, err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &SQLStore{db: db}, nil
}

// NewSQLiteStore opens (and creates if needed) an embedded SQLite database.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", errors.Join(ErrStoreUnavailable, err))
	}

	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent import.
	db.SetMaxOpenConns(1)

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the incidents table and its stack index.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, incidentSchema); err != nil {
		return storeErr("ensure schema", err)
	}
	return nil
}

type incidentRow struct {
	ID            string         `db:"id"`
	Stack         string         `db:"stack"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	ErrorMessage  sql.NullString `db:"error_message"`
	RootCause     string         `db:"root_cause"`
	SolutionSteps string         `db:"solution_steps"`
	InfraContext  sql.NullString `db:"infra_context"`
	Service       sql.NullString `db:"service"`
}

func (s *SQLStore) UpsertIncidents(ctx context.Context, incidents []Incident) error {
	if len(incidents) == 0 {
		return nil
	}

	query := s.db.Rebind(`
		INSERT INTO incidents
			(id, stack, title, description, error_message, root_cause, solution_steps, infra_context, service)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			stack = excluded.stack,
			title = excluded.title,
			description = excluded.description,
			error_message = excluded.error_message,
			root_cause = excluded.root_cause,
			solution_steps = excluded.solution_steps,
			infra_context = excluded.infra_context,
			service = excluded.service
	`)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("begin upsert", err)
	}
	defer tx.Rollback()

	for _, inc := range incidents {
		steps, err := json.Marshal(inc.SolutionSteps)
		if err != nil {
			return fmt.Errorf("marshal solution steps for %s: %w", inc.ID, err)
		}
		infra, err := json.Marshal(inc.InfraContext)
		if err != nil {
			return fmt.Errorf("marshal infra context for %s: %w", inc.ID, err)
		}

		_, err = tx.ExecContext(ctx, query,
			inc.ID,
			string(inc.Stack),
			inc.Title,
			inc.Description,
			inc.ErrorMessage,
			inc.RootCause,
			string(steps),
			string(infra),
			inc.Service,
		)
		if err != nil {
			return storeErr(fmt.Sprintf("upsert incident %s", inc.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit upsert", err)
	}
	return nil
}

func (s *SQLStore) FetchByIDs(ctx context.Context, ids []string) (map[string]Incident, error) {
	if len(ids) == 0 {
		return map[string]Incident{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM incidents WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("expand id list: %w", err)
	}

	var rows []incidentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, storeErr("fetch incidents by id", err)
	}

	incidents := make(map[string]Incident, len(rows))
	for _, row := range rows {
		inc, err := row.toIncident()
		if err != nil {
			return nil, err
		}
		incidents[inc.ID] = inc
	}
	return incidents, nil
}

func (s *SQLStore) FetchByStack(ctx context.Context, stack Stack) ([]Incident, error) {
	var rows []incidentRow
	query := s.db.Rebind(`SELECT * FROM incidents WHERE stack = ? ORDER BY id`)

	if err := s.db.SelectContext(ctx, &rows, query, string(stack)); err != nil {
		return nil, storeErr("fetch incidents by stack", err)
	}

	incidents := make([]Incident, 0, len(rows))
	for _, row := range rows {
		inc, err := row.toIncident()
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

func (s *SQLStore) CountByStack(ctx context.Context) (map[Stack]int, error) {
	var rows []struct {
		Stack string `db:"stack"`
		Count int    `db:"count"`
	}

	query := `SELECT stack, COUNT(*) AS count FROM incidents GROUP BY stack`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storeErr("count incidents", err)
	}

	counts := make(map[Stack]int, len(rows))
	for _, row := range rows {
		counts[Stack(row.Stack)] = row.Count
	}
	return counts, nil
}

func (r incidentRow) toIncident() (Incident, error) {
	var steps []string
	if r.SolutionSteps != "" {
		if err := json.Unmarshal([]byte(r.SolutionSteps), &steps); err != nil {
			return Incident{}, fmt.Errorf("unmarshal solution steps for %s: %w", r.ID, err)
		}
	}

	var infra map[string]string
	if r.InfraContext.Valid && r.InfraContext.String != "" {
		if err := json.Unmarshal([]byte(r.InfraContext.String), &infra); err != nil {
			return Incident{}, fmt.Errorf("unmarshal infra context for %s: %w", r.ID, err)
		}
	}

	return Incident{
		ID:            r.ID,
		Stack:         Stack(r.Stack),
		Title:         r.Title,
		Description:   r.Description,
		ErrorMessage:  r.ErrorMessage.String,
		RootCause:     r.RootCause,
		SolutionSteps: steps,
		InfraContext:  infra,
		Service:       r.Service.String,
	}, nil
}

// storeErr folds driver and connection failures into ErrStoreUnavailable.
// sql.ErrNoRows is not an error at this layer; callers use empty results.
func storeErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
