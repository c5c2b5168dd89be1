// Package store persists resolved answers in Postgres. It is both the run's output adapter and
// a backing-store lookup for answers computed by earlier runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
)

const schema = `
CREATE TABLE IF NOT EXISTS resolved_answers (
	company    TEXT NOT NULL,
	attribute  TEXT NOT NULL,
	content    TEXT,
	provenance TEXT NOT NULL,
	origin     TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	run_id     TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company, attribute)
)`

const upsertSQL = `INSERT INTO resolved_answers (company, attribute, content, provenance, origin, state, error, run_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (company, attribute) DO UPDATE SET
	content = EXCLUDED.content,
	provenance = EXCLUDED.provenance,
	origin = EXCLUDED.origin,
	state = EXCLUDED.state,
	error = EXCLUDED.error,
	run_id = EXCLUDED.run_id,
	updated_at = now()`

const lookupSQL = `SELECT content, provenance, origin, state FROM resolved_answers
WHERE company = $1 AND attribute = $2 AND content IS NOT NULL`

type Store struct {
	db    *sql.DB
	runID string
}

// Open connects to Postgres through the pgx driver and creates the table if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithRunID returns a copy of s that tags written rows with runID.
func (s *Store) WithRunID(runID string) *Store {
	return &Store{db: s.db, runID: runID}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Store upserts all rows in one transaction.
func (s *Store) Store(ctx context.Context, rows []enrich.ResolvedAnswer) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, a := range rows {
		if _, err = stmt.ExecContext(ctx, upsertArgs(a, s.runID)...); err != nil {
			return fmt.Errorf("upsert answer %s/%s: %w", a.Company, a.Attribute, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Save writes one resolved answer (write-back during a run).
func (s *Store) Save(ctx context.Context, a enrich.ResolvedAnswer) error {
	if a.Content == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, upsertSQL, upsertArgs(a, s.runID)...); err != nil {
		return fmt.Errorf("upsert answer %s/%s: %w", a.Company, a.Attribute, err)
	}
	return nil
}

// Lookup returns a previously resolved answer. Unresolved rows never match.
func (s *Store) Lookup(ctx context.Context, company, attribute string) (enrich.ResolvedAnswer, bool, error) {
	var (
		content    sql.NullString
		provenance string
		origin     string
		state      string
	)
	err := s.db.QueryRowContext(ctx, lookupSQL, company, attribute).Scan(&content, &provenance, &origin, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return enrich.ResolvedAnswer{}, false, nil
	}
	if err != nil {
		return enrich.ResolvedAnswer{}, false, fmt.Errorf("lookup answer: %w", err)
	}
	if !content.Valid {
		return enrich.ResolvedAnswer{}, false, nil
	}
	value := content.String
	return enrich.ResolvedAnswer{
		Company:    company,
		Attribute:  attribute,
		Content:    &value,
		Provenance: provenance,
		Origin:     origin,
		State:      enrich.State(state),
	}, true, nil
}

func upsertArgs(a enrich.ResolvedAnswer, runID string) []any {
	var content sql.NullString
	if a.Content != nil {
		content = sql.NullString{String: *a.Content, Valid: true}
	}
	return []any{a.Company, a.Attribute, content, a.Provenance, a.Origin, string(a.State), a.Error, runID}
}
