package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/store"
)

const (
	upsertPattern = `INSERT INTO resolved_answers \(company, attribute, content, provenance, origin, state, error, run_id, updated_at\)`
	lookupPattern = `SELECT content, provenance, origin, state FROM resolved_answers\s+WHERE company = \$1 AND attribute = \$2 AND content IS NOT NULL`
)

func newMock(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db), mock
}

func strPtr(s string) *string { return &s }

func TestMigrate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS resolved_answers`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertsInTransaction(t *testing.T) {
	s, mock := newMock(t)
	s = s.WithRunID("run-1")

	rows := []enrich.ResolvedAnswer{
		{Company: "Acme", Attribute: "Headquarters", Content: strPtr("Austin, Texas"), Provenance: "linkedin_search_results", Origin: "https://li", State: enrich.StateResolvedFromSource},
		{Company: "Acme", Attribute: "Revenue", Provenance: enrich.FallbackMarker, State: enrich.StateUnresolved, Error: "oracle unavailable"},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(upsertPattern)
	prep.ExpectExec().
		WithArgs("Acme", "Headquarters", "Austin, Texas", "linkedin_search_results", "https://li", "RESOLVED_FROM_SOURCE", "", "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("Acme", "Revenue", nil, enrich.FallbackMarker, "", "UNRESOLVED", "oracle unavailable", "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Store(context.Background(), rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RollsBackOnError(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectPrepare(upsertPattern).ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Store(context.Background(), []enrich.ResolvedAnswer{{Company: "Acme", Attribute: "HQ", State: enrich.StateUnresolved}})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Empty(t *testing.T) {
	s, mock := newMock(t)
	require.NoError(t, s.Store(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_SkipsUnresolved(t *testing.T) {
	s, mock := newMock(t)
	require.NoError(t, s.Save(context.Background(), enrich.ResolvedAnswer{Company: "Acme", Attribute: "HQ", State: enrich.StateUnresolved}))

	mock.ExpectExec(upsertPattern).
		WithArgs("Acme", "HQ", "Austin", enrich.FallbackMarker, "", "RESOLVED_FROM_FALLBACK", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Save(context.Background(), enrich.ResolvedAnswer{
		Company: "Acme", Attribute: "HQ", Content: strPtr("Austin"), Provenance: enrich.FallbackMarker, State: enrich.StateResolvedFromFallback,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookup(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(lookupPattern).
		WithArgs("Acme", "Headquarters").
		WillReturnRows(sqlmock.NewRows([]string{"content", "provenance", "origin", "state"}).
			AddRow("Austin, Texas", "linkedin_search_results", "https://li", "RESOLVED_FROM_SOURCE"))
	mock.ExpectQuery(lookupPattern).
		WithArgs("Acme", "Revenue").
		WillReturnRows(sqlmock.NewRows([]string{"content", "provenance", "origin", "state"}))
	mock.ExpectQuery(lookupPattern).
		WithArgs("Acme", "CEO").
		WillReturnError(errors.New("connection reset"))

	got, ok, err := s.Lookup(context.Background(), "Acme", "Headquarters")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Austin, Texas", got.Value())
	assert.Equal(t, enrich.StateResolvedFromSource, got.State)
	assert.Equal(t, "Acme", got.Company)

	_, ok, err = s.Lookup(context.Background(), "Acme", "Revenue")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Lookup(context.Background(), "Acme", "CEO")
	require.ErrorContains(t, err, "connection reset")

	require.NoError(t, mock.ExpectationsWereMet())
}
