package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	sql  string
	args []interface{}
}

type fakeDB struct {
	execs    []call
	queries  []call
	rows     []call
	affected int64
	execErr  error
	rowErr   error
	count    int64
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, call{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", f.affected)), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.queries = append(f.queries, call{sql: sql, args: args})
	return emptyRows{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.rows = append(f.rows, call{sql: sql, args: args})
	return countRow{n: f.count, err: f.rowErr}
}

type countRow struct {
	n   int64
	err error
}

func (r countRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case *int64:
		*d = r.n
	case *int:
		*d = int(r.n)
	}
	return nil
}

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...interface{}) error                    { return nil }
func (emptyRows) Values() ([]interface{}, error)               { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

func newTestRepo(db *fakeDB) *PurchaseAttemptRepository {
	return &PurchaseAttemptRepository{db: db}
}

func TestUpdateOutcomeArguments(t *testing.T) {
	tests := []struct {
		name        string
		mark        func(r *PurchaseAttemptRepository) error
		status      boost.AttemptStatus
		boostID     string
		redirectURL string
		reason      string
		resolved    bool
	}{
		{
			name:     "confirmed",
			mark:     func(r *PurchaseAttemptRepository) error { return r.MarkConfirmed(context.Background(), "ref-1", "b-1") },
			status:   boost.AttemptConfirmed,
			boostID:  "b-1",
			resolved: true,
		},
		{
			name:        "redirect pending stays unresolved",
			mark:        func(r *PurchaseAttemptRepository) error { return r.MarkRedirectPending(context.Background(), "ref-1", "https://pay.example.com/1") },
			status:      boost.AttemptRedirectPending,
			redirectURL: "https://pay.example.com/1",
		},
		{
			name:     "failed",
			mark:     func(r *PurchaseAttemptRepository) error { return r.MarkFailed(context.Background(), "ref-1", "network_error") },
			status:   boost.AttemptFailed,
			reason:   "network_error",
			resolved: true,
		},
		{
			name:     "observed sends no redirect url",
			mark:     func(r *PurchaseAttemptRepository) error { return r.MarkObserved(context.Background(), "ref-1", "b-ext") },
			status:   boost.AttemptObserved,
			boostID:  "b-ext",
			resolved: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{affected: 1}
			require.NoError(t, tt.mark(newTestRepo(db)))

			require.Len(t, db.execs, 1)
			args := db.execs[0].args
			require.Len(t, args, 7)
			assert.Equal(t, tt.status, args[0])
			assert.Equal(t, tt.boostID, args[1])
			assert.Equal(t, tt.redirectURL, args[2])
			assert.Equal(t, tt.reason, args[3])
			assert.Equal(t, tt.resolved, args[4])
			assert.Equal(t, "ref-1", args[6])
		})
	}
}

// Empty boost id and redirect url keep the stored values; an empty reason clears it.
func TestUpdateOutcomeOnlyOverwritesSuppliedColumns(t *testing.T) {
	db := &fakeDB{affected: 1}
	require.NoError(t, newTestRepo(db).MarkObserved(context.Background(), "ref-1", "b-ext"))

	sql := db.execs[0].sql
	assert.Contains(t, sql, "boost_id = COALESCE(NULLIF($2, ''), boost_id)")
	assert.Contains(t, sql, "redirect_url = COALESCE(NULLIF($3, ''), redirect_url)")
	assert.Contains(t, sql, "failure_reason = NULLIF($4, '')")
	assert.Contains(t, sql, "resolved_at = CASE WHEN $5 THEN $6 ELSE resolved_at END")
	assert.Contains(t, sql, "WHERE reference = $7")
}

func TestUpdateOutcomeUnknownReference(t *testing.T) {
	db := &fakeDB{affected: 0}
	err := newTestRepo(db).MarkConfirmed(context.Background(), "missing", "b-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestUpdateOutcomeExecError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	err := newTestRepo(db).MarkFailed(context.Background(), "ref-1", "gateway_error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update purchase attempt")
	assert.NotErrorIs(t, err, xerrors.ErrNotFound)
}

func TestCreateDuplicateReferenceIsConflict(t *testing.T) {
	db := &fakeDB{rowErr: &pgconn.PgError{Code: "23505"}}
	err := newTestRepo(db).Create(context.Background(), &boost.PurchaseAttempt{Reference: "ref-1"})
	assert.ErrorIs(t, err, xerrors.ErrConflict)

	db = &fakeDB{rowErr: &pgconn.PgError{Code: "23514"}}
	a := &boost.PurchaseAttempt{Reference: "ref-2"}
	err = newTestRepo(db).Create(context.Background(), a)
	require.Error(t, err)
	assert.NotErrorIs(t, err, xerrors.ErrConflict)
	assert.Equal(t, boost.AttemptSubmitting, a.Status)
}

func TestPageWindow(t *testing.T) {
	tests := []struct {
		name         string
		page, size   int
		limit, off   int
		wantPage     int
		wantPageSize int
	}{
		{"defaults", 0, 0, 20, 0, 1, 20},
		{"first page", 1, 10, 10, 0, 1, 10},
		{"third page", 3, 10, 10, 20, 3, 10},
		{"negative page", -2, 5, 5, 0, 1, 5},
		{"default size on later page", 2, 0, 20, 20, 2, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &boost.AttemptListFilters{Page: tt.page, PageSize: tt.size}
			limit, offset := pageWindow(f)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.off, offset)
			assert.Equal(t, tt.wantPage, f.Page)
			assert.Equal(t, tt.wantPageSize, f.PageSize)
		})
	}
}

func TestListByIdentityBindsFiltersAndWindow(t *testing.T) {
	db := &fakeDB{count: 25}
	status := boost.AttemptFailed
	filters := &boost.AttemptListFilters{Status: &status, Page: 3, PageSize: 10}

	attempts, total, err := newTestRepo(db).ListByIdentity(context.Background(), 42, filters)
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.Equal(t, int64(25), total)

	require.Len(t, db.rows, 1)
	assert.Contains(t, db.rows[0].sql, "WHERE identity_id = $1 AND status = $2")
	assert.Equal(t, []interface{}{int64(42), boost.AttemptFailed}, db.rows[0].args)

	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0].sql, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []interface{}{int64(42), boost.AttemptFailed, 10, 20}, db.queries[0].args)
}

func TestListByIdentityWithoutStatus(t *testing.T) {
	db := &fakeDB{count: 0}

	_, _, err := newTestRepo(db).ListByIdentity(context.Background(), 7, &boost.AttemptListFilters{})
	require.NoError(t, err)

	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0].sql, "LIMIT $2 OFFSET $3")
	assert.Equal(t, []interface{}{int64(7), 20, 0}, db.queries[0].args)
}
