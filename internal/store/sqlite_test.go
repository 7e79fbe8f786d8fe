package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_DeleteCascadesEmailsAndLocation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	saved, err := st.SaveBusiness(ctx, lakeside())
	require.NoError(t, err)
	require.NoError(t, st.DeleteBusiness(ctx, saved.ID))

	var emails, locations int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT count(*) FROM emails`).Scan(&emails))
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT count(*) FROM locations`).Scan(&locations))
	assert.Zero(t, emails)
	assert.Zero(t, locations)
}

func TestSQLite_ForeignKeysEnforced(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx,
		`INSERT INTO emails (id, address, position, business_id) VALUES ('e1', 'x@y.com', 0, 'no-such-business')`)
	assert.Error(t, err)
}

func TestSQLite_LocationBelongsToOneBusiness(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	saved, err := st.SaveBusiness(ctx, lakeside())
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx,
		`INSERT INTO businesses (id, title, location_id) VALUES ('other', 'Other', ?)`, saved.Location.ID)
	assert.Error(t, err)
}

func TestSQLite_SaveBusinessRollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx, `DROP TABLE emails`)
	require.NoError(t, err)

	_, err = st.SaveBusiness(ctx, lakeside())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: insert email")

	var businesses, locations int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT count(*) FROM businesses`).Scan(&businesses))
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT count(*) FROM locations`).Scan(&locations))
	assert.Zero(t, businesses)
	assert.Zero(t, locations)
}

func TestSQLite_ConcurrentSaves(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = st.SaveBusiness(ctx, model.Enrich(model.RawBusiness{Title: "b"}, []string{"a@b.com"}))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	n, err := st.CountBusinesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestSQLite_InvalidPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.Error(t, err)
}
