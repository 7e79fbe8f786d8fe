package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var businessCols = []string{"id", "title", "price", "website", "phone_unformatted", "state", "has_emails", "created_at", "id", "lat", "lng"}

func TestPostgresStore_SaveBusiness(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	in := lakeside()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO locations`).
		WithArgs(pgxmock.AnyArg(), in.Location.Lat, in.Location.Lng).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO businesses`).
		WithArgs(pgxmock.AnyArg(), in.Title, in.Price, in.Website, in.PhoneUnformatted, in.State, true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"emails"}, emailColumns).WillReturnResult(2)
	mock.ExpectCommit()

	saved, err := s.SaveBusiness(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.Title, saved.Title)
	assert.Equal(t, in.Emails, saved.Addresses())
	assert.Equal(t, in.Location.Lat, saved.Location.Lat)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBusiness_NoEmailsSkipsCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO locations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO businesses`).
		WithArgs(pgxmock.AnyArg(), "Quiet", "", "", "", (*string)(nil), false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	saved, err := s.SaveBusiness(context.Background(), model.Enrich(model.RawBusiness{Title: "Quiet"}, nil))
	require.NoError(t, err)
	assert.False(t, saved.HasEmails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBusiness_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO locations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO businesses`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("check constraint violated"))
	mock.ExpectRollback()

	_, err := s.SaveBusiness(context.Background(), lakeside())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert business")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBusiness(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	state := "Open now"

	mock.ExpectQuery(`FROM businesses b JOIN locations l ON l.id = b.location_id WHERE b.id = \$1`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows(businessCols).
			AddRow("b1", "Lakeside Diner", "££", "https://lakeside.example.com", "+441375000000", &state, true, now, "l1", 51.47, 0.32))
	mock.ExpectQuery(`SELECT id, address, business_id FROM emails WHERE business_id = ANY\(\$1\)`).
		WithArgs([]string{"b1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "address", "business_id"}).
			AddRow("e1", "hello@lakeside.example.com", "b1").
			AddRow("e2", "bookings@lakeside.example.com", "b1"))

	got, err := s.GetBusiness(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "Lakeside Diner", got.Title)
	assert.Equal(t, model.Location{ID: "l1", Lat: 51.47, Lng: 0.32}, got.Location)
	assert.Equal(t, []string{"hello@lakeside.example.com", "bookings@lakeside.example.com"}, got.Addresses())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBusiness_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE b.id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBusiness(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBusinesses(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	yes := true

	mock.ExpectQuery(`ORDER BY b.created_at DESC, b.id LIMIT \$2 OFFSET \$3`).
		WithArgs(&yes, 10, 20).
		WillReturnRows(pgxmock.NewRows(businessCols).
			AddRow("b1", "One", "", "", "", (*string)(nil), true, now, "l1", 1.0, 2.0).
			AddRow("b2", "Two", "", "", "", (*string)(nil), true, now, "l2", 3.0, 4.0))
	mock.ExpectQuery(`FROM emails WHERE business_id = ANY`).
		WithArgs([]string{"b1", "b2"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "address", "business_id"}).
			AddRow("e1", "a@one.com", "b1").
			AddRow("e2", "b@two.com", "b2"))

	list, err := s.ListBusinesses(context.Background(), BusinessFilter{Limit: 10, Offset: 20, HasEmails: &yes})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"a@one.com"}, list[0].Addresses())
	assert.Equal(t, []string{"b@two.com"}, list[1].Addresses())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBusinesses_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM businesses b`).
		WithArgs((*bool)(nil), defaultListLimit, 0).
		WillReturnRows(pgxmock.NewRows(businessCols))

	list, err := s.ListBusinesses(context.Background(), BusinessFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteBusiness(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM businesses WHERE id = \$1 RETURNING location_id`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"location_id"}).AddRow("l1"))
	mock.ExpectExec(`DELETE FROM locations WHERE id = \$1`).
		WithArgs("l1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteBusiness(context.Background(), "b1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteBusiness_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM businesses`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.DeleteBusiness(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountBusinesses(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM businesses`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountBusinesses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	criteria := model.SearchCriteria{Keywords: []string{"restaurant"}, Location: "Grays", MaxResults: 5}

	mock.ExpectExec(`INSERT INTO search_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), criteria)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.SearchRunRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE search_runs SET`).
		WithArgs("failed", 0, 0, 0, "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRun(context.Background(), &model.SearchRun{ID: "missing", Status: model.SearchRunFailed, Error: "boom"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	criteria := model.SearchCriteria{Keywords: []string{"plumber"}, Location: "Leeds", MaxResults: 3}
	criteriaJSON, err := json.Marshal(criteria)
	require.NoError(t, err)

	mock.ExpectQuery(`FROM search_runs WHERE id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "criteria", "status", "found", "persisted", "failed", "error", "created_at", "updated_at"}).
			AddRow("r1", criteriaJSON, model.SearchRunComplete, 3, 2, 1, "1 failed", now, now))

	run, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, criteria, run.Criteria)
	assert.Equal(t, 2, run.Persisted)
	assert.Equal(t, 1, run.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM search_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	status := "failed"

	mock.ExpectQuery(`FROM search_runs WHERE \(\$1::text IS NULL OR status = \$1\)`).
		WithArgs(&status, 5, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "criteria", "status", "found", "persisted", "failed", "error", "created_at", "updated_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.SearchRunFailed, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PingAndMigrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectPing()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS locations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
