package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps foreign_keys in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id  TEXT PRIMARY KEY,
	lat REAL NOT NULL,
	lng REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS businesses (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	price             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	phone_unformatted TEXT NOT NULL DEFAULT '',
	state             TEXT,
	has_emails        BOOLEAN NOT NULL DEFAULT 0,
	location_id       TEXT NOT NULL UNIQUE REFERENCES locations(id),
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS emails (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0,
	business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS search_runs (
	id         TEXT PRIMARY KEY,
	criteria   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	found      INTEGER NOT NULL DEFAULT 0,
	persisted  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_businesses_created_at ON businesses(created_at);
CREATE INDEX IF NOT EXISTS idx_emails_business_id ON emails(business_id);
CREATE INDEX IF NOT EXISTS idx_search_runs_status ON search_runs(status);
`

const sqliteBusinessSelect = `SELECT b.id, b.title, b.price, b.website, b.phone_unformatted, b.state, b.has_emails, b.created_at, l.id, l.lat, l.lng
	FROM businesses b JOIN locations l ON l.id = b.location_id`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveBusiness(ctx context.Context, b model.EnrichedBusiness) (*model.PersistedBusiness, error) {
	businessID := uuid.New().String()
	locationID := uuid.New().String()
	emailIDs := make([]string, len(b.Emails))
	for i := range emailIDs {
		emailIDs[i] = uuid.New().String()
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO locations (id, lat, lng) VALUES (?, ?, ?)`,
		locationID, b.Location.Lat, b.Location.Lng,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert location for %q", b.Title)
	}

	var state sql.NullString
	if b.State != nil {
		state = sql.NullString{String: *b.State, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO businesses (id, title, price, website, phone_unformatted, state, has_emails, location_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		businessID, b.Title, b.Price, b.Website, b.PhoneUnformatted, state, b.HasEmails, locationID, now,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert business %q", b.Title)
	}

	for i, addr := range b.Emails {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO emails (id, address, position, business_id) VALUES (?, ?, ?, ?)`,
			emailIDs[i], addr, i, businessID,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert email for %q", b.Title)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}

	p := newPersisted(b, businessID, locationID, emailIDs)
	p.CreatedAt = now
	return p, nil
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.PersistedBusiness, error) {
	query := sqliteBusinessSelect + ` WHERE 1=1`
	var args []any
	if filter.HasEmails != nil {
		query += ` AND b.has_emails = ?`
		args = append(args, *filter.HasEmails)
	}
	query += ` ORDER BY b.created_at DESC, b.id LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var out []model.PersistedBusiness
	for rows.Next() {
		b, err := scanSQLiteBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses iterate")
	}
	rows.Close()

	if err := s.attachEmails(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id string) (*model.PersistedBusiness, error) {
	b, err := scanSQLiteBusiness(s.db.QueryRowContext(ctx, sqliteBusinessSelect+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get business %s", id)
	}
	if err != nil {
		return nil, err
	}
	list := []model.PersistedBusiness{*b}
	if err := s.attachEmails(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *SQLiteStore) CountBusinesses(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM businesses`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count businesses")
}

func (s *SQLiteStore) DeleteBusiness(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var locationID string
	err = tx.QueryRowContext(ctx, `SELECT location_id FROM businesses WHERE id = ?`, id).Scan(&locationID)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: delete business %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete business %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM businesses WHERE id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete business %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, locationID); err != nil {
		return eris.Wrapf(err, "sqlite: delete location %s", locationID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) attachEmails(ctx context.Context, list []model.PersistedBusiness) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]int, len(list))
	args := make([]any, len(list))
	for i := range list {
		byID[list[i].ID] = i
		args[i] = list[i].ID
		list[i].Emails = []model.Email{}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(list)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, address, business_id FROM emails WHERE business_id IN (`+placeholders+`) ORDER BY business_id, position`,
		args...,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: list emails")
	}
	defer rows.Close()

	for rows.Next() {
		var e model.Email
		if err := rows.Scan(&e.ID, &e.Address, &e.BusinessID); err != nil {
			return eris.Wrap(err, "sqlite: scan email")
		}
		if i, ok := byID[e.BusinessID]; ok {
			list[i].Emails = append(list[i].Emails, e)
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: list emails iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, criteria model.SearchCriteria) (*model.SearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal criteria")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_runs (id, criteria, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(criteriaJSON), string(model.SearchRunRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.SearchRun{
		ID:        id,
		Criteria:  criteria,
		Status:    model.SearchRunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.SearchRun) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_runs SET status = ?, found = ?, persisted = ?, failed = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(run.Status), run.Found, run.Persisted, run.Failed, run.Error, now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", run.ID)
	}
	if err := checkRowsAffected(res, "run", run.ID); err != nil {
		return err
	}
	run.UpdatedAt = now
	return nil
}

const sqliteRunSelect = `SELECT id, criteria, status, found, persisted, failed, error, created_at, updated_at FROM search_runs`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.SearchRun, error) {
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx, sqliteRunSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", id)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.SearchRun, error) {
	query := sqliteRunSelect + ` WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.SearchRun
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteBusiness(row scannable) (*model.PersistedBusiness, error) {
	var b model.PersistedBusiness
	var state sql.NullString
	err := row.Scan(&b.ID, &b.Title, &b.Price, &b.Website, &b.PhoneUnformatted, &state, &b.HasEmails, &b.CreatedAt,
		&b.Location.ID, &b.Location.Lat, &b.Location.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan business")
	}
	if state.Valid {
		v := state.String
		b.State = &v
	}
	return &b, nil
}

func scanSQLiteRun(row scannable) (*model.SearchRun, error) {
	var r model.SearchRun
	var criteriaJSON string
	err := row.Scan(&r.ID, &criteriaJSON, &r.Status, &r.Found, &r.Persisted, &r.Failed, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(criteriaJSON), &r.Criteria); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal criteria")
	}
	return &r, nil
}
