package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen/internal/db"
	"github.com/sells-group/leadgen/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id  TEXT PRIMARY KEY,
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS businesses (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	price             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	phone_unformatted TEXT NOT NULL DEFAULT '',
	state             TEXT,
	has_emails        BOOLEAN NOT NULL DEFAULT false,
	location_id       TEXT NOT NULL UNIQUE REFERENCES locations(id),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS emails (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0,
	business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS search_runs (
	id         TEXT PRIMARY KEY,
	criteria   JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	found      INTEGER NOT NULL DEFAULT 0,
	persisted  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_businesses_created_at ON businesses(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_businesses_has_emails ON businesses(has_emails);
CREATE INDEX IF NOT EXISTS idx_emails_business_id ON emails(business_id);
CREATE INDEX IF NOT EXISTS idx_search_runs_status ON search_runs(status);
`

var emailColumns = []string{"id", "address", "position", "business_id"}

const businessSelect = `SELECT b.id, b.title, b.price, b.website, b.phone_unformatted, b.state, b.has_emails, b.created_at, l.id, l.lat, l.lng
	FROM businesses b JOIN locations l ON l.id = b.location_id`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveBusiness writes the location, the business and its emails in one
// transaction. Nothing is left behind when any step fails.
func (s *PostgresStore) SaveBusiness(ctx context.Context, b model.EnrichedBusiness) (*model.PersistedBusiness, error) {
	businessID := uuid.New().String()
	locationID := uuid.New().String()
	emailIDs := make([]string, len(b.Emails))
	for i := range emailIDs {
		emailIDs[i] = uuid.New().String()
	}
	now := time.Now().UTC()

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO locations (id, lat, lng) VALUES ($1, $2, $3)`,
			locationID, b.Location.Lat, b.Location.Lng,
		); err != nil {
			return eris.Wrap(err, "postgres: insert location")
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO businesses (id, title, price, website, phone_unformatted, state, has_emails, location_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			businessID, b.Title, b.Price, b.Website, b.PhoneUnformatted, b.State, b.HasEmails, locationID, now,
		); err != nil {
			return eris.Wrap(err, "postgres: insert business")
		}

		rows := make([][]any, len(b.Emails))
		for i, addr := range b.Emails {
			rows[i] = []any{emailIDs[i], addr, i, businessID}
		}
		if _, err := db.CopyFrom(ctx, tx, "emails", emailColumns, rows); err != nil {
			return eris.Wrap(err, "postgres: insert emails")
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save business %q", b.Title)
	}

	p := newPersisted(b, businessID, locationID, emailIDs)
	p.CreatedAt = now
	return p, nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.PersistedBusiness, error) {
	rows, err := s.pool.Query(ctx,
		businessSelect+` WHERE ($1::boolean IS NULL OR b.has_emails = $1)
		 ORDER BY b.created_at DESC, b.id LIMIT $2 OFFSET $3`,
		filter.HasEmails, listLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var out []model.PersistedBusiness
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses iterate")
	}
	rows.Close()

	if err := s.attachEmails(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.PersistedBusiness, error) {
	b, err := scanBusiness(s.pool.QueryRow(ctx, businessSelect+` WHERE b.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get business %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %s", id)
	}

	list := []model.PersistedBusiness{*b}
	if err := s.attachEmails(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *PostgresStore) CountBusinesses(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM businesses`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count businesses")
}

// DeleteBusiness removes a business, its emails (by cascade) and its location.
func (s *PostgresStore) DeleteBusiness(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var locationID string
		err := tx.QueryRow(ctx, `DELETE FROM businesses WHERE id = $1 RETURNING location_id`, id).Scan(&locationID)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: delete business %s", id)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: delete business %s", id)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM locations WHERE id = $1`, locationID); err != nil {
			return eris.Wrapf(err, "postgres: delete location %s", locationID)
		}
		return nil
	})
}

func (s *PostgresStore) attachEmails(ctx context.Context, list []model.PersistedBusiness) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	byID := make(map[string]int, len(list))
	for i := range list {
		ids[i] = list[i].ID
		byID[list[i].ID] = i
		list[i].Emails = []model.Email{}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, address, business_id FROM emails WHERE business_id = ANY($1) ORDER BY business_id, position`,
		ids,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: list emails")
	}
	defer rows.Close()

	for rows.Next() {
		var e model.Email
		if err := rows.Scan(&e.ID, &e.Address, &e.BusinessID); err != nil {
			return eris.Wrap(err, "postgres: scan email")
		}
		if i, ok := byID[e.BusinessID]; ok {
			list[i].Emails = append(list[i].Emails, e)
		}
	}
	return eris.Wrap(rows.Err(), "postgres: list emails iterate")
}

func scanBusiness(row pgx.Row) (*model.PersistedBusiness, error) {
	var b model.PersistedBusiness
	err := row.Scan(&b.ID, &b.Title, &b.Price, &b.Website, &b.PhoneUnformatted, &b.State, &b.HasEmails, &b.CreatedAt,
		&b.Location.ID, &b.Location.Lat, &b.Location.Lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan business")
	}
	return &b, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, criteria model.SearchCriteria) (*model.SearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal criteria")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_runs (id, criteria, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, criteriaJSON, string(model.SearchRunRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.SearchRun{
		ID:        id,
		Criteria:  criteria,
		Status:    model.SearchRunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateRun stores the status, counts and error of run and bumps UpdatedAt.
func (s *PostgresStore) UpdateRun(ctx context.Context, run *model.SearchRun) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE search_runs SET status = $1, found = $2, persisted = $3, failed = $4, error = $5, updated_at = $6 WHERE id = $7`,
		string(run.Status), run.Found, run.Persisted, run.Failed, run.Error, now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update run %s", run.ID)
	}
	run.UpdatedAt = now
	return nil
}

const runSelect = `SELECT id, criteria, status, found, persisted, failed, error, created_at, updated_at FROM search_runs`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.SearchRun, error) {
	r, err := scanRunRow(s.pool.QueryRow(ctx, runSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.SearchRun, error) {
	var status *string
	if filter.Status != "" {
		v := string(filter.Status)
		status = &v
	}

	rows, err := s.pool.Query(ctx,
		runSelect+` WHERE ($1::text IS NULL OR status = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, listLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.SearchRun
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanRunRow(row pgx.Row) (*model.SearchRun, error) {
	var r model.SearchRun
	var criteriaJSON []byte
	if err := row.Scan(&r.ID, &criteriaJSON, &r.Status, &r.Found, &r.Persisted, &r.Failed, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteriaJSON, &r.Criteria); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal criteria")
	}
	return &r, nil
}
