package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/Rezme-Inc/incentive-agent/internal/db"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS programs (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	name_normalized    TEXT NOT NULL,
	tier               TEXT NOT NULL,
	location_key       TEXT NOT NULL,
	agency             TEXT NOT NULL DEFAULT '',
	benefit_type       TEXT NOT NULL DEFAULT '',
	jurisdiction       TEXT NOT NULL DEFAULT '',
	max_value          TEXT NOT NULL DEFAULT '',
	target_populations JSONB NOT NULL DEFAULT '[]',
	description        TEXT NOT NULL DEFAULT '',
	source_urls        JSONB NOT NULL DEFAULT '[]',
	confidence         TEXT NOT NULL DEFAULT 'low',
	first_seen_at      TIMESTAMPTZ NOT NULL,
	last_confirmed_at  TIMESTAMPTZ NOT NULL,
	discovery_count    INTEGER NOT NULL DEFAULT 1,
	miss_count         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_programs_scope ON programs(tier, location_key);

CREATE TABLE IF NOT EXISTS reconcile_log (
	id           UUID PRIMARY KEY,
	tier         TEXT NOT NULL,
	location_key TEXT NOT NULL,
	candidates   INTEGER NOT NULL DEFAULT 0,
	matched      INTEGER NOT NULL DEFAULT 0,
	created      INTEGER NOT NULL DEFAULT 0,
	missed       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL
);
`

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

const pgSelectRecord = `SELECT id, name, name_normalized, tier, location_key,
	agency, benefit_type, jurisdiction, max_value, target_populations::text,
	description, source_urls::text, confidence,
	first_seen_at, last_confirmed_at, discovery_count, miss_count
FROM programs`

func (s *PostgresStore) Lookup(ctx context.Context, tier model.Tier, locationKey string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		pgSelectRecord+` WHERE tier = $1 AND location_key = $2 ORDER BY first_seen_at, id`,
		string(tier), locationKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup scope")
	}
	defer rows.Close()
	return collectPgxRecords(rows)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx, pgSelectRecord+` WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get record")
	}
	return rec, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		pgSelectRecord+` ORDER BY tier, location_key, first_seen_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list all")
	}
	defer rows.Close()
	return collectPgxRecords(rows)
}

func (s *PostgresStore) Upsert(ctx context.Context, rec model.Record) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, pgSelectRecord+` WHERE id = $1 FOR UPDATE`, rec.ID)
	existing, err := scanRecord(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		now := time.Now().UTC()
		ins := prepareInsert(rec, now)
		if _, err := tx.Exec(ctx,
			`INSERT INTO programs (id, name, name_normalized, tier, location_key,
				agency, benefit_type, jurisdiction, max_value, target_populations,
				description, source_urls, confidence,
				first_seen_at, last_confirmed_at, discovery_count, miss_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			insertArgs(ins)...,
		); err != nil {
			return false, eris.Wrapf(err, "postgres: insert program %s", rec.ID)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, eris.Wrap(err, "postgres: commit upsert")
		}
		return true, nil
	case err != nil:
		return false, eris.Wrap(err, "postgres: read existing for upsert")
	}

	merged, ok := mergeForUpsert(existing, rec)
	if !ok {
		return false, nil
	}
	if err := s.updateRecord(ctx, tx, merged); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit upsert")
	}
	return false, nil
}

func (s *PostgresStore) Confirm(ctx context.Context, id string, obs model.Observation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin confirm")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, pgSelectRecord+` WHERE id = $1 FOR UPDATE`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("postgres: confirm: record not found: %s", id)
	}
	if err != nil {
		return eris.Wrap(err, "postgres: read existing for confirm")
	}

	observeRatchet(rec, obs.Confidence)
	rec.ApplyConfirm(obs, time.Now().UTC())
	if err := s.updateRecord(ctx, tx, rec); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit confirm")
}

func (s *PostgresStore) RecordMiss(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE programs SET miss_count = miss_count + 1 WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: record miss %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: record miss: record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) LogReconcile(ctx context.Context, entry ReconcileLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reconcile_log (id, tier, location_key, candidates, matched, created, missed, skipped, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), string(entry.Tier), entry.LocationKey,
		entry.Candidates, entry.Matched, entry.Created, entry.Missed, entry.Skipped,
		time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: log reconcile")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByTier:       make(map[model.Tier]int),
		ByConfidence: make(map[model.Confidence]int),
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM programs`).Scan(&st.TotalPrograms); err != nil {
		return nil, eris.Wrap(err, "postgres: stats total")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT tier, COUNT(*) FROM programs GROUP BY tier`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by tier")
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier count")
		}
		st.ByTier[model.Tier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats by tier iterate")
	}

	confRows, err := s.pool.Query(ctx,
		`SELECT confidence, COUNT(*) FROM programs GROUP BY confidence`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by confidence")
	}
	defer confRows.Close()
	for confRows.Next() {
		var conf string
		var n int
		if err := confRows.Scan(&conf, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan confidence count")
		}
		st.ByConfidence[model.Confidence(conf)] = n
	}
	if err := confRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats by confidence iterate")
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reconcile_log`).Scan(&st.ReconcilePasses); err != nil {
		return nil, eris.Wrap(err, "postgres: stats reconcile passes")
	}
	return st, nil
}

func (s *PostgresStore) updateRecord(ctx context.Context, tx pgx.Tx, rec *model.Record) error {
	pops, urls, err := marshalListFields(rec)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE programs SET
			name = $2, agency = $3, benefit_type = $4, jurisdiction = $5,
			max_value = $6, target_populations = $7, description = $8,
			source_urls = $9, confidence = $10, last_confirmed_at = $11,
			discovery_count = $12, miss_count = $13
		 WHERE id = $1`,
		rec.ID, rec.Name, rec.Attributes.Agency, rec.Attributes.BenefitType,
		rec.Attributes.Jurisdiction, rec.Attributes.MaxValue, pops,
		rec.Attributes.Description, urls, string(rec.Confidence),
		rec.LastConfirmedAt, rec.DiscoveryCount, rec.MissCount,
	)
	return eris.Wrapf(err, "postgres: update program %s", rec.ID)
}

func collectPgxRecords(rows pgx.Rows) ([]model.Record, error) {
	var recs []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate records")
}
