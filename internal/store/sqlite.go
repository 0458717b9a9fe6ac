package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. WAL mode keeps
// scoped lookups from parallel discovery branches non-blocking while a
// writer commits.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	target_populations TEXT NOT NULL DEFAULT '[]',
	description        TEXT NOT NULL DEFAULT '',
	source_urls        TEXT NOT NULL DEFAULT '[]',
	confidence         TEXT NOT NULL DEFAULT 'low',
	first_seen_at      DATETIME NOT NULL,
	last_confirmed_at  DATETIME NOT NULL,
	discovery_count    INTEGER NOT NULL DEFAULT 1,
	miss_count         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_programs_scope ON programs(tier, location_key);

CREATE TABLE IF NOT EXISTS reconcile_log (
	id           TEXT PRIMARY KEY,
	tier         TEXT NOT NULL,
	location_key TEXT NOT NULL,
	candidates   INTEGER NOT NULL DEFAULT 0,
	matched      INTEGER NOT NULL DEFAULT 0,
	created      INTEGER NOT NULL DEFAULT 0,
	missed       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `id, name, name_normalized, tier, location_key,
	agency, benefit_type, jurisdiction, max_value, target_populations,
	description, source_urls, confidence,
	first_seen_at, last_confirmed_at, discovery_count, miss_count`

func (s *SQLiteStore) Lookup(ctx context.Context, tier model.Tier, locationKey string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM programs
		 WHERE tier = ? AND location_key = ?
		 ORDER BY first_seen_at, id`,
		string(tier), locationKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup scope")
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM programs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get record")
	}
	return rec, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM programs ORDER BY tier, location_key, first_seen_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list all")
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.Record) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM programs WHERE id = ?`, rec.ID)
	existing, err := scanRecord(row)
	switch {
	case err == sql.ErrNoRows:
		now := time.Now().UTC()
		ins := prepareInsert(rec, now)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO programs (`+recordColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			insertArgs(ins)...,
		); err != nil {
			return false, eris.Wrapf(err, "sqlite: insert program %s", rec.ID)
		}
		if err := tx.Commit(); err != nil {
			return false, eris.Wrap(err, "sqlite: commit upsert")
		}
		return true, nil
	case err != nil:
		return false, eris.Wrap(err, "sqlite: read existing for upsert")
	}

	merged, ok := mergeForUpsert(existing, rec)
	if !ok {
		// Identity mismatch: same id, different logical program. Caller bug;
		// keep prior state.
		return false, nil
	}
	if err := updateRecordTx(ctx, tx, merged); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit upsert")
	}
	return false, nil
}

func (s *SQLiteStore) Confirm(ctx context.Context, id string, obs model.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin confirm")
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM programs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return eris.Errorf("sqlite: confirm: record not found: %s", id)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: read existing for confirm")
	}

	observeRatchet(rec, obs.Confidence)
	rec.ApplyConfirm(obs, time.Now().UTC())
	if err := updateRecordTx(ctx, tx, rec); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit confirm")
}

func (s *SQLiteStore) RecordMiss(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE programs SET miss_count = miss_count + 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record miss %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: record miss: record not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) LogReconcile(ctx context.Context, entry ReconcileLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reconcile_log (id, tier, location_key, candidates, matched, created, missed, skipped, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), string(entry.Tier), entry.LocationKey,
		entry.Candidates, entry.Matched, entry.Created, entry.Missed, entry.Skipped,
		time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: log reconcile")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByTier:       make(map[model.Tier]int),
		ByConfidence: make(map[model.Confidence]int),
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM programs`).Scan(&st.TotalPrograms); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats total")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, COUNT(*) FROM programs GROUP BY tier`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by tier")
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier count")
		}
		st.ByTier[model.Tier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by tier iterate")
	}

	confRows, err := s.db.QueryContext(ctx,
		`SELECT confidence, COUNT(*) FROM programs GROUP BY confidence`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by confidence")
	}
	defer confRows.Close()
	for confRows.Next() {
		var conf string
		var n int
		if err := confRows.Scan(&conf, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan confidence count")
		}
		st.ByConfidence[model.Confidence(conf)] = n
	}
	if err := confRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by confidence iterate")
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconcile_log`).Scan(&st.ReconcilePasses); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats reconcile passes")
	}
	return st, nil
}

// updateRecordTx writes every mutable column of rec inside tx.
func updateRecordTx(ctx context.Context, tx *sql.Tx, rec *model.Record) error {
	pops, urls, err := marshalListFields(rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE programs SET
			name = ?, agency = ?, benefit_type = ?, jurisdiction = ?,
			max_value = ?, target_populations = ?, description = ?,
			source_urls = ?, confidence = ?, last_confirmed_at = ?,
			discovery_count = ?, miss_count = ?
		 WHERE id = ?`,
		rec.Name, rec.Attributes.Agency, rec.Attributes.BenefitType,
		rec.Attributes.Jurisdiction, rec.Attributes.MaxValue, pops,
		rec.Attributes.Description, urls, string(rec.Confidence),
		rec.LastConfirmedAt, rec.DiscoveryCount, rec.MissCount, rec.ID,
	)
	return eris.Wrapf(err, "sqlite: update program %s", rec.ID)
}

// shared helpers

// mergeForUpsert folds rec into existing with confirm semantics. It returns
// false when rec's identity tuple disagrees with the stored one, which means
// the caller constructed an id by hand instead of deriving it.
func mergeForUpsert(existing *model.Record, rec model.Record) (*model.Record, bool) {
	if existing.NameNormalized != rec.NameNormalized ||
		existing.Tier != rec.Tier || existing.LocationKey != rec.LocationKey {
		zap.L().Warn("store: refused upsert with mismatched identity tuple",
			zap.String("id", rec.ID),
			zap.String("stored_normalized", existing.NameNormalized),
			zap.String("offered_normalized", rec.NameNormalized))
		return nil, false
	}
	observeRatchet(existing, rec.Confidence)
	existing.ApplyConfirm(model.Observation{
		Name:       rec.Name,
		Confidence: rec.Confidence,
		Attributes: rec.Attributes,
	}, time.Now().UTC())
	return existing, true
}

// observeRatchet logs when an observation carries lower confidence than the
// stored record. The write proceeds with the stored value kept; this is a
// local correction, not an error.
func observeRatchet(rec *model.Record, observed model.Confidence) {
	if observed.Rank() < rec.Confidence.Rank() {
		zap.L().Debug("store: confidence ratchet held",
			zap.String("id", rec.ID),
			zap.String("stored", string(rec.Confidence)),
			zap.String("observed", string(observed)))
	}
}

// insertRecord is a Record plus its serialized list fields, ready to insert.
type insertRecord struct {
	rec        model.Record
	pops, urls string
}

func prepareInsert(rec model.Record, now time.Time) insertRecord {
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = now
	}
	if rec.LastConfirmedAt.IsZero() {
		rec.LastConfirmedAt = now
	}
	if rec.DiscoveryCount <= 0 {
		rec.DiscoveryCount = 1
	}
	if rec.Confidence.Rank() < 0 {
		rec.Confidence = model.ConfidenceLow
	}
	pops, urls, _ := marshalListFields(&rec)
	return insertRecord{rec: rec, pops: pops, urls: urls}
}

func insertArgs(ins insertRecord) []any {
	r := ins.rec
	return []any{
		r.ID, r.Name, r.NameNormalized, string(r.Tier), r.LocationKey,
		r.Attributes.Agency, r.Attributes.BenefitType, r.Attributes.Jurisdiction,
		r.Attributes.MaxValue, ins.pops, r.Attributes.Description, ins.urls,
		string(r.Confidence), r.FirstSeenAt, r.LastConfirmedAt,
		r.DiscoveryCount, r.MissCount,
	}
}

func marshalListFields(rec *model.Record) (pops, urls string, err error) {
	p, err := json.Marshal(emptyIfNil(rec.Attributes.TargetPopulations))
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal target populations")
	}
	u, err := json.Marshal(emptyIfNil(rec.Attributes.SourceURLs))
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal source urls")
	}
	return string(p), string(u), nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var tier, conf, pops, urls string
	err := row.Scan(
		&r.ID, &r.Name, &r.NameNormalized, &tier, &r.LocationKey,
		&r.Attributes.Agency, &r.Attributes.BenefitType, &r.Attributes.Jurisdiction,
		&r.Attributes.MaxValue, &pops, &r.Attributes.Description, &urls,
		&conf, &r.FirstSeenAt, &r.LastConfirmedAt, &r.DiscoveryCount, &r.MissCount,
	)
	if err != nil {
		return nil, err
	}
	r.Tier = model.Tier(tier)
	r.Confidence = model.Confidence(conf)
	if err := json.Unmarshal([]byte(pops), &r.Attributes.TargetPopulations); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal target populations for %s", r.ID)
	}
	if err := json.Unmarshal([]byte(urls), &r.Attributes.SourceURLs); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal source urls for %s", r.ID)
	}
	return &r, nil
}

func collectRecords(rows *sql.Rows) ([]model.Record, error) {
	var recs []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan record")
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "store: iterate records")
}
