// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

// Compile-time interface checks.
var (
	_ store.Store       = (*Store)(nil)
	_ store.HealthStore = (*healthStore)(nil)
	_ store.JobLog      = (*jobLog)(nil)
)

// Store implements store.Store backed by a single SQLite database.
type Store struct {
	db     *sql.DB
	health *healthStore
	jobs   *jobLog
}

// Open opens (or creates) a SQLite database at dbPath and initialises the
// provider_health and job_log tables.
func Open(dbPath string, policy health.Policy, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "opening health db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "pinging health db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "migrating health db")
	}

	return &Store{
		db:     db,
		health: &healthStore{db: db, policy: policy, now: now},
		jobs:   &jobLog{db: db},
	}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS provider_health (
	provider             TEXT PRIMARY KEY,
	status               TEXT NOT NULL DEFAULT 'healthy',
	cooldown_until       TEXT,
	last_latency_ms      INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT '',
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	total_failures       INTEGER NOT NULL DEFAULT 0,
	total_successes      INTEGER NOT NULL DEFAULT 0,
	updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_log (
	id         TEXT PRIMARY KEY,
	job_type   TEXT NOT NULL,
	provider   TEXT NOT NULL DEFAULT '',
	success    INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	cost       REAL NOT NULL DEFAULT 0,
	attempts   INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_log_created ON job_log(created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Health returns the HealthStore sub-store.
func (s *Store) Health() store.HealthStore { return s.health }

// Jobs returns the JobLog sub-store.
func (s *Store) Jobs() store.JobLog { return s.jobs }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// ---------- healthStore ----------

type healthStore struct {
	db     *sql.DB
	policy health.Policy
	now    func() time.Time
}

const selectHealth = `SELECT provider, status, cooldown_until, last_latency_ms, last_error,
	consecutive_failures, total_failures, total_successes, updated_at FROM provider_health`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (health.Record, error) {
	var (
		rec               health.Record
		status, updatedAt string
		cooldown          sql.NullString
	)
	if err := row.Scan(&rec.Provider, &status, &cooldown, &rec.LastLatencyMs, &rec.LastError,
		&rec.ConsecutiveFailures, &rec.TotalFailures, &rec.TotalSuccesses, &updatedAt); err != nil {
		return health.Record{}, err
	}
	rec.Status = health.ParseStatus(status)
	rec.UpdatedAt = parseTime(updatedAt)
	if cooldown.Valid && cooldown.String != "" {
		t := parseTime(cooldown.String)
		rec.CooldownUntil = &t
	}
	return rec, nil
}

func (s *healthStore) Get(ctx context.Context, providers []string) (map[string]health.Record, error) {
	out := make(map[string]health.Record, len(providers))
	if len(providers) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(providers)), ",")
	args := make([]any, len(providers))
	for i, p := range providers {
		args[i] = p
	}

	rows, err := s.db.QueryContext(ctx, selectHealth+" WHERE provider IN ("+placeholders+")", args...)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "querying provider health")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "scanning provider health row")
		}
		out[rec.Provider] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "iterating provider health")
	}
	return out, nil
}

func (s *healthStore) List(ctx context.Context) ([]health.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectHealth+" ORDER BY provider ASC")
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "listing provider health")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []health.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "scanning provider health row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "iterating provider health")
	}
	return out, nil
}

func (s *healthStore) UpdateHealth(ctx context.Context, o health.Outcome) (health.Record, error) {
	if o.Provider == "" {
		return health.Record{}, relayerr.Wrap(store.ErrInvalidInput, relayerr.CodeStoreInvalidInput, "provider name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "beginning tx for %s", o.Provider)
	}
	defer tx.Rollback() //nolint:errcheck

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectHealth+" WHERE provider = ?", o.Provider))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec = health.Healthy(o.Provider)
	case err != nil:
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "loading health for %s", o.Provider)
	}

	rec = s.policy.Apply(rec, o, s.now())

	const upsert = `INSERT INTO provider_health (provider, status, cooldown_until, last_latency_ms, last_error,
	consecutive_failures, total_failures, total_successes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider) DO UPDATE SET
	status = excluded.status,
	cooldown_until = excluded.cooldown_until,
	last_latency_ms = excluded.last_latency_ms,
	last_error = excluded.last_error,
	consecutive_failures = excluded.consecutive_failures,
	total_failures = excluded.total_failures,
	total_successes = excluded.total_successes,
	updated_at = excluded.updated_at`

	var cooldown sql.NullString
	if rec.CooldownUntil != nil {
		cooldown = sql.NullString{String: formatTime(*rec.CooldownUntil), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, upsert,
		rec.Provider, string(rec.Status), cooldown, rec.LastLatencyMs, rec.LastError,
		rec.ConsecutiveFailures, rec.TotalFailures, rec.TotalSuccesses, formatTime(rec.UpdatedAt),
	); err != nil {
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "writing health for %s", o.Provider)
	}

	if err := tx.Commit(); err != nil {
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "committing health for %s", o.Provider)
	}
	return rec, nil
}

func (s *healthStore) Seed(ctx context.Context, providers []string) error {
	const q = `INSERT INTO provider_health (provider, status, updated_at) VALUES (?, 'healthy', ?)
ON CONFLICT(provider) DO NOTHING`
	now := formatTime(s.now())
	for _, p := range providers {
		if _, err := s.db.ExecContext(ctx, q, p, now); err != nil {
			return relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "seeding health for %s", p)
		}
	}
	return nil
}

// ---------- jobLog ----------

type jobLog struct {
	db *sql.DB
}

func (s *jobLog) Append(ctx context.Context, e *store.JobEntry) error {
	if e == nil || e.ID == "" {
		return relayerr.Wrap(store.ErrInvalidInput, relayerr.CodeStoreInvalidInput, "job entry id is required")
	}

	const q = `INSERT INTO job_log (id, job_type, provider, success, latency_ms, cost, attempts, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		e.ID, e.JobType, e.Provider, e.Success, e.LatencyMs, e.Cost, e.Attempts, e.Error, formatTime(e.CreatedAt),
	)
	if err != nil {
		return relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "appending job %s", e.ID)
	}
	return nil
}

func (s *jobLog) Query(ctx context.Context, filter store.JobFilter) ([]*store.JobEntry, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, job_type, provider, success, latency_ms, cost, attempts, error, created_at FROM job_log`)

	var conditions []string
	var args []any

	if filter.JobType != "" {
		conditions = append(conditions, "job_type = ?")
		args = append(args, filter.JobType)
	}
	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY created_at DESC, rowid DESC LIMIT ?")
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "querying job log")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var entries []*store.JobEntry
	for rows.Next() {
		var e store.JobEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.JobType, &e.Provider, &e.Success, &e.LatencyMs,
			&e.Cost, &e.Attempts, &e.Error, &createdAt); err != nil {
			return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "scanning job row")
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "iterating job log")
	}
	return entries, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func init() {
	store.RegisterBackend("sqlite", func(cfg *store.StorageConfig) (store.Store, error) {
		if cfg.Path == "" {
			return nil, relayerr.New(relayerr.CodeConfigValidateInvalidValue, "sqlite backend requires storage.path")
		}
		s, err := Open(cfg.Path, cfg.Policy, cfg.Clock())
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store at %s: %w", cfg.Path, err)
		}
		return s, nil
	})
}
