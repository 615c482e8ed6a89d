// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

// Package postgres implements the relay store on PostgreSQL via pgx.
// It suits deployments where several relay instances share provider health.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

var (
	_ store.Store       = (*Store)(nil)
	_ store.HealthStore = (*healthStore)(nil)
	_ store.JobLog      = (*jobLog)(nil)
)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	health *healthStore
	jobs   *jobLog
}

// Open connects to dsn, verifies the connection and creates the tables.
func Open(ctx context.Context, dsn string, policy health.Policy, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeConfigValidateInvalidValue, "parse connection string")
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "ping database")
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "migrate database")
	}

	return &Store{
		pool:   pool,
		health: &healthStore{pool: pool, policy: policy, now: now},
		jobs:   &jobLog{pool: pool},
	}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS provider_health (
	provider             TEXT PRIMARY KEY,
	status               TEXT NOT NULL DEFAULT 'healthy',
	cooldown_until       TIMESTAMPTZ,
	last_latency_ms      BIGINT NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT '',
	consecutive_failures BIGINT NOT NULL DEFAULT 0,
	total_failures       BIGINT NOT NULL DEFAULT 0,
	total_successes      BIGINT NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_log (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	job_type   TEXT NOT NULL,
	provider   TEXT NOT NULL DEFAULT '',
	success    BOOLEAN NOT NULL,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	cost       DOUBLE PRECISION NOT NULL DEFAULT 0,
	attempts   INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_log_created ON job_log(created_at);
`
	_, err := pool.Exec(ctx, ddl)
	return err
}

func (s *Store) Health() store.HealthStore { return s.health }
func (s *Store) Jobs() store.JobLog        { return s.jobs }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type healthStore struct {
	pool   *pgxpool.Pool
	policy health.Policy
	now    func() time.Time
}

const selectHealth = `
	SELECT provider, status, cooldown_until, last_latency_ms, last_error,
		consecutive_failures, total_failures, total_successes, updated_at
	FROM provider_health`

func scanRecord(row pgx.Row) (health.Record, error) {
	var (
		rec    health.Record
		status string
	)
	if err := row.Scan(&rec.Provider, &status, &rec.CooldownUntil, &rec.LastLatencyMs, &rec.LastError,
		&rec.ConsecutiveFailures, &rec.TotalFailures, &rec.TotalSuccesses, &rec.UpdatedAt); err != nil {
		return health.Record{}, err
	}
	rec.Status = health.ParseStatus(status)
	return rec, nil
}

func (s *healthStore) Get(ctx context.Context, providers []string) (map[string]health.Record, error) {
	out := make(map[string]health.Record, len(providers))
	if len(providers) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, selectHealth+" WHERE provider = ANY($1)", providers)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "querying provider health")
	}
	defer rows.Close()

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
	rows, err := s.pool.Query(ctx, selectHealth+" ORDER BY provider")
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "listing provider health")
	}
	defer rows.Close()

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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "begin tx for %s", o.Provider)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	if _, err := tx.Exec(ctx,
		`INSERT INTO provider_health (provider, status, updated_at) VALUES ($1, 'healthy', $2)
		ON CONFLICT (provider) DO NOTHING`, o.Provider, now); err != nil {
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "ensure health row for %s", o.Provider)
	}

	rec, err := scanRecord(tx.QueryRow(ctx, selectHealth+" WHERE provider = $1 FOR UPDATE", o.Provider))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			rec = health.Healthy(o.Provider)
		} else {
			return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "load health for %s", o.Provider)
		}
	}

	rec = s.policy.Apply(rec, o, now)

	const update = `
		UPDATE provider_health SET
			status = $2, cooldown_until = $3, last_latency_ms = $4, last_error = $5,
			consecutive_failures = $6, total_failures = $7, total_successes = $8, updated_at = $9
		WHERE provider = $1`
	if _, err := tx.Exec(ctx, update,
		rec.Provider, string(rec.Status), rec.CooldownUntil, rec.LastLatencyMs, rec.LastError,
		rec.ConsecutiveFailures, rec.TotalFailures, rec.TotalSuccesses, rec.UpdatedAt,
	); err != nil {
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "write health for %s", o.Provider)
	}

	if err := tx.Commit(ctx); err != nil {
		return health.Record{}, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "commit health for %s", o.Provider)
	}
	return rec, nil
}

func (s *healthStore) Seed(ctx context.Context, providers []string) error {
	now := s.now()
	for _, p := range providers {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO provider_health (provider, status, updated_at) VALUES ($1, 'healthy', $2)
			ON CONFLICT (provider) DO NOTHING`, p, now); err != nil {
			return relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "seed health for %s", p)
		}
	}
	return nil
}

type jobLog struct {
	pool *pgxpool.Pool
}

func (s *jobLog) Append(ctx context.Context, e *store.JobEntry) error {
	if e == nil || e.ID == "" {
		return relayerr.Wrap(store.ErrInvalidInput, relayerr.CodeStoreInvalidInput, "job entry id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_log (id, job_type, provider, success, latency_ms, cost, attempts, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.JobType, e.Provider, e.Success, e.LatencyMs, e.Cost, e.Attempts, e.Error, e.CreatedAt,
	)
	if err != nil {
		return relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "append job %s", e.ID)
	}
	return nil
}

func (s *jobLog) Query(ctx context.Context, filter store.JobFilter) ([]*store.JobEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_type, provider, success, latency_ms, cost, attempts, error, created_at
		FROM job_log
		WHERE ($1 = '' OR job_type = $1) AND ($2 = '' OR provider = $2)
		ORDER BY created_at DESC, seq DESC
		LIMIT $3`,
		filter.JobType, filter.Provider, filter.EffectiveLimit(),
	)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "query job log")
	}
	defer rows.Close()

	var entries []*store.JobEntry
	for rows.Next() {
		var e store.JobEntry
		if err := rows.Scan(&e.ID, &e.JobType, &e.Provider, &e.Success, &e.LatencyMs,
			&e.Cost, &e.Attempts, &e.Error, &e.CreatedAt); err != nil {
			return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "scan job row")
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeStoreDatabaseFailure, "iterate job log")
	}
	return entries, nil
}

func init() {
	store.RegisterBackend("postgres", func(cfg *store.StorageConfig) (store.Store, error) {
		if cfg.DSN == "" {
			return nil, relayerr.New(relayerr.CodeConfigValidateInvalidValue, "postgres backend requires storage.dsn")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return Open(ctx, cfg.DSN, cfg.Policy, cfg.Clock())
	})
}
