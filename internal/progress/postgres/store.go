// Package postgres provides a Postgres-backed progress store using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bindery/internal/progress"
	"bindery/internal/source"
)

// DB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists records across three tables: jobs, chapters, gaps.
type Store struct {
	db DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wraps an existing connection.
func New(db DB) *Store {
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}
}

// Open connects a pool, ensures the schema, and returns a Store plus a
// close func.
func Open(ctx context.Context, dsn string) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	s := New(pool)
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_key    TEXT PRIMARY KEY,
			identifier TEXT NOT NULL,
			source     TEXT NOT NULL,
			catalog    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chapters (
			job_key    TEXT NOT NULL,
			idx        INT NOT NULL,
			title      TEXT NOT NULL,
			locator    TEXT NOT NULL,
			body       BYTEA NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (job_key, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS gaps (
			job_key TEXT NOT NULL,
			idx     INT NOT NULL,
			reason  TEXT NOT NULL,
			PRIMARY KEY (job_key, idx)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Load reads the full record for jobKey.
func (s *Store) Load(ctx context.Context, jobKey string) (progress.Record, error) {
	rec := progress.Record{JobKey: jobKey, Completed: make(map[int]progress.Entry)}

	var catalogJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT identifier, source, catalog, updated_at FROM jobs WHERE job_key = $1`,
		jobKey,
	).Scan(&rec.Identifier, &rec.Source, &catalogJSON, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progress.Record{}, progress.ErrNotFound
		}
		return progress.Record{}, fmt.Errorf("load job %s: %w", jobKey, err)
	}
	if err := json.Unmarshal(catalogJSON, &rec.Catalog); err != nil {
		return progress.Record{}, fmt.Errorf("decode catalog for %s: %w", jobKey, err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT idx, title, locator, fetched_at FROM chapters WHERE job_key = $1 ORDER BY idx`,
		jobKey,
	)
	if err != nil {
		return progress.Record{}, fmt.Errorf("load chapters for %s: %w", jobKey, err)
	}
	defer rows.Close()
	for rows.Next() {
		var e progress.Entry
		if err := rows.Scan(&e.Index, &e.Title, &e.Location, &e.FetchedAt); err != nil {
			return progress.Record{}, fmt.Errorf("scan chapter row: %w", err)
		}
		rec.Completed[e.Index] = e
	}
	if err := rows.Err(); err != nil {
		return progress.Record{}, fmt.Errorf("iterate chapters for %s: %w", jobKey, err)
	}

	gapRows, err := s.db.Query(ctx, `SELECT idx, reason FROM gaps WHERE job_key = $1`, jobKey)
	if err != nil {
		return progress.Record{}, fmt.Errorf("load gaps for %s: %w", jobKey, err)
	}
	defer gapRows.Close()
	for gapRows.Next() {
		var idx int
		var reason string
		if err := gapRows.Scan(&idx, &reason); err != nil {
			return progress.Record{}, fmt.Errorf("scan gap row: %w", err)
		}
		if rec.Gaps == nil {
			rec.Gaps = make(map[int]string)
		}
		rec.Gaps[idx] = reason
	}
	if err := gapRows.Err(); err != nil {
		return progress.Record{}, fmt.Errorf("iterate gaps for %s: %w", jobKey, err)
	}
	return rec, nil
}

// Save upserts the job row. The single-statement upsert gives atomic
// whole-record replacement of the catalog snapshot.
func (s *Store) Save(ctx context.Context, record progress.Record) error {
	catalogJSON, err := json.Marshal(record.Catalog)
	if err != nil {
		return fmt.Errorf("encode catalog for %s: %w", record.JobKey, err)
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO jobs (job_key, identifier, source, catalog, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_key) DO UPDATE
		 SET identifier = EXCLUDED.identifier,
		     source = EXCLUDED.source,
		     catalog = EXCLUDED.catalog,
		     updated_at = EXCLUDED.updated_at`,
		record.JobKey, record.Identifier, record.Source, catalogJSON, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", record.JobKey, err)
	}
	return nil
}

// AppendChapter upserts the chapter row, clears any gap marker for the
// index, and bumps the job timestamp.
func (s *Store) AppendChapter(
	ctx context.Context,
	jobKey string,
	ref source.ChapterRef,
	content source.ChapterContent,
) error {
	lock := s.lockFor(jobKey)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.Exec(ctx,
		`INSERT INTO chapters (job_key, idx, title, locator, body, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_key, idx) DO UPDATE
		 SET title = EXCLUDED.title,
		     locator = EXCLUDED.locator,
		     body = EXCLUDED.body,
		     fetched_at = EXCLUDED.fetched_at`,
		jobKey, ref.Index, ref.Title, ref.Locator, content.Body, content.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("append chapter %d for %s: %w", ref.Index, jobKey, err)
	}
	// A stored body supersedes any earlier gap marker for the index.
	if _, err := s.db.Exec(ctx,
		`DELETE FROM gaps WHERE job_key = $1 AND idx = $2`,
		jobKey, ref.Index,
	); err != nil {
		return fmt.Errorf("clear gap %d for %s: %w", ref.Index, jobKey, err)
	}
	return s.touch(ctx, jobKey)
}

// RecordGap upserts a gap marker and bumps the job timestamp.
func (s *Store) RecordGap(ctx context.Context, jobKey string, index int, reason string) error {
	lock := s.lockFor(jobKey)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.Exec(ctx,
		`INSERT INTO gaps (job_key, idx, reason) VALUES ($1, $2, $3)
		 ON CONFLICT (job_key, idx) DO UPDATE SET reason = EXCLUDED.reason`,
		jobKey, index, reason,
	)
	if err != nil {
		return fmt.Errorf("record gap %d for %s: %w", index, jobKey, err)
	}
	return s.touch(ctx, jobKey)
}

// Chapter reads a stored body back.
func (s *Store) Chapter(ctx context.Context, jobKey string, index int) (source.ChapterContent, error) {
	var content source.ChapterContent
	err := s.db.QueryRow(ctx,
		`SELECT body, fetched_at FROM chapters WHERE job_key = $1 AND idx = $2`,
		jobKey, index,
	).Scan(&content.Body, &content.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return source.ChapterContent{}, progress.ErrNotFound
		}
		return source.ChapterContent{}, fmt.Errorf("load chapter %d for %s: %w", index, jobKey, err)
	}
	return content, nil
}

// List returns every known record.
func (s *Store) List(ctx context.Context) ([]progress.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT job_key FROM jobs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan job key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	out := make([]progress.Record, 0, len(keys))
	for _, key := range keys {
		rec, err := s.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) touch(ctx context.Context, jobKey string) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE jobs SET updated_at = $1 WHERE job_key = $2`,
		time.Now().UTC(), jobKey,
	); err != nil {
		return fmt.Errorf("touch job %s: %w", jobKey, err)
	}
	return nil
}

func (s *Store) lockFor(jobKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[jobKey]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[jobKey] = lock
	}
	return lock
}
