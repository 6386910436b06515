package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"fieldtrack/internal/domain/job"
)

// SchemaDDL creates the job snapshot table. Exported so tests can build
// in-memory databases.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	address    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store caches the last job snapshot fetched from the dispatch service so
// the agent can show assignments and recover the active job while offline.
// It holds no location history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	if _, err := db.Exec(SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create job store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle; the schema must already exist.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the snapshot for a fresh one from the service.
func (s *Store) ReplaceAll(ctx context.Context, jobs []job.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return err
	}
	for _, j := range jobs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, title, address, status, updated_at) VALUES (?, ?, ?, ?, ?)`,
			j.ID, j.Title, j.Address, j.Status.String(), j.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Upsert writes one server-confirmed job record into the snapshot.
func (s *Store) Upsert(ctx context.Context, j job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, title, address, status, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			address = excluded.address,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		j.ID, j.Title, j.Address, j.Status.String(), j.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// Jobs returns the cached snapshot ordered by id.
func (s *Store) Jobs(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, address, status, updated_at FROM jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		var (
			j         job.Job
			status    string
			updatedAt string
		)
		if err := rows.Scan(&j.ID, &j.Title, &j.Address, &status, &updatedAt); err != nil {
			return nil, err
		}
		parsed, err := job.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.ID, err)
		}
		j.Status = parsed
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			j.UpdatedAt = ts
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
