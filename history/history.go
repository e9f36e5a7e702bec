// SPDX-License-Identifier: EPL-2.0

// Package history keeps a sqlite index of finished recordings.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ik5/padmixer/recorder"
)

var ErrNotFound = errors.New("recording not found")

// migration is one schema step, applied once in version order.
type migration struct {
	version int
	name    string
	up      string
}

var migrations = []migration{
	{
		version: 1,
		name:    "recordings",
		up:      `
			CREATE TABLE IF NOT EXISTS recordings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL UNIQUE,
				file_path TEXT NOT NULL,
				sample_rate INTEGER NOT NULL,
				channels INTEGER NOT NULL,
				bits_per_sample INTEGER NOT NULL,
				frames INTEGER NOT NULL,
				dropped_frames INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL,
				started_at INTEGER NOT NULL
			)`,
	},
	{
		version: 2,
		name:    "recordings_started_index",
		up:      `CREATE INDEX IF NOT EXISTS idx_recordings_started ON recordings(started_at)`,
	},
}

// Entry is one indexed recording.
type Entry struct {
	ID         int64
	SessionID  string
	Path       string
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
	Dropped    int64
	Duration   time.Duration
	Started    time.Time
}

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; a single connection keeps pragmas in effect
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return s.migrate(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var n int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&n); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if n > 0 {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.version, m.name, time.Now().Unix()); err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add indexes a finished recording and returns its row id.
func (s *Store) Add(ctx context.Context, info recorder.Info) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (
			session_id, file_path, sample_rate, channels, bits_per_sample,
			frames, dropped_frames, duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID,
		info.Path,
		info.SampleRate,
		info.Channels,
		info.BitDepth,
		info.Frames,
		info.Dropped,
		info.Duration.Milliseconds(),
		info.Started.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("add recording: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("recording id: %w", err)
	}
	return id, nil
}

const selectEntry = `
	SELECT id, session_id, file_path, sample_rate, channels, bits_per_sample,
	       frames, dropped_frames, duration_ms, started_at
	FROM recordings`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e          Entry
		durationMs int64
		startedNs  int64
	)
	err := row.Scan(&e.ID, &e.SessionID, &e.Path, &e.SampleRate, &e.Channels, &e.BitDepth,
		&e.Frames, &e.Dropped, &durationMs, &startedNs)
	if err != nil {
		return Entry{}, err
	}
	e.Duration = time.Duration(durationMs) * time.Millisecond
	e.Started = time.Unix(0, startedNs)
	return e, nil
}

// Get returns the recording with the given session id.
func (s *Store) Get(ctx context.Context, sessionID string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectEntry+" WHERE session_id = ?", sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get recording: %w", err)
	}
	return e, nil
}

// List returns up to limit recordings, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectEntry+" ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return out, nil
}

// Delete removes the index entry. The audio file is left alone.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}
