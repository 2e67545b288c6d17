package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	logx "duebot/pkg/logx"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	course_id  TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents_corrupt (
	course_id  TEXT NOT NULL,
	body       BLOB NOT NULL,
	moved_at   TEXT NOT NULL
);`

type sqliteStore struct {
	db       *sql.DB
	log      logx.Logger
	courseID string

	writes atomic.Uint64
}

func openSQLite(cfg Config, log logx.Logger) (Provider, error) {
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log, courseID: cfg.CourseID}, nil
}

func (s *sqliteStore) Read(ctx context.Context) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE course_id = ?`, s.courseID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *sqliteStore) Write(ctx context.Context, b []byte) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(course_id, body, updated_at) VALUES(?,?,?)
		 ON CONFLICT(course_id) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		s.courseID, b, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err == nil && s.writes.Add(1)%1000 == 0 {
		s.log.Debug("sqlite document writes", logx.Int64("count", int64(s.writes.Load())))
	}
	return err
}

// Quarantine copies the current row into documents_corrupt.
func (s *sqliteStore) Quarantine(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents_corrupt(course_id, body, moved_at)
		 SELECT course_id, body, ? FROM documents WHERE course_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), s.courseID,
	)
	if err != nil {
		return "", err
	}
	return "documents_corrupt", nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
