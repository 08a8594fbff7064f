package manager

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS log_manager (
	path   TEXT PRIMARY KEY,
	local  INTEGER NOT NULL DEFAULT 0 CHECK (local >= 0),
	remote INTEGER NOT NULL DEFAULT 0 CHECK (remote >= 0)
)`

// SQLiteStore keeps the mapping in an embedded SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the
// log_manager table exists.
//
// The caller MUST call Close() when done.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single writer owns the store.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{conn: conn, path: path}, nil
}

// Load implements Store.Load.
func (s *SQLiteStore) Load() (map[string]Counts, error) {
	rows, err := s.conn.Query(`SELECT path, local, remote FROM log_manager`)
	if err != nil {
		return nil, fmt.Errorf("failed to query log manager: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Counts)
	for rows.Next() {
		var path string
		var local, remote int
		if err := rows.Scan(&path, &local, &remote); err != nil {
			return nil, fmt.Errorf("failed to scan log manager row: %w", err)
		}
		c, err := checkCounts(local, remote)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", path, err)
		}
		entries[path] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log manager: %w", err)
	}
	return entries, nil
}

// Save implements Store.Save. The table is replaced inside one transaction.
func (s *SQLiteStore) Save(entries map[string]Counts) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM log_manager`); err != nil {
		return fmt.Errorf("failed to clear log manager: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO log_manager (path, local, remote) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for path, c := range entries {
		if _, err := stmt.Exec(path, c.Local, c.Remote); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log manager: %w", err)
	}
	return nil
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}
