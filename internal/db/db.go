package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultPath is used when PROPCHECK_DATABASE_PATH is not set.
const DefaultPath = "propcheck.db"

// Open opens the SQLite database at path with foreign keys on, creating the
// parent directory if needed.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	// Workers and HTTP handlers write concurrently; busy_timeout makes
	// contending writers wait instead of failing with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
