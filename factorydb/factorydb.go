// Package factorydb opens the SQLite files used by the service.
//
// Two files exist: the factory operations database (equipment, SOPs,
// event history — populated externally, opened read-only here) and the
// chat memory database (owned by the memory package, opened read-write
// with WAL so the chat loop can write while readers are active).
package factorydb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens a read-write handle with foreign keys enforced and WAL
// journaling enabled. The parent directory is created if missing.
func Open(path string) (*sql.DB, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("factorydb: missing db path")
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("factorydb: creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("factorydb: opening %s: %w", p, err)
	}

	// A single connection keeps the session PRAGMAs in effect for every
	// statement and serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("factorydb: %s: %w", pragma, err)
		}
	}

	return db, nil
}

// OpenReadOnly opens a handle that can never mutate the file, regardless
// of what SQL is executed against it. The file must already exist.
func OpenReadOnly(path string) (*sql.DB, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("factorydb: missing db path")
	}
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("factorydb: stat %s: %w", p, err)
	}

	dsn := "file:" + filepath.ToSlash(p) + "?mode=ro"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("factorydb: opening %s read-only: %w", p, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("factorydb: enabling foreign keys: %w", err)
	}

	return db, nil
}
