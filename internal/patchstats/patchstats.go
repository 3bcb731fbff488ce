// Package patchstats records the sizes of generated binary patches in a
// SQLite database, so later runs and tooling can estimate patch costs
// without regenerating the files.
package patchstats

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createTableSQL = `
CREATE TABLE "patch_cache" (
	"from_sha256" TEXT,
	"to_sha256" TEXT,
	"patch_type" TEXT,
	"patch_size" INTEGER,
	"timestamp" INTEGER
);
CREATE INDEX "cache_index" ON "patch_cache" (
	"from_sha256",
	"to_sha256",
	"patch_type"
);
`

// Store is a patch-size statistics database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open patch stats db: %w", err)
	}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='patch_cache'`).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(createTableSQL); err != nil {
			db.Close()
			return nil, fmt.Errorf("init patch stats db: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("inspect patch stats db: %w", err)
	}

	return &Store{db: db}, nil
}

// AddPatch records one generated patch.
func (s *Store) AddPatch(fromSHA256, toSHA256 string, patchType string, patchSize int64) error {
	_, err := s.db.Exec(
		`INSERT INTO patch_cache VALUES (?, ?, ?, ?, ?)`,
		fromSHA256, toSHA256, patchType, patchSize, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record patch: %w", err)
	}
	return nil
}

// Query returns the recorded size for a (from, to, type) triple, or false
// when no record exists.
func (s *Store) Query(fromSHA256, toSHA256 string, patchType string) (int64, bool, error) {
	var size int64
	err := s.db.QueryRow(
		`SELECT patch_size FROM patch_cache WHERE from_sha256 = ? AND to_sha256 = ? AND patch_type = ?`,
		fromSHA256, toSHA256, patchType,
	).Scan(&size)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query patch: %w", err)
	}
	return size, true, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
