package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"metsicore/internal/core"
)

// SQLite persists runs to a single SQLite table as JSON rows, hydrating an
// in-memory archive on open.
type SQLite struct {
	*Memory
	db   *sql.DB
	path string
}

var _ core.RunArchive = (*SQLite)(nil)

// NewSQLite opens (or creates) a SQLite-backed run archive at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "metsi.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	s := &SQLite{Memory: NewMemory(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) load() error {
	rows, err := s.db.Query(`SELECT payload FROM runs`)
	if err != nil {
		return fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	ctx := context.Background()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan run: %w", err)
		}
		var record core.RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("decode run: %w", err)
		}
		if err := s.Memory.SaveRun(ctx, record); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SaveRun stores the run in memory and appends its JSON row durably. A
// failed insert rolls the memory copy back so the run can be saved again.
func (s *SQLite) SaveRun(ctx context.Context, record core.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", record.ID, err)
	}
	if err := s.Memory.SaveRun(ctx, record); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, payload) VALUES (?, ?)`, record.ID, payload); err != nil {
		s.Memory.removeRun(record.ID)
		return fmt.Errorf("insert run %s: %w", record.ID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
