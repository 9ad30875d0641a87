package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"metsicore/internal/core"
)

const (
	postgresDriver = "pgx"
	// defaultDSN allows local development without configuration; override
	// via METSI_ARCHIVE_DSN or an explicit DSN argument.
	defaultDSN = "postgres://localhost/metsi?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Postgres persists runs to a Postgres table as JSONB rows while reusing the
// in-memory archive for reads.
type Postgres struct {
	*Memory
	db *sql.DB
}

var _ core.RunArchive = (*Postgres)(nil)

// NewPostgres opens a Postgres-backed run archive using the provided DSN
// (falls back to defaultDSN), ensures the runs table exists, and hydrates
// the in-memory archive from existing rows.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(postgresDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	p := &Postgres{Memory: NewMemory(), db: db}
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) load(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM runs`)
	if err != nil {
		return fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan run: %w", err)
		}
		var record core.RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("decode run: %w", err)
		}
		if err := p.Memory.SaveRun(ctx, record); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SaveRun stores the run in memory and appends its JSONB row durably. A
// failed insert rolls the memory copy back so the run can be saved again.
func (p *Postgres) SaveRun(ctx context.Context, record core.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", record.ID, err)
	}
	if err := p.Memory.SaveRun(ctx, record); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `INSERT INTO runs (id, payload) VALUES ($1, $2)`, record.ID, payload); err != nil {
		p.Memory.removeRun(record.ID)
		return fmt.Errorf("insert run %s: %w", record.ID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}
