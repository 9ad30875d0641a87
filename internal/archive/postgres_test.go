package archive

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewPostgresOpenError(t *testing.T) {
	openMu.Lock()
	original := sqlOpen
	openMu.Unlock()
	defer func() {
		openMu.Lock()
		sqlOpen = original
		openMu.Unlock()
	}()

	wantErr := errors.New("connection refused")
	openMu.Lock()
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		if driver != postgresDriver {
			t.Errorf("driver = %s, want %s", driver, postgresDriver)
		}
		if dsn != defaultDSN {
			t.Errorf("dsn = %s, want default", dsn)
		}
		return nil, wantErr
	}
	openMu.Unlock()

	_, err := NewPostgres(context.Background(), "")
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("open error not surfaced: %v", err)
	}
}

func TestPostgresFailedInsertLeavesNoTrace(t *testing.T) {
	openMu.Lock()
	original := sqlOpen
	// Back the store with the in-process sqlite driver so the insert path
	// runs without a server. SQLite accepts the $N placeholders.
	sqlOpen = func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlite", filepath.Join(t.TempDir(), "pg.db"))
	}
	openMu.Unlock()
	defer func() {
		openMu.Lock()
		sqlOpen = original
		openMu.Unlock()
	}()

	ctx := context.Background()
	store, err := NewPostgres(ctx, "postgres://unused")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	record := sampleRun("run-1", time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	if err := store.SaveRun(ctx, record); err == nil {
		t.Fatalf("save on closed handle accepted")
	}
	if _, ok, _ := store.GetRun(ctx, record.ID); ok {
		t.Fatalf("memory retains run after failed durable insert")
	}
	err = store.SaveRun(ctx, record)
	if err == nil || strings.Contains(err.Error(), "already archived") {
		t.Fatalf("retry rejected as duplicate: %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv("METSI_ARCHIVE_DRIVER", "")
	store, err := Open(ctx)
	if err != nil {
		t.Fatalf("default open failed: %v", err)
	}
	if _, ok := store.(*Memory); !ok {
		t.Fatalf("default driver = %T, want *Memory", store)
	}

	t.Setenv("METSI_ARCHIVE_DRIVER", "memory")
	if _, err := Open(ctx); err != nil {
		t.Fatalf("memory open failed: %v", err)
	}

	t.Setenv("METSI_ARCHIVE_DRIVER", "sqlite")
	t.Setenv("METSI_ARCHIVE_PATH", t.TempDir()+"/runs.db")
	store, err = Open(ctx)
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	if s, ok := store.(*SQLite); ok {
		_ = s.Close()
	} else {
		t.Fatalf("sqlite driver = %T", store)
	}

	t.Setenv("METSI_ARCHIVE_DRIVER", "mainframe")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}
