package archive

import (
	"context"
	"fmt"
	"os"

	"metsicore/internal/core"
)

// Open selects a run archive backend from environment variables.
//
//	METSI_ARCHIVE_DRIVER: memory|sqlite|postgres (default memory)
//	METSI_ARCHIVE_PATH:   database file when driver=sqlite (default metsi.db)
//	METSI_ARCHIVE_DSN:    connection string when driver=postgres
func Open(ctx context.Context) (core.RunArchive, error) {
	driver := os.Getenv("METSI_ARCHIVE_DRIVER")
	if driver == "" {
		driver = "memory"
	}
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(os.Getenv("METSI_ARCHIVE_PATH"))
	case "postgres":
		return NewPostgres(ctx, os.Getenv("METSI_ARCHIVE_DSN"))
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
