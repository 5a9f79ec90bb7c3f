package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// MemoryPath selects a process-local in-memory database.
const MemoryPath = ":memory:"

// LibSQLEmbeddedConfig holds configuration for embedded libsql connections.
type LibSQLEmbeddedConfig struct {
	DatabasePath string // path to the .db file, or MemoryPath
}

// ConnectToDB opens the embedded database at path.
func ConnectToDB(ctx context.Context, path string, logger zerolog.Logger) (*sql.DB, error) {
	return ConnectToDBWithConfig(ctx, &LibSQLEmbeddedConfig{DatabasePath: path}, logger)
}

// ConnectToDBWithConfig opens the database, creating its directory if needed,
// and verifies connectivity.
func ConnectToDBWithConfig(ctx context.Context, config *LibSQLEmbeddedConfig, logger zerolog.Logger) (*sql.DB, error) {
	dsn := "file::memory:?cache=shared"
	if config.DatabasePath != MemoryPath {
		dir := filepath.Dir(config.DatabasePath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
		}
		dsn = "file:" + config.DatabasePath
	}

	logger.Info().Str("dsn", dsn).Msg("connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyConnection(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func verifyConnection(ctx context.Context, db *sql.DB) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}
	return nil
}
