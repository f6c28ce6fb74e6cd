// Package bunx opens the *bun.DB backing batata's pluggable persistent KV.
// The DSN selects the backend: postgres:// URLs go through pgdriver,
// anything else (sqlite://, file:, :memory:, a bare path) through
// modernc.org/sqlite.
package bunx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // sqlite driver
)

// DatabaseType names a supported backend.
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "postgres"
	DatabaseTypeSQLite     DatabaseType = "sqlite"
)

// DetectDatabaseType reports which backend a DSN selects.
func DetectDatabaseType(dsn string) DatabaseType {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DatabaseTypePostgreSQL
	}
	return DatabaseTypeSQLite
}

// NewDB opens the database for dsn, sizes its pool, and verifies
// connectivity before handing it out. maxConns bounds the postgres pool
// (BATATA_MAX_DB_CONNECTIONS); sqlite is always single-writer.
func NewDB(dsn string, maxConns int) (*bun.DB, error) {
	if maxConns <= 0 {
		maxConns = 16
	}
	if DetectDatabaseType(dsn) == DatabaseTypePostgreSQL {
		return openPostgres(dsn, maxConns)
	}
	return openSQLite(dsn)
}

func openPostgres(dsn string, maxConns int) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(maxConns)
	sqldb.SetMaxIdleConns(maxConns)

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(context.Background()); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
}

func openSQLite(dsn string) (*bun.DB, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite://")

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection, never expired: sqlite serializes writes regardless,
	// and an in-memory database vanishes with its last connection.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Close releases the database. Nil-safe for error-path defers.
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
