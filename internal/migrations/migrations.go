// Package migrations holds the bun migration registry for batata's
// persistent KV schema.
package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"

	"github.com/easynet-cn/batata/internal/db/models"
	"github.com/easynet-cn/batata/internal/iam/casbinadapter"
)

// Migrations is the registry every migration file registers into via init().
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(up20260101000000, down20260101000000)
}

func up20260101000000(ctx context.Context, db *bun.DB) error {
	tables := []any{
		(*models.Namespace)(nil),
		(*models.User)(nil),
		(*models.Role)(nil),
		(*models.UserRole)(nil),
		(*models.Permission)(nil),
		(*models.AccessToken)(nil),
		(*models.ConfigEntry)(nil),
		(*models.GrayEntry)(nil),
		(*models.AggregateDatum)(nil),
		(*models.PersistentInstance)(nil),
		(*casbinadapter.Rule)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return createHistoryTable(ctx, db)
}

// createHistoryTable hand-writes the history DDL per dialect: nid must be a
// database-assigned monotonic integer, which neither backend expresses as a
// model-tagged autoincrement column inside a composite primary key.
func createHistoryTable(ctx context.Context, db *bun.DB) error {
	var ddl []string
	switch db.Dialect().Name() {
	case dialect.PG:
		ddl = []string{`CREATE TABLE IF NOT EXISTS batata_config_history (
			nid BIGSERIAL PRIMARY KEY,
			namespace VARCHAR NOT NULL,
			"group" VARCHAR NOT NULL,
			data_id VARCHAR NOT NULL,
			content TEXT NOT NULL,
			type VARCHAR NOT NULL,
			md5 VARCHAR NOT NULL,
			op VARCHAR(2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`}
	case dialect.SQLite:
		ddl = []string{`CREATE TABLE IF NOT EXISTS batata_config_history (
			nid INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			"group" TEXT NOT NULL,
			data_id TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			md5 TEXT NOT NULL,
			op TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`}
	}
	ddl = append(ddl, `CREATE INDEX IF NOT EXISTS idx_batata_config_history_key
		ON batata_config_history (namespace, "group", data_id, nid)`)

	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func down20260101000000(ctx context.Context, db *bun.DB) error {
	tables := []any{
		(*casbinadapter.Rule)(nil),
		(*models.PersistentInstance)(nil),
		(*models.ConfigHistory)(nil),
		(*models.AggregateDatum)(nil),
		(*models.GrayEntry)(nil),
		(*models.ConfigEntry)(nil),
		(*models.AccessToken)(nil),
		(*models.Permission)(nil),
		(*models.UserRole)(nil),
		(*models.Role)(nil),
		(*models.User)(nil),
		(*models.Namespace)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Migrator wires the registry to a live bun.DB.
func Migrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, Migrations)
}
