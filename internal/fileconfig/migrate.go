package fileconfig

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// applyMigrations brings the durable generation index's schema up to
// date via goose, using dsn to open a plain database/sql connection
// (goose drives migrations over *sql.DB, not the pgx pool used for
// ordinary queries).
func applyMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("fileconfig: open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("fileconfig: set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("fileconfig: apply migrations: %w", err)
	}
	return nil
}
