package internal

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// The entitlement schema ships embedded so a deploy is a single binary.
//
//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations brings the entitlement schema up to date. It runs at startup
// before the server accepts traffic, so a failed migration stops the process
// instead of serving against a stale schema.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("applying entitlement schema migrations: %w", err)
	}
	return nil
}
