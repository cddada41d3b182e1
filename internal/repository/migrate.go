package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/wb-go/wbf/zlog"
)

// RunMigrations applies all pending goose migrations from the given directory
// against the master database connection.
func RunMigrations(db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			zlog.Logger.Info().Msg("no migrations to apply")
			return nil
		}

		return fmt.Errorf("migrations: %w", err)
	}

	zlog.Logger.Info().Msg("database migrations applied")

	return nil
}
