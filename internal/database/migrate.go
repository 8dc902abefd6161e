package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the schema up to date from the given directory of
// numbered up/down SQL files. A schema that is already current is not an
// error.
func RunMigrations(dsn, dir string) error {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return fmt.Errorf("opening migration source %q: %w", dir, err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case err == nil:
		ver, dirty, _ := m.Version()
		slog.Info("schema migrated", "version", ver, "dirty", dirty)
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("schema up to date")
	default:
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
