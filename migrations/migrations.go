// Package migrations embeds the schema for every supported dialect and applies
// it with golang-migrate on an already open db.DB.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/db"
)

//go:embed sqlite3/*.sql postgres/*.sql mysql/*.sql
var files embed.FS

// New returns a migrate instance that reads the embedded migrations for the
// dialect of d and runs them on d's pool.
//
// Closing the returned instance closes d as well, so long-running callers
// should leave it open and close d instead.
func New(d *db.DB, logger *zap.Logger) (*migrate.Migrate, error) {
	name := d.DriverName()

	src, err := iofs.New(files, name)
	if err != nil {
		return nil, fmt.Errorf("migrations: source for %q: %w", name, err)
	}

	var drv database.Driver
	switch name {
	case "sqlite3":
		drv, err = migratesqlite.WithInstance(d.Raw(), &migratesqlite.Config{})
	case "postgres":
		drv, err = migratepg.WithInstance(d.Raw(), &migratepg.Config{})
	case "mysql":
		drv, err = migratemysql.WithInstance(d.Raw(), &migratemysql.Config{})
	default:
		return nil, fmt.Errorf("migrations: unsupported driver %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("migrations: database instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m.Log = &migrateLogger{logger: logger.Named("migrate").Sugar()}
	return m, nil
}

// Up applies every pending migration on d and leaves the instance open. An
// up-to-date schema is not an error.
//
// The postgres and mysql drivers hold one pooled connection for the life of
// the instance, so on those dialects Up pins a connection of d until d is
// closed. Long-running callers should use Apply on a separate pool.
func Up(d *db.DB, logger *zap.Logger) error {
	m, err := New(d, logger)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// Apply runs Up and then closes the migrate instance, which closes d.
// It suits a short-lived pool opened only for migrating.
func Apply(d *db.DB, logger *zap.Logger) error {
	m, err := New(d, logger)
	if err != nil {
		_ = d.Close()
		return err
	}
	upErr := m.Up()
	srcErr, dbErr := m.Close()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", upErr)
	}
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("migrations: close: %w", err)
	}
	return nil
}

// migrateLogger adapts zap to migrate.Logger.
type migrateLogger struct {
	logger *zap.SugaredLogger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }
