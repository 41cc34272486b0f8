package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/procguard/core/internal/ledger/migrations"
)

// RunMigrations applies every pending migration embedded in
// internal/ledger/migrations against dsn. Migration-apply is opt-in
// (spec.md §6: "migration-apply is opt-in by explicit flag") — callers
// gate this behind a config flag, it is never run implicitly on every
// process start.
func RunMigrations(dsn string) error {
	source, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("ledger/postgres: load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("ledger/postgres: init migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger/postgres: apply migrations: %w", err)
	}
	return nil
}
