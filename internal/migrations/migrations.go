package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var files embed.FS

// Manager applies the embedded schema migrations.
type Manager struct {
	db *sql.DB
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

func (m *Manager) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(m.db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return migrator, nil
}

// Up applies all pending migrations.
func (m *Manager) Up() error {
	migrator, err := m.migrator()
	if err != nil {
		return err
	}

	err = migrator.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Migrations applied successfully")
	return nil
}

// Down rolls back the given number of steps, or everything when steps <= 0.
func (m *Manager) Down(steps int) error {
	migrator, err := m.migrator()
	if err != nil {
		return err
	}

	if steps > 0 {
		err = migrator.Steps(-steps)
	} else {
		err = migrator.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("No migrations to rollback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}

	log.Info().Msg("Migrations rolled back successfully")
	return nil
}

// Version reports the applied version; zero when nothing has run.
func (m *Manager) Version() (uint, bool, error) {
	migrator, err := m.migrator()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, dirty, nil
}
