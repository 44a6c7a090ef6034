package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/clockin/internal/log"
)

// DefaultTable is the table that tracks the local state schema version.
const DefaultTable = "clockin_schema_migrations"

//go:embed sql/*.sql
var migrationFiles embed.FS

// MigratorConfig is the configuration of the local state schema migrator.
type MigratorConfig struct {
	DB *sql.DB
	// Table is the schema version table, DefaultTable by default.
	Table  string
	Logger log.Logger
}

func (c *MigratorConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}

	if c.Table == "" {
		c.Table = DefaultTable
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sqlite.Migrator"})

	return nil
}

// Migrator keeps the local state schema (the kv table) up to date.
type Migrator struct {
	db     *sql.DB
	table  string
	logger log.Logger
}

// NewMigrator creates a new migrator.
func NewMigrator(cfg MigratorConfig) (*Migrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Migrator{
		db:     cfg.DB,
		table:  cfg.Table,
		logger: cfg.Logger,
	}, nil
}

// Up migrates the schema to the latest version and returns it.
func (m *Migrator) Up(ctx context.Context) (version uint, err error) {
	inst, close, err := m.instance()
	defer close()
	if err != nil {
		return 0, err
	}

	err = inst.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("could not migrate local state schema: %w", err)
	}

	version, err = m.version(inst)
	if err != nil {
		return 0, err
	}
	m.logger.Debugf("Local state schema at version %d", version)

	return version, nil
}

// Down drops the local state schema.
func (m *Migrator) Down(ctx context.Context) error {
	inst, close, err := m.instance()
	defer close()
	if err != nil {
		return err
	}

	err = inst.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not drop local state schema: %w", err)
	}

	m.logger.Debugf("Local state schema dropped")
	return nil
}

// Version returns the current schema version, 0 when the schema doesn't exist.
func (m *Migrator) Version(ctx context.Context) (uint, error) {
	inst, close, err := m.instance()
	defer close()
	if err != nil {
		return 0, err
	}

	return m.version(inst)
}

func (m *Migrator) version(inst *migrate.Migrate) (uint, error) {
	v, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not get schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("local state schema version %d is dirty, remove the database to start over", v)
	}

	return v, nil
}

func (m *Migrator) instance() (instance *migrate.Migrate, close func(), err error) {
	close = func() {}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{MigrationsTable: m.table})
	if err != nil {
		return nil, close, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return nil, close, fmt.Errorf("could not open embedded migrations: %w", err)
	}
	close = func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("could not close embedded migrations: %s", err)
		}
	}

	instance, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, close, fmt.Errorf("could not create migration instance: %w", err)
	}

	return instance, close, nil
}
