package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/storage/sqlite/migrations"
)

const (
	keyCredentials  = "credentials"
	keySession      = "session"
	keyPendingState = "pending_state"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
	// TimeNow is used to set the update time of the stored values.
	TimeNow func() time.Time
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
// Values are stored as JSON documents on a key-value table.
type Repository struct {
	db      *sql.DB
	logger  log.Logger
	timeNow func() time.Time
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(migrations.MigratorConfig{DB: db, Logger: cfg.Logger})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	version, err := migrator.Up(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s (schema version %d)", cfg.DBPath, version)

	return &Repository{db: db, logger: cfg.Logger, timeNow: cfg.TimeNow}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// GetCredentials returns the stored credentials.
func (r *Repository) GetCredentials(ctx context.Context) (*model.Credentials, error) {
	var c model.Credentials
	if err := r.get(ctx, keyCredentials, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCredentials stores the credentials, replacing the previous ones.
func (r *Repository) SaveCredentials(ctx context.Context, c model.Credentials) error {
	if c.AccessToken == "" {
		return fmt.Errorf("access token is required: %w", model.ErrNotValid)
	}
	return r.set(ctx, keyCredentials, c)
}

// DeleteCredentials removes the stored credentials, it doesn't fail if missing.
func (r *Repository) DeleteCredentials(ctx context.Context) error {
	return r.delete(ctx, keyCredentials)
}

// GetSession returns the stored session snapshot.
func (r *Repository) GetSession(ctx context.Context) (*model.ActiveSession, error) {
	var s model.ActiveSession
	if err := r.get(ctx, keySession, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession stores the session snapshot.
func (r *Repository) SaveSession(ctx context.Context, s model.ActiveSession) error {
	return r.set(ctx, keySession, s)
}

// DeleteSession removes the stored session snapshot.
func (r *Repository) DeleteSession(ctx context.Context) error {
	return r.delete(ctx, keySession)
}

// GetPendingState returns the stored pending workflow state.
func (r *Repository) GetPendingState(ctx context.Context) (*model.PendingTasksState, error) {
	var s model.PendingTasksState
	if err := r.get(ctx, keyPendingState, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SavePendingState stores the pending workflow state.
func (r *Repository) SavePendingState(ctx context.Context, s model.PendingTasksState) error {
	return r.set(ctx, keyPendingState, s)
}

func (r *Repository) get(ctx context.Context, key string, v any) error {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", key, model.ErrNotFound)
		}
		return fmt.Errorf("could not query %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("could not decode %s: %w", key, err)
	}

	return nil
}

func (r *Repository) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", key, err)
	}

	query := `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query, key, string(raw), r.timeNow().Unix())
	if err != nil {
		return fmt.Errorf("could not store %s: %w", key, err)
	}

	r.logger.Debugf("Stored %s", key)
	return nil
}

func (r *Repository) delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("could not delete %s: %w", key, err)
	}
	return nil
}
