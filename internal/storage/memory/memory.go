package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	credentials *model.Credentials
	session     *model.ActiveSession
	pending     *model.PendingTasksState
	mu          sync.RWMutex
	logger      log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{logger: cfg.Logger}, nil
}

// GetCredentials returns the stored credentials.
func (r *Repository) GetCredentials(ctx context.Context) (*model.Credentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.credentials == nil {
		return nil, fmt.Errorf("credentials: %w", model.ErrNotFound)
	}

	c := *r.credentials
	return &c, nil
}

// SaveCredentials stores the credentials, replacing the previous ones.
func (r *Repository) SaveCredentials(ctx context.Context, c model.Credentials) error {
	if c.AccessToken == "" {
		return fmt.Errorf("access token is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.credentials = &c
	r.logger.Debugf("Saved credentials of user %s", c.UserID)

	return nil
}

// DeleteCredentials removes the stored credentials, it doesn't fail if missing.
func (r *Repository) DeleteCredentials(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.credentials = nil
	return nil
}

// GetSession returns the stored session snapshot.
func (r *Repository) GetSession(ctx context.Context) (*model.ActiveSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.session == nil {
		return nil, fmt.Errorf("session: %w", model.ErrNotFound)
	}

	s := *r.session
	return &s, nil
}

// SaveSession stores the session snapshot.
func (r *Repository) SaveSession(ctx context.Context, s model.ActiveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.session = &s
	return nil
}

// DeleteSession removes the stored session snapshot.
func (r *Repository) DeleteSession(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.session = nil
	return nil
}

// GetPendingState returns the stored pending workflow state.
func (r *Repository) GetPendingState(ctx context.Context) (*model.PendingTasksState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.pending == nil {
		return nil, fmt.Errorf("pending state: %w", model.ErrNotFound)
	}

	s := r.pending.Clone()
	return &s, nil
}

// SavePendingState stores the pending workflow state.
func (r *Repository) SavePendingState(ctx context.Context, s model.PendingTasksState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := s.Clone()
	r.pending = &cp
	return nil
}
