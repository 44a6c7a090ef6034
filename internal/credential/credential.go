package credential

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/push"
	"github.com/slok/clockin/internal/storage"
)

const refreshKey = "refresh"

// RenewedHandler is called after the credentials have been renewed.
type RenewedHandler func(ctx context.Context, creds model.Credentials)

// LogoutHandler is called after a forced or explicit logout.
type LogoutHandler func(ctx context.Context)

// CoordinatorConfig is the configuration for the credential coordinator.
type CoordinatorConfig struct {
	Client     api.AuthClient
	Repository storage.Repository
	Logger     log.Logger
}

func (c *CoordinatorConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}

	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "credential.Coordinator"})

	return nil
}

// Coordinator owns the user credentials. It renews them when any transport
// reports an authentication error, making sure a single renewal is running at
// a time, and logs out the user when the renewal fails.
type Coordinator struct {
	client api.AuthClient
	repo   storage.Repository
	logger log.Logger
	group  singleflight.Group

	mu        sync.Mutex
	connected bool
	nextID    uint64
	renewed   map[uint64]RenewedHandler
	loggedOut map[uint64]LogoutHandler
}

// NewCoordinator returns a new coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Coordinator{
		client:    cfg.Client,
		repo:      cfg.Repository,
		logger:    cfg.Logger,
		renewed:   map[uint64]RenewedHandler{},
		loggedOut: map[uint64]LogoutHandler{},
	}, nil
}

// Restore sets the connectivity based on the stored credentials.
func (c *Coordinator) Restore(ctx context.Context) error {
	_, err := c.repo.GetCredentials(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("could not get credentials: %w", err)
	}

	c.setConnected(err == nil)
	return nil
}

// Login stores new credentials and notifies the renewal subscribers.
func (c *Coordinator) Login(ctx context.Context, creds model.Credentials) error {
	if err := c.repo.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("could not save credentials: %w", err)
	}

	c.setConnected(true)
	c.notifyRenewed(ctx, creds)

	return nil
}

// Logout removes the credentials without calling the server.
func (c *Coordinator) Logout(ctx context.Context) error {
	if err := c.repo.DeleteCredentials(ctx); err != nil {
		return fmt.Errorf("could not delete credentials: %w", err)
	}

	c.setConnected(false)
	c.notifyLogout(ctx)

	return nil
}

// AccessToken returns the current access token.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	creds, err := c.repo.GetCredentials(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("no credentials: %w", model.ErrLoggedOut)
		}
		return "", fmt.Errorf("could not get credentials: %w", err)
	}

	return creds.AccessToken, nil
}

// Refresh renews the credentials. Concurrent callers share a single renewal and
// its result. Cancelling ctx only stops waiting, the shared renewal continues.
//
// When the renewal fails the user is logged out.
func (c *Coordinator) Refresh(ctx context.Context) (*model.Credentials, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		creds := res.Val.(model.Credentials)
		return &creds, nil
	}
}

func (c *Coordinator) refresh(ctx context.Context) (model.Credentials, error) {
	current, err := c.repo.GetCredentials(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.forceLogout(ctx)
			return model.Credentials{}, fmt.Errorf("no credentials to refresh: %w", model.ErrLoggedOut)
		}
		return model.Credentials{}, fmt.Errorf("could not get credentials: %w", err)
	}

	c.logger.Infof("Refreshing credentials of user %s", current.UserID)

	creds, err := c.client.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		c.logger.Warningf("Credential refresh failed, logging out: %s", err)
		c.forceLogout(ctx)
		return model.Credentials{}, fmt.Errorf("could not refresh credentials: %w: %w", model.ErrLoggedOut, err)
	}

	if creds.UserID == "" {
		creds.UserID = current.UserID
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = current.RefreshToken
	}

	if err := c.repo.SaveCredentials(ctx, *creds); err != nil {
		return model.Credentials{}, fmt.Errorf("could not save credentials: %w", err)
	}

	c.setConnected(true)
	c.notifyRenewed(ctx, *creds)

	return *creds, nil
}

func (c *Coordinator) forceLogout(ctx context.Context) {
	if err := c.repo.DeleteCredentials(ctx); err != nil {
		c.logger.Errorf("could not delete credentials: %s", err)
	}

	c.setConnected(false)
	c.notifyLogout(ctx)
}

// Connected returns the connectivity flag.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

func (c *Coordinator) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = v
}

// OnRenewed registers a handler called after every renewal.
func (c *Coordinator) OnRenewed(h RenewedHandler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.renewed[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.renewed, id)
	}
}

// OnLogout registers a handler called after every logout.
func (c *Coordinator) OnLogout(h LogoutHandler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.loggedOut[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.loggedOut, id)
	}
}

// Subscriptions returns the number of registered handlers.
func (c *Coordinator) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.renewed) + len(c.loggedOut)
}

func (c *Coordinator) notifyRenewed(ctx context.Context, creds model.Credentials) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.renewed))
	for id := range c.renewed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	hs := make([]RenewedHandler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, c.renewed[id])
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(ctx, creds)
	}
}

func (c *Coordinator) notifyLogout(ctx context.Context) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.loggedOut))
	for id := range c.loggedOut {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	hs := make([]LogoutHandler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, c.loggedOut[id])
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(ctx)
	}
}

// BindTransport makes the push transport token errors trigger a refresh, and
// every renewal reconnect the transport with the new token. The returned
// function removes both registrations.
func (c *Coordinator) BindTransport(t push.Transport) (unbind func()) {
	unsubscribe := t.Subscribe(func(ctx context.Context, ev model.Event) {
		if ev.Type != model.EventTypeTokenError {
			return
		}

		c.logger.Debugf("Push transport token error received")
		if _, err := c.Refresh(ctx); err != nil {
			c.logger.Warningf("Could not refresh credentials after push token error: %s", err)
		}
	})

	unrenewed := c.OnRenewed(func(ctx context.Context, creds model.Credentials) {
		if err := t.Reconnect(ctx, creds.AccessToken); err != nil {
			c.logger.Errorf("Could not reconnect push transport: %s", err)
		}
	})

	return func() {
		unsubscribe()
		unrenewed()
	}
}
