package lib

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/api/fake"
	"github.com/slok/clockin/internal/api/rest"
	"github.com/slok/clockin/internal/app/companion"
	"github.com/slok/clockin/internal/conventions"
	"github.com/slok/clockin/internal/credential"
	"github.com/slok/clockin/internal/model"
	pushmemory "github.com/slok/clockin/internal/push/memory"
	"github.com/slok/clockin/internal/session"
	"github.com/slok/clockin/internal/storage/sqlite"
	"github.com/slok/clockin/pkg/lib/log"
)

// Config is the configuration for creating a [Client].
type Config struct {
	// DBPath is the path to the SQLite database. Default: ~/.clockin/clockin.db.
	DBPath string
	// APIURL is the time tracking server URL, required on [BackendHTTP].
	APIURL string
	// Backend is the server backend. Default: [BackendHTTP].
	Backend BackendType
	// Logger is the logger. Default: [log.Noop].
	Logger log.Logger
	// PollInterval is the reconcile polling interval used by [Client.Run]. Default: 1m.
	PollInterval time.Duration
	// RequestTimeout is the timeout of every server request. Default: 0, no
	// timeout besides the transport ones.
	RequestTimeout time.Duration
	// Location is the time zone used to compute the days. Default: local time.
	Location *time.Location
}

func (c *Config) defaults() error {
	if c.DBPath == "" {
		c.DBPath = conventions.DBPath()
	}

	if c.Backend == "" {
		c.Backend = BackendHTTP
	}

	switch c.Backend {
	case BackendHTTP:
		if c.APIURL == "" {
			return fmt.Errorf("api url is required on the %s backend", BackendHTTP)
		}
	case BackendFake:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout can't be negative")
	}

	if c.Location == nil {
		c.Location = time.Local
	}

	return nil
}

// Client is the main entry point for the clockin SDK.
//
// A Client is safe for concurrent use, timer commands are serialized and a
// command requested while another is in flight fails with [ErrCommandInFlight].
type Client struct {
	app    *companion.App
	api    api.Client
	creds  *credential.Coordinator
	fake   *fake.Server
	repo   *sqlite.Repository
	logger log.Logger
}

// New creates a new [Client] and restores the local state (credentials,
// running timer and pending entries) from the database.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logger

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	c, err := newClient(ctx, cfg, repo)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	return c, nil
}

func newClient(ctx context.Context, cfg Config, repo *sqlite.Repository) (*Client, error) {
	logger := cfg.Logger

	hub, err := pushmemory.NewHub(pushmemory.HubConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create push hub: %w", err)
	}

	c := &Client{repo: repo, logger: logger}

	switch cfg.Backend {
	case BackendFake:
		srv, err := fake.NewServer(fake.ServerConfig{
			Publisher: hub,
			Logger:    logger,
			Location:  cfg.Location,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create fake server: %w", err)
		}

		creds, err := credential.NewCoordinator(credential.CoordinatorConfig{Client: srv, Repository: repo, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create credential coordinator: %w", err)
		}

		c.api = srv
		c.creds = creds
		c.fake = srv

	default:
		httpCli := &http.Client{Timeout: cfg.RequestTimeout}

		anonymous, err := rest.NewClient(rest.ClientConfig{BaseURL: cfg.APIURL, HTTPClient: httpCli, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create api client: %w", err)
		}

		creds, err := credential.NewCoordinator(credential.CoordinatorConfig{Client: anonymous, Repository: repo, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create credential coordinator: %w", err)
		}

		client, err := rest.NewClient(rest.ClientConfig{
			BaseURL:    cfg.APIURL,
			HTTPClient: httpCli,
			Tokens:     creds,
			Refresher:  creds,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create api client: %w", err)
		}

		c.api = client
		c.creds = creds
	}

	app, err := companion.NewApp(companion.AppConfig{
		Client:       c.api,
		Transport:    hub,
		Credentials:  c.creds,
		Repository:   repo,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
		Location:     cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create companion app: %w", err)
	}
	c.app = app

	if err := app.Restore(ctx); err != nil {
		return nil, fmt.Errorf("could not restore local state: %w", mapError(err))
	}

	return c, nil
}

// Close releases the resources held by the client.
func (c *Client) Close() error {
	if err := c.app.Close(); err != nil {
		return fmt.Errorf("could not close companion app: %w", err)
	}

	return c.repo.Close()
}

// Login stores the user credentials. On [BackendFake] the tokens are issued
// by the fake server and only the user ID is used.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if creds.UserID == "" {
		return fmt.Errorf("user id is required: %w", ErrNotValid)
	}

	mc := model.Credentials{
		UserID:       creds.UserID,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	}
	if c.fake != nil {
		mc = c.fake.Login(ctx, creds.UserID)
	}

	if err := c.creds.Login(ctx, mc); err != nil {
		return fmt.Errorf("could not login: %w", mapError(err))
	}

	return nil
}

// Logout removes the credentials and clears all the local state.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.app.Logout(ctx); err != nil {
		return fmt.Errorf("could not logout: %w", mapError(err))
	}

	return nil
}

// Sync reconciles the local state with the server: the running timer, today's
// tasks and the pending entries.
func (c *Client) Sync(ctx context.Context) error {
	return mapError(c.app.Sync(ctx))
}

// Run keeps the client in sync with the server until the context is cancelled.
// While running, the server changes are applied as soon as they are notified.
func (c *Client) Run(ctx context.Context) error {
	return mapError(c.app.Run(ctx))
}

// Status returns the current state. It doesn't call the server, use [Client.Sync]
// to refresh it first.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	st := fromInternalStatus(c.app.Snapshot())
	return &st, nil
}

// OnChange registers a function called on every state change, including the
// one second ticks of a running timer while [Client.Run] is running. The
// function must not block.
func (c *Client) OnChange(f func(Status)) (unsubscribe func()) {
	return c.app.Subscribe(func(u session.Update) {
		f(fromInternalStatus(c.app.SnapshotFrom(u)))
	})
}
