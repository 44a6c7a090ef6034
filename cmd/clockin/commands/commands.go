package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/api/fake"
	"github.com/slok/clockin/internal/api/rest"
	"github.com/slok/clockin/internal/app/companion"
	"github.com/slok/clockin/internal/conventions"
	"github.com/slok/clockin/internal/credential"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/printer"
	pushmemory "github.com/slok/clockin/internal/push/memory"
	storageio "github.com/slok/clockin/internal/storage/io"
	"github.com/slok/clockin/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// BackendHTTP talks to the time tracking server REST API.
	BackendHTTP = "http"
	// BackendFake uses an in-process fake server, useful for demos and local development.
	BackendFake = "fake"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DBPath     string
	ConfigPath string
	APIURL     string
	Backend    string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("db-path", "Path to the SQLite database file.").Envar(conventions.EnvPrefix + "_DB_PATH").Default(conventions.DBPath()).StringVar(&c.DBPath)
	app.Flag("config", "Path to the YAML client configuration, optional.").Envar(conventions.EnvPrefix + "_CONFIG").Default(conventions.ConfigPath()).StringVar(&c.ConfigPath)
	app.Flag("api-url", "Time tracking server URL, overrides the configuration file.").Envar(conventions.EnvPrefix + "_API_URL").StringVar(&c.APIURL)
	app.Flag("backend", "Server backend (http, fake).").Default(BackendHTTP).EnumVar(&c.Backend, BackendHTTP, BackendFake)

	return c
}

// newPrinter returns the printer for the output format.
func (r RootCommand) newPrinter(format string) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(r.Stdout)
	default: // table
		return printer.NewTablePrinter(r.Stdout)
	}
}

// loadConfig loads the client configuration. A missing file on the default
// path uses the default configuration.
func (r RootCommand) loadConfig(ctx context.Context) (model.ClientConfig, error) {
	cfg := storageio.DefaultConfig()

	configPath, err := filepath.Abs(r.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("could not resolve config path: %w", err)
	}

	configRepo := storageio.NewConfigYAMLRepository(os.DirFS("/"))
	loaded, err := configRepo.GetConfig(ctx, configPath[1:])
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, fs.ErrNotExist) && r.ConfigPath == conventions.ConfigPath():
		r.Logger.Debugf("No config file on %s, using defaults", configPath)
	default:
		return cfg, fmt.Errorf("could not load config: %w", err)
	}

	if r.APIURL != "" {
		cfg.APIURL = r.APIURL
	}

	return cfg, nil
}

// companionDeps are the wired dependencies of a companion app.
type companionDeps struct {
	App         *companion.App
	Client      api.Client
	Credentials *credential.Coordinator
	Config      model.ClientConfig
	// Fake is only set on the fake backend.
	Fake *fake.Server
}

// newCompanion wires the companion app for the selected backend.
func (r RootCommand) newCompanion(ctx context.Context) (*companionDeps, error) {
	logger := r.Logger

	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: r.DBPath,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	hub, err := pushmemory.NewHub(pushmemory.HubConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create push hub: %w", err)
	}

	deps := &companionDeps{Config: cfg}

	switch r.Backend {
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

		deps.Client = srv
		deps.Credentials = creds
		deps.Fake = srv

	default: // http
		if cfg.APIURL == "" {
			return nil, fmt.Errorf("api url is required, use --api-url or the config file api_url")
		}
		httpCli := &http.Client{Timeout: cfg.RequestTimeout}

		// Refreshing credentials doesn't need credentials, this breaks the coordinator cycle.
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

		deps.Client = client
		deps.Credentials = creds
	}

	app, err := companion.NewApp(companion.AppConfig{
		Client:       deps.Client,
		Transport:    hub,
		Credentials:  deps.Credentials,
		Repository:   repo,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
		Location:     cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create companion app: %w", err)
	}
	deps.App = app

	if err := app.Restore(ctx); err != nil {
		return nil, fmt.Errorf("could not restore local state: %w", err)
	}

	return deps, nil
}

// parseDay parses a day flag, empty means today.
func parseDay(s string, today model.Day) (model.Day, error) {
	if s == "" {
		return today, nil
	}

	d, err := model.ParseDay(s)
	if err != nil {
		return model.Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}

	return d, nil
}
