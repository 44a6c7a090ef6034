package companion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/run"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/credential"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/pending"
	"github.com/slok/clockin/internal/push"
	"github.com/slok/clockin/internal/router"
	"github.com/slok/clockin/internal/session"
	"github.com/slok/clockin/internal/storage"
	"github.com/slok/clockin/internal/taskcache"
)

const (
	defaultPollInterval = time.Minute
	defaultTickInterval = time.Second
)

// AppConfig is the configuration of the companion app.
type AppConfig struct {
	Client      api.Client
	Transport   push.Transport
	Credentials *credential.Coordinator
	// Repository is optional, when set the session and pending state survive restarts.
	Repository storage.Repository
	// Flusher is optional.
	Flusher      session.Flusher
	PollInterval time.Duration
	TickInterval time.Duration
	Logger       log.Logger
	Location     *time.Location
	TimeNow      func() time.Time
}

func (c *AppConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}

	if c.Transport == nil {
		return fmt.Errorf("push transport is required")
	}

	if c.Credentials == nil {
		return fmt.Errorf("credential coordinator is required")
	}

	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}

	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "companion.App"})

	if c.Location == nil {
		c.Location = time.Local
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// App is the companion client. It keeps the local session, tasks and pending
// entries consistent with the server and exposes them as read-only projections.
type App struct {
	session   *session.Service
	ticker    *session.Ticker
	router    *router.Service
	cache     *taskcache.Cache
	pending   *pending.Workflow
	creds     *credential.Coordinator
	transport push.Transport

	pollInterval time.Duration
	logger       log.Logger
	unsubLogout  func()
	closeOnce    sync.Once
	loc          *time.Location
	timeNow      func() time.Time
}

// NewApp wires a new companion app.
func NewApp(cfg AppConfig) (*App, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sessionSvc, err := session.NewService(session.ServiceConfig{
		Client:     cfg.Client,
		Repository: cfg.Repository,
		Flusher:    cfg.Flusher,
		Logger:     cfg.Logger,
		Location:   cfg.Location,
		TimeNow:    cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create session service: %w", err)
	}

	ticker, err := session.NewTicker(session.TickerConfig{
		Target:   sessionSvc,
		Interval: cfg.TickInterval,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create ticker: %w", err)
	}

	cache, err := taskcache.NewCache(taskcache.CacheConfig{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create task cache: %w", err)
	}

	pendingWF, err := pending.NewWorkflow(pending.WorkflowConfig{
		Client:     cfg.Client,
		Repository: cfg.Repository,
		Logger:     cfg.Logger,
		Location:   cfg.Location,
		TimeNow:    cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create pending workflow: %w", err)
	}

	routerSvc, err := router.NewService(router.ServiceConfig{
		Cache:    cache,
		Reports:  cfg.Client,
		Session:  sessionSvc,
		Pending:  pendingWF,
		Logger:   cfg.Logger,
		Location: cfg.Location,
		TimeNow:  cfg.TimeNow,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create event router: %w", err)
	}

	app := &App{
		session:      sessionSvc,
		ticker:       ticker,
		router:       routerSvc,
		cache:        cache,
		pending:      pendingWF,
		creds:        cfg.Credentials,
		transport:    cfg.Transport,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		loc:          cfg.Location,
		timeNow:      cfg.TimeNow,
	}
	app.unsubLogout = cfg.Credentials.OnLogout(app.onLogout)

	return app, nil
}

// Close releases the registrations of the app on the shared collaborators.
// It's safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(a.unsubLogout)
	return nil
}

// Restore loads the persisted local state.
func (a *App) Restore(ctx context.Context) error {
	if err := a.creds.Restore(ctx); err != nil {
		return fmt.Errorf("could not restore credentials: %w", err)
	}

	if err := a.session.Restore(ctx); err != nil {
		return fmt.Errorf("could not restore session: %w", err)
	}

	if err := a.pending.Restore(ctx); err != nil {
		return fmt.Errorf("could not restore pending entries: %w", err)
	}

	return nil
}

// Sync reconciles the session, loads today's tasks and the pending entries.
func (a *App) Sync(ctx context.Context) error {
	var errs []error

	if err := a.session.Reconcile(ctx); err != nil {
		errs = append(errs, fmt.Errorf("could not reconcile session: %w", err))
	}

	if err := a.router.RefreshDay(ctx, a.Today()); err != nil {
		errs = append(errs, fmt.Errorf("could not load today tasks: %w", err))
	}

	if err := a.pending.Load(ctx); err != nil {
		errs = append(errs, fmt.Errorf("could not load pending entries: %w", err))
	}

	return errors.Join(errs...)
}

// Reconcile replaces the local session with the server one.
func (a *App) Reconcile(ctx context.Context) error {
	return a.session.Reconcile(ctx)
}

// LoadDay loads the tasks of a day into the buckets.
func (a *App) LoadDay(ctx context.Context, day model.Day) error {
	return a.router.RefreshDay(ctx, day)
}

// Run connects the push transport and keeps the app in sync until the context is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Restore(ctx); err != nil {
		return err
	}

	detach := a.router.Attach(a.transport)
	defer detach()

	unbind := a.creds.BindTransport(a.transport)
	defer unbind()

	a.connect(ctx)

	if err := a.Sync(ctx); err != nil {
		a.logger.Warningf("Startup sync failed: %s", err)
	}

	var g run.Group

	// Periodic quiet reconcile.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				a.poll(ctx)
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Elapsed time display refresh.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return a.ticker.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Stop when the app context is done.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	err := g.Run()

	if err := a.transport.Disconnect(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warningf("Could not disconnect push transport: %s", err)
	}

	return err
}

func (a *App) connect(ctx context.Context) {
	token, err := a.creds.AccessToken(ctx)
	if err != nil {
		a.logger.Warningf("Push transport not connected: %s", err)
		return
	}

	if err := a.transport.Connect(ctx, token); err != nil {
		a.logger.Warningf("Could not connect push transport: %s", err)
	}
}

func (a *App) poll(ctx context.Context) {
	t := time.NewTicker(a.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.session.Reconcile(ctx); err != nil {
				a.logger.Debugf("Quiet reconcile failed: %s", err)
			}
		}
	}
}

func (a *App) onLogout(ctx context.Context) {
	a.logger.Infof("Logged out, clearing local state")

	a.session.Reset(ctx)
	a.pending.Reset(ctx)
	a.cache.Clear()

	if err := a.transport.Disconnect(ctx); err != nil {
		a.logger.Warningf("Could not disconnect push transport: %s", err)
	}
}

// Start starts the timer on the project.
func (a *App) Start(ctx context.Context, project model.Project) error {
	return a.session.StartTimer(ctx, project)
}

// Switch moves the running timer to the project.
func (a *App) Switch(ctx context.Context, project model.Project) error {
	return a.session.SwitchProject(ctx, project)
}

// Stop stops the running timer.
func (a *App) Stop(ctx context.Context) error {
	return a.session.StopTimer(ctx)
}

// SkipPending dismisses the pending entries workflow.
func (a *App) SkipPending(ctx context.Context) error {
	return a.pending.Skip(ctx)
}

// Logout removes the credentials and clears the local state.
func (a *App) Logout(ctx context.Context) error {
	return a.creds.Logout(ctx)
}

// Subscribe registers a function called on every session update, ticks included.
func (a *App) Subscribe(f func(session.Update)) (unsubscribe func()) {
	return a.session.Subscribe(f)
}

// Buckets returns the cached task buckets, sorted by project and day.
func (a *App) Buckets() []model.TaskBucket {
	keys := a.cache.Keys()
	bs := make([]model.TaskBucket, 0, len(keys))
	for _, k := range keys {
		tasks, _ := a.cache.Peek(k)
		bs = append(bs, model.TaskBucket{Key: k, Tasks: tasks})
	}
	return bs
}

// Cache returns the task bucket cache.
func (a *App) Cache() *taskcache.Cache { return a.cache }

// Pending returns the pending entries workflow.
func (a *App) Pending() *pending.Workflow { return a.pending }

// Today returns the current local day.
func (a *App) Today() model.Day { return model.DayOf(a.timeNow(), a.loc) }

// Snapshot returns the current state projections.
func (a *App) Snapshot() model.Status {
	return a.SnapshotFrom(session.Update{
		Session:   a.session.Current(),
		Completed: a.session.Completed(),
		Now:       a.timeNow(),
	})
}

// SnapshotFrom returns the state projections using the session update.
func (a *App) SnapshotFrom(u session.Update) model.Status {
	s := model.Status{
		Now:       u.Now,
		Session:   u.Session,
		Completed: u.Completed,
		Pending:   a.pending.State(),
		CanSkip:   a.pending.CanSkip(),
		Connected: a.creds.Connected(),
	}

	if u.Session != nil && u.Session.Running {
		s.Elapsed = u.Session.Elapsed(u.Now)
	}
	s.Totals = totals(u.Completed, u.Session, u.Now)

	return s
}

func totals(completed model.CompletedDurations, active *model.ActiveSession, now time.Time) []model.ProjectTotal {
	ids := []string{}
	seen := map[string]bool{}
	if active != nil {
		ids = append(ids, active.ProjectID)
		seen[active.ProjectID] = true
	}
	for id := range completed {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	ts := make([]model.ProjectTotal, 0, len(ids))
	for _, id := range ids {
		ts = append(ts, model.ProjectTotal{ProjectID: id, Total: model.TotalFor(id, completed, active, now)})
	}

	// Active project first, the rest by ID.
	start := 0
	if active != nil {
		start = 1
	}
	slices.SortFunc(ts[start:], func(a, b model.ProjectTotal) int { return strings.Compare(a.ProjectID, b.ProjectID) })

	return ts
}
