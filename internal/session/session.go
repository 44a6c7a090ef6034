package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/storage"
)

// Flusher flushes any in-progress task duration accrual before the session changes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlusherFunc is a helper to use functions as Flusher.
type FlusherFunc func(ctx context.Context) error

func (f FlusherFunc) Flush(ctx context.Context) error { return f(ctx) }

// UpdateKind is the kind of a session update.
type UpdateKind int

const (
	// KindLogical is a state transition of the session.
	KindLogical UpdateKind = iota
	// KindTick is a display refresh, the session didn't change.
	KindTick
)

func (k UpdateKind) String() string {
	if k == KindTick {
		return "tick"
	}
	return "logical"
}

// Update is the state published to the subscribers.
type Update struct {
	Kind UpdateKind
	// Session is nil when there is no active session.
	Session   *model.ActiveSession
	Completed model.CompletedDurations
	Now       time.Time
}

// ServiceConfig is the configuration for the session service.
type ServiceConfig struct {
	Client api.TimeEntryClient
	// Repository is optional, when set the session is persisted on identity changes.
	Repository storage.Repository
	// Flusher is optional.
	Flusher  Flusher
	Logger   log.Logger
	Location *time.Location
	TimeNow  func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "session.Service"})

	if c.Location == nil {
		c.Location = time.Local
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Service owns the single active session and the durations of today's
// closed entries, keeping them consistent with the server.
type Service struct {
	client  api.TimeEntryClient
	repo    storage.Repository
	flusher Flusher
	logger  log.Logger
	loc     *time.Location
	timeNow func() time.Time

	// cmdMu only allows a single command at a time, the first one wins.
	cmdMu sync.Mutex

	mu            sync.RWMutex
	session       *model.ActiveSession
	completed     model.CompletedDurations
	lastPersisted *model.ActiveSession
	nextID        uint64
	subs          map[uint64]func(Update)
}

// NewService returns a new session service without active session.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		client:    cfg.Client,
		repo:      cfg.Repository,
		flusher:   cfg.Flusher,
		logger:    cfg.Logger,
		loc:       cfg.Location,
		timeNow:   cfg.TimeNow,
		completed: model.CompletedDurations{},
		subs:      map[uint64]func(Update){},
	}, nil
}

// Restore sets the last persisted session as the current one until the next reconcile.
func (s *Service) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	session, err := s.repo.GetSession(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("could not get session: %w", err)
	}

	s.mu.Lock()
	s.session = session
	cp := *session
	s.lastPersisted = &cp
	s.mu.Unlock()

	s.publish(KindLogical)
	return nil
}

// Reconcile replaces the local state with the server snapshot. It's idempotent
// and safe to call concurrently, the last snapshot wins.
func (s *Service) Reconcile(ctx context.Context) error {
	open, err := s.client.OpenEntry(ctx)
	if err != nil {
		return fmt.Errorf("could not get open entry: %w", err)
	}

	entries, err := s.client.TodayEntries(ctx)
	if err != nil {
		return fmt.Errorf("could not get today entries: %w", err)
	}

	completed := model.CompletedDurations{}
	for _, e := range entries {
		if e.EndedAt == nil {
			continue
		}
		completed[e.Project.ID] += e.Duration
	}

	var session *model.ActiveSession
	if open != nil {
		session = &model.ActiveSession{
			ID:          model.ConfirmedSessionID(open.ID),
			ProjectID:   open.Project.ID,
			ProjectName: open.Project.Name,
			StartedAt:   open.StartedAt.In(s.loc),
			Running:     true,
		}
	}

	s.commit(ctx, session, completed)
	s.logger.Debugf("Session reconciled (active: %t, closed projects: %d)", session != nil, len(completed))

	return nil
}

// StartTimer starts tracking time on the project. A running session on
// another project is ended first.
func (s *Service) StartTimer(ctx context.Context, project model.Project) error {
	if !s.cmdMu.TryLock() {
		return model.ErrCommandInFlight
	}
	defer s.cmdMu.Unlock()

	return s.begin(ctx, project)
}

// SwitchProject moves the running session to another project.
func (s *Service) SwitchProject(ctx context.Context, project model.Project) error {
	if !s.cmdMu.TryLock() {
		return model.ErrCommandInFlight
	}
	defer s.cmdMu.Unlock()

	current := s.Current()
	if current == nil || !current.Running {
		return fmt.Errorf("there is no running session to switch: %w", model.ErrNotValid)
	}
	if current.ProjectID == project.ID {
		return nil
	}

	return s.begin(ctx, project)
}

func (s *Service) begin(ctx context.Context, project model.Project) error {
	if project.ID == "" {
		return fmt.Errorf("project id is required: %w", model.ErrNotValid)
	}

	s.flush(ctx)

	prev := s.Current()
	completed := s.Completed()
	if prev != nil && prev.Running {
		if err := s.client.EndTime(ctx, prev.ProjectID); err != nil {
			return fmt.Errorf("could not end entry of project %s: %w", prev.ProjectID, err)
		}
	}

	worked, err := s.client.HasWorked(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("could not check membership of project %s: %w", project.ID, err)
	}
	if !worked {
		if err := s.client.AddMember(ctx, project.ID); err != nil {
			return fmt.Errorf("could not add member to project %s: %w", project.ID, err)
		}
	}

	if err := s.client.StartTime(ctx, project.ID); err != nil {
		return fmt.Errorf("could not start entry of project %s: %w", project.ID, err)
	}

	// A push triggered reconcile can confirm the new session before we commit.
	if cur := s.Current(); cur != nil && !cur.ID.IsPending() && cur.ProjectID == project.ID && !cur.SameIdentity(prev) {
		s.logger.Infof("Timer started on project %s", project.ID)
		return nil
	}

	now := s.timeNow().In(s.loc)
	if prev != nil && prev.Running {
		completed[prev.ProjectID] += prev.Elapsed(now)
	}

	s.commit(ctx, &model.ActiveSession{
		ID:          model.PendingSessionID,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		StartedAt:   now,
		Running:     true,
	}, completed)
	s.logger.Infof("Timer started on project %s", project.ID)

	return nil
}

// StopTimer ends the running session.
func (s *Service) StopTimer(ctx context.Context) error {
	if !s.cmdMu.TryLock() {
		return model.ErrCommandInFlight
	}
	defer s.cmdMu.Unlock()

	current := s.Current()
	if current == nil || !current.Running {
		return fmt.Errorf("there is no running session: %w", model.ErrNotValid)
	}

	s.flush(ctx)

	completed := s.Completed()
	if err := s.client.EndTime(ctx, current.ProjectID); err != nil {
		return fmt.Errorf("could not end entry of project %s: %w", current.ProjectID, err)
	}

	completed[current.ProjectID] += current.Elapsed(s.timeNow())
	s.commit(ctx, nil, completed)
	s.logger.Infof("Timer stopped on project %s", current.ProjectID)

	return nil
}

// Reset clears the local state without calling the server, used on logout.
func (s *Service) Reset(ctx context.Context) {
	s.commit(ctx, nil, model.CompletedDurations{})
}

// Current returns a copy of the active session, nil if there is none.
func (s *Service) Current() *model.ActiveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Completed returns a copy of the durations of today's closed entries.
func (s *Service) Completed() model.CompletedDurations {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.completed.Clone()
}

// Subscribe registers a function called on every update.
func (s *Service) Subscribe(f func(Update)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = f

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Tick publishes the current state as a display refresh.
func (s *Service) Tick() { s.publish(KindTick) }

func (s *Service) flush(ctx context.Context) {
	if s.flusher == nil {
		return
	}
	if err := s.flusher.Flush(ctx); err != nil {
		s.logger.Warningf("could not flush task accrual: %s", err)
	}
}

// commit replaces the state, persists it when the session identity changed
// and publishes a logical update.
func (s *Service) commit(ctx context.Context, session *model.ActiveSession, completed model.CompletedDurations) {
	s.mu.Lock()
	s.session = session
	s.completed = completed
	if !s.lastPersisted.SameIdentity(session) {
		s.persist(ctx, session)
	}
	s.mu.Unlock()

	s.publish(KindLogical)
}

func (s *Service) persist(ctx context.Context, session *model.ActiveSession) {
	if session == nil {
		s.lastPersisted = nil
	} else {
		cp := *session
		s.lastPersisted = &cp
	}

	if s.repo == nil {
		return
	}

	var err error
	if session == nil {
		err = s.repo.DeleteSession(ctx)
	} else {
		err = s.repo.SaveSession(ctx, *session)
	}
	if err != nil {
		s.logger.Warningf("could not persist session: %s", err)
	}
}

func (s *Service) publish(kind UpdateKind) {
	s.mu.RLock()
	u := Update{Kind: kind, Completed: s.completed.Clone(), Now: s.timeNow()}
	if s.session != nil {
		cp := *s.session
		u.Session = &cp
	}
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fs := make([]func(Update), 0, len(ids))
	for _, id := range ids {
		fs = append(fs, s.subs[id])
	}
	s.mu.RUnlock()

	for _, f := range fs {
		f(u)
	}
}
