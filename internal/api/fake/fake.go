package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
)

// Publisher publishes push events, the in-process push hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event)
}

// ServerConfig is the configuration for the fake server.
type ServerConfig struct {
	// Publisher is optional, without it no push events are sent.
	Publisher Publisher
	Projects  []model.Project
	Logger    log.Logger
	Location  *time.Location
	TimeNow   func() time.Time
}

func (c *ServerConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Fake"})

	if c.Location == nil {
		c.Location = time.Local
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

type timeEntry struct {
	id        string
	project   model.Project
	startedAt time.Time
	endedAt   *time.Time
}

// Server is a fake in-memory time tracking server implementing api.Client.
// Every state change is announced with a push event, like the real server does.
type Server struct {
	projects     map[string]model.Project
	members      map[string]bool
	entries      []timeEntry
	reports      map[model.Day][]model.Task
	pending      []model.PendingEntry
	refreshToken string
	failures     map[string]error
	publisher    Publisher
	mu           sync.Mutex
	logger       log.Logger
	loc          *time.Location
	timeNow      func() time.Time
}

// NewServer creates a new fake server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	projects := map[string]model.Project{}
	for _, p := range cfg.Projects {
		projects[p.ID] = p
	}

	return &Server{
		projects:  projects,
		members:   map[string]bool{},
		reports:   map[model.Day][]model.Task{},
		failures:  map[string]error{},
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		loc:       cfg.Location,
		timeNow:   cfg.TimeNow,
	}, nil
}

var _ api.Client = &Server{}

func (s *Server) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.timeNow()), rand.Reader).String()
}

// FailNext makes the next call of the operation (e.g. "StartTime") fail with err.
func (s *Server) FailNext(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[operation] = err
}

func (s *Server) failure(operation string) error {
	err, ok := s.failures[operation]
	if !ok {
		return nil
	}
	delete(s.failures, operation)
	return err
}

func (s *Server) publish(ctx context.Context, ev model.Event) {
	if s.publisher == nil {
		return
	}
	ev.ID = s.newID()
	s.publisher.Publish(ctx, ev)
}

// Login creates new credentials for the user.
func (s *Server) Login(ctx context.Context, userID string) model.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.newCredentials(userID)
}

func (s *Server) newCredentials(userID string) model.Credentials {
	s.refreshToken = s.newID()
	return model.Credentials{
		UserID:       userID,
		AccessToken:  s.newID(),
		RefreshToken: s.refreshToken,
		ExpiresAt:    s.timeNow().Add(time.Hour).UTC(),
	}
}

// ExpireToken rejects the current access token, sending a push token error.
func (s *Server) ExpireToken(ctx context.Context) {
	s.publish(ctx, model.Event{Type: model.EventTypeTokenError})
}

// RevokeSession invalidates the refresh token, the next refresh will fail.
func (s *Server) RevokeSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshToken = ""
}

// CheckIn registers the user attendance with the prior day entries lacking a task.
func (s *Server) CheckIn(ctx context.Context, pending []model.PendingEntry) {
	s.mu.Lock()
	s.pending = append(s.pending, pending...)
	s.mu.Unlock()

	s.publish(ctx, model.Event{Type: model.EventTypeAttendance})
}

// PublishTask changes a task as if it was done from another client, sending its push event.
func (s *Server) PublishTask(ctx context.Context, action model.TaskAction, day model.Day, task model.Task) {
	s.mu.Lock()
	tasks := s.reports[day]
	switch action {
	case model.TaskActionCreated:
		s.reports[day] = append(tasks, task)
	case model.TaskActionUpdated, model.TaskActionDeleted:
		for i, t := range tasks {
			if t.ID != task.ID {
				continue
			}
			if action == model.TaskActionUpdated {
				tasks[i] = task
			} else {
				s.reports[day] = append(tasks[:i:i], tasks[i+1:]...)
			}
			break
		}
	}
	s.mu.Unlock()

	s.publish(ctx, model.Event{Type: model.EventTypeTask, Task: &model.TaskEvent{Action: action, Task: task}})
}

func (s *Server) openEntry() *timeEntry {
	for i := range s.entries {
		if s.entries[i].endedAt == nil {
			return &s.entries[i]
		}
	}
	return nil
}

func (s *Server) OpenEntry(ctx context.Context) (*model.OpenEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("OpenEntry"); err != nil {
		return nil, err
	}

	e := s.openEntry()
	if e == nil {
		return nil, nil
	}

	return &model.OpenEntry{ID: e.id, Project: e.project, StartedAt: e.startedAt}, nil
}

func (s *Server) TodayEntries(ctx context.Context) ([]model.TodayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("TodayEntries"); err != nil {
		return nil, err
	}

	now := s.timeNow()
	today := model.DayOf(now, s.loc)
	entries := []model.TodayEntry{}
	for _, e := range s.entries {
		if model.DayOf(e.startedAt, s.loc) != today {
			continue
		}

		end := now
		if e.endedAt != nil {
			end = *e.endedAt
		}
		entries = append(entries, model.TodayEntry{
			Project:  e.project,
			Duration: end.Sub(e.startedAt).Truncate(time.Second),
			EndedAt:  e.endedAt,
		})
	}

	return entries, nil
}

func (s *Server) StartTime(ctx context.Context, projectID string) error {
	s.mu.Lock()

	if err := s.failure("StartTime"); err != nil {
		s.mu.Unlock()
		return err
	}

	if s.openEntry() != nil {
		s.mu.Unlock()
		return fmt.Errorf("there is already an open entry: %w", model.ErrAlreadyExists)
	}

	if !s.members[projectID] {
		s.mu.Unlock()
		return fmt.Errorf("user is not a member of project %s: %w", projectID, model.ErrNotValid)
	}

	p, ok := s.projects[projectID]
	if !ok {
		p = model.Project{ID: projectID, Name: projectID}
	}
	s.entries = append(s.entries, timeEntry{id: s.newID(), project: p, startedAt: s.timeNow().UTC()})
	s.mu.Unlock()

	s.logger.Debugf("Time started on %s", projectID)
	s.publish(ctx, model.Event{Type: model.EventTypeTimeEntry})

	return nil
}

func (s *Server) EndTime(ctx context.Context, projectID string) error {
	s.mu.Lock()

	if err := s.failure("EndTime"); err != nil {
		s.mu.Unlock()
		return err
	}

	e := s.openEntry()
	if e == nil || e.project.ID != projectID {
		s.mu.Unlock()
		return fmt.Errorf("there is no open entry for project %s: %w", projectID, model.ErrNotValid)
	}
	end := s.timeNow().UTC()
	e.endedAt = &end
	s.mu.Unlock()

	s.logger.Debugf("Time ended on %s", projectID)
	s.publish(ctx, model.Event{Type: model.EventTypeTimeEntry})

	return nil
}

func (s *Server) AddMember(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("AddMember"); err != nil {
		return err
	}

	s.members[projectID] = true
	return nil
}

func (s *Server) HasWorked(ctx context.Context, projectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("HasWorked"); err != nil {
		return false, err
	}

	for _, e := range s.entries {
		if e.project.ID == projectID {
			return true, nil
		}
	}

	return false, nil
}

func (s *Server) DailyReport(ctx context.Context, day model.Day) (*model.DailyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("DailyReport"); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, len(s.reports[day]))
	copy(tasks, s.reports[day])

	return &model.DailyReport{Day: day, Tasks: tasks}, nil
}

// CreateTask creates the task on the draft day. Pending entries of the
// project and day are resolved.
func (s *Server) CreateTask(ctx context.Context, draft model.TaskDraft) (*model.Task, error) {
	s.mu.Lock()

	if err := s.failure("CreateTask"); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if draft.ProjectID == "" || draft.Name == "" || draft.Day.IsZero() {
		s.mu.Unlock()
		return nil, fmt.Errorf("project, name and day are required: %w", model.ErrNotValid)
	}

	now := s.timeNow().UTC()
	task := model.Task{
		ID:            s.newID(),
		ProjectID:     draft.ProjectID,
		ReportID:      s.newID(),
		Name:          draft.Name,
		Description:   draft.Description,
		CreatedAt:     now,
		EffectiveDate: now,
	}
	s.reports[draft.Day] = append(s.reports[draft.Day], task)

	pending := s.pending[:0]
	for _, e := range s.pending {
		if e.ProjectID == draft.ProjectID && e.Date == draft.Day {
			continue
		}
		pending = append(pending, e)
	}
	s.pending = pending
	s.mu.Unlock()

	s.publish(ctx, model.Event{Type: model.EventTypeTask, Task: &model.TaskEvent{Action: model.TaskActionCreated, Task: task}})

	return &task, nil
}

func (s *Server) ListPendingEntries(ctx context.Context) ([]model.PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("ListPendingEntries"); err != nil {
		return nil, err
	}

	entries := make([]model.PendingEntry, len(s.pending))
	copy(entries, s.pending)

	return entries, nil
}

func (s *Server) RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("RefreshToken"); err != nil {
		return nil, err
	}

	if refreshToken == "" || refreshToken != s.refreshToken {
		return nil, fmt.Errorf("invalid refresh token: %w", model.ErrUnauthorized)
	}

	creds := s.newCredentials("")
	return &creds, nil
}
