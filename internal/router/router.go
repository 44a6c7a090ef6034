package router

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/push"
)

// WindowDays is the number of days before today where tasks are routed.
const WindowDays = 30

// TaskCache is the task store the events are routed to.
type TaskCache interface {
	Peek(key model.BucketKey) ([]model.Task, bool)
	Keys() []model.BucketKey
	Add(key model.BucketKey, task model.Task) bool
	Update(task model.Task) (model.BucketKey, bool)
	Remove(id string) (model.BucketKey, bool)
	Replace(key model.BucketKey, tasks []model.Task)
	Locate(id string) (model.BucketKey, bool)
	LocateReport(projectID, reportID string) []model.BucketKey
}

// Reconciler reconciles the local session with the server.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// PendingTracker knows the prior day entries that lack a task.
type PendingTracker interface {
	Load(ctx context.Context) error
	PendingEntryFor(projectID string) (model.PendingEntry, bool)
	EntriesFor(projectID string) []model.PendingEntry
	MarkEntryCompleted(ctx context.Context, entryID string)
	UnmarkEntryCompleted(ctx context.Context, entryID string)
}

// ServiceConfig is the configuration for the event router.
type ServiceConfig struct {
	Cache   TaskCache
	Reports api.ReportClient
	Session Reconciler
	// Pending is optional.
	Pending  PendingTracker
	Logger   log.Logger
	Location *time.Location
	TimeNow  func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Cache == nil {
		return fmt.Errorf("cache is required")
	}

	if c.Reports == nil {
		return fmt.Errorf("reports client is required")
	}

	if c.Session == nil {
		return fmt.Errorf("session reconciler is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "router.Service"})

	if c.Location == nil {
		c.Location = time.Local
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Service routes the push events to the session and the task buckets.
type Service struct {
	cache   TaskCache
	reports api.ReportClient
	session Reconciler
	pending PendingTracker
	logger  log.Logger
	loc     *time.Location
	timeNow func() time.Time
}

// NewService returns a new event router.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		cache:   cfg.Cache,
		reports: cfg.Reports,
		session: cfg.Session,
		pending: cfg.Pending,
		logger:  cfg.Logger,
		loc:     cfg.Location,
		timeNow: cfg.TimeNow,
	}, nil
}

// Attach subscribes the router to the transport events. The returned function detaches it.
func (s *Service) Attach(t push.Transport) (detach func()) {
	return t.Subscribe(s.Handle)
}

// Handle handles a single push event. Failures are logged, never returned.
func (s *Service) Handle(ctx context.Context, ev model.Event) {
	logger := s.logger.WithValues(log.Kv{"event-id": ev.ID, "event-type": ev.Type})

	switch ev.Type {
	case model.EventTypeTimeEntry:
		s.invalidate(ctx, logger, false)
	case model.EventTypeAttendance:
		s.invalidate(ctx, logger, true)
	case model.EventTypeTask:
		if ev.Task == nil {
			logger.Warningf("Task event without payload")
			return
		}
		s.handleTask(ctx, logger, *ev.Task)
	case model.EventTypeTokenError:
		// Owned by the credential coordinator.
	default:
		logger.Warningf("Unknown event type")
	}
}

// invalidate reconciles the session and reloads today's tasks. Attendance
// changes can also create pending entries.
func (s *Service) invalidate(ctx context.Context, logger log.Logger, attendance bool) {
	if err := s.session.Reconcile(ctx); err != nil {
		logger.Warningf("Could not reconcile session: %s", err)
	}

	if err := s.RefreshDay(ctx, s.today()); err != nil {
		logger.Warningf("Could not refresh today tasks: %s", err)
	}

	if attendance && s.pending != nil {
		if err := s.pending.Load(ctx); err != nil {
			logger.Warningf("Could not load pending entries: %s", err)
		}
	}
}

// RefreshDay replaces the buckets of the day with the server daily report.
func (s *Service) RefreshDay(ctx context.Context, day model.Day) error {
	report, err := s.reports.DailyReport(ctx, day)
	if err != nil {
		return fmt.Errorf("could not get daily report of %s: %w", day, err)
	}

	byProject := map[string][]model.Task{}
	for _, t := range report.Tasks {
		byProject[t.ProjectID] = append(byProject[t.ProjectID], t)
	}

	// Buckets of the day without tasks on the report have been emptied.
	for _, k := range s.cache.Keys() {
		if k.Day != day {
			continue
		}
		if _, ok := byProject[k.ProjectID]; !ok {
			s.cache.Replace(k, nil)
		}
	}

	for projectID, tasks := range byProject {
		s.cache.Replace(model.BucketKey{ProjectID: projectID, Day: day}, tasks)
	}

	return nil
}

func (s *Service) handleTask(ctx context.Context, logger log.Logger, ev model.TaskEvent) {
	logger = logger.WithValues(log.Kv{"task-id": ev.Task.ID, "action": ev.Action})

	switch ev.Action {
	case model.TaskActionCreated:
		s.created(ctx, logger, ev.Task)
	case model.TaskActionUpdated:
		key, ok := s.find(ev.Task.ID, ev.Task.ProjectID)
		if !ok {
			logger.Debugf("Updated task not found, dropping")
			return
		}
		if _, ok := s.cache.Update(ev.Task); ok {
			logger.Debugf("Task updated on %s", key)
		}
	case model.TaskActionDeleted:
		key, ok := s.find(ev.Task.ID, ev.Task.ProjectID)
		if !ok {
			logger.Debugf("Deleted task not found, dropping")
			return
		}
		s.cache.Remove(ev.Task.ID)
		s.uncompletePending(ctx, key)
		logger.Debugf("Task removed from %s", key)
	default:
		logger.Warningf("Unknown task action")
	}
}

func (s *Service) created(ctx context.Context, logger log.Logger, task model.Task) {
	if key, ok := s.cache.Locate(task.ID); ok {
		logger.Debugf("Task already on %s, ignoring duplicate", key)
		return
	}

	key, entry := s.Route(task)
	if !s.cache.Add(key, task) {
		return
	}
	logger.Debugf("Task added to %s", key)

	if entry != nil {
		s.pending.MarkEntryCompleted(ctx, entry.EntryID)
	}
}

// Route returns the bucket a newly created task belongs to, the first rule that matches wins:
//
//  1. The day of the project pending entry.
//  2. The bucket in the window holding a task of the same report.
//  3. The most recent empty bucket of the project before today, in the window.
//  4. The task effective day.
//
// When the task is routed by a pending entry, the entry is returned.
func (s *Service) Route(task model.Task) (model.BucketKey, *model.PendingEntry) {
	today := s.today()

	if s.pending != nil {
		if e, ok := s.pending.PendingEntryFor(task.ProjectID); ok {
			return model.BucketKey{ProjectID: task.ProjectID, Day: e.Date}, &e
		}
	}

	if task.ReportID != "" {
		for _, k := range s.cache.LocateReport(task.ProjectID, task.ReportID) {
			if s.inWindow(k.Day, today) {
				return k, nil
			}
		}
	}

	for i := 1; i <= WindowDays; i++ {
		key := model.BucketKey{ProjectID: task.ProjectID, Day: today.AddDays(-i)}
		if tasks, ok := s.cache.Peek(key); ok && len(tasks) == 0 {
			return key, nil
		}
	}

	return model.BucketKey{ProjectID: task.ProjectID, Day: model.DayOf(task.EffectiveDate, s.loc)}, nil
}

// find returns the bucket holding the task, checking the pending entry buckets first.
func (s *Service) find(id, projectID string) (model.BucketKey, bool) {
	if s.pending != nil {
		for _, e := range s.pending.EntriesFor(projectID) {
			key := model.BucketKey{ProjectID: projectID, Day: e.Date}
			tasks, _ := s.cache.Peek(key)
			for _, t := range tasks {
				if t.ID == id {
					return key, true
				}
			}
		}
	}

	key, ok := s.cache.Locate(id)
	if !ok || !s.inWindow(key.Day, s.today()) {
		return model.BucketKey{}, false
	}

	return key, true
}

// uncompletePending marks the pending entries of the bucket as lacking a task when the bucket is empty.
func (s *Service) uncompletePending(ctx context.Context, key model.BucketKey) {
	if s.pending == nil {
		return
	}

	tasks, _ := s.cache.Peek(key)
	if len(tasks) > 0 {
		return
	}

	for _, e := range s.pending.EntriesFor(key.ProjectID) {
		if e.Date == key.Day {
			s.pending.UnmarkEntryCompleted(ctx, e.EntryID)
		}
	}
}

func (s *Service) today() model.Day { return model.DayOf(s.timeNow(), s.loc) }

func (s *Service) inWindow(d, today model.Day) bool {
	return !d.Before(today.AddDays(-WindowDays)) && !today.Before(d)
}
