package taskcreate

import (
	"context"
	"fmt"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
)

// TaskCache is the task bucket cache the created tasks are added to.
type TaskCache interface {
	Add(key model.BucketKey, task model.Task) bool
	Locate(id string) (model.BucketKey, bool)
	Remove(id string) (model.BucketKey, bool)
}

// PendingTracker resolves the pending entries a created task completes.
type PendingTracker interface {
	EntriesFor(projectID string) []model.PendingEntry
	MarkEntryCompleted(ctx context.Context, entryID string)
}

// ServiceConfig is the configuration for the task creation service.
type ServiceConfig struct {
	Client api.ReportClient
	Cache  TaskCache
	// Pending is optional.
	Pending PendingTracker
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}
	if c.Cache == nil {
		return fmt.Errorf("cache is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.TaskCreate"})
	return nil
}

// Service handles the task creation requested by the user.
type Service struct {
	client  api.ReportClient
	cache   TaskCache
	pending PendingTracker
	logger  log.Logger
}

// NewService creates a new task creation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		client:  cfg.Client,
		cache:   cfg.Cache,
		pending: cfg.Pending,
		logger:  cfg.Logger,
	}, nil
}

// CreateOptions are the options for creating a task.
type CreateOptions struct {
	Draft model.TaskDraft
}

// Create creates the task on the server and stores it on the draft day bucket.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*model.Task, error) {
	if err := opts.Draft.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	task, err := s.client.CreateTask(ctx, opts.Draft)
	if err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}

	key := model.BucketKey{ProjectID: opts.Draft.ProjectID, Day: opts.Draft.Day}

	// The push echo may have been routed before we got the response, the user
	// chosen day is authoritative.
	if current, ok := s.cache.Locate(task.ID); ok && current != key {
		s.logger.Debugf("Moving task %s from %s to %s", task.ID, current, key)
		s.cache.Remove(task.ID)
	}
	if !s.cache.Add(key, *task) {
		s.logger.Debugf("Task %s already on bucket %s", task.ID, key)
	}

	if s.pending != nil {
		for _, e := range s.pending.EntriesFor(key.ProjectID) {
			if e.Date == key.Day {
				s.pending.MarkEntryCompleted(ctx, e.EntryID)
			}
		}
	}

	s.logger.Infof("Created task %s on %s", task.ID, key)

	return task, nil
}
