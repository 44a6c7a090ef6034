package lib

import (
	"context"
	"fmt"

	"github.com/slok/clockin/internal/app/taskcreate"
	"github.com/slok/clockin/internal/model"
)

// Tasks returns the tasks reported on a day (YYYY-MM-DD), today when empty.
func (c *Client) Tasks(ctx context.Context, day string) ([]Task, error) {
	d, err := c.parseDay(day)
	if err != nil {
		return nil, err
	}

	if err := c.app.LoadDay(ctx, d); err != nil {
		return nil, fmt.Errorf("could not load tasks: %w", mapError(err))
	}

	tasks := []Task{}
	for _, b := range c.app.Buckets() {
		if b.Key.Day != d {
			continue
		}
		for _, t := range b.Tasks {
			tasks = append(tasks, fromInternalTask(d, t))
		}
	}

	return tasks, nil
}

// CreateTask reports a task. The pending entries of the project on the task
// day are completed by it.
func (c *Client) CreateTask(ctx context.Context, opts CreateTaskOpts) (*Task, error) {
	d, err := c.parseDay(opts.Day)
	if err != nil {
		return nil, err
	}

	svc, err := taskcreate.NewService(taskcreate.ServiceConfig{
		Client:  c.api,
		Cache:   c.app.Cache(),
		Pending: c.app.Pending(),
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	t, err := svc.Create(ctx, taskcreate.CreateOptions{
		Draft: model.TaskDraft{
			ProjectID:   opts.ProjectID,
			Name:        opts.Name,
			Description: opts.Description,
			Day:         d,
			Attachments: opts.Attachments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task: %w", mapError(err))
	}

	task := fromInternalTask(d, *t)
	return &task, nil
}

// Pending loads and returns the prior day entries that lack a task.
func (c *Client) Pending(ctx context.Context) (*PendingState, error) {
	w := c.app.Pending()
	if err := w.Load(ctx); err != nil {
		return nil, fmt.Errorf("could not load pending entries: %w", mapError(err))
	}

	st := fromInternalPending(w.State(), w.CanSkip())
	return &st, nil
}

// SkipPending skips the pending entries workflow, only allowed after the
// loading has failed repeatedly.
func (c *Client) SkipPending(ctx context.Context) error {
	if err := c.app.SkipPending(ctx); err != nil {
		return fmt.Errorf("could not skip pending entries: %w", mapError(err))
	}

	return nil
}

func (c *Client) parseDay(day string) (model.Day, error) {
	if day == "" {
		return c.app.Today(), nil
	}

	d, err := model.ParseDay(day)
	if err != nil {
		return model.Day{}, mapError(err)
	}

	return d, nil
}
