package lib

import (
	"context"
	"fmt"

	"github.com/slok/clockin/internal/model"
)

// Start starts the timer on a project.
//
// The timer is optimistic until the server confirms it, see [Status].Confirmed.
// Starting while another project is running switches to the new project.
func (c *Client) Start(ctx context.Context, project Project) error {
	if err := c.app.Start(ctx, toInternalProject(project)); err != nil {
		return fmt.Errorf("could not start timer: %w", mapError(err))
	}

	return nil
}

// Switch stops the running timer and starts it on another project.
func (c *Client) Switch(ctx context.Context, project Project) error {
	if err := c.app.Switch(ctx, toInternalProject(project)); err != nil {
		return fmt.Errorf("could not switch project: %w", mapError(err))
	}

	return nil
}

// Stop stops the running timer. Stopping without a running timer fails with [ErrNotValid].
func (c *Client) Stop(ctx context.Context) error {
	if err := c.app.Stop(ctx); err != nil {
		return fmt.Errorf("could not stop timer: %w", mapError(err))
	}

	return nil
}

func toInternalProject(p Project) model.Project {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return model.Project{ID: p.ID, Name: name}
}
