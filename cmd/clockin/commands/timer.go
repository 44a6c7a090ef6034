package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/clockin/internal/model"
)

type StartCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	projectID   string
	projectName string
}

// NewStartCommand returns the start command.
func NewStartCommand(rootCmd *RootCommand, app *kingpin.Application) *StartCommand {
	c := &StartCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("start", "Start tracking time on a project, ending the running timer.")
	c.Cmd.Arg("project-id", "Project ID.").Required().StringVar(&c.projectID)
	c.Cmd.Flag("project-name", "Project display name.").StringVar(&c.projectName)

	return c
}

func (c StartCommand) Name() string { return c.Cmd.FullCommand() }

func (c StartCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	if err := deps.App.Reconcile(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Could not sync with the server: %s", err)
	}

	if err := deps.App.Start(ctx, model.Project{ID: c.projectID, Name: c.projectName}); err != nil {
		return fmt.Errorf("could not start timer: %w", err)
	}

	return c.rootCmd.newPrinter("table").PrintMessage(fmt.Sprintf("Timer started on %s", c.projectID))
}

type SwitchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	projectID   string
	projectName string
}

// NewSwitchCommand returns the switch command.
func NewSwitchCommand(rootCmd *RootCommand, app *kingpin.Application) *SwitchCommand {
	c := &SwitchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("switch", "Move the running timer to another project.")
	c.Cmd.Arg("project-id", "Project ID.").Required().StringVar(&c.projectID)
	c.Cmd.Flag("project-name", "Project display name.").StringVar(&c.projectName)

	return c
}

func (c SwitchCommand) Name() string { return c.Cmd.FullCommand() }

func (c SwitchCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	if err := deps.App.Reconcile(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Could not sync with the server: %s", err)
	}

	if err := deps.App.Switch(ctx, model.Project{ID: c.projectID, Name: c.projectName}); err != nil {
		return fmt.Errorf("could not switch timer: %w", err)
	}

	return c.rootCmd.newPrinter("table").PrintMessage(fmt.Sprintf("Timer switched to %s", c.projectID))
}

type StopCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewStopCommand returns the stop command.
func NewStopCommand(rootCmd *RootCommand, app *kingpin.Application) *StopCommand {
	c := &StopCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("stop", "Stop the running timer.")
	return c
}

func (c StopCommand) Name() string { return c.Cmd.FullCommand() }

func (c StopCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	if err := deps.App.Reconcile(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Could not sync with the server: %s", err)
	}

	if err := deps.App.Stop(ctx); err != nil {
		return fmt.Errorf("could not stop timer: %w", err)
	}

	return c.rootCmd.newPrinter("table").PrintMessage("Timer stopped")
}
