package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Show the running timer and today's totals.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	// Offline status uses the last persisted session.
	if err := deps.App.Reconcile(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Could not sync with the server: %s", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintStatus(deps.App.Snapshot()); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
