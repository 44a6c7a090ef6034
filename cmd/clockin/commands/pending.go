package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type PendingListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewPendingListCommand returns the pending list command, the default of the pending command.
func NewPendingListCommand(rootCmd *RootCommand, pendingCmd *kingpin.CmdClause) *PendingListCommand {
	c := &PendingListCommand{rootCmd: rootCmd}

	c.Cmd = pendingCmd.Command("list", "List the prior day entries lacking a task.").Default()
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c PendingListCommand) Name() string { return c.Cmd.FullCommand() }

func (c PendingListCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	// A failed load is part of the workflow state, it's printed like any other.
	wf := deps.App.Pending()
	if err := wf.Load(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Could not load pending entries: %s", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintPending(wf.State(), wf.CanSkip()); err != nil {
		return fmt.Errorf("could not print pending entries: %w", err)
	}

	return nil
}

type PendingSkipCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewPendingSkipCommand returns the pending skip command.
func NewPendingSkipCommand(rootCmd *RootCommand, pendingCmd *kingpin.CmdClause) *PendingSkipCommand {
	c := &PendingSkipCommand{rootCmd: rootCmd}
	c.Cmd = pendingCmd.Command("skip", "Dismiss the pending entries after repeated load failures.")
	return c
}

func (c PendingSkipCommand) Name() string { return c.Cmd.FullCommand() }

func (c PendingSkipCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	if err := deps.App.SkipPending(ctx); err != nil {
		return fmt.Errorf("could not skip pending entries: %w", err)
	}

	return c.rootCmd.newPrinter("table").PrintMessage("Pending entries skipped")
}
