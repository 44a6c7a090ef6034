package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/run"

	"github.com/slok/clockin/internal/tui"
)

type WatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	altScreen bool
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootCmd *RootCommand, app *kingpin.Application) *WatchCommand {
	c := &WatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("watch", "Live view of the running timer, kept in sync with the server.")
	c.Cmd.Flag("alt-screen", "Use the terminal alternate screen.").Default("true").BoolVar(&c.altScreen)

	return c
}

func (c WatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c WatchCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	opts := []tea.ProgramOption{tea.WithInput(c.rootCmd.Stdin), tea.WithOutput(c.rootCmd.Stdout)}
	if c.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}

	var g run.Group

	// Companion sync loop.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return deps.App.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Live view, quitting it stops everything.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				if err := tui.Run(ctx, deps.App, opts...); err != nil {
					return fmt.Errorf("live view failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}
