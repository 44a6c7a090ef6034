package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/clockin/cmd/clockin/commands"
	"github.com/slok/clockin/internal/log"
	loglogrus "github.com/slok/clockin/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("clockin", "Time tracking companion: timers, daily report tasks and pending entries.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	loginCmd := commands.NewLoginCommand(rootCmd, app)
	logoutCmd := commands.NewLogoutCommand(rootCmd, app)
	statusCmd := commands.NewStatusCommand(rootCmd, app)
	startCmd := commands.NewStartCommand(rootCmd, app)
	switchCmd := commands.NewSwitchCommand(rootCmd, app)
	stopCmd := commands.NewStopCommand(rootCmd, app)
	tasksCmd := commands.NewTasksCommand(rootCmd, app)
	watchCmd := commands.NewWatchCommand(rootCmd, app)

	// Task subcommands share a parent command.
	taskCmd := app.Command("task", "Manage daily report tasks.")
	taskCreateCmd := commands.NewTaskCreateCommand(rootCmd, taskCmd)

	// Pending subcommands share a parent command.
	pendingCmd := app.Command("pending", "Manage prior day entries lacking a task.")
	pendingListCmd := commands.NewPendingListCommand(rootCmd, pendingCmd)
	pendingSkipCmd := commands.NewPendingSkipCommand(rootCmd, pendingCmd)

	cmds := map[string]commands.Command{
		loginCmd.Name():       loginCmd,
		logoutCmd.Name():      logoutCmd,
		statusCmd.Name():      statusCmd,
		startCmd.Name():       startCmd,
		switchCmd.Name():      switchCmd,
		stopCmd.Name():        stopCmd,
		tasksCmd.Name():       tasksCmd,
		watchCmd.Name():       watchCmd,
		taskCreateCmd.Name():  taskCreateCmd,
		pendingListCmd.Name(): pendingListCmd,
		pendingSkipCmd.Name(): pendingSkipCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Commands that own the terminal output don't log unless debugging.
	printerCommands := map[string]bool{
		"status":       true,
		"tasks":        true,
		"pending list": true,
		"watch":        true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(ctx, *rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
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

// getLogger returns the application logger.
func getLogger(ctx context.Context, config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Stdout is for the printers.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
