package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/clockin/internal/app/taskcreate"
	"github.com/slok/clockin/internal/model"
)

type TasksCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	day    string
	format string
}

// NewTasksCommand returns the tasks command.
func NewTasksCommand(rootCmd *RootCommand, app *kingpin.Application) *TasksCommand {
	c := &TasksCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("tasks", "List the reported tasks of a day.")
	c.Cmd.Flag("day", "Day (YYYY-MM-DD), today by default.").StringVar(&c.day)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TasksCommand) Name() string { return c.Cmd.FullCommand() }

func (c TasksCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	day, err := parseDay(c.day, deps.App.Today())
	if err != nil {
		return err
	}

	if err := deps.App.LoadDay(ctx, day); err != nil {
		return fmt.Errorf("could not load tasks: %w", err)
	}

	buckets := []model.TaskBucket{}
	for _, b := range deps.App.Buckets() {
		if b.Key.Day == day {
			buckets = append(buckets, b)
		}
	}

	if err := c.rootCmd.newPrinter(c.format).PrintTasks(buckets); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}

type TaskCreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	projectID   string
	name        string
	description string
	day         string
	attachments []string
}

// NewTaskCreateCommand returns the task create command.
func NewTaskCreateCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskCreateCommand {
	c := &TaskCreateCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("create", "Report a task on a project day.")
	c.Cmd.Flag("project", "Project ID.").Short('p').Required().StringVar(&c.projectID)
	c.Cmd.Flag("name", "Task name.").Short('n').Required().StringVar(&c.name)
	c.Cmd.Flag("description", "Task description.").StringVar(&c.description)
	c.Cmd.Flag("day", "Day the task is reported on (YYYY-MM-DD), today by default.").StringVar(&c.day)
	c.Cmd.Flag("attachment", "File to attach, can be repeated.").ExistingFilesVar(&c.attachments)

	return c
}

func (c TaskCreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskCreateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	day, err := parseDay(c.day, deps.App.Today())
	if err != nil {
		return err
	}

	// The pending entries of the day are completed by the task.
	if err := deps.App.Pending().Load(ctx); err != nil {
		logger.Warningf("Could not load pending entries: %s", err)
	}

	svc, err := taskcreate.NewService(taskcreate.ServiceConfig{
		Client:  deps.Client,
		Cache:   deps.App.Cache(),
		Pending: deps.App.Pending(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Create(ctx, taskcreate.CreateOptions{
		Draft: model.TaskDraft{
			ProjectID:   c.projectID,
			Name:        c.name,
			Description: c.description,
			Day:         day,
			Attachments: c.attachments,
		},
	})
	if err != nil {
		return fmt.Errorf("could not create task: %w", err)
	}

	return c.rootCmd.newPrinter("table").PrintMessage(fmt.Sprintf("Task %s created on %s", task.ID, day))
}
