package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/clockin/internal/model"
)

type LoginCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	userID       string
	accessToken  string
	refreshToken string
	expiresIn    time.Duration
}

// NewLoginCommand returns the login command.
func NewLoginCommand(rootCmd *RootCommand, app *kingpin.Application) *LoginCommand {
	c := &LoginCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("login", "Store the user credentials.")
	c.Cmd.Flag("user", "User ID.").Required().StringVar(&c.userID)
	c.Cmd.Flag("access-token", "Access token (not used on the fake backend).").Envar("CLOCKIN_ACCESS_TOKEN").StringVar(&c.accessToken)
	c.Cmd.Flag("refresh-token", "Refresh token (not used on the fake backend).").Envar("CLOCKIN_REFRESH_TOKEN").StringVar(&c.refreshToken)
	c.Cmd.Flag("expires-in", "Access token lifetime.").Default("1h").DurationVar(&c.expiresIn)

	return c
}

func (c LoginCommand) Name() string { return c.Cmd.FullCommand() }

func (c LoginCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	var creds model.Credentials
	if deps.Fake != nil {
		creds = deps.Fake.Login(ctx, c.userID)
	} else {
		if c.accessToken == "" || c.refreshToken == "" {
			return fmt.Errorf("--access-token and --refresh-token are required")
		}
		creds = model.Credentials{
			UserID:       c.userID,
			AccessToken:  c.accessToken,
			RefreshToken: c.refreshToken,
			ExpiresAt:    time.Now().Add(c.expiresIn).UTC(),
		}
	}

	if err := deps.Credentials.Login(ctx, creds); err != nil {
		return fmt.Errorf("could not login: %w", err)
	}

	return c.rootCmd.newPrinter("table").PrintMessage(fmt.Sprintf("Logged in as %s", c.userID))
}

type LogoutCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewLogoutCommand returns the logout command.
func NewLogoutCommand(rootCmd *RootCommand, app *kingpin.Application) *LogoutCommand {
	c := &LogoutCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("logout", "Remove the user credentials and the local state.")
	return c
}

func (c LogoutCommand) Name() string { return c.Cmd.FullCommand() }

func (c LogoutCommand) Run(ctx context.Context) error {
	deps, err := c.rootCmd.newCompanion(ctx)
	if err != nil {
		return err
	}

	if err := deps.App.Logout(ctx); err != nil {
		return fmt.Errorf("could not logout: %w", err)
	}

	return c.rootCmd.newPrinter("table").PrintMessage("Logged out")
}
