package api

import (
	"context"

	"github.com/slok/clockin/internal/model"
)

// TimeEntryClient knows how to read and command the user time entries on the server.
// The server enforces a single open entry per user.
type TimeEntryClient interface {
	// OpenEntry returns the open entry of the user, nil if there is none.
	OpenEntry(ctx context.Context) (*model.OpenEntry, error)
	// TodayEntries returns all of today's entries, open and closed.
	TodayEntries(ctx context.Context) ([]model.TodayEntry, error)
	StartTime(ctx context.Context, projectID string) error
	EndTime(ctx context.Context, projectID string) error
	// AddMember adds the user as a member of the project.
	AddMember(ctx context.Context, projectID string) error
	// HasWorked returns true if the user has ever tracked time on the project.
	HasWorked(ctx context.Context, projectID string) (bool, error)
}

// ReportClient knows how to read and create daily report tasks.
type ReportClient interface {
	DailyReport(ctx context.Context, day model.Day) (*model.DailyReport, error)
	CreateTask(ctx context.Context, draft model.TaskDraft) (*model.Task, error)
}

// PendingClient knows how to list the prior day entries that lack a task.
type PendingClient interface {
	ListPendingEntries(ctx context.Context) ([]model.PendingEntry, error)
}

// AuthClient knows how to renew credentials.
type AuthClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (*model.Credentials, error)
}

// Client is the full server API used by the companion.
//
//go:generate mockery --case underscore --output apimock --outpkg apimock --name Client
type Client interface {
	TimeEntryClient
	ReportClient
	PendingClient
	AuthClient
}
