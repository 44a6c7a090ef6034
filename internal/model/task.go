package model

import (
	"fmt"
	"time"
)

// Task is a unit of work reported on a project for a day.
type Task struct {
	ID        string
	ProjectID string
	// ReportID groups the tasks sent on the same submission, empty if none.
	ReportID      string
	Name          string
	Description   string
	CreatedAt     time.Time
	EffectiveDate time.Time
}

// BucketKey addresses a task bucket.
type BucketKey struct {
	ProjectID string
	Day       Day
}

func (k BucketKey) String() string { return k.ProjectID + "@" + k.Day.String() }

// TaskDraft is the data required to create a task on the server.
type TaskDraft struct {
	ProjectID   string
	Name        string
	Description string
	Day         Day
	// Attachments are local file paths.
	Attachments []string
}

// Validate checks the draft has the required fields.
func (d TaskDraft) Validate() error {
	if d.ProjectID == "" {
		return fmt.Errorf("project id is required: %w", ErrNotValid)
	}

	if d.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}

	if d.Day.IsZero() {
		return fmt.Errorf("day is required: %w", ErrNotValid)
	}

	return nil
}
