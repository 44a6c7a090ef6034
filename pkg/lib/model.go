package lib

import (
	"errors"
	"time"

	"github.com/slok/clockin/internal/model"
)

// BackendType identifies the server the client talks to.
type BackendType string

const (
	// BackendHTTP uses the time tracking server REST API.
	BackendHTTP BackendType = "http"

	// BackendFake uses an in-memory fake server.
	// Use this for tests and demos without a server.
	BackendFake BackendType = "fake"
)

var (
	// ErrNotFound is returned when a resource doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when the request is not valid, e.g. stopping without a running timer.
	ErrNotValid = errors.New("not valid")
	// ErrLoggedOut is returned when there are no valid credentials.
	ErrLoggedOut = errors.New("logged out")
	// ErrCommandInFlight is returned when a timer command is requested while another one is running.
	ErrCommandInFlight = errors.New("command in flight")
	// ErrTransient is returned on network failures, the operation may work if retried.
	ErrTransient = errors.New("transient error")
)

// Project is a project time can be tracked on.
type Project struct {
	ID string
	// Name is optional, used for display.
	Name string
}

// Credentials are the user credentials used against the server.
type Credentials struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ProjectTotal is the time tracked today on a project.
type ProjectTotal struct {
	ProjectID string
	Total     time.Duration
}

// Status is a read-only snapshot of the companion state.
type Status struct {
	// Running is true while a timer is running, the project fields are only set when running.
	Running     bool
	ProjectID   string
	ProjectName string
	StartedAt   time.Time
	Elapsed     time.Duration
	// Confirmed is false until the server confirms the running timer.
	Confirmed bool
	// Totals are today's totals, running project first.
	Totals    []ProjectTotal
	Connected bool
	// PendingPhase is the phase of the pending entries workflow.
	PendingPhase string
}

// Task is a daily report task.
type Task struct {
	ID            string
	ProjectID     string
	Day           string
	ReportID      string
	Name          string
	Description   string
	EffectiveDate time.Time
}

// CreateTaskOpts are the options to report a task.
type CreateTaskOpts struct {
	ProjectID   string
	Name        string
	Description string
	// Day is the reported day (YYYY-MM-DD), today when empty.
	Day string
	// Attachments are local file paths.
	Attachments []string
}

// PendingEntry is a prior day time entry that lacks a task.
type PendingEntry struct {
	EntryID   string
	ProjectID string
	Day       string
	Completed bool
}

// PendingState is the state of the pending entries workflow.
type PendingState struct {
	Phase      string
	RetryCount int
	CanSkip    bool
	Entries    []PendingEntry
}

func fromInternalStatus(s model.Status) Status {
	st := Status{
		Connected:    s.Connected,
		PendingPhase: string(s.Pending.Phase),
	}

	if as := s.Session; as != nil && as.Running {
		st.Running = true
		st.ProjectID = as.ProjectID
		st.ProjectName = as.ProjectName
		st.StartedAt = as.StartedAt
		st.Elapsed = s.Elapsed
		st.Confirmed = !as.ID.IsPending()
	}

	for _, t := range s.Totals {
		st.Totals = append(st.Totals, ProjectTotal{ProjectID: t.ProjectID, Total: t.Total})
	}

	return st
}

func fromInternalTask(day model.Day, t model.Task) Task {
	return Task{
		ID:            t.ID,
		ProjectID:     t.ProjectID,
		Day:           day.String(),
		ReportID:      t.ReportID,
		Name:          t.Name,
		Description:   t.Description,
		EffectiveDate: t.EffectiveDate,
	}
}

func fromInternalPending(s model.PendingTasksState, canSkip bool) PendingState {
	ps := PendingState{
		Phase:      string(s.Phase),
		RetryCount: s.RetryCount,
		CanSkip:    canSkip,
		Entries:    make([]PendingEntry, 0, len(s.Entries)),
	}

	for _, e := range s.Entries {
		ps.Entries = append(ps.Entries, PendingEntry{
			EntryID:   e.EntryID,
			ProjectID: e.ProjectID,
			Day:       e.DateString(),
			Completed: s.CompletedIDs[e.EntryID],
		})
	}

	return ps
}

var errorMappings = []struct {
	internal error
	public   error
}{
	{internal: model.ErrLoggedOut, public: ErrLoggedOut},
	{internal: model.ErrUnauthorized, public: ErrLoggedOut},
	{internal: model.ErrCommandInFlight, public: ErrCommandInFlight},
	{internal: model.ErrNotFound, public: ErrNotFound},
	{internal: model.ErrAlreadyExists, public: ErrAlreadyExists},
	{internal: model.ErrNotValid, public: ErrNotValid},
	{internal: model.ErrTransient, public: ErrTransient},
}

// mapError maps internal errors to the public sentinel errors, keeping the original message.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.internal) {
			return &mappedError{original: err, sentinel: m.public}
		}
	}

	return err
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
