package model

import "time"

// OpenEntry is the server time entry that has not been closed yet.
type OpenEntry struct {
	ID        string
	Project   Project
	StartedAt time.Time
}

// TodayEntry is one of today's server time entries.
type TodayEntry struct {
	Project  Project
	Duration time.Duration
	// EndedAt is nil while the entry is still open.
	EndedAt *time.Time
}

// DailyReport is the set of tasks reported for a day.
type DailyReport struct {
	Day   Day
	Tasks []Task
}

// PendingEntry is a prior day time entry that still lacks a task.
type PendingEntry struct {
	EntryID   string `json:"entry_id"`
	ProjectID string `json:"project_id"`
	Date      Day    `json:"date"`
}

// DateString returns the canonical date used on API calls.
func (p PendingEntry) DateString() string { return p.Date.String() }

// PendingPhase is the phase of the pending entries workflow.
type PendingPhase string

const (
	PendingPhaseInitial   PendingPhase = "initial"
	PendingPhaseLoading   PendingPhase = "loading"
	PendingPhaseLoaded    PendingPhase = "loaded"
	PendingPhaseError     PendingPhase = "error"
	PendingPhaseCompleted PendingPhase = "completed"
	PendingPhaseSkipped   PendingPhase = "skipped"
)

// PendingTasksState is the state of the pending entries workflow.
type PendingTasksState struct {
	Phase        PendingPhase    `json:"phase"`
	Entries      []PendingEntry  `json:"entries,omitempty"`
	CompletedIDs map[string]bool `json:"completed_ids,omitempty"`
	RetryCount   int             `json:"retry_count"`
}

// Clone returns a deep copy of the state.
func (s PendingTasksState) Clone() PendingTasksState {
	cp := s
	cp.Entries = append([]PendingEntry(nil), s.Entries...)
	cp.CompletedIDs = make(map[string]bool, len(s.CompletedIDs))
	for k, v := range s.CompletedIDs {
		cp.CompletedIDs[k] = v
	}
	return cp
}

// Credentials are the user credentials used against the server.
type Credentials struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
