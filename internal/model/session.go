package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionID identifies an active session. It is either confirmed by the server
// or pending until the next reconcile resolves it.
//
// The zero value is a pending ID.
type SessionID struct {
	id        string
	confirmed bool
}

// PendingSessionID is the placeholder ID used for optimistic sessions.
var PendingSessionID = SessionID{}

// ConfirmedSessionID returns a session ID confirmed by the server.
func ConfirmedSessionID(serverID string) SessionID {
	return SessionID{id: serverID, confirmed: true}
}

// Confirmed returns the server ID and true if the ID has been confirmed.
func (s SessionID) Confirmed() (string, bool) { return s.id, s.confirmed }

// IsPending returns true if the ID is still the optimistic placeholder.
func (s SessionID) IsPending() bool { return !s.confirmed }

func (s SessionID) String() string {
	if !s.confirmed {
		return "pending"
	}
	return s.id
}

type sessionIDJSON struct {
	State string `json:"state"`
	ID    string `json:"id,omitempty"`
}

func (s SessionID) MarshalJSON() ([]byte, error) {
	if !s.confirmed {
		return json.Marshal(sessionIDJSON{State: "pending"})
	}
	return json.Marshal(sessionIDJSON{State: "confirmed", ID: s.id})
}

func (s *SessionID) UnmarshalJSON(data []byte) error {
	var v sessionIDJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v.State {
	case "pending":
		*s = PendingSessionID
	case "confirmed":
		if v.ID == "" {
			return fmt.Errorf("confirmed session id without id: %w", ErrNotValid)
		}
		*s = ConfirmedSessionID(v.ID)
	default:
		return fmt.Errorf("unknown session id state %q: %w", v.State, ErrNotValid)
	}

	return nil
}

// ActiveSession is the single project session currently being timed.
type ActiveSession struct {
	ID          SessionID `json:"id"`
	ProjectID   string    `json:"project_id"`
	ProjectName string    `json:"project_name"`
	StartedAt   time.Time `json:"started_at"`
	Running     bool      `json:"running"`
}

// Elapsed returns the time the session has been running at now, truncated to
// whole seconds. It is never negative, even if the clocks are skewed.
func (s ActiveSession) Elapsed(now time.Time) time.Duration {
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// SameIdentity returns true if both sessions represent the same logical state.
// Display-only changes (e.g. the elapsed time) are not part of the identity.
func (s *ActiveSession) SameIdentity(o *ActiveSession) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}

	return s.ID == o.ID &&
		s.ProjectID == o.ProjectID &&
		s.ProjectName == o.ProjectName &&
		s.StartedAt.Equal(o.StartedAt) &&
		s.Running == o.Running
}

// Project is a project time can be tracked on.
type Project struct {
	ID   string
	Name string
}

// CompletedDurations is the accumulated duration of today's closed entries by project ID.
// The active session accruing time is never part of it.
type CompletedDurations map[string]time.Duration

// Clone returns a copy of the durations.
func (c CompletedDurations) Clone() CompletedDurations {
	cp := make(CompletedDurations, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// TotalFor returns the tracked time of today for a project at now, adding the
// active session accruing time when it belongs to the project.
func TotalFor(projectID string, completed CompletedDurations, session *ActiveSession, now time.Time) time.Duration {
	total := completed[projectID]
	if session != nil && session.Running && session.ProjectID == projectID {
		total += session.Elapsed(now)
	}
	return total
}
