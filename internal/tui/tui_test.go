package tui

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/session"
)

type fakeSource struct {
	mu     sync.Mutex
	status model.Status
}

func (f *fakeSource) Snapshot() model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) Subscribe(func(session.Update)) func() { return func() {} }

func (f *fakeSource) set(s model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func TestModelView(t *testing.T) {
	tests := map[string]struct {
		status   model.Status
		expIn    []string
		expNotIn []string
	}{
		"Without session should show no running timer.": {
			status: model.Status{Pending: model.PendingTasksState{Phase: model.PendingPhaseInitial}},
			expIn:  []string{"offline", "no running timer", "initial"},
		},

		"A confirmed session should show the elapsed time and totals.": {
			status: model.Status{
				Session:   &model.ActiveSession{ID: model.ConfirmedSessionID("s1"), ProjectID: "p1", ProjectName: "Project 1", Running: true},
				Elapsed:   90 * time.Second,
				Totals:    []model.ProjectTotal{{ProjectID: "p1", Total: time.Hour + 90*time.Second}},
				Connected: true,
				Pending:   model.PendingTasksState{Phase: model.PendingPhaseCompleted},
			},
			expIn:    []string{"online", "Project 1", "00:01:30", "01:01:30", "completed"},
			expNotIn: []string{"syncing"},
		},

		"A pending session should be shown as syncing.": {
			status: model.Status{
				Session: &model.ActiveSession{ID: model.PendingSessionID, ProjectID: "p1", Running: true},
			},
			expIn: []string{"p1", "syncing"},
		},

		"Pending entries lacking a task should be counted.": {
			status: model.Status{
				Pending: model.PendingTasksState{
					Phase: model.PendingPhaseError,
					Entries: []model.PendingEntry{
						{EntryID: "e1", ProjectID: "p1"},
						{EntryID: "e2", ProjectID: "p1"},
					},
					CompletedIDs: map[string]bool{"e1": true},
				},
				CanSkip: true,
			},
			expIn: []string{"error (1 without task) [skippable]"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := NewModel(&fakeSource{status: test.status})
			view := m.View()

			for _, exp := range test.expIn {
				assert.Contains(t, view, exp)
			}
			for _, exp := range test.expNotIn {
				assert.NotContains(t, view, exp)
			}
		})
	}
}

func TestModelRefresh(t *testing.T) {
	src := &fakeSource{}
	m := NewModel(src)
	assert.Contains(t, m.View(), "no running timer")

	src.set(model.Status{Session: &model.ActiveSession{ProjectID: "p2", Running: true}})
	updated, cmd := m.Update(refreshMsg{})
	assert.Nil(t, cmd)
	assert.Contains(t, updated.View(), "p2")
}

func TestModelQuit(t *testing.T) {
	m := NewModel(&fakeSource{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
