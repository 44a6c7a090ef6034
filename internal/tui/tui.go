package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/printer"
	"github.com/slok/clockin/internal/session"
)

// Source is the companion state the view renders.
type Source interface {
	Snapshot() model.Status
	Subscribe(f func(session.Update)) (unsubscribe func())
}

type refreshMsg struct{}

// Model is the read-only live view of the companion state.
type Model struct {
	src    Source
	status model.Status
	help   help.Model
	width  int
}

// NewModel returns a new view model.
func NewModel(src Source) Model {
	h := help.New()
	h.ShowAll = false

	return Model{
		src:    src,
		status: src.Snapshot(),
		help:   h,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case refreshMsg:
		m.status = m.src.Snapshot()
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	s := m.status

	conn := offlineStyle.Render("● offline")
	if s.Connected {
		conn = onlineStyle.Render("● online")
	}
	header := titleStyle.Render("clockin") + "  " + conn

	rows := []string{}
	if as := s.Session; as != nil && as.Running {
		name := as.ProjectName
		if name == "" {
			name = as.ProjectID
		}
		elapsed := timerRunningStyle.Render(printer.FormatDuration(s.Elapsed))
		if as.ID.IsPending() {
			elapsed = timerPendingStyle.Render(printer.FormatDuration(s.Elapsed)) + mutedStyle.Render(" (syncing)")
		}
		rows = append(rows,
			labelStyle.Render("Project")+name,
			labelStyle.Render("Elapsed")+elapsed,
		)
	} else {
		rows = append(rows, labelStyle.Render("Project")+mutedStyle.Render("no running timer"))
	}

	if len(s.Totals) > 0 {
		rows = append(rows, "", mutedStyle.Render("Today"))
		for _, t := range s.Totals {
			rows = append(rows, labelStyle.Render("  "+t.ProjectID)+printer.FormatDuration(t.Total))
		}
	}

	rows = append(rows, "", labelStyle.Render("Pending")+pendingSummary(s.Pending, s.CanSkip))

	body := panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.help.View(keys)) + "\n"
}

func pendingSummary(st model.PendingTasksState, canSkip bool) string {
	missing := 0
	for _, e := range st.Entries {
		if !st.CompletedIDs[e.EntryID] {
			missing++
		}
	}

	var b strings.Builder
	b.WriteString(string(st.Phase))
	if missing > 0 {
		fmt.Fprintf(&b, " (%d without task)", missing)
	}
	if canSkip {
		b.WriteString(" [skippable]")
	}

	return b.String()
}

// Run runs the view until the user quits or the context is done. Every
// session update, ticks included, re-renders the view.
func Run(ctx context.Context, src Source, opts ...tea.ProgramOption) error {
	opts = append(opts, tea.WithContext(ctx))
	p := tea.NewProgram(NewModel(src), opts...)

	// Coalesce updates so a slow terminal never blocks the session publisher.
	notify := make(chan struct{}, 1)
	unsubscribe := src.Subscribe(func(session.Update) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-notify:
				p.Send(refreshMsg{})
			}
		}
	}()

	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}

	return err
}
