package pending

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slok/clockin/internal/api"
	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/storage"
)

// DefaultMaxRetries is the number of failed loads after which the workflow can be skipped.
const DefaultMaxRetries = 3

// WorkflowConfig is the configuration for the pending entries workflow.
type WorkflowConfig struct {
	Client api.PendingClient
	// Repository is optional, when set the state is persisted on every transition.
	Repository storage.Repository
	Logger     log.Logger
	MaxRetries int
	Location   *time.Location
	TimeNow    func() time.Time
}

func (c *WorkflowConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "pending.Workflow"})

	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.Location == nil {
		c.Location = time.Local
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Workflow tracks the prior day time entries that still lack a task.
type Workflow struct {
	client     api.PendingClient
	repo       storage.Repository
	logger     log.Logger
	maxRetries int
	loc        *time.Location
	timeNow    func() time.Time

	mu    sync.Mutex
	state model.PendingTasksState
}

// NewWorkflow returns a new workflow in the initial phase.
func NewWorkflow(cfg WorkflowConfig) (*Workflow, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Workflow{
		client:     cfg.Client,
		repo:       cfg.Repository,
		logger:     cfg.Logger,
		maxRetries: cfg.MaxRetries,
		loc:        cfg.Location,
		timeNow:    cfg.TimeNow,
		state:      initialState(),
	}, nil
}

func initialState() model.PendingTasksState {
	return model.PendingTasksState{
		Phase:        model.PendingPhaseInitial,
		CompletedIDs: map[string]bool{},
	}
}

// Restore sets the state from the persisted one, if any.
func (w *Workflow) Restore(ctx context.Context) error {
	if w.repo == nil {
		return nil
	}

	s, err := w.repo.GetPendingState(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("could not get pending state: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = s.Clone()
	// A load interrupted on a previous run will never finish.
	if w.state.Phase == model.PendingPhaseLoading {
		w.state.Phase = model.PendingPhaseInitial
	}

	return nil
}

// Load fetches the pending entries from the server.
// A failed load moves the workflow to the error phase and increments the retry count.
func (w *Workflow) Load(ctx context.Context) error {
	w.mu.Lock()
	w.state.Phase = model.PendingPhaseLoading
	w.persist(ctx)
	w.mu.Unlock()

	entries, err := w.client.ListPendingEntries(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.state.Phase = model.PendingPhaseError
		w.state.Entries = nil
		w.state.CompletedIDs = map[string]bool{}
		w.state.RetryCount++
		w.persist(ctx)
		return fmt.Errorf("could not list pending entries (attempt %d): %w", w.state.RetryCount, err)
	}

	today := model.DayOf(w.timeNow(), w.loc)
	prior := []model.PendingEntry{}
	for _, e := range entries {
		if e.Date.Before(today) {
			prior = append(prior, e)
		}
	}
	sort.SliceStable(prior, func(i, j int) bool { return prior[i].Date.Before(prior[j].Date) })

	// Keep local completions the server still doesn't know about.
	completed := map[string]bool{}
	for _, e := range prior {
		if w.state.CompletedIDs[e.EntryID] {
			completed[e.EntryID] = true
		}
	}

	w.state = model.PendingTasksState{
		Phase:        model.PendingPhaseLoaded,
		Entries:      prior,
		CompletedIDs: completed,
		RetryCount:   0,
	}
	w.checkCompletion()
	w.persist(ctx)

	w.logger.Debugf("Loaded %d pending entries (%d ignored)", len(prior), len(entries)-len(prior))

	return nil
}

// State returns a copy of the current state.
func (w *Workflow) State() model.PendingTasksState {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state.Clone()
}

// CanSkip returns true once the loads have failed enough times.
func (w *Workflow) CanSkip() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.canSkip()
}

func (w *Workflow) canSkip() bool { return w.state.RetryCount >= w.maxRetries }

// Skip dismisses the workflow without any server call. It's only allowed when CanSkip is true.
func (w *Workflow) Skip(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.canSkip() {
		return fmt.Errorf("pending entries can be skipped after %d failed loads, got %d: %w", w.maxRetries, w.state.RetryCount, model.ErrNotValid)
	}

	w.state.Phase = model.PendingPhaseSkipped
	w.state.Entries = nil
	w.state.CompletedIDs = map[string]bool{}
	w.persist(ctx)

	return nil
}

// MarkEntryCompleted marks the entry as satisfied by a task.
func (w *Workflow) MarkEntryCompleted(ctx context.Context, entryID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasEntry(entryID) || w.state.CompletedIDs[entryID] {
		return
	}

	w.state.CompletedIDs[entryID] = true
	w.checkCompletion()
	w.persist(ctx)
}

// UnmarkEntryCompleted marks the entry as lacking a task again.
func (w *Workflow) UnmarkEntryCompleted(ctx context.Context, entryID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.state.CompletedIDs[entryID] {
		return
	}

	delete(w.state.CompletedIDs, entryID)
	w.checkCompletion()
	w.persist(ctx)
}

// PendingEntryFor returns the entry a task of the project belongs to: the
// oldest uncompleted one, or else the oldest completed one. There is none
// unless the workflow holds loaded entries.
func (w *Workflow) PendingEntryFor(projectID string) (model.PendingEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasEntries() {
		return model.PendingEntry{}, false
	}

	var fallback *model.PendingEntry
	for i, e := range w.state.Entries {
		if e.ProjectID != projectID {
			continue
		}
		if !w.state.CompletedIDs[e.EntryID] {
			return e, true
		}
		if fallback == nil {
			fallback = &w.state.Entries[i]
		}
	}

	if fallback == nil {
		return model.PendingEntry{}, false
	}

	return *fallback, true
}

// EntriesFor returns all the entries of the project, completed or not, oldest first.
func (w *Workflow) EntriesFor(projectID string) []model.PendingEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := []model.PendingEntry{}
	if !w.hasEntries() {
		return entries
	}

	for _, e := range w.state.Entries {
		if e.ProjectID == projectID {
			entries = append(entries, e)
		}
	}

	return entries
}

// hasEntries returns true when the entries come from a load that is still
// current. While reloading, the previous entries are kept.
func (w *Workflow) hasEntries() bool {
	switch w.state.Phase {
	case model.PendingPhaseLoaded, model.PendingPhaseCompleted, model.PendingPhaseLoading:
		return true
	}
	return false
}

// Reset moves the workflow back to the initial phase, used on logout.
func (w *Workflow) Reset(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = initialState()
	w.persist(ctx)
}

func (w *Workflow) hasEntry(entryID string) bool {
	for _, e := range w.state.Entries {
		if e.EntryID == entryID {
			return true
		}
	}
	return false
}

// checkCompletion moves between loaded and completed, other phases are not affected.
func (w *Workflow) checkCompletion() {
	if w.state.Phase != model.PendingPhaseLoaded && w.state.Phase != model.PendingPhaseCompleted {
		return
	}

	for _, e := range w.state.Entries {
		if !w.state.CompletedIDs[e.EntryID] {
			w.state.Phase = model.PendingPhaseLoaded
			return
		}
	}
	w.state.Phase = model.PendingPhaseCompleted
}

func (w *Workflow) persist(ctx context.Context) {
	if w.repo == nil {
		return
	}

	if err := w.repo.SavePendingState(ctx, w.state.Clone()); err != nil {
		w.logger.Warningf("could not persist pending state: %s", err)
	}
}
