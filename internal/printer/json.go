package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/clockin/internal/model"
)

// JSONPrinter prints the companion state in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type statusOutput struct {
	Connected      bool           `json:"connected"`
	Session        *sessionOutput `json:"session"`
	Totals         []totalOutput  `json:"totals"`
	PendingPhase   string         `json:"pending_phase"`
	PendingCanSkip bool           `json:"pending_can_skip"`
}

type sessionOutput struct {
	ID             string    `json:"id"`
	Confirmed      bool      `json:"confirmed"`
	ProjectID      string    `json:"project_id"`
	ProjectName    string    `json:"project_name"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

type totalOutput struct {
	ProjectID    string `json:"project_id"`
	TotalSeconds int64  `json:"total_seconds"`
}

type taskOutput struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Day           string    `json:"day"`
	ReportID      string    `json:"report_id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	EffectiveDate time.Time `json:"effective_date"`
}

type pendingOutput struct {
	Phase      string               `json:"phase"`
	RetryCount int                  `json:"retry_count"`
	CanSkip    bool                 `json:"can_skip"`
	Entries    []pendingEntryOutput `json:"entries"`
}

type pendingEntryOutput struct {
	EntryID   string `json:"entry_id"`
	ProjectID string `json:"project_id"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintStatus prints the session and today's totals in JSON format.
func (j *JSONPrinter) PrintStatus(status model.Status) error {
	output := statusOutput{
		Connected:      status.Connected,
		Totals:         make([]totalOutput, 0, len(status.Totals)),
		PendingPhase:   string(status.Pending.Phase),
		PendingCanSkip: status.CanSkip,
	}

	if s := status.Session; s != nil && s.Running {
		id, confirmed := s.ID.Confirmed()
		output.Session = &sessionOutput{
			ID:             id,
			Confirmed:      confirmed,
			ProjectID:      s.ProjectID,
			ProjectName:    s.ProjectName,
			StartedAt:      s.StartedAt.UTC(),
			ElapsedSeconds: int64(status.Elapsed / time.Second),
		}
	}

	for _, pt := range status.Totals {
		output.Totals = append(output.Totals, totalOutput{ProjectID: pt.ProjectID, TotalSeconds: int64(pt.Total / time.Second)})
	}

	return j.encode(output)
}

// PrintTasks prints the tasks of the buckets in JSON format.
func (j *JSONPrinter) PrintTasks(buckets []model.TaskBucket) error {
	items := []taskOutput{}
	for _, b := range buckets {
		for _, t := range b.Tasks {
			items = append(items, taskOutput{
				ID:            t.ID,
				ProjectID:     b.Key.ProjectID,
				Day:           b.Key.Day.String(),
				ReportID:      t.ReportID,
				Name:          t.Name,
				Description:   t.Description,
				EffectiveDate: t.EffectiveDate.UTC(),
			})
		}
	}

	return j.encode(items)
}

// PrintPending prints the pending entries workflow in JSON format.
func (j *JSONPrinter) PrintPending(state model.PendingTasksState, canSkip bool) error {
	output := pendingOutput{
		Phase:      string(state.Phase),
		RetryCount: state.RetryCount,
		CanSkip:    canSkip,
		Entries:    make([]pendingEntryOutput, 0, len(state.Entries)),
	}

	for _, e := range state.Entries {
		output.Entries = append(output.Entries, pendingEntryOutput{
			EntryID:   e.EntryID,
			ProjectID: e.ProjectID,
			Date:      e.DateString(),
			Completed: state.CompletedIDs[e.EntryID],
		})
	}

	return j.encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
