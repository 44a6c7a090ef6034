package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/clockin/internal/model"
)

// TablePrinter prints the companion state in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintStatus prints the session and today's totals.
func (t *TablePrinter) PrintStatus(status model.Status) error {
	connected := "no"
	if status.Connected {
		connected = "yes"
	}
	fmt.Fprintf(t.writer, "Connected:  %s\n", connected)

	if s := status.Session; s != nil && s.Running {
		fmt.Fprintf(t.writer, "Project:    %s (%s)\n", projectName(s), s.ProjectID)
		fmt.Fprintf(t.writer, "Session:    %s\n", s.ID)
		fmt.Fprintf(t.writer, "Started:    %s (%s)\n", FormatTimestamp(s.StartedAt), TimeAgo(status.Now, s.StartedAt))
		fmt.Fprintf(t.writer, "Elapsed:    %s\n", FormatDuration(status.Elapsed))
	} else {
		fmt.Fprintf(t.writer, "Project:    -\n")
	}

	fmt.Fprintf(t.writer, "Pending:    %s\n", status.Pending.Phase)

	if len(status.Totals) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "PROJECT\tTODAY")
	for _, pt := range status.Totals {
		fmt.Fprintf(tw, "%s\t%s\n", pt.ProjectID, FormatDuration(pt.Total))
	}

	return nil
}

// PrintTasks prints the tasks of the buckets.
func (t *TablePrinter) PrintTasks(buckets []model.TaskBucket) error {
	if len(buckets) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "PROJECT\tDAY\tID\tNAME")
	for _, b := range buckets {
		if len(b.Tasks) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\n", b.Key.ProjectID, b.Key.Day)
			continue
		}
		for _, task := range b.Tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Key.ProjectID, b.Key.Day, task.ID, task.Name)
		}
	}

	return nil
}

// PrintPending prints the pending entries workflow.
func (t *TablePrinter) PrintPending(state model.PendingTasksState, canSkip bool) error {
	fmt.Fprintf(t.writer, "Phase:      %s\n", state.Phase)
	fmt.Fprintf(t.writer, "Retries:    %d\n", state.RetryCount)
	if canSkip {
		fmt.Fprintf(t.writer, "Skippable:  yes\n")
	}

	if len(state.Entries) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ENTRY\tPROJECT\tDATE\tCOMPLETED")
	for _, e := range state.Entries {
		completed := "no"
		if state.CompletedIDs[e.EntryID] {
			completed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.EntryID, e.ProjectID, e.DateString(), completed)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func projectName(s *model.ActiveSession) string {
	if s.ProjectName != "" {
		return s.ProjectName
	}
	return s.ProjectID
}
