package printer

import "github.com/slok/clockin/internal/model"

// Printer knows how to print the companion state in different formats.
type Printer interface {
	PrintStatus(status model.Status) error
	PrintTasks(buckets []model.TaskBucket) error
	PrintPending(state model.PendingTasksState, canSkip bool) error
	PrintMessage(msg string) error
}
