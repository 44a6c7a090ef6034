package model

import "time"

// ProjectTotal is the tracked time of today on a project.
type ProjectTotal struct {
	ProjectID string
	Total     time.Duration
}

// Status is the read-only state of the companion at a point in time.
type Status struct {
	Now       time.Time
	Session   *ActiveSession
	Elapsed   time.Duration
	Completed CompletedDurations
	// Totals has the active project first, the rest sorted by project ID.
	Totals    []ProjectTotal
	Pending   PendingTasksState
	CanSkip   bool
	Connected bool
}

// TaskBucket is a task bucket with its key.
type TaskBucket struct {
	Key   BucketKey
	Tasks []Task
}
