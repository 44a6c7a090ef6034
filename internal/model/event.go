package model

// EventType is the type of a push event.
type EventType string

const (
	// EventTypeTimeEntry is sent when a time entry of the user changes.
	EventTypeTimeEntry EventType = "time-entry"
	// EventTypeAttendance is sent when the user attendance changes (check-in/out).
	EventTypeAttendance EventType = "attendance"
	// EventTypeTask is sent on task lifecycle changes.
	EventTypeTask EventType = "task"
	// EventTypeTokenError is sent by the push transport when the credential is rejected.
	EventTypeTokenError EventType = "token-error"
)

// TaskAction is the lifecycle action of a task event.
type TaskAction string

const (
	TaskActionCreated TaskAction = "created"
	TaskActionUpdated TaskAction = "updated"
	TaskActionDeleted TaskAction = "deleted"
)

// Event is a push event delivered by the push transport.
type Event struct {
	// ID is the delivery ID, it can be repeated on duplicate deliveries.
	ID   string
	Type EventType
	// Task is only set on task events.
	Task *TaskEvent
}

// TaskEvent is the payload of a task event. The task effective date is the
// server timestamp, not necessarily the day the user is reporting.
type TaskEvent struct {
	Action TaskAction
	Task   Task
}
