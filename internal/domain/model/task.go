package model

import "time"

// Task is a work item in the user's Tembo workspace.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      string
	CreatedAt   time.Time
}

// TaskDraft carries the caller-supplied fields for creating a task.
type TaskDraft struct {
	Title       string
	Description string
}
