package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrTaskProjectIDEmpty is returned when a task's project ID is empty or nil.
	ErrTaskProjectIDEmpty = errors.New("task project ID cannot be empty")

	// ErrTaskCreatorEmpty is returned when a task's creator ID is empty or nil.
	ErrTaskCreatorEmpty = errors.New("task creator ID cannot be empty")

	// ErrInvalidTaskStatus is returned when a task status is not one of the
	// known status values.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTaskPriority is returned when a task priority is not one of
	// the known priority values.
	ErrInvalidTaskPriority = errors.New("invalid task priority")

	// ErrDuplicateDependency is returned when a task's dependency list names
	// the same task more than once.
	ErrDuplicateDependency = errors.New("duplicate task dependency")

	// ErrNegativeHours is returned when estimated or logged hours are negative.
	ErrNegativeHours = errors.New("hours cannot be negative")
)

// TaskStatus represents the workflow state of a task.
type TaskStatus string

// Task status values.
const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority represents the urgency classification of a task.
type TaskPriority string

// Task priority values.
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known task priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// Task represents a unit of work inside a project.
//
// The Dependencies field is an ordered sequence of task IDs this task is
// blocked on. Duplicates are disallowed, and the relation over all tasks must
// stay acyclic; the acyclicity check is performed by the graph package on
// every mutation that touches the dependency set.
type Task struct {
	ID             uuid.UUID    `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	ProjectID      uuid.UUID    `json:"project_id"`
	AssigneeID     uuid.UUID    `json:"assignee_id,omitempty"`
	CreatedBy      uuid.UUID    `json:"created_by"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	EstimatedHours float64      `json:"estimated_hours"`
	LoggedHours    float64      `json:"logged_hours"`
	Dependencies   []uuid.UUID  `json:"dependencies,omitempty"`
	IsBlocked      bool         `json:"is_blocked"`
	BlockedReason  string       `json:"blocked_reason,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewTask creates a new Task with the given title, owning project, and
// creator. It generates a new UUID for the task ID, applies the default
// status and priority, and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewTask(title string, projectID, createdBy uuid.UUID) (*Task, error) {
	task := &Task{
		ID:        uuid.New(),
		Title:     title,
		Status:    TaskStatusTodo,
		Priority:  TaskPriorityMedium,
		ProjectID: projectID,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if t.Title == "" {
		return ErrTaskTitleEmpty
	}

	if t.ProjectID == uuid.Nil {
		return ErrTaskProjectIDEmpty
	}

	if t.CreatedBy == uuid.Nil {
		return ErrTaskCreatorEmpty
	}

	if !t.Status.Valid() {
		return ErrInvalidTaskStatus
	}

	if !t.Priority.Valid() {
		return ErrInvalidTaskPriority
	}

	if t.EstimatedHours < 0 || t.LoggedHours < 0 {
		return ErrNegativeHours
	}

	seen := make(map[uuid.UUID]struct{}, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if _, dup := seen[dep]; dup {
			return ErrDuplicateDependency
		}
		seen[dep] = struct{}{}
	}

	return nil
}

// Touch updates the UpdatedAt timestamp.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
}
