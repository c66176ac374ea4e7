// Package store defines durable keyed storage for Task and Project records.
// The store is the single synchronization point of the system: the
// orchestrator holds no locks, and correctness under concurrent mutation of
// the same record relies on each backend's per-record atomic read-modify-write.
// No multi-record transactionality is offered or assumed.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist in the
	// store. Entity-specific variants wrap it.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert would overwrite an existing
	// record with the same ID.
	ErrDuplicate = errors.New("record already exists")

	// ErrTaskNotFound indicates that the requested task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrProjectNotFound indicates that the requested project does not exist.
	ErrProjectNotFound = fmt.Errorf("%w: project", ErrNotFound)
)

// IsNotFound checks if the error is any kind of "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// TaskStore is the keyed store for task records. Tasks support hard delete.
type TaskStore interface {
	// Insert saves a new task. Returns ErrDuplicate if the ID is taken.
	Insert(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// FindByID retrieves a task by ID. Returns ErrTaskNotFound if absent.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns all task records. The dependency validator rebuilds the
	// full edge relation from this on every graph check.
	List(ctx context.Context) ([]*domain.Task, error)

	// AtomicUpdate applies mutate to the task with the given ID as one
	// atomic read-modify-write. If mutate returns an error, nothing is
	// written and that error is returned unwrapped. Returns ErrTaskNotFound
	// if the record vanished before the write.
	AtomicUpdate(ctx context.Context, id uuid.UUID, mutate func(*domain.Task) error) (*domain.Task, error)

	// HardDelete permanently removes a task, returning the removed record.
	// Returns ErrTaskNotFound if absent.
	HardDelete(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

// ProjectStore is the keyed store for project records. Projects are never
// hard-deleted; SoftDelete clears the active flag.
type ProjectStore interface {
	// Insert saves a new project. Returns ErrDuplicate if the ID is taken.
	Insert(ctx context.Context, project *domain.Project) (*domain.Project, error)

	// FindByID retrieves a project by ID. Returns ErrProjectNotFound if absent.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// List returns all project records, including soft-deleted ones.
	List(ctx context.Context) ([]*domain.Project, error)

	// AtomicUpdate applies mutate to the project with the given ID as one
	// atomic read-modify-write. If mutate returns an error, nothing is
	// written and that error is returned unwrapped. Returns
	// ErrProjectNotFound if the record vanished before the write.
	AtomicUpdate(ctx context.Context, id uuid.UUID, mutate func(*domain.Project) error) (*domain.Project, error)

	// SoftDelete marks a project inactive and returns the updated record.
	// Returns ErrProjectNotFound if absent.
	SoftDelete(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}
