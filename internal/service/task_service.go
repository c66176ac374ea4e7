package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/directory"
	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/graph"
	"github.com/taskhive/taskhive/internal/store"
)

// CreateTaskRequest carries the payload for creating a task.
type CreateTaskRequest struct {
	Title          string              `json:"title"           validate:"required"`
	Description    string              `json:"description"`
	Priority       domain.TaskPriority `json:"priority"`
	ProjectID      uuid.UUID           `json:"project_id"      validate:"required"`
	AssigneeID     uuid.UUID           `json:"assignee_id"`
	DueDate        *time.Time          `json:"due_date"`
	Tags           []string            `json:"tags"`
	EstimatedHours float64             `json:"estimated_hours" validate:"gte=0"`
	Dependencies   []uuid.UUID         `json:"dependencies"`
}

// UpdateTaskRequest carries a partial update: nil fields are left untouched.
// Dependencies, when present, replaces the whole dependency set; the graph
// validator never sees incremental patches.
type UpdateTaskRequest struct {
	Title          *string              `json:"title"`
	Description    *string              `json:"description"`
	Status         *domain.TaskStatus   `json:"status"`
	Priority       *domain.TaskPriority `json:"priority"`
	AssigneeID     *uuid.UUID           `json:"assignee_id"`
	DueDate        *time.Time           `json:"due_date"`
	Tags           *[]string            `json:"tags"`
	EstimatedHours *float64             `json:"estimated_hours"`
	Dependencies   *[]uuid.UUID         `json:"dependencies"`
	IsBlocked      *bool                `json:"is_blocked"`
	BlockedReason  *string              `json:"blocked_reason"`
}

// TaskService orchestrates all task mutations. Task-level mutations carry no
// project-roster authorization stage; reference resolution, graph validation,
// and the persist/emit policy follow the shared pipeline.
type TaskService struct {
	tasks    store.TaskStore
	users    directory.Users
	emit     *emitter
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTaskService creates a TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	tasks store.TaskStore,
	users directory.Users,
	transport bus.Transport,
	logger *slog.Logger,
) (*TaskService, error) {
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if users == nil {
		return nil, domain.NewValidationError("users", "cannot be nil", domain.ErrValidation)
	}
	if transport == nil {
		return nil, domain.NewValidationError("transport", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "task_service"))

	return &TaskService{
		tasks:    tasks,
		users:    users,
		emit:     &emitter{transport: transport, logger: logger},
		validate: validator.New(),
		logger:   logger,
	}, nil
}

// GetTask retrieves a task by ID. Read-only, no pipeline.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}
	return task, nil
}

// CreateTask creates a task after resolving its assignee reference and
// validating the proposed dependency set against the global graph.
func (s *TaskService) CreateTask(
	ctx context.Context,
	actor uuid.UUID,
	req CreateTaskRequest,
) (*domain.Task, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, badInput("create task: %v", err)
	}

	// Stage 2: resolve references.
	var refs []uuid.UUID
	if req.AssigneeID != uuid.Nil {
		refs = append(refs, req.AssigneeID)
	}
	if err := resolveReferences(ctx, s.users, refs); err != nil {
		return nil, err
	}

	// Stage 3: domain invariants.
	if len(req.Dependencies) > 0 {
		if err := s.checkDependencyGraph(ctx, uuid.Nil, req.Dependencies); err != nil {
			return nil, err
		}
	}

	task, err := domain.NewTask(req.Title, req.ProjectID, actor)
	if err != nil {
		return nil, badInput("create task: %v", err)
	}
	task.Description = req.Description
	if req.Priority != "" {
		task.Priority = req.Priority
	}
	task.AssigneeID = req.AssigneeID
	task.DueDate = req.DueDate
	task.Tags = req.Tags
	task.EstimatedHours = req.EstimatedHours
	task.Dependencies = req.Dependencies
	if err := task.Validate(); err != nil {
		return nil, badInput("create task: %v", err)
	}

	// Stage 4: persist. A cancelled caller aborts here, before any write.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create task aborted: %w", err)
	}
	created, err := s.tasks.Insert(ctx, task)
	if err != nil {
		return nil, persistOutcome(err)
	}

	// Stage 5: side effects.
	s.emit.publish(ctx, TopicTaskCreated, created)
	if created.AssigneeID != uuid.Nil {
		s.emit.publish(ctx, TopicTaskAssigned, TaskAssignedEvent{
			TaskID:     created.ID,
			AssigneeID: created.AssigneeID,
			Title:      created.Title,
		})
	}

	s.logger.Info("task created", "task_id", created.ID, "project_id", created.ProjectID)
	return created, nil
}

// UpdateTask applies a partial update to a task.
func (s *TaskService) UpdateTask(
	ctx context.Context,
	id uuid.UUID,
	req UpdateTaskRequest,
) (*domain.Task, error) {
	current, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}

	// Stage 2: resolve references.
	var refs []uuid.UUID
	if req.AssigneeID != nil && *req.AssigneeID != uuid.Nil {
		refs = append(refs, *req.AssigneeID)
	}
	if err := resolveReferences(ctx, s.users, refs); err != nil {
		return nil, err
	}

	// Stage 3: domain invariants.
	if req.Dependencies != nil {
		if err := s.checkDependencyGraph(ctx, id, *req.Dependencies); err != nil {
			return nil, err
		}
	}
	if req.Status != nil && *req.Status == domain.TaskStatusInProgress {
		if err := s.gateInProgress(ctx, current, req); err != nil {
			return nil, err
		}
	}

	// Stage 4: persist.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update task aborted: %w", err)
	}
	updated, err := s.tasks.AtomicUpdate(ctx, id, func(task *domain.Task) error {
		applyTaskUpdate(task, req)
		task.Touch()
		if err := task.Validate(); err != nil {
			return badInput("update task: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	// Stage 5: side effects.
	s.emit.publish(ctx, TopicTaskUpdated, updated)
	if req.Status != nil {
		s.emit.publish(ctx, TopicTaskStatusChanged, TaskStatusChangedEvent{
			TaskID:     updated.ID,
			AssigneeID: updated.AssigneeID,
			Title:      updated.Title,
			Status:     updated.Status,
		})
	}
	if req.AssigneeID != nil && *req.AssigneeID != uuid.Nil {
		s.emit.publish(ctx, TopicTaskAssigned, TaskAssignedEvent{
			TaskID:     updated.ID,
			AssigneeID: updated.AssigneeID,
			Title:      updated.Title,
		})
	}

	return updated, nil
}

// UpdateTaskStatus transitions a task to a new status. Transitioning to
// in-progress requires the task to be unblocked and all of its dependencies
// to be done.
func (s *TaskService) UpdateTaskStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
) (*domain.Task, error) {
	if !status.Valid() {
		return nil, badInput("unknown task status %q", status)
	}

	current, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}

	if status == domain.TaskStatusInProgress {
		if err := s.gateInProgress(ctx, current, UpdateTaskRequest{}); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update task status aborted: %w", err)
	}
	updated, err := s.tasks.AtomicUpdate(ctx, id, func(task *domain.Task) error {
		task.Status = status
		task.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicTaskUpdated, updated)
	s.emit.publish(ctx, TopicTaskStatusChanged, TaskStatusChangedEvent{
		TaskID:     updated.ID,
		AssigneeID: updated.AssigneeID,
		Title:      updated.Title,
		Status:     updated.Status,
	})

	return updated, nil
}

// LogHours adds hours to a task's logged time. Hours must be positive.
func (s *TaskService) LogHours(
	ctx context.Context,
	id uuid.UUID,
	hours float64,
) (*domain.Task, error) {
	if hours <= 0 {
		return nil, badInput("hours must be greater than 0")
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("log hours aborted: %w", err)
	}
	updated, err := s.tasks.AtomicUpdate(ctx, id, func(task *domain.Task) error {
		task.LoggedHours += hours
		task.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}
	return updated, nil
}

// DeleteTask permanently removes a task and tells the search index.
func (s *TaskService) DeleteTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("delete task aborted: %w", err)
	}
	removed, err := s.tasks.HardDelete(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicTaskDeleted, TaskDeletedEvent{ID: id})

	s.logger.Info("task deleted", "task_id", id)
	return removed, nil
}

// checkDependencyGraph rebuilds the full dependency relation from the store
// and validates the proposed replacement edge set for subject. A detected
// cycle reports as BadInput carrying the offending cycle.
func (s *TaskService) checkDependencyGraph(
	ctx context.Context,
	subject uuid.UUID,
	proposed []uuid.UUID,
) error {
	all, err := s.tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: load dependency graph: %v", ErrUnavailable, err)
	}

	edges := make(graph.Edges, len(all))
	for _, task := range all {
		edges[task.ID] = task.Dependencies
	}

	if err := graph.Validate(edges, subject, proposed); err != nil {
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	return nil
}

// gateInProgress enforces the transition invariant: a task may only move to
// in-progress if it is not blocked and every dependency is done. req lets a
// combined update that also clears the blocked flag or replaces the
// dependency set be judged on its post-update shape.
func (s *TaskService) gateInProgress(
	ctx context.Context,
	current *domain.Task,
	req UpdateTaskRequest,
) error {
	blocked := current.IsBlocked
	if req.IsBlocked != nil {
		blocked = *req.IsBlocked
	}
	if blocked {
		return badInput("cannot start a blocked task")
	}

	deps := current.Dependencies
	if req.Dependencies != nil {
		deps = *req.Dependencies
	}
	for _, depID := range deps {
		dep, err := s.tasks.FindByID(ctx, depID)
		if err != nil {
			if store.IsNotFound(err) {
				return badInput("dependency %s does not exist", depID)
			}
			return fmt.Errorf("%w: load dependency %s: %v", ErrUnavailable, depID, err)
		}
		if dep.Status != domain.TaskStatusDone {
			return badInput("cannot start task with incomplete dependency %s", depID)
		}
	}
	return nil
}

// applyTaskUpdate copies the non-nil request fields onto the task.
func applyTaskUpdate(task *domain.Task, req UpdateTaskRequest) {
	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.AssigneeID != nil {
		task.AssigneeID = *req.AssigneeID
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}
	if req.Tags != nil {
		task.Tags = *req.Tags
	}
	if req.EstimatedHours != nil {
		task.EstimatedHours = *req.EstimatedHours
	}
	if req.Dependencies != nil {
		task.Dependencies = *req.Dependencies
	}
	if req.IsBlocked != nil {
		task.IsBlocked = *req.IsBlocked
	}
	if req.BlockedReason != nil {
		task.BlockedReason = *req.BlockedReason
	}
}
