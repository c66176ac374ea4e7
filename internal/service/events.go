package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/domain"
)

// Topics published by the orchestrator. The search service consumes the
// created/updated/deleted topics; the notification service consumes the rest.
const (
	TopicTaskCreated       = "task_created"
	TopicTaskUpdated       = "task_updated"
	TopicTaskDeleted       = "task_deleted"
	TopicTaskAssigned      = "task_assigned"
	TopicTaskStatusChanged = "task_status_changed"

	TopicProjectCreated            = "project_created"
	TopicProjectUpdated            = "project_updated"
	TopicProjectDeleted            = "project_deleted"
	TopicProjectStatusChanged      = "project_status_changed"
	TopicProjectCompleted          = "project_completed"
	TopicProjectMemberAdded        = "project_member_added"
	TopicProjectMemberRemoved      = "project_member_removed"
	TopicProjectMemberRoleUpdated  = "project_member_role_updated"
	TopicProjectMilestoneAdded     = "project_milestone_added"
	TopicProjectMilestoneCompleted = "project_milestone_completed"
)

// TaskDeletedEvent is the payload for task_deleted.
type TaskDeletedEvent struct {
	ID uuid.UUID `json:"id"`
}

// TaskAssignedEvent is the payload for task_assigned.
type TaskAssignedEvent struct {
	TaskID     uuid.UUID `json:"task_id"`
	AssigneeID uuid.UUID `json:"assignee_id"`
	Title      string    `json:"title"`
}

// TaskStatusChangedEvent is the payload for task_status_changed.
type TaskStatusChangedEvent struct {
	TaskID     uuid.UUID         `json:"task_id"`
	AssigneeID uuid.UUID         `json:"assignee_id,omitempty"`
	Title      string            `json:"title"`
	Status     domain.TaskStatus `json:"status"`
}

// ProjectMemberAddedEvent is the payload for project_member_added.
type ProjectMemberAddedEvent struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
}

// ProjectMemberRemovedEvent is the payload for project_member_removed.
type ProjectMemberRemovedEvent struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	UserID      uuid.UUID `json:"user_id"`
}

// ProjectMemberRoleUpdatedEvent is the payload for project_member_role_updated.
type ProjectMemberRoleUpdatedEvent struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	UserID      uuid.UUID `json:"user_id"`
	NewRole     string    `json:"new_role"`
}

// ProjectMilestoneAddedEvent is the payload for project_milestone_added.
type ProjectMilestoneAddedEvent struct {
	ProjectID      uuid.UUID   `json:"project_id"`
	ProjectName    string      `json:"project_name"`
	MilestoneTitle string      `json:"milestone_title"`
	Members        []uuid.UUID `json:"members"`
}

// ProjectMilestoneCompletedEvent is the payload for project_milestone_completed.
type ProjectMilestoneCompletedEvent struct {
	ProjectID      uuid.UUID   `json:"project_id"`
	ProjectName    string      `json:"project_name"`
	MilestoneTitle string      `json:"milestone_title"`
	CompletedBy    uuid.UUID   `json:"completed_by"`
	Members        []uuid.UUID `json:"members"`
}

// ProjectStatusChangedEvent is the payload for project_status_changed.
type ProjectStatusChangedEvent struct {
	ProjectID   uuid.UUID            `json:"project_id"`
	ProjectName string               `json:"project_name"`
	Status      domain.ProjectStatus `json:"status"`
	Members     []uuid.UUID          `json:"members"`
}

// ProjectCompletedEvent is the payload for project_completed.
type ProjectCompletedEvent struct {
	ProjectID   uuid.UUID   `json:"project_id"`
	ProjectName string      `json:"project_name"`
	Members     []uuid.UUID `json:"members"`
}

// ProjectDeletedEvent is the payload for project_deleted.
type ProjectDeletedEvent struct {
	ProjectID   uuid.UUID   `json:"project_id"`
	ProjectName string      `json:"project_name"`
	Members     []uuid.UUID `json:"members"`
}

// emitter wraps the transport's publish side with the orchestrator's
// partial-failure policy: a publish failure is logged and swallowed, and
// emission continues even if the caller's context is already cancelled,
// because by the time stage 5 runs the mutation has durably committed.
type emitter struct {
	transport bus.Transport
	logger    *slog.Logger
}

func (e *emitter) publish(ctx context.Context, topic string, payload any) {
	// Detach from the caller's cancellation: a gone caller must not stop
	// side effects for a committed mutation.
	detached := context.WithoutCancel(ctx)
	if err := e.transport.Publish(detached, topic, payload); err != nil {
		e.logger.Error("side-effect publish failed",
			"topic", topic,
			"error", err)
	}
}
