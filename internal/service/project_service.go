package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/authz"
	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/directory"
	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/store"
)

// MemberInput names a user to add to a project roster.
type MemberInput struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   string    `json:"role"    validate:"required"`
}

// MilestoneInput carries a new milestone.
type MilestoneInput struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date"`
}

// CreateProjectRequest carries the payload for creating a project.
type CreateProjectRequest struct {
	Name        string                 `json:"name"     validate:"required"`
	Description string                 `json:"description"`
	Priority    domain.ProjectPriority `json:"priority"`
	OwnerID     uuid.UUID              `json:"owner_id" validate:"required"`
	Members     []MemberInput          `json:"members"  validate:"dive"`
	StartDate   *time.Time             `json:"start_date"`
	EndDate     *time.Time             `json:"end_date"`
	Budget      float64                `json:"budget"   validate:"gte=0"`
	Tags        []string               `json:"tags"`
}

// UpdateProjectRequest carries a partial update of a project's own settings:
// nil fields are left untouched. Roster and milestone changes go through
// their dedicated operations.
type UpdateProjectRequest struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Status      *domain.ProjectStatus   `json:"status"`
	Priority    *domain.ProjectPriority `json:"priority"`
	StartDate   *time.Time              `json:"start_date"`
	EndDate     *time.Time              `json:"end_date"`
	Budget      *float64                `json:"budget"`
	Tags        *[]string               `json:"tags"`
}

// UpdateMilestoneRequest carries a partial milestone update. Marking a
// milestone complete stamps CompletedBy and CompletedAt atomically with the
// flag; un-completing leaves existing stamps in place.
type UpdateMilestoneRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	IsCompleted *bool      `json:"is_completed"`
	CompletedBy uuid.UUID  `json:"completed_by"`
}

// ProjectService orchestrates all project mutations through the staged
// pipeline, with the permission evaluator guarding every mutation of an
// existing project.
type ProjectService struct {
	projects store.ProjectStore
	users    directory.Users
	emit     *emitter
	validate *validator.Validate
	logger   *slog.Logger
}

// NewProjectService creates a ProjectService.
// It returns an error if any of the required dependencies are nil.
func NewProjectService(
	projects store.ProjectStore,
	users directory.Users,
	transport bus.Transport,
	logger *slog.Logger,
) (*ProjectService, error) {
	if projects == nil {
		return nil, domain.NewValidationError("projects", "cannot be nil", domain.ErrValidation)
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
	logger = logger.With(slog.String("component", "project_service"))

	return &ProjectService{
		projects: projects,
		users:    users,
		emit:     &emitter{transport: transport, logger: logger},
		validate: validator.New(),
		logger:   logger,
	}, nil
}

// GetProject retrieves a project by ID. Read-only, no pipeline.
func (s *ProjectService) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}
	return project, nil
}

// CreateProject creates a project after resolving the owner and every listed
// member through the user directory.
func (s *ProjectService) CreateProject(
	ctx context.Context,
	req CreateProjectRequest,
) (*domain.Project, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, badInput("create project: %v", err)
	}

	// Stage 2: resolve references, owner and members together.
	refs := []uuid.UUID{req.OwnerID}
	seen := map[uuid.UUID]struct{}{req.OwnerID: {}}
	for _, m := range req.Members {
		if _, dup := seen[m.UserID]; dup {
			// The owner is implicitly on the project; a roster duplicate is
			// caught in stage 3 either way.
			continue
		}
		seen[m.UserID] = struct{}{}
		refs = append(refs, m.UserID)
	}
	if err := resolveReferences(ctx, s.users, refs); err != nil {
		return nil, err
	}

	// Stage 3: domain invariants.
	if req.StartDate != nil && req.EndDate != nil && !req.StartDate.Before(*req.EndDate) {
		return nil, badInput("start date must be before end date")
	}
	roster := make(map[uuid.UUID]struct{}, len(req.Members))
	for _, m := range req.Members {
		if _, dup := roster[m.UserID]; dup {
			return nil, badInput("duplicate member %s", m.UserID)
		}
		roster[m.UserID] = struct{}{}
	}

	project, err := domain.NewProject(req.Name, req.OwnerID)
	if err != nil {
		return nil, badInput("create project: %v", err)
	}
	project.Description = req.Description
	if req.Priority != "" {
		project.Priority = req.Priority
	}
	project.StartDate = req.StartDate
	project.EndDate = req.EndDate
	project.Budget = req.Budget
	project.Tags = req.Tags
	now := time.Now().UTC()
	for _, m := range req.Members {
		project.Members = append(project.Members, domain.ProjectMember{
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: now,
			IsActive: true,
		})
	}
	if err := project.Validate(); err != nil {
		return nil, badInput("create project: %v", err)
	}

	// Stage 4: persist.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create project aborted: %w", err)
	}
	created, err := s.projects.Insert(ctx, project)
	if err != nil {
		return nil, persistOutcome(err)
	}

	// Stage 5: side effects.
	s.emit.publish(ctx, TopicProjectCreated, created)
	for _, m := range created.Members {
		s.emit.publish(ctx, TopicProjectMemberAdded, ProjectMemberAddedEvent{
			ProjectID:   created.ID,
			ProjectName: created.Name,
			UserID:      m.UserID,
			Role:        m.Role,
		})
	}

	s.logger.Info("project created", "project_id", created.ID, "owner_id", created.OwnerID)
	return created, nil
}

// UpdateProject applies a partial update to a project's own settings.
// Only the owner or a global admin may change them.
func (s *ProjectService) UpdateProject(
	ctx context.Context,
	actor *authz.Actor,
	id uuid.UUID,
	req UpdateProjectRequest,
) (*domain.Project, error) {
	current, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateProject); err != nil {
		return nil, err
	}

	if req.StartDate != nil && req.EndDate != nil && !req.StartDate.Before(*req.EndDate) {
		return nil, badInput("start date must be before end date")
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update project aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, id, func(project *domain.Project) error {
		applyProjectUpdate(project, req)
		project.Touch()
		if err := project.Validate(); err != nil {
			return badInput("update project: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicProjectUpdated, updated)
	if req.Status != nil && *req.Status != current.Status {
		s.emit.publish(ctx, TopicProjectStatusChanged, ProjectStatusChangedEvent{
			ProjectID:   updated.ID,
			ProjectName: updated.Name,
			Status:      updated.Status,
			Members:     updated.MemberIDs(),
		})
	}

	return updated, nil
}

// DeleteProject soft-deletes a project. Projects are never hard-deleted.
func (s *ProjectService) DeleteProject(
	ctx context.Context,
	actor *authz.Actor,
	id uuid.UUID,
) (*domain.Project, error) {
	current, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionDeleteProject); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("delete project aborted: %w", err)
	}
	deleted, err := s.projects.SoftDelete(ctx, id)
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicProjectDeleted, ProjectDeletedEvent{
		ProjectID:   deleted.ID,
		ProjectName: deleted.Name,
		Members:     deleted.MemberIDs(),
	})

	s.logger.Info("project deleted", "project_id", id)
	return deleted, nil
}

// AddMember adds a user to the roster. Adding a user who is already an
// active member is an error, not a no-op.
func (s *ProjectService) AddMember(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	member MemberInput,
) (*domain.Project, error) {
	if err := s.validate.Struct(member); err != nil {
		return nil, badInput("add member: %v", err)
	}

	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateMembers); err != nil {
		return nil, err
	}

	// Stage 2: the new member must exist.
	if err := resolveReferences(ctx, s.users, []uuid.UUID{member.UserID}); err != nil {
		return nil, err
	}

	// Stage 3, re-checked under the record lock in stage 4.
	if current.ActiveMember(member.UserID) != nil {
		return nil, badInput("user %s is already a member", member.UserID)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("add member aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		if project.ActiveMember(member.UserID) != nil {
			return badInput("user %s is already a member", member.UserID)
		}
		project.Members = append(project.Members, domain.ProjectMember{
			UserID:   member.UserID,
			Role:     member.Role,
			JoinedAt: time.Now().UTC(),
			IsActive: true,
		})
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicProjectMemberAdded, ProjectMemberAddedEvent{
		ProjectID:   updated.ID,
		ProjectName: updated.Name,
		UserID:      member.UserID,
		Role:        member.Role,
	})

	return updated, nil
}

// RemoveMember removes a user from the roster. The project owner can never
// be removed, regardless of who asks. Any active member may remove
// themselves.
func (s *ProjectService) RemoveMember(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	memberUserID uuid.UUID,
) (*domain.Project, error) {
	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}

	action := authz.ActionMutateMembers
	if actor.ID == memberUserID {
		action = authz.ActionRemoveSelf
	}
	if err := s.authorize(ctx, current, actor, action); err != nil {
		return nil, err
	}

	// Owner removal is rejected after authorization on purpose: even an
	// admin gets BadInput here, not Forbidden.
	if memberUserID == current.OwnerID {
		return nil, badInput("cannot remove the project owner")
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("remove member aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		if memberUserID == project.OwnerID {
			return badInput("cannot remove the project owner")
		}
		kept := project.Members[:0]
		removed := false
		for _, m := range project.Members {
			if m.UserID == memberUserID {
				removed = true
				continue
			}
			kept = append(kept, m)
		}
		if !removed {
			return fmt.Errorf("%w: member %s not in project %s", ErrNotFound, memberUserID, projectID)
		}
		project.Members = kept
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicProjectMemberRemoved, ProjectMemberRemovedEvent{
		ProjectID:   updated.ID,
		ProjectName: updated.Name,
		UserID:      memberUserID,
	})

	return updated, nil
}

// UpdateMemberRole changes the roster role of an active member.
func (s *ProjectService) UpdateMemberRole(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	memberUserID uuid.UUID,
	role string,
) (*domain.Project, error) {
	if role == "" {
		return nil, badInput("member role cannot be empty")
	}

	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateMembers); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update member role aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		member := project.ActiveMember(memberUserID)
		if member == nil {
			return fmt.Errorf("%w: member %s not in project %s", ErrNotFound, memberUserID, projectID)
		}
		member.Role = role
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicProjectMemberRoleUpdated, ProjectMemberRoleUpdatedEvent{
		ProjectID:   updated.ID,
		ProjectName: updated.Name,
		UserID:      memberUserID,
		NewRole:     role,
	})

	return updated, nil
}

// AddMilestone appends a milestone to the project.
func (s *ProjectService) AddMilestone(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	milestone MilestoneInput,
) (*domain.Project, error) {
	if err := s.validate.Struct(milestone); err != nil {
		return nil, badInput("add milestone: %v", err)
	}

	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateMilestones); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("add milestone aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		project.Milestones = append(project.Milestones, domain.ProjectMilestone{
			Title:       milestone.Title,
			Description: milestone.Description,
			DueDate:     milestone.DueDate,
		})
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	s.emit.publish(ctx, TopicProjectMilestoneAdded, ProjectMilestoneAddedEvent{
		ProjectID:      updated.ID,
		ProjectName:    updated.Name,
		MilestoneTitle: milestone.Title,
		Members:        updated.MemberIDs(),
	})

	return updated, nil
}

// UpdateMilestone applies a partial update to the milestone at index.
// Completing a milestone stamps the completing actor and time atomically
// with the flag; the requesting actor is stamped when the request names
// nobody. Un-completing does not clear existing stamps.
func (s *ProjectService) UpdateMilestone(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	index int,
	req UpdateMilestoneRequest,
) (*domain.Project, error) {
	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateMilestones); err != nil {
		return nil, err
	}

	if _, err := current.Milestone(index); err != nil {
		return nil, badInput("milestone %d: %v", index, err)
	}

	completedNow := false
	var completedTitle string

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update milestone aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		milestone, err := project.Milestone(index)
		if err != nil {
			return badInput("milestone %d: %v", index, err)
		}
		if req.Title != nil {
			milestone.Title = *req.Title
		}
		if req.Description != nil {
			milestone.Description = *req.Description
		}
		if req.DueDate != nil {
			milestone.DueDate = *req.DueDate
		}
		if req.IsCompleted != nil {
			if *req.IsCompleted && !milestone.IsCompleted {
				milestone.IsCompleted = true
				completedBy := req.CompletedBy
				if completedBy == uuid.Nil {
					completedBy = actor.ID
				}
				now := time.Now().UTC()
				milestone.CompletedBy = completedBy
				milestone.CompletedAt = &now
				completedNow = true
				completedTitle = milestone.Title
			} else if !*req.IsCompleted {
				// Stamps deliberately survive un-completion.
				milestone.IsCompleted = false
			}
		}
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	if completedNow {
		milestone := updated.Milestones[index]
		s.emit.publish(ctx, TopicProjectMilestoneCompleted, ProjectMilestoneCompletedEvent{
			ProjectID:      updated.ID,
			ProjectName:    updated.Name,
			MilestoneTitle: completedTitle,
			CompletedBy:    milestone.CompletedBy,
			Members:        updated.MemberIDs(),
		})
	}

	return updated, nil
}

// RemoveMilestone deletes the milestone at index.
func (s *ProjectService) RemoveMilestone(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	index int,
) (*domain.Project, error) {
	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateMilestones); err != nil {
		return nil, err
	}
	if _, err := current.Milestone(index); err != nil {
		return nil, badInput("milestone %d: %v", index, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("remove milestone aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		if _, err := project.Milestone(index); err != nil {
			return badInput("milestone %d: %v", index, err)
		}
		project.Milestones = append(project.Milestones[:index], project.Milestones[index+1:]...)
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	return updated, nil
}

// UpdateProgress sets the project's progress percentage, clamped to [0,100].
// Crossing to 100 publishes project_completed.
func (s *ProjectService) UpdateProgress(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	progress int,
) (*domain.Project, error) {
	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateProgress); err != nil {
		return nil, err
	}

	clamped := domain.ClampProgress(progress)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update progress aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		project.Progress = clamped
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	if clamped == 100 && current.Progress < 100 {
		s.emit.publish(ctx, TopicProjectCompleted, ProjectCompletedEvent{
			ProjectID:   updated.ID,
			ProjectName: updated.Name,
			Members:     updated.MemberIDs(),
		})
	}

	return updated, nil
}

// UpdateBudget sets the spent amount. Spending past the budget is observable
// state, not an error.
func (s *ProjectService) UpdateBudget(
	ctx context.Context,
	actor *authz.Actor,
	projectID uuid.UUID,
	spent float64,
) (*domain.Project, error) {
	if spent < 0 {
		return nil, badInput("spent amount cannot be negative")
	}

	current, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, persistOutcome(err)
	}
	if err := s.authorize(ctx, current, actor, authz.ActionMutateBudget); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update budget aborted: %w", err)
	}
	updated, err := s.projects.AtomicUpdate(ctx, projectID, func(project *domain.Project) error {
		project.SpentBudget = spent
		project.Touch()
		return nil
	})
	if err != nil {
		return nil, persistOutcome(err)
	}

	if updated.SpentBudget > updated.Budget {
		s.logger.Warn("project over budget",
			"project_id", updated.ID,
			"budget", updated.Budget,
			"spent", updated.SpentBudget)
	}

	return updated, nil
}

// authorize runs stage 1 against the permission evaluator, mapping a deny to
// Forbidden and a role-resolution failure to its collaborator outcome.
func (s *ProjectService) authorize(
	ctx context.Context,
	project *domain.Project,
	actor *authz.Actor,
	action authz.Action,
) error {
	decision, err := authz.Authorize(ctx, project, actor, action)
	if err != nil {
		return authorizeOutcome(err)
	}
	if !decision.Allowed {
		s.logger.Info("mutation denied",
			"project_id", project.ID,
			"actor_id", actor.ID,
			"action", string(action),
			"reason", decision.Reason)
		return forbidden(decision.Reason)
	}
	return nil
}

// applyProjectUpdate copies the non-nil request fields onto the project.
func applyProjectUpdate(project *domain.Project, req UpdateProjectRequest) {
	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		project.Status = *req.Status
	}
	if req.Priority != nil {
		project.Priority = *req.Priority
	}
	if req.StartDate != nil {
		project.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		project.EndDate = req.EndDate
	}
	if req.Budget != nil {
		project.Budget = *req.Budget
	}
	if req.Tags != nil {
		project.Tags = *req.Tags
	}
}
