package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Project-specific validation errors
var (
	// ErrProjectIDEmpty is returned when a project ID is empty or nil.
	ErrProjectIDEmpty = errors.New("project ID cannot be empty")

	// ErrProjectNameEmpty is returned when a project's name is empty.
	ErrProjectNameEmpty = errors.New("project name cannot be empty")

	// ErrProjectOwnerEmpty is returned when a project's owner ID is empty or nil.
	ErrProjectOwnerEmpty = errors.New("project owner ID cannot be empty")

	// ErrInvalidProjectStatus is returned when a project status is not one of
	// the known status values.
	ErrInvalidProjectStatus = errors.New("invalid project status")

	// ErrInvalidProjectPriority is returned when a project priority is not one
	// of the known priority values.
	ErrInvalidProjectPriority = errors.New("invalid project priority")

	// ErrMilestoneIndexOutOfRange is returned when a milestone index does not
	// address an existing milestone.
	ErrMilestoneIndexOutOfRange = errors.New("milestone index out of range")

	// ErrMilestoneTitleEmpty is returned when a milestone's title is empty.
	ErrMilestoneTitleEmpty = errors.New("milestone title cannot be empty")
)

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

// Project status values.
const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusOnHold,
		ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

// ProjectPriority represents the urgency classification of a project.
type ProjectPriority string

// Project priority values.
const (
	ProjectPriorityLow      ProjectPriority = "low"
	ProjectPriorityMedium   ProjectPriority = "medium"
	ProjectPriorityHigh     ProjectPriority = "high"
	ProjectPriorityCritical ProjectPriority = "critical"
)

// Valid reports whether p is a known project priority.
func (p ProjectPriority) Valid() bool {
	switch p {
	case ProjectPriorityLow, ProjectPriorityMedium, ProjectPriorityHigh,
		ProjectPriorityCritical:
		return true
	}
	return false
}

// ProjectMember is one entry in a project's member roster. The Role field is
// free text ("Project Manager", "Developer", ...); authorization matches it
// by substring, see the authz package.
type ProjectMember struct {
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	IsActive bool      `json:"is_active"`
}

// ProjectMilestone is a dated checkpoint inside a project. CompletedAt and
// CompletedBy are stamped when the milestone is marked complete; un-completing
// a milestone does not clear them.
type ProjectMilestone struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     time.Time  `json:"due_date"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy uuid.UUID  `json:"completed_by,omitempty"`
}

// Project represents a container of tasks with an owner, a member roster, and
// milestones. Projects are never hard-deleted; IsActive=false marks a
// soft-deleted project.
type Project struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Status      ProjectStatus      `json:"status"`
	Priority    ProjectPriority    `json:"priority"`
	OwnerID     uuid.UUID          `json:"owner_id"`
	Members     []ProjectMember    `json:"members,omitempty"`
	StartDate   *time.Time         `json:"start_date,omitempty"`
	EndDate     *time.Time         `json:"end_date,omitempty"`
	Budget      float64            `json:"budget"`
	SpentBudget float64            `json:"spent_budget"`
	Tags        []string           `json:"tags,omitempty"`
	Milestones  []ProjectMilestone `json:"milestones,omitempty"`
	Progress    int                `json:"progress"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewProject creates a new Project with the given name and owner. It generates
// a new UUID for the project ID, applies the default status and priority, and
// sets the creation/update timestamps. Returns an error if validation fails.
func NewProject(name string, ownerID uuid.UUID) (*Project, error) {
	project := &Project{
		ID:        uuid.New(),
		Name:      name,
		Status:    ProjectStatusPlanning,
		Priority:  ProjectPriorityMedium,
		OwnerID:   ownerID,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := project.Validate(); err != nil {
		return nil, err
	}

	return project, nil
}

// Validate checks if the Project has valid data.
// Returns an error if any field fails validation.
func (p *Project) Validate() error {
	if p.ID == uuid.Nil {
		return ErrProjectIDEmpty
	}

	if p.Name == "" {
		return ErrProjectNameEmpty
	}

	if p.OwnerID == uuid.Nil {
		return ErrProjectOwnerEmpty
	}

	if !p.Status.Valid() {
		return ErrInvalidProjectStatus
	}

	if !p.Priority.Valid() {
		return ErrInvalidProjectPriority
	}

	if p.StartDate != nil && p.EndDate != nil && !p.StartDate.Before(*p.EndDate) {
		return ErrInvalidDateRange
	}

	if p.Progress < 0 || p.Progress > 100 {
		p.Progress = ClampProgress(p.Progress)
	}

	return nil
}

// ActiveMember returns the roster entry for userID if that user is an active
// member of the project, or nil otherwise.
func (p *Project) ActiveMember(userID uuid.UUID) *ProjectMember {
	for i := range p.Members {
		if p.Members[i].UserID == userID && p.Members[i].IsActive {
			return &p.Members[i]
		}
	}
	return nil
}

// MemberIDs returns the user IDs of all active members. Used for notification
// fan-out payloads.
func (p *Project) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Members))
	for _, m := range p.Members {
		if m.IsActive {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// Milestone returns the milestone at index i, or
// ErrMilestoneIndexOutOfRange if i does not address one.
func (p *Project) Milestone(i int) (*ProjectMilestone, error) {
	if i < 0 || i >= len(p.Milestones) {
		return nil, ErrMilestoneIndexOutOfRange
	}
	return &p.Milestones[i], nil
}

// Touch updates the UpdatedAt timestamp.
func (p *Project) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// ClampProgress clamps a progress percentage to the [0,100] range.
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
