// Package authz implements the project-scoped permission evaluator. The
// decision logic is a fixed precedence table over the project's ownership and
// member roster plus the actor's platform-wide role, which is resolved
// through the user directory at most once per request.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
)

// Action classifies what a mutation request wants to do to a project.
type Action string

// Action kinds. ActionMutateProject covers the project's own settings
// (name, description, status, dates); it is deliberately absent from the
// privileged-member rule, so only owner and admin qualify.
const (
	ActionViewProject      Action = "view_project"
	ActionMutateProject    Action = "mutate_project"
	ActionMutateMembers    Action = "mutate_members"
	ActionMutateMilestones Action = "mutate_milestones"
	ActionMutateBudget     Action = "mutate_budget"
	ActionMutateProgress   Action = "mutate_progress"
	ActionDeleteProject    Action = "delete_project"
	ActionRemoveSelf       Action = "remove_self"
)

// Deny reasons surfaced to the error taxonomy. The two strings distinguish a
// complete outsider from a member who lacks a privileged role.
const (
	ReasonNotOwnerAdmin = "not owner/admin"
	ReasonNotPrivileged = "not sufficiently privileged member"
)

// RoleResolver resolves a user's platform-wide role. Implementations call the
// user directory; the Actor caches the answer for the lifetime of one request.
type RoleResolver interface {
	Role(ctx context.Context, id uuid.UUID) (domain.UserRole, error)
}

// RoleResolverFunc adapts a function to the RoleResolver interface.
type RoleResolverFunc func(ctx context.Context, id uuid.UUID) (domain.UserRole, error)

// Role implements RoleResolver.
func (f RoleResolverFunc) Role(ctx context.Context, id uuid.UUID) (domain.UserRole, error) {
	return f(ctx, id)
}

// Actor is the authenticated caller of one mutation request. It memoizes the
// directory-resolved global role so a request never looks the same role up
// twice, while a fresh Actor per request keeps stale roles from leaking
// across requests.
type Actor struct {
	ID uuid.UUID

	resolver RoleResolver
	role     domain.UserRole
	resolved bool
}

// NewActor creates an Actor for one request. resolver may be nil when the
// caller already knows the global role; see NewActorWithRole.
func NewActor(id uuid.UUID, resolver RoleResolver) *Actor {
	return &Actor{ID: id, resolver: resolver}
}

// NewActorWithRole creates an Actor whose global role is already known, for
// example because it was carried in a verified token.
func NewActorWithRole(id uuid.UUID, role domain.UserRole) *Actor {
	return &Actor{ID: id, role: role, resolved: true}
}

// GlobalRole returns the actor's platform-wide role, resolving it through the
// directory on first use and caching it for the request.
func (a *Actor) GlobalRole(ctx context.Context) (domain.UserRole, error) {
	if a.resolved {
		return a.role, nil
	}
	if a.resolver == nil {
		return "", fmt.Errorf("no role resolver for actor %s", a.ID)
	}
	role, err := a.resolver.Role(ctx, a.ID)
	if err != nil {
		return "", err
	}
	a.role = role
	a.resolved = true
	return role, nil
}

// Decision is the outcome of an authorization check. Reason is set only on
// deny.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Authorize decides whether actor may perform action on project. Rules are
// evaluated in precedence order, first match wins:
//
//  1. global admin: allow everything
//  2. project owner: allow everything
//  3. remove-self: any active member may remove themselves
//  4. member mutations (members, milestones, progress): active member whose
//     role text contains "manager" or "lead"
//  5. otherwise: deny
//
// Ownership is checked before the admin rule is consulted because it needs no
// directory call; both rules allow everything, so precedence is unaffected.
// The returned error is non-nil only when the global role could not be
// resolved; it is a collaborator failure, not a deny.
func Authorize(
	ctx context.Context,
	project *domain.Project,
	actor *Actor,
	action Action,
) (Decision, error) {
	if actor.ID == project.OwnerID {
		return Allow, nil
	}

	role, err := actor.GlobalRole(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve global role for %s: %w", actor.ID, err)
	}
	if role == domain.UserRoleAdmin {
		return Allow, nil
	}

	member := project.ActiveMember(actor.ID)

	if action == ActionRemoveSelf && member != nil {
		return Allow, nil
	}

	if member != nil && privilegedMemberAction(action) && privilegedRole(member.Role) {
		return Allow, nil
	}

	if member != nil {
		return Deny(ReasonNotPrivileged), nil
	}
	return Deny(ReasonNotOwnerAdmin), nil
}

// privilegedMemberAction reports whether a privileged member (manager/lead)
// may perform action without being owner or admin.
func privilegedMemberAction(action Action) bool {
	switch action {
	case ActionMutateMembers, ActionMutateMilestones, ActionMutateProgress:
		return true
	}
	return false
}

// privilegedRole matches free-text roster roles by case-insensitive
// substring. Intentionally coarse: "Team Lead", "lead developer" and
// "Engineering Manager" all qualify. Inherited behavior, kept as is;
// tightening it would change authorization semantics.
func privilegedRole(role string) bool {
	lower := strings.ToLower(role)
	return strings.Contains(lower, "manager") || strings.Contains(lower, "lead")
}
