package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/domain"
)

// countingResolver records how many directory lookups were made.
type countingResolver struct {
	role  domain.UserRole
	err   error
	calls int
}

func (r *countingResolver) Role(_ context.Context, _ uuid.UUID) (domain.UserRole, error) {
	r.calls++
	return r.role, r.err
}

func testProject(t *testing.T, ownerID uuid.UUID, members ...domain.ProjectMember) *domain.Project {
	t.Helper()
	project, err := domain.NewProject("migration", ownerID)
	require.NoError(t, err)
	project.Members = members
	return project
}

func member(id uuid.UUID, role string, active bool) domain.ProjectMember {
	return domain.ProjectMember{
		UserID:   id,
		Role:     role,
		JoinedAt: time.Now().UTC(),
		IsActive: active,
	}
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	actorID := uuid.New()

	allActions := []Action{
		ActionViewProject, ActionMutateMembers, ActionMutateMilestones,
		ActionMutateBudget, ActionMutateProgress, ActionDeleteProject,
		ActionRemoveSelf,
	}

	t.Run("owner is allowed everything without a directory call", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleViewer}
		project := testProject(t, ownerID)

		for _, action := range allActions {
			decision, err := Authorize(ctx, project, NewActor(ownerID, resolver), action)
			require.NoError(t, err)
			assert.True(t, decision.Allowed, "action %s", action)
		}
		assert.Zero(t, resolver.calls)
	})

	t.Run("admin is allowed everything", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleAdmin}
		project := testProject(t, ownerID)

		for _, action := range allActions {
			actor := NewActor(actorID, resolver)
			decision, err := Authorize(ctx, project, actor, action)
			require.NoError(t, err)
			assert.True(t, decision.Allowed, "action %s", action)
		}
	})

	t.Run("non-member non-owner is denied budget mutation", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleDeveloper}
		project := testProject(t, ownerID)

		decision, err := Authorize(ctx, project, NewActor(actorID, resolver), ActionMutateBudget)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotOwnerAdmin, decision.Reason)
	})

	t.Run("manager member may mutate members milestones and progress", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleDeveloper}
		project := testProject(t, ownerID, member(actorID, "Project Manager", true))

		for _, action := range []Action{
			ActionMutateMembers, ActionMutateMilestones, ActionMutateProgress,
		} {
			decision, err := Authorize(ctx, project, NewActor(actorID, resolver), action)
			require.NoError(t, err)
			assert.True(t, decision.Allowed, "action %s", action)
		}
	})

	t.Run("manager member may not mutate budget or delete", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleDeveloper}
		project := testProject(t, ownerID, member(actorID, "Tech Lead", true))

		for _, action := range []Action{ActionMutateBudget, ActionDeleteProject} {
			decision, err := Authorize(ctx, project, NewActor(actorID, resolver), action)
			require.NoError(t, err)
			assert.False(t, decision.Allowed, "action %s", action)
			assert.Equal(t, ReasonNotPrivileged, decision.Reason)
		}
	})

	t.Run("role match is case-insensitive substring", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleDeveloper}
		for _, role := range []string{"MANAGER", "team lead", "Lead Designer", "engineering manager"} {
			project := testProject(t, ownerID, member(actorID, role, true))
			decision, err := Authorize(ctx, project, NewActor(actorID, resolver), ActionMutateMembers)
			require.NoError(t, err)
			assert.True(t, decision.Allowed, "role %q", role)
		}

		project := testProject(t, ownerID, member(actorID, "Developer", true))
		decision, err := Authorize(ctx, project, NewActor(actorID, resolver), ActionMutateMembers)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})

	t.Run("inactive member counts as outsider", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleDeveloper}
		project := testProject(t, ownerID, member(actorID, "Project Manager", false))

		decision, err := Authorize(ctx, project, NewActor(actorID, resolver), ActionMutateMembers)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotOwnerAdmin, decision.Reason)
	})

	t.Run("any active member may remove themselves", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleViewer}
		project := testProject(t, ownerID, member(actorID, "Developer", true))

		decision, err := Authorize(ctx, project, NewActor(actorID, resolver), ActionRemoveSelf)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("plain member is denied view by the table", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleDeveloper}
		project := testProject(t, ownerID, member(actorID, "Developer", true))

		decision, err := Authorize(ctx, project, NewActor(actorID, resolver), ActionViewProject)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNotPrivileged, decision.Reason)
	})

	t.Run("is total over all actions and actor shapes", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleViewer}
		actors := []*Actor{
			NewActor(ownerID, resolver),
			NewActor(actorID, resolver),
			NewActorWithRole(uuid.New(), domain.UserRoleAdmin),
			NewActorWithRole(uuid.New(), domain.UserRoleViewer),
		}
		project := testProject(t, ownerID, member(actorID, "Designer", true))

		for _, actor := range actors {
			for _, action := range allActions {
				decision, err := Authorize(ctx, project, actor, action)
				require.NoError(t, err)
				// Every call must land on a definite verdict.
				assert.Equal(t, decision.Allowed, decision.Reason == "",
					"actor %s action %s", actor.ID, action)
			}
		}
	})

	t.Run("resolver failure surfaces as an error not a deny", func(t *testing.T) {
		resolver := &countingResolver{err: errors.New("directory down")}
		project := testProject(t, ownerID)

		_, err := Authorize(ctx, project, NewActor(actorID, resolver), ActionMutateBudget)
		assert.Error(t, err)
	})

	t.Run("global role is resolved once per actor", func(t *testing.T) {
		resolver := &countingResolver{role: domain.UserRoleDeveloper}
		project := testProject(t, ownerID)
		actor := NewActor(actorID, resolver)

		for i := 0; i < 4; i++ {
			_, err := Authorize(ctx, project, actor, ActionMutateBudget)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, resolver.calls)
	})
}
