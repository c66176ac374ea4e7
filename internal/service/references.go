package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/taskhive/taskhive/internal/authz"
	"github.com/taskhive/taskhive/internal/directory"
	"github.com/taskhive/taskhive/internal/domain"
)

// UserRoles adapts the user directory to the authz role resolver, so an
// Actor's global role resolves through the same lookup path as stage-2
// reference checks.
func UserRoles(users directory.Users) authz.RoleResolverFunc {
	return func(ctx context.Context, id uuid.UUID) (domain.UserRole, error) {
		user, err := users.FindByID(ctx, id)
		if err != nil {
			return "", err
		}
		return user.Role, nil
	}
}

// resolveReferences is the stage-2 fan-out/fan-in barrier: every foreign user
// id in a request is looked up concurrently, and the stage completes only
// when all lookups have succeeded or one has failed. A single failure aborts
// the whole mutation with the outcome for the offending id; errgroup cancels
// the sibling lookups via the derived context.
func resolveReferences(ctx context.Context, users directory.Users, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := users.FindByID(gctx, id); err != nil {
				return lookupOutcome(id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
