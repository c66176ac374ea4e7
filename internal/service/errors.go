package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/directory"
	"github.com/taskhive/taskhive/internal/store"
)

// Outcome taxonomy - sentinel errors used across the orchestrator.
// Every mutation terminates in exactly one of these (or success). Callers
// check with errors.Is; an API layer would map them to status codes.
var (
	// ErrForbidden means the permission evaluator denied the mutation. The
	// wrapped message carries the deny reason.
	ErrForbidden = errors.New("forbidden")

	// ErrBadInput means a domain invariant or reference check rejected the
	// request: a dependency cycle, a bad date range, a stale milestone
	// index, a duplicate membership, removing the owner, or a referenced
	// user the directory reports absent.
	ErrBadInput = errors.New("bad input")

	// ErrNotFound means the referenced or target record was absent at
	// persist time, including the record vanishing between read and write.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means a collaborator call failed. Distinguished from
	// ErrBadInput because the referenced entity may well exist; retrying is
	// the caller's decision, the orchestrator never retries.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimedOut means a collaborator call exceeded its deadline. Same
	// retry semantics as ErrUnavailable.
	ErrTimedOut = errors.New("timed out")
)

func forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

func badInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadInput, fmt.Sprintf(format, args...))
}

// lookupOutcome maps a user-directory failure for a referenced id into the
// stage-2 outcome. Not-found is the reference's fault (BadInput); transport
// failures are the collaborator's (Unavailable/TimedOut).
func lookupOutcome(id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, directory.ErrUserNotFound):
		return fmt.Errorf("%w: referenced user %s not found", ErrBadInput, id)
	case errors.Is(err, bus.ErrTimedOut):
		return fmt.Errorf("%w: user lookup for %s: %v", ErrTimedOut, id, err)
	default:
		return fmt.Errorf("%w: user lookup for %s: %v", ErrUnavailable, id, err)
	}
}

// authorizeOutcome maps a role-resolution failure during stage 1.
func authorizeOutcome(err error) error {
	if errors.Is(err, bus.ErrTimedOut) {
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// persistOutcome maps a store failure during stage 4. Outcome errors raised
// inside a mutate closure pass through untouched, so an invariant violation
// detected at write time still reports as what it is.
func persistOutcome(err error) error {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrBadInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimedOut):
		return err
	case store.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
