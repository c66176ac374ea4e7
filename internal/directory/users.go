package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/domain"
)

// User directory errors.
var (
	// ErrUserNotFound is returned when the user directory reports that the
	// requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUnavailable is returned when the user directory could not be
	// reached or returned an unusable reply. The requested user may well
	// exist; the lookup simply failed.
	ErrUnavailable = errors.New("user directory unavailable")
)

// Users looks up user records in the user directory service.
type Users interface {
	// FindByID resolves a user by ID. Returns ErrUserNotFound when the
	// directory reports the user absent, bus.ErrTimedOut when the call
	// exceeded its deadline, and ErrUnavailable on any other failure.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.UserView, error)
}

// findUserRequest is the request envelope for user lookups. The cmd field
// names the remote handler, matching the directory service's message pattern.
type findUserRequest struct {
	Cmd string    `json:"cmd"`
	ID  uuid.UUID `json:"id"`
}

// findUserReply is the reply envelope. Exactly one of User and Error is set.
type findUserReply struct {
	User  *domain.UserView `json:"user,omitempty"`
	Error string           `json:"error,omitempty"`
}

const replyErrNotFound = "not_found"

// BusUsers is a Users client that performs lookups over the message
// transport, resolving the user service's target through a Directory.
type BusUsers struct {
	transport bus.Transport
	directory Directory
	timeout   time.Duration
	logger    *slog.Logger
}

var _ Users = (*BusUsers)(nil)

// NewBusUsers creates a Users client. timeout bounds every lookup; it must be
// positive.
func NewBusUsers(
	transport bus.Transport,
	dir Directory,
	timeout time.Duration,
	logger *slog.Logger,
) *BusUsers {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusUsers{
		transport: transport,
		directory: dir,
		timeout:   timeout,
		logger:    logger.With("component", "user_directory"),
	}
}

// FindByID implements Users.FindByID.
func (c *BusUsers) FindByID(ctx context.Context, id uuid.UUID) (*domain.UserView, error) {
	target, err := c.directory.Resolve(ServiceUser)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req := findUserRequest{Cmd: "find_user_by_id", ID: id}
	replyBytes, err := c.transport.Request(ctx, target, req, c.timeout)
	if err != nil {
		if errors.Is(err, bus.ErrTimedOut) {
			// Preserve the transport sentinel so callers can tell a timeout
			// from other failures.
			return nil, fmt.Errorf("find user %s: %w", id, err)
		}
		return nil, fmt.Errorf("%w: find user %s: %v", ErrUnavailable, id, err)
	}

	var reply findUserReply
	if err := json.Unmarshal(replyBytes, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode reply for user %s: %v", ErrUnavailable, id, err)
	}

	if reply.Error == replyErrNotFound {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: directory error %q for user %s", ErrUnavailable, reply.Error, id)
	}
	if reply.User == nil {
		return nil, fmt.Errorf("%w: empty reply for user %s", ErrUnavailable, id)
	}

	c.logger.Debug("resolved user", "user_id", id, "role", reply.User.Role)
	return reply.User, nil
}
