// Package rpc exposes the orchestrator's mutations as message-transport
// request handlers. Every inbound request carries a bearer token; the
// handlers verify it into an actor before touching a service. Application
// outcomes travel inside the reply envelope, never as transport faults.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/authz"
	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/service"
)

// DefaultTarget is the transport target the orchestrator answers on.
const DefaultTarget = "taskhive.rpc"

// Reply error codes, mirroring the service outcome taxonomy.
const (
	codeUnauthenticated = "unauthenticated"
	codeForbidden       = "forbidden"
	codeBadInput        = "bad_input"
	codeNotFound        = "not_found"
	codeTimedOut        = "timed_out"
	codeUnavailable     = "unavailable"
)

// request is the inbound envelope. The cmd field names the operation, the
// token authenticates the caller, and the body carries the operation payload.
type request struct {
	Cmd   string          `json:"cmd"`
	Token string          `json:"token"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// response is the reply envelope. Exactly one of Result and Error is set.
type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Detail string          `json:"detail,omitempty"`
}

// Handlers dispatches transport requests to the task and project services.
type Handlers struct {
	tasks    *service.TaskService
	projects *service.ProjectService
	verifier auth.Verifier
	roles    authz.RoleResolver
	logger   *slog.Logger
}

// NewHandlers creates the request handlers.
// It returns an error if any of the required dependencies are nil.
func NewHandlers(
	tasks *service.TaskService,
	projects *service.ProjectService,
	verifier auth.Verifier,
	roles authz.RoleResolver,
	logger *slog.Logger,
) (*Handlers, error) {
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if projects == nil {
		return nil, domain.NewValidationError("projects", "cannot be nil", domain.ErrValidation)
	}
	if verifier == nil {
		return nil, domain.NewValidationError("verifier", "cannot be nil", domain.ErrValidation)
	}
	if roles == nil {
		return nil, domain.NewValidationError("roles", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handlers{
		tasks:    tasks,
		projects: projects,
		verifier: verifier,
		roles:    roles,
		logger:   logger.With(slog.String("component", "rpc")),
	}, nil
}

// Register installs the handlers on the transport under target.
func (h *Handlers) Register(transport *bus.InProc, target string) {
	if target == "" {
		target = DefaultTarget
	}
	transport.Respond(target, h.Handle)
}

// Handle is the single responder for the orchestrator target. It never
// returns an error for application outcomes; those go into the reply.
func (h *Handlers) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		return marshalReply(response{Error: codeBadInput, Detail: "malformed request envelope"})
	}

	identity, err := h.verifier.Verify(ctx, req.Token)
	if err != nil {
		h.logger.Info("request rejected", "cmd", req.Cmd, "error", err)
		return marshalReply(response{Error: codeUnauthenticated, Detail: err.Error()})
	}

	result, err := h.dispatch(ctx, identity, req)
	if err != nil {
		return marshalReply(response{Error: errorCode(err), Detail: err.Error()})
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", req.Cmd, err)
	}
	return marshalReply(response{Result: resultBytes})
}

func (h *Handlers) dispatch(ctx context.Context, identity *auth.Identity, req request) (any, error) {
	actor := authz.NewActor(identity.UserID, h.roles)

	switch req.Cmd {
	case "task.get":
		var body struct {
			TaskID uuid.UUID `json:"task_id"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.tasks.GetTask(ctx, body.TaskID)

	case "task.create":
		var body service.CreateTaskRequest
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.tasks.CreateTask(ctx, identity.UserID, body)

	case "task.update":
		var body struct {
			TaskID uuid.UUID `json:"task_id"`
			service.UpdateTaskRequest
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.tasks.UpdateTask(ctx, body.TaskID, body.UpdateTaskRequest)

	case "task.update_status":
		var body struct {
			TaskID uuid.UUID         `json:"task_id"`
			Status domain.TaskStatus `json:"status"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.tasks.UpdateTaskStatus(ctx, body.TaskID, body.Status)

	case "task.log_hours":
		var body struct {
			TaskID uuid.UUID `json:"task_id"`
			Hours  float64   `json:"hours"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.tasks.LogHours(ctx, body.TaskID, body.Hours)

	case "task.delete":
		var body struct {
			TaskID uuid.UUID `json:"task_id"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.tasks.DeleteTask(ctx, body.TaskID)

	case "project.get":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.GetProject(ctx, body.ProjectID)

	case "project.create":
		var body service.CreateProjectRequest
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.CreateProject(ctx, body)

	case "project.update":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
			service.UpdateProjectRequest
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.UpdateProject(ctx, actor, body.ProjectID, body.UpdateProjectRequest)

	case "project.delete":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.DeleteProject(ctx, actor, body.ProjectID)

	case "project.add_member":
		var body struct {
			ProjectID uuid.UUID           `json:"project_id"`
			Member    service.MemberInput `json:"member"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.AddMember(ctx, actor, body.ProjectID, body.Member)

	case "project.remove_member":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
			UserID    uuid.UUID `json:"user_id"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.RemoveMember(ctx, actor, body.ProjectID, body.UserID)

	case "project.update_member_role":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
			UserID    uuid.UUID `json:"user_id"`
			Role      string    `json:"role"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.UpdateMemberRole(ctx, actor, body.ProjectID, body.UserID, body.Role)

	case "project.add_milestone":
		var body struct {
			ProjectID uuid.UUID              `json:"project_id"`
			Milestone service.MilestoneInput `json:"milestone"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.AddMilestone(ctx, actor, body.ProjectID, body.Milestone)

	case "project.update_milestone":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
			Index     int       `json:"index"`
			service.UpdateMilestoneRequest
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.UpdateMilestone(
			ctx, actor, body.ProjectID, body.Index, body.UpdateMilestoneRequest)

	case "project.remove_milestone":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
			Index     int       `json:"index"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.RemoveMilestone(ctx, actor, body.ProjectID, body.Index)

	case "project.update_progress":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
			Progress  int       `json:"progress"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.UpdateProgress(ctx, actor, body.ProjectID, body.Progress)

	case "project.update_budget":
		var body struct {
			ProjectID uuid.UUID `json:"project_id"`
			Spent     float64   `json:"spent"`
		}
		if err := decodeBody(req.Body, &body); err != nil {
			return nil, err
		}
		return h.projects.UpdateBudget(ctx, actor, body.ProjectID, body.Spent)
	}

	return nil, fmt.Errorf("%w: unknown command %q", service.ErrBadInput, req.Cmd)
}

func decodeBody(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing request body", service.ErrBadInput)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: decode request body: %v", service.ErrBadInput, err)
	}
	return nil
}

func marshalReply(resp response) ([]byte, error) {
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	return out, nil
}

// errorCode maps a service outcome onto its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return codeForbidden
	case errors.Is(err, service.ErrBadInput):
		return codeBadInput
	case errors.Is(err, service.ErrNotFound):
		return codeNotFound
	case errors.Is(err, service.ErrTimedOut):
		return codeTimedOut
	default:
		return codeUnavailable
	}
}
