package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/store"
)

type taskFixture struct {
	svc       *TaskService
	tasks     *store.MemoryTaskStore
	users     *fakeUsers
	transport *capturingTransport
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	tasks := store.NewMemoryTaskStore()
	users := newFakeUsers()
	transport := &capturingTransport{}

	svc, err := NewTaskService(tasks, users, transport, testLogger())
	require.NoError(t, err)

	return &taskFixture{svc: svc, tasks: tasks, users: users, transport: transport}
}

func (f *taskFixture) mustCreate(t *testing.T, req CreateTaskRequest) *domain.Task {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	return task
}

func TestNewTaskService(t *testing.T) {
	f := newTaskFixture(t)

	_, err := NewTaskService(nil, f.users, f.transport, testLogger())
	assert.Error(t, err)
	_, err = NewTaskService(f.tasks, nil, f.transport, testLogger())
	assert.Error(t, err)
	_, err = NewTaskService(f.tasks, f.users, nil, testLogger())
	assert.Error(t, err)
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and publishes", func(t *testing.T) {
		f := newTaskFixture(t)
		assignee := f.users.add(domain.UserRoleDeveloper)

		task, err := f.svc.CreateTask(ctx, uuid.New(), CreateTaskRequest{
			Title:      "wire the orchestrator",
			ProjectID:  uuid.New(),
			AssigneeID: assignee,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusTodo, task.Status)

		stored, err := f.tasks.FindByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "wire the orchestrator", stored.Title)

		assert.Equal(t, []string{TopicTaskCreated, TopicTaskAssigned}, f.transport.topics())
		payload, ok := f.transport.find(TopicTaskAssigned)
		require.True(t, ok)
		assert.Equal(t, assignee, payload.(TaskAssignedEvent).AssigneeID)
	})

	t.Run("no assignment event without assignee", func(t *testing.T) {
		f := newTaskFixture(t)
		f.mustCreate(t, CreateTaskRequest{Title: "solo", ProjectID: uuid.New()})
		assert.Equal(t, []string{TopicTaskCreated}, f.transport.topics())
	})

	t.Run("empty title is rejected before anything else", func(t *testing.T) {
		f := newTaskFixture(t)
		_, err := f.svc.CreateTask(ctx, uuid.New(), CreateTaskRequest{ProjectID: uuid.New()})
		assert.ErrorIs(t, err, ErrBadInput)
		assert.Zero(t, f.users.calls)
	})

	t.Run("unknown assignee aborts before any write", func(t *testing.T) {
		f := newTaskFixture(t)
		missing := uuid.New()

		_, err := f.svc.CreateTask(ctx, uuid.New(), CreateTaskRequest{
			Title:      "ghost assignee",
			ProjectID:  uuid.New(),
			AssigneeID: missing,
		})
		require.ErrorIs(t, err, ErrBadInput)
		assert.Contains(t, err.Error(), missing.String())

		all, listErr := f.tasks.List(ctx)
		require.NoError(t, listErr)
		assert.Empty(t, all)
		assert.Empty(t, f.transport.topics())
	})

	t.Run("directory timeout is its own outcome", func(t *testing.T) {
		f := newTaskFixture(t)
		slow := uuid.New()
		f.users.failWith(slow, fmt.Errorf("find user: %w", bus.ErrTimedOut))

		_, err := f.svc.CreateTask(ctx, uuid.New(), CreateTaskRequest{
			Title:      "slow directory",
			ProjectID:  uuid.New(),
			AssigneeID: slow,
		})
		assert.ErrorIs(t, err, ErrTimedOut)
		assert.NotErrorIs(t, err, ErrBadInput)
	})

	t.Run("self dependency is rejected as a cycle", func(t *testing.T) {
		f := newTaskFixture(t)
		existing := f.mustCreate(t, CreateTaskRequest{Title: "base", ProjectID: uuid.New()})

		_, err := f.svc.UpdateTask(ctx, existing.ID, UpdateTaskRequest{
			Dependencies: &[]uuid.UUID{existing.ID},
		})
		assert.ErrorIs(t, err, ErrBadInput)
		assert.Contains(t, err.Error(), "circular dependency")
	})

	t.Run("cancelled caller aborts with no write", func(t *testing.T) {
		f := newTaskFixture(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.svc.CreateTask(cancelled, uuid.New(), CreateTaskRequest{
			Title:     "never persisted",
			ProjectID: uuid.New(),
		})
		require.Error(t, err)

		all, listErr := f.tasks.List(ctx)
		require.NoError(t, listErr)
		assert.Empty(t, all)
	})
}

func TestUpdateTaskDependencies(t *testing.T) {
	ctx := context.Background()

	t.Run("closing a two task loop is rejected with the cycle", func(t *testing.T) {
		f := newTaskFixture(t)
		projectID := uuid.New()
		t2 := f.mustCreate(t, CreateTaskRequest{Title: "t2", ProjectID: projectID})
		t1 := f.mustCreate(t, CreateTaskRequest{
			Title: "t1", ProjectID: projectID, Dependencies: []uuid.UUID{t2.ID},
		})

		_, err := f.svc.UpdateTask(ctx, t2.ID, UpdateTaskRequest{
			Dependencies: &[]uuid.UUID{t1.ID},
		})
		require.ErrorIs(t, err, ErrBadInput)
		assert.Contains(t, err.Error(), t1.ID.String())
		assert.Contains(t, err.Error(), t2.ID.String())

		// The rejected replacement set must not have been persisted.
		stored, getErr := f.tasks.FindByID(ctx, t2.ID)
		require.NoError(t, getErr)
		assert.Empty(t, stored.Dependencies)
	})

	t.Run("replacement set swaps wholesale", func(t *testing.T) {
		f := newTaskFixture(t)
		projectID := uuid.New()
		a := f.mustCreate(t, CreateTaskRequest{Title: "a", ProjectID: projectID})
		b := f.mustCreate(t, CreateTaskRequest{Title: "b", ProjectID: projectID})
		c := f.mustCreate(t, CreateTaskRequest{
			Title: "c", ProjectID: projectID, Dependencies: []uuid.UUID{a.ID},
		})

		updated, err := f.svc.UpdateTask(ctx, c.ID, UpdateTaskRequest{
			Dependencies: &[]uuid.UUID{b.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{b.ID}, updated.Dependencies)
	})

	t.Run("duplicate dependencies are rejected", func(t *testing.T) {
		f := newTaskFixture(t)
		projectID := uuid.New()
		a := f.mustCreate(t, CreateTaskRequest{Title: "a", ProjectID: projectID})
		b := f.mustCreate(t, CreateTaskRequest{Title: "b", ProjectID: projectID})

		_, err := f.svc.UpdateTask(ctx, b.ID, UpdateTaskRequest{
			Dependencies: &[]uuid.UUID{a.ID, a.ID},
		})
		assert.ErrorIs(t, err, ErrBadInput)
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked task cannot start", func(t *testing.T) {
		f := newTaskFixture(t)
		task := f.mustCreate(t, CreateTaskRequest{Title: "blocked", ProjectID: uuid.New()})
		blocked := true
		reason := "waiting on vendor"
		_, err := f.svc.UpdateTask(ctx, task.ID, UpdateTaskRequest{
			IsBlocked: &blocked, BlockedReason: &reason,
		})
		require.NoError(t, err)

		_, err = f.svc.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusInProgress)
		assert.ErrorIs(t, err, ErrBadInput)
		assert.Contains(t, err.Error(), "blocked")
	})

	t.Run("incomplete dependency blocks the start", func(t *testing.T) {
		f := newTaskFixture(t)
		projectID := uuid.New()
		dep := f.mustCreate(t, CreateTaskRequest{Title: "dep", ProjectID: projectID})
		task := f.mustCreate(t, CreateTaskRequest{
			Title: "main", ProjectID: projectID, Dependencies: []uuid.UUID{dep.ID},
		})

		_, err := f.svc.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusInProgress)
		require.ErrorIs(t, err, ErrBadInput)
		assert.Contains(t, err.Error(), dep.ID.String())

		// Finish the dependency; the task may start now.
		_, err = f.svc.UpdateTaskStatus(ctx, dep.ID, domain.TaskStatusDone)
		require.NoError(t, err)

		updated, err := f.svc.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusInProgress, updated.Status)
	})

	t.Run("status change publishes both topics", func(t *testing.T) {
		f := newTaskFixture(t)
		task := f.mustCreate(t, CreateTaskRequest{Title: "t", ProjectID: uuid.New()})

		_, err := f.svc.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusReview)
		require.NoError(t, err)

		assert.Contains(t, f.transport.topics(), TopicTaskUpdated)
		payload, ok := f.transport.find(TopicTaskStatusChanged)
		require.True(t, ok)
		assert.Equal(t, domain.TaskStatusReview, payload.(TaskStatusChangedEvent).Status)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		f := newTaskFixture(t)
		task := f.mustCreate(t, CreateTaskRequest{Title: "t", ProjectID: uuid.New()})

		_, err := f.svc.UpdateTaskStatus(ctx, task.ID, domain.TaskStatus("paused"))
		assert.ErrorIs(t, err, ErrBadInput)
	})

	t.Run("missing task is not found", func(t *testing.T) {
		f := newTaskFixture(t)
		_, err := f.svc.UpdateTaskStatus(ctx, uuid.New(), domain.TaskStatusDone)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPublishFailureNeverSurfaces(t *testing.T) {
	// Stage 5 is the partial-failure boundary: the mutation commits and the
	// caller sees success even when every publish fails.
	ctx := context.Background()
	f := newTaskFixture(t)
	f.transport.publishErr = errors.New("broker unreachable")

	task, err := f.svc.CreateTask(ctx, uuid.New(), CreateTaskRequest{
		Title:     "survives broker outage",
		ProjectID: uuid.New(),
	})
	require.NoError(t, err)

	stored, err := f.tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)

	// The publish was attempted, its failure swallowed.
	assert.Equal(t, []string{TopicTaskCreated}, f.transport.topics())
}

func TestLogHours(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates", func(t *testing.T) {
		f := newTaskFixture(t)
		task := f.mustCreate(t, CreateTaskRequest{Title: "t", ProjectID: uuid.New()})

		_, err := f.svc.LogHours(ctx, task.ID, 2.5)
		require.NoError(t, err)
		updated, err := f.svc.LogHours(ctx, task.ID, 1.5)
		require.NoError(t, err)
		assert.Equal(t, 4.0, updated.LoggedHours)
	})

	t.Run("rejects non-positive hours", func(t *testing.T) {
		f := newTaskFixture(t)
		task := f.mustCreate(t, CreateTaskRequest{Title: "t", ProjectID: uuid.New()})

		_, err := f.svc.LogHours(ctx, task.ID, 0)
		assert.ErrorIs(t, err, ErrBadInput)
		_, err = f.svc.LogHours(ctx, task.ID, -1)
		assert.ErrorIs(t, err, ErrBadInput)
	})
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()

	t.Run("removes and publishes", func(t *testing.T) {
		f := newTaskFixture(t)
		task := f.mustCreate(t, CreateTaskRequest{Title: "doomed", ProjectID: uuid.New()})

		removed, err := f.svc.DeleteTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, removed.ID)

		_, err = f.svc.GetTask(ctx, task.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		payload, ok := f.transport.find(TopicTaskDeleted)
		require.True(t, ok)
		assert.Equal(t, task.ID, payload.(TaskDeletedEvent).ID)
	})

	t.Run("missing task is not found", func(t *testing.T) {
		f := newTaskFixture(t)
		_, err := f.svc.DeleteTask(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
