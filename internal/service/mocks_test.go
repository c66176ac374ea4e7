package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/directory"
	"github.com/taskhive/taskhive/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUsers is an in-memory user directory with per-user error injection.
type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.UserView
	errs  map[uuid.UUID]error
	calls int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users: make(map[uuid.UUID]*domain.UserView),
		errs:  make(map[uuid.UUID]error),
	}
}

func (f *fakeUsers) add(role domain.UserRole) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &domain.UserView{
		ID:       id,
		Name:     "user-" + id.String()[:8],
		Email:    id.String()[:8] + "@example.com",
		Role:     role,
		IsActive: true,
	}
	return id
}

func (f *fakeUsers) failWith(id uuid.UUID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*domain.UserView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("%w: %s", directory.ErrUserNotFound, id)
}

var _ directory.Users = (*fakeUsers)(nil)

// publishedEvent is one captured fire-and-forget publish.
type publishedEvent struct {
	topic   string
	payload any
}

// capturingTransport records publishes and can be made to fail them, to
// exercise the stage-5 partial-failure boundary.
type capturingTransport struct {
	mu         sync.Mutex
	published  []publishedEvent
	publishErr error
}

func (t *capturingTransport) Publish(_ context.Context, topic string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, publishedEvent{topic: topic, payload: payload})
	return t.publishErr
}

func (t *capturingTransport) Request(
	_ context.Context, target string, _ any, _ time.Duration,
) ([]byte, error) {
	return nil, fmt.Errorf("%w: no responder for %q", bus.ErrTransport, target)
}

var _ bus.Transport = (*capturingTransport)(nil)

func (t *capturingTransport) topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.published))
	for _, p := range t.published {
		out = append(out, p.topic)
	}
	return out
}

func (t *capturingTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = nil
}

func (t *capturingTransport) find(topic string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.published {
		if p.topic == topic {
			return p.payload, true
		}
	}
	return nil, false
}
