package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
)

// memCollection is the shared core of the in-memory backends: a mutex-guarded
// map of records keyed by ID. Records are cloned on the way in and out so no
// caller ever aliases stored state, and AtomicUpdate runs its mutate function
// under the collection lock, which gives the same read-modify-write atomicity
// the postgres backend gets from a row lock.
type memCollection[T any] struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*T
	notFound error
}

func newMemCollection[T any](notFound error) *memCollection[T] {
	return &memCollection[T]{
		records:  make(map[uuid.UUID]*T),
		notFound: notFound,
	}
}

// clone deep-copies a record through JSON. All stored types are plain data.
func clone[T any](rec *T) *T {
	data, err := json.Marshal(rec)
	if err != nil {
		panic(fmt.Sprintf("store: clone marshal: %v", err))
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("store: clone unmarshal: %v", err))
	}
	return out
}

func (c *memCollection[T]) insert(id uuid.UUID, rec *T) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	c.records[id] = clone(rec)
	return clone(rec), nil
}

func (c *memCollection[T]) findByID(id uuid.UUID) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", c.notFound, id)
	}
	return clone(rec), nil
}

func (c *memCollection[T]) list() []*T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*T, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, clone(rec))
	}
	return out
}

func (c *memCollection[T]) atomicUpdate(id uuid.UUID, mutate func(*T) error) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", c.notFound, id)
	}
	working := clone(rec)
	if err := mutate(working); err != nil {
		return nil, err
	}
	c.records[id] = clone(working)
	return working, nil
}

func (c *memCollection[T]) delete(id uuid.UUID) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", c.notFound, id)
	}
	delete(c.records, id)
	return clone(rec), nil
}

// MemoryTaskStore is an in-memory TaskStore used in tests and single-binary
// development setups.
type MemoryTaskStore struct {
	col *memCollection[domain.Task]
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{col: newMemCollection[domain.Task](ErrTaskNotFound)}
}

// Insert implements TaskStore.Insert.
func (s *MemoryTaskStore) Insert(_ context.Context, task *domain.Task) (*domain.Task, error) {
	return s.col.insert(task.ID, task)
}

// FindByID implements TaskStore.FindByID.
func (s *MemoryTaskStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.col.findByID(id)
}

// List implements TaskStore.List.
func (s *MemoryTaskStore) List(_ context.Context) ([]*domain.Task, error) {
	return s.col.list(), nil
}

// AtomicUpdate implements TaskStore.AtomicUpdate.
func (s *MemoryTaskStore) AtomicUpdate(
	_ context.Context,
	id uuid.UUID,
	mutate func(*domain.Task) error,
) (*domain.Task, error) {
	return s.col.atomicUpdate(id, mutate)
}

// HardDelete implements TaskStore.HardDelete.
func (s *MemoryTaskStore) HardDelete(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.col.delete(id)
}

// MemoryProjectStore is an in-memory ProjectStore used in tests and
// single-binary development setups.
type MemoryProjectStore struct {
	col *memCollection[domain.Project]
}

var _ ProjectStore = (*MemoryProjectStore)(nil)

// NewMemoryProjectStore creates an empty in-memory project store.
func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{col: newMemCollection[domain.Project](ErrProjectNotFound)}
}

// Insert implements ProjectStore.Insert.
func (s *MemoryProjectStore) Insert(_ context.Context, project *domain.Project) (*domain.Project, error) {
	return s.col.insert(project.ID, project)
}

// FindByID implements ProjectStore.FindByID.
func (s *MemoryProjectStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.col.findByID(id)
}

// List implements ProjectStore.List.
func (s *MemoryProjectStore) List(_ context.Context) ([]*domain.Project, error) {
	return s.col.list(), nil
}

// AtomicUpdate implements ProjectStore.AtomicUpdate.
func (s *MemoryProjectStore) AtomicUpdate(
	_ context.Context,
	id uuid.UUID,
	mutate func(*domain.Project) error,
) (*domain.Project, error) {
	return s.col.atomicUpdate(id, mutate)
}

// SoftDelete implements ProjectStore.SoftDelete.
func (s *MemoryProjectStore) SoftDelete(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.col.atomicUpdate(id, func(p *domain.Project) error {
		p.IsActive = false
		p.Touch()
		return nil
	})
}
