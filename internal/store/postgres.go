package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskhive/taskhive/internal/domain"
)

// PostgreSQL error codes
const uniqueViolationCode = "23505"

// isUniqueViolation checks if the given error is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// pgCollection is the shared core of the postgres backends. Each record is a
// single JSONB document keyed by its UUID; AtomicUpdate takes a row lock
// (SELECT ... FOR UPDATE) around the read-modify-write so concurrent
// mutations of the same record serialize at the database.
type pgCollection[T any] struct {
	db       *sql.DB
	table    string
	notFound error
}

func (c *pgCollection[T]) insert(ctx context.Context, id uuid.UUID, rec *T) (*T, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", c.table, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2)", c.table)
	if _, err := c.db.ExecContext(ctx, query, id.String(), doc); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
		}
		return nil, fmt.Errorf("insert into %s: %w", c.table, err)
	}
	return decode[T](doc)
}

func (c *pgCollection[T]) findByID(ctx context.Context, id uuid.UUID) (*T, error) {
	query := fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", c.table)

	var doc []byte
	err := c.db.QueryRowContext(ctx, query, id.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", c.notFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", c.table, err)
	}
	return decode[T](doc)
}

func (c *pgCollection[T]) list(ctx context.Context) ([]*T, error) {
	query := fmt.Sprintf("SELECT doc FROM %s", c.table)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*T
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", c.table, err)
		}
		rec, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", c.table, err)
	}
	return out, nil
}

func (c *pgCollection[T]) atomicUpdate(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*T) error,
) (*T, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s update: %w", c.table, err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := fmt.Sprintf("SELECT doc FROM %s WHERE id = $1 FOR UPDATE", c.table)

	var doc []byte
	err = tx.QueryRowContext(ctx, selectQuery, id.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", c.notFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s row: %w", c.table, err)
	}

	rec, err := decode[T](doc)
	if err != nil {
		return nil, err
	}
	if err := mutate(rec); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", c.table, err)
	}

	updateQuery := fmt.Sprintf("UPDATE %s SET doc = $2, updated_at = now() WHERE id = $1", c.table)
	if _, err := tx.ExecContext(ctx, updateQuery, id.String(), updated); err != nil {
		return nil, fmt.Errorf("update %s: %w", c.table, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s update: %w", c.table, err)
	}
	return rec, nil
}

func (c *pgCollection[T]) delete(ctx context.Context, id uuid.UUID) (*T, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING doc", c.table)

	var doc []byte
	err := c.db.QueryRowContext(ctx, query, id.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", c.notFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", c.table, err)
	}
	return decode[T](doc)
}

func decode[T any](doc []byte) (*T, error) {
	rec := new(T)
	if err := json.Unmarshal(doc, rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// PostgresTaskStore implements TaskStore on a PostgreSQL database. It accepts
// a connection pool that is initialized and managed by the caller.
type PostgresTaskStore struct {
	col pgCollection[domain.Task]
}

var _ TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a PostgreSQL-backed task store.
func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{
		col: pgCollection[domain.Task]{db: db, table: "tasks", notFound: ErrTaskNotFound},
	}
}

// Insert implements TaskStore.Insert.
func (s *PostgresTaskStore) Insert(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	return s.col.insert(ctx, task.ID, task)
}

// FindByID implements TaskStore.FindByID.
func (s *PostgresTaskStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.col.findByID(ctx, id)
}

// List implements TaskStore.List.
func (s *PostgresTaskStore) List(ctx context.Context) ([]*domain.Task, error) {
	return s.col.list(ctx)
}

// AtomicUpdate implements TaskStore.AtomicUpdate.
func (s *PostgresTaskStore) AtomicUpdate(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*domain.Task) error,
) (*domain.Task, error) {
	return s.col.atomicUpdate(ctx, id, mutate)
}

// HardDelete implements TaskStore.HardDelete.
func (s *PostgresTaskStore) HardDelete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.col.delete(ctx, id)
}

// PostgresProjectStore implements ProjectStore on a PostgreSQL database.
type PostgresProjectStore struct {
	col pgCollection[domain.Project]
}

var _ ProjectStore = (*PostgresProjectStore)(nil)

// NewPostgresProjectStore creates a PostgreSQL-backed project store.
func NewPostgresProjectStore(db *sql.DB) *PostgresProjectStore {
	return &PostgresProjectStore{
		col: pgCollection[domain.Project]{db: db, table: "projects", notFound: ErrProjectNotFound},
	}
}

// Insert implements ProjectStore.Insert.
func (s *PostgresProjectStore) Insert(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	return s.col.insert(ctx, project.ID, project)
}

// FindByID implements ProjectStore.FindByID.
func (s *PostgresProjectStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.col.findByID(ctx, id)
}

// List implements ProjectStore.List.
func (s *PostgresProjectStore) List(ctx context.Context) ([]*domain.Project, error) {
	return s.col.list(ctx)
}

// AtomicUpdate implements ProjectStore.AtomicUpdate.
func (s *PostgresProjectStore) AtomicUpdate(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*domain.Project) error,
) (*domain.Project, error) {
	return s.col.atomicUpdate(ctx, id, mutate)
}

// SoftDelete implements ProjectStore.SoftDelete.
func (s *PostgresProjectStore) SoftDelete(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.col.atomicUpdate(ctx, id, func(p *domain.Project) error {
		p.IsActive = false
		p.Touch()
		return nil
	})
}
