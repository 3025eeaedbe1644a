package postgres

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
	"github.com/adanyl0v/go-todo-share/internal/storage"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TaskStore linearizes writes per task with an in-process key lock and a
// row lock taken by SELECT ... FOR UPDATE. The key lock keeps commit
// hooks of one instance in commit order; the row lock covers other
// instances.
type TaskStore struct {
	logger zerolog.Logger
	pgPool *pgxpool.Pool
	locks  *storage.KeyMutex
}

var _ services.TaskStore = (*TaskStore)(nil)

func NewTaskStore(logger zerolog.Logger, pgPool *pgxpool.Pool) *TaskStore {
	return &TaskStore{
		logger: logger,
		pgPool: pgPool,
		locks:  storage.NewKeyMutex(),
	}
}

var readSnapshot = pgx.TxOptions{
	IsoLevel:   pgx.RepeatableRead,
	AccessMode: pgx.ReadOnly,
}

func (s *TaskStore) CreateTask(ctx context.Context, task *models.Task, onCommit services.CommitHook) (*models.Task, error) {
	taskUUID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := task.Clone()
	created.ID = taskUUID.String()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	unlock := s.locks.Lock(created.ID)
	defer unlock()

	tx, err := s.pgPool.Begin(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to begin transaction")
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertTaskQuery = `
INSERT INTO tasks (id,
                   owner_id,
                   title,
                   description,
                   due_date,
                   priority,
                   is_completed,
                   version,
                   created_at,
                   updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err = tx.Exec(
		ctx,
		insertTaskQuery,
		created.ID,
		created.OwnerID,
		created.Title,
		created.Description,
		created.DueDate,
		string(created.Priority),
		created.IsCompleted,
		created.Version,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to insert task")
		return nil, mapWriteError(err)
	}

	err = s.insertCollaborators(ctx, tx, created.ID, created.Collaborators)
	if err != nil {
		return nil, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to commit transaction")
		return nil, err
	}
	s.logger.Debug().
		Str("task_id", created.ID).
		Msg("inserted task")

	return committed(created, onCommit), nil
}

func (s *TaskStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	tx, err := s.pgPool.BeginTx(ctx, readSnapshot)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to begin transaction")
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	return s.selectTask(ctx, tx, taskID, false)
}

func (s *TaskStore) ListTasksByMember(ctx context.Context, userID string) ([]*models.Task, error) {
	tx, err := s.pgPool.BeginTx(ctx, readSnapshot)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to begin transaction")
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const selectTasksByMemberQuery = `
SELECT t.id,
       t.owner_id,
       t.title,
       t.description,
       t.due_date,
       t.priority,
       t.is_completed,
       t.version,
       t.created_at,
       t.updated_at
FROM tasks t
WHERE t.owner_id = $1
   OR EXISTS (SELECT 1
              FROM task_collaborators c
              WHERE c.task_id = t.id
                AND c.user_id = $1)
ORDER BY t.created_at DESC, t.id DESC
`
	rows, err := tx.Query(ctx, selectTasksByMemberQuery, userID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to select tasks by member")
		return nil, err
	}
	tasks, err := pgx.CollectRows(rows, scanTask)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to scan tasks")
		return nil, err
	}

	taskIDs := make([]string, len(tasks))
	for i, task := range tasks {
		taskIDs[i] = task.ID
	}
	collaborators, err := s.selectCollaborators(ctx, tx, taskIDs)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		task.Collaborators = collaborators[task.ID]
		if task.Collaborators == nil {
			task.Collaborators = []models.Collaborator{}
		}
	}

	s.logger.Debug().
		Int("count", len(tasks)).
		Str("user_id", userID).
		Msg("selected tasks by member")
	return tasks, nil
}

func (s *TaskStore) UpdateTask(ctx context.Context, taskID string, mutate services.MutateFunc, onCommit services.CommitHook) (*models.Task, error) {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	tx, err := s.pgPool.Begin(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to begin transaction")
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	task, err := s.selectTask(ctx, tx, taskID, true)
	if err != nil {
		return nil, err
	}
	before := slices.Clone(task.Collaborators)

	err = mutate(task)
	if err != nil {
		return nil, err
	}

	const updateTaskQuery = `
UPDATE tasks
SET title        = $1,
    description  = $2,
    due_date     = $3,
    priority     = $4,
    is_completed = $5,
    version      = version + 1,
    updated_at   = $6
WHERE id = $7
RETURNING version, updated_at
`
	err = tx.QueryRow(
		ctx,
		updateTaskQuery,
		task.Title,
		task.Description,
		task.DueDate,
		string(task.Priority),
		task.IsCompleted,
		time.Now().UTC(),
		taskID,
	).Scan(
		&task.Version,
		&task.UpdatedAt,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to update task")
		return nil, mapWriteError(err)
	}

	if !slices.Equal(before, task.Collaborators) {
		const deleteCollaboratorsQuery = `
DELETE FROM task_collaborators
WHERE task_id = $1
`
		_, err = tx.Exec(ctx, deleteCollaboratorsQuery, taskID)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("task_id", taskID).
				Msg("failed to delete collaborators")
			return nil, err
		}
		err = s.insertCollaborators(ctx, tx, taskID, task.Collaborators)
		if err != nil {
			return nil, err
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to commit transaction")
		return nil, err
	}
	s.logger.Debug().
		Str("task_id", taskID).
		Int64("version", task.Version).
		Msg("updated task")

	return committed(task, onCommit), nil
}

func (s *TaskStore) DeleteTask(ctx context.Context, taskID string, check services.MutateFunc, onCommit services.CommitHook) error {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	tx, err := s.pgPool.Begin(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to begin transaction")
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	task, err := s.selectTask(ctx, tx, taskID, true)
	if err != nil {
		return err
	}
	err = check(task)
	if err != nil {
		return err
	}

	const deleteTaskQuery = `
DELETE FROM tasks
WHERE id = $1
`
	_, err = tx.Exec(ctx, deleteTaskQuery, taskID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to delete task")
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to commit transaction")
		return err
	}
	s.logger.Debug().
		Str("task_id", taskID).
		Msg("deleted task")

	committed(task, onCommit)
	return nil
}

func (s *TaskStore) selectTask(ctx context.Context, q querier, taskID string, forUpdate bool) (*models.Task, error) {
	selectTaskQuery := `
SELECT id,
       owner_id,
       title,
       description,
       due_date,
       priority,
       is_completed,
       version,
       created_at,
       updated_at
FROM tasks
WHERE id = $1
`
	if forUpdate {
		selectTaskQuery += "FOR UPDATE\n"
	}

	rows, err := q.Query(ctx, selectTaskQuery, taskID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to select task")
		return nil, err
	}
	task, err := pgx.CollectExactlyOneRow(rows, scanTask)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTaskNotFound
		}
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to scan task")
		return nil, err
	}

	collaborators, err := s.selectCollaborators(ctx, q, []string{taskID})
	if err != nil {
		return nil, err
	}
	task.Collaborators = collaborators[taskID]
	if task.Collaborators == nil {
		task.Collaborators = []models.Collaborator{}
	}
	return task, nil
}

func (s *TaskStore) selectCollaborators(ctx context.Context, q querier, taskIDs []string) (map[string][]models.Collaborator, error) {
	collaborators := make(map[string][]models.Collaborator, len(taskIDs))
	if len(taskIDs) == 0 {
		return collaborators, nil
	}

	const selectCollaboratorsQuery = `
SELECT task_id,
       user_id,
       role
FROM task_collaborators
WHERE task_id = ANY ($1)
ORDER BY task_id, position
`
	rows, err := q.Query(ctx, selectCollaboratorsQuery, taskIDs)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select collaborators")
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, userID, role string
		err = rows.Scan(&taskID, &userID, &role)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to scan collaborator")
			return nil, err
		}
		collaborators[taskID] = append(collaborators[taskID], models.Collaborator{
			UserID: userID,
			Role:   models.Role(role),
		})
	}

	err = rows.Err()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to iterate over rows")
		return nil, err
	}
	return collaborators, nil
}

func (s *TaskStore) insertCollaborators(ctx context.Context, tx pgx.Tx, taskID string, collaborators []models.Collaborator) error {
	if len(collaborators) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"task_collaborators"},
		[]string{"task_id", "user_id", "role", "position"},
		pgx.CopyFromSlice(len(collaborators), func(i int) ([]any, error) {
			c := collaborators[i]
			return []any{taskID, c.UserID, string(c.Role), i}, nil
		}),
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to insert collaborators")
		return mapWriteError(err)
	}
	return nil
}

func scanTask(row pgx.CollectableRow) (*models.Task, error) {
	var (
		task     models.Task
		priority string
	)
	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&task.DueDate,
		&priority,
		&task.IsCompleted,
		&task.Version,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Priority = models.Priority(priority)
	return &task, nil
}

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.ForeignKeyViolation:
		if pgErr.TableName == "task_collaborators" {
			return models.ErrCollaboratorNotFound
		}
		return models.ErrUserNotFound
	case pgerrcode.UniqueViolation:
		return models.ErrDuplicateCollaborator
	case pgerrcode.CheckViolation:
		return models.ErrInvalidInput
	default:
		return err
	}
}

func committed(task *models.Task, onCommit services.CommitHook) *models.Task {
	if onCommit != nil {
		onCommit(task.Clone())
	}
	return task
}
