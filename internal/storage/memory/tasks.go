// Package memory implements the stores in process memory. It backs the
// "memory" store driver and the service tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
	"github.com/adanyl0v/go-todo-share/internal/storage"
)

type TaskStore struct {
	locks *storage.KeyMutex

	mu    sync.RWMutex
	tasks map[string]*models.Task
	now   func() time.Time
}

var _ services.TaskStore = (*TaskStore)(nil)

func NewTaskStore() *TaskStore {
	return &TaskStore{
		locks: storage.NewKeyMutex(),
		tasks: make(map[string]*models.Task),
		now:   time.Now,
	}
}

func (s *TaskStore) CreateTask(ctx context.Context, task *models.Task, onCommit services.CommitHook) (*models.Task, error) {
	taskUUID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	created := task.Clone()
	created.ID = taskUUID.String()
	created.Version = 1
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt

	unlock := s.locks.Lock(created.ID)
	defer unlock()

	err = ctx.Err()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tasks[created.ID] = created
	s.mu.Unlock()

	return s.committed(created, onCommit), nil
}

func (s *TaskStore) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (s *TaskStore) ListTasksByMember(_ context.Context, userID string) ([]*models.Task, error) {
	s.mu.RLock()
	tasks := make([]*models.Task, 0)
	for _, task := range s.tasks {
		_, isCollaborator := task.Collaborator(userID)
		if task.IsOwner(userID) || isCollaborator {
			tasks = append(tasks, task.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(tasks, func(a, b *models.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return tasks, nil
}

func (s *TaskStore) UpdateTask(ctx context.Context, taskID string, mutate services.MutateFunc, onCommit services.CommitHook) (*models.Task, error) {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	ownerID, createdAt := task.OwnerID, task.CreatedAt
	err = mutate(task)
	if err != nil {
		return nil, err
	}
	err = ctx.Err()
	if err != nil {
		return nil, err
	}

	task.ID = taskID
	task.OwnerID = ownerID
	task.CreatedAt = createdAt
	task.Version++
	task.UpdatedAt = s.now()

	s.mu.Lock()
	s.tasks[taskID] = task
	s.mu.Unlock()

	return s.committed(task, onCommit), nil
}

func (s *TaskStore) DeleteTask(ctx context.Context, taskID string, check services.MutateFunc, onCommit services.CommitHook) error {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	err = check(task)
	if err != nil {
		return err
	}
	err = ctx.Err()
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()

	s.committed(task, onCommit)
	return nil
}

func (s *TaskStore) committed(task *models.Task, onCommit services.CommitHook) *models.Task {
	if onCommit != nil {
		onCommit(task.Clone())
	}
	return task.Clone()
}
