package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-share/internal/access"
	"github.com/adanyl0v/go-todo-share/internal/models"
)

type taskServiceImpl struct {
	logger    zerolog.Logger
	store     TaskStore
	identity  IdentityService
	engine    *access.Engine
	publisher Publisher
}

func NewTaskService(
	logger zerolog.Logger,
	store TaskStore,
	identity IdentityService,
	publisher Publisher,
) TaskService {
	return &taskServiceImpl{
		logger:    logger,
		store:     store,
		identity:  identity,
		engine:    access.NewEngine(identity),
		publisher: publisher,
	}
}

func (s *taskServiceImpl) ListTasks(ctx context.Context, actorID string) ([]*models.TaskView, error) {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasksByMember(ctx, actorID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", actorID).
			Msg("failed to list tasks")
		return nil, err
	}

	views, err := s.views(ctx, tasks)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Int("count", len(views)).
		Str("user_id", actorID).
		Msg("listed tasks")
	return views, nil
}

func (s *taskServiceImpl) GetTask(ctx context.Context, actorID, taskID string) (*models.TaskView, error) {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	err = access.Authorize(actorID, task, access.OpRead).Err()
	if err != nil {
		s.logger.Warn().
			Str("task_id", taskID).
			Str("user_id", actorID).
			Msg("read denied")
		return nil, err
	}

	views, err := s.views(ctx, []*models.Task{task})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (s *taskServiceImpl) CreateTask(ctx context.Context, actorID string, params CreateTaskParams) (*models.Task, error) {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(params.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	priority, err := models.ParsePriority(params.Priority)
	if err != nil {
		return nil, err
	}

	collaborators, err := s.engine.ResolveCollaborators(ctx, actorID, params.Collaborators)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", actorID).
			Msg("failed to resolve collaborators")
		return nil, err
	}

	task := &models.Task{
		OwnerID:       actorID,
		Title:         params.Title,
		Description:   params.Description,
		DueDate:       params.DueDate,
		Priority:      priority,
		IsCompleted:   params.IsCompleted,
		Collaborators: collaborators,
	}
	task, err = s.store.CreateTask(ctx, task, func(committed *models.Task) {
		s.publish(models.EventTaskCreated, committed, committed)
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", actorID).
			Msg("failed to create task")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", actorID).
		Int("collaborators", len(task.Collaborators)).
		Msg("created task")
	return task, nil
}

func (s *taskServiceImpl) UpdateTask(ctx context.Context, actorID string, params UpdateTaskParams) (*models.Task, error) {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	err = validateContent(params.Content)
	if err != nil {
		return nil, err
	}

	var replacement []models.Collaborator
	replace := false
	if params.Collaborators != nil {
		// Ownership never changes, a pre-read is enough.
		current, err := s.store.GetTask(ctx, params.TaskID)
		if err != nil {
			return nil, err
		}
		if current.IsOwner(actorID) {
			replacement, err = s.engine.ResolveCollaborators(ctx, actorID, *params.Collaborators)
			if err != nil {
				s.logger.Error().
					Err(err).
					Str("task_id", params.TaskID).
					Msg("failed to resolve collaborators")
				return nil, err
			}
			replace = true
		} else {
			s.logger.Debug().
				Str("task_id", params.TaskID).
				Str("user_id", actorID).
				Msg("ignoring collaborator list from non-owner")
		}
	}

	if params.Content.IsEmpty() && !replace {
		task, err := s.store.GetTask(ctx, params.TaskID)
		if err != nil {
			return nil, err
		}
		err = access.Authorize(actorID, task, access.OpUpdateContent).Err()
		if err != nil {
			return nil, err
		}
		err = checkVersion(task, params.ExpectedVersion)
		if err != nil {
			return nil, err
		}
		s.logger.Warn().
			Str("task_id", task.ID).
			Msg("no fields to update")
		return task, nil
	}

	var previousMembers []string
	task, err := s.store.UpdateTask(ctx, params.TaskID, func(task *models.Task) error {
		err := checkVersion(task, params.ExpectedVersion)
		if err != nil {
			return err
		}
		err = access.Authorize(actorID, task, access.OpUpdateContent).Err()
		if err != nil {
			return err
		}
		previousMembers = task.Members()

		if replace {
			err = access.Authorize(actorID, task, access.OpUpdateCollaborators).Err()
			if err != nil {
				return err
			}
			task.Collaborators = replacement
		}
		applyContent(task, params.Content)
		return nil
	}, func(committed *models.Task) {
		s.publish(models.EventTaskUpdated, committed, committed, previousMembers...)
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", params.TaskID).
			Str("user_id", actorID).
			Msg("failed to update task")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", actorID).
		Int64("version", task.Version).
		Bool("collaborators_replaced", replace).
		Msg("updated task")
	return task, nil
}

func (s *taskServiceImpl) DeleteTask(ctx context.Context, actorID, taskID string) error {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return err
	}

	err = s.store.DeleteTask(ctx, taskID, func(task *models.Task) error {
		return access.Authorize(actorID, task, access.OpDelete).Err()
	}, func(deleted *models.Task) {
		s.publish(models.EventTaskDeleted, deleted, models.TaskDeletedPayload{ID: deleted.ID})
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Str("user_id", actorID).
			Msg("failed to delete task")
		return err
	}

	s.logger.Info().
		Str("task_id", taskID).
		Str("user_id", actorID).
		Msg("deleted task")
	return nil
}

func (s *taskServiceImpl) ShareTask(ctx context.Context, actorID string, params ShareTaskParams) (*models.Task, error) {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	err = s.precheckOwner(ctx, actorID, params.TaskID)
	if err != nil {
		return nil, err
	}
	collaborator, err := s.engine.ResolveCollaborator(ctx, actorID, params.Collaborator)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", params.TaskID).
			Msg("failed to resolve collaborator")
		return nil, err
	}

	task, err := s.store.UpdateTask(ctx, params.TaskID, func(task *models.Task) error {
		err := access.Authorize(actorID, task, access.OpManageCollaborator).Err()
		if err != nil {
			return err
		}
		err = access.ValidateAddition(task, collaborator)
		if err != nil {
			return err
		}
		task.AddCollaborator(collaborator)
		return nil
	}, func(committed *models.Task) {
		s.publish(models.EventCollaboratorAdded, committed, models.CollaboratorAddedPayload{
			TaskID: committed.ID,
			UserID: collaborator.UserID,
			Role:   collaborator.Role,
		})
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", params.TaskID).
			Str("collaborator_id", collaborator.UserID).
			Msg("failed to add collaborator")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("collaborator_id", collaborator.UserID).
		Str("role", string(collaborator.Role)).
		Msg("added collaborator")
	return task, nil
}

func (s *taskServiceImpl) UpdateCollaboratorRole(ctx context.Context, actorID string, params UpdateCollaboratorRoleParams) (*models.Task, error) {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	role, err := models.ParseRole(params.Role)
	if err != nil {
		return nil, err
	}
	err = s.precheckOwner(ctx, actorID, params.TaskID)
	if err != nil {
		return nil, err
	}

	collaboratorID := params.CollaboratorID
	if email := strings.TrimSpace(params.Email); email != "" {
		user, err := s.identity.ResolveEmail(ctx, email)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				return nil, fmt.Errorf("%w: no user with email %s", models.ErrCollaboratorNotFound, email)
			}
			return nil, err
		}
		collaboratorID = user.ID
	}

	task, err := s.store.UpdateTask(ctx, params.TaskID, func(task *models.Task) error {
		err := access.Authorize(actorID, task, access.OpManageCollaborator).Err()
		if err != nil {
			return err
		}
		if !task.SetCollaboratorRole(collaboratorID, role) {
			return fmt.Errorf("%w: user %s", models.ErrCollaboratorNotFound, collaboratorID)
		}
		return nil
	}, func(committed *models.Task) {
		s.publish(models.EventCollaboratorRoleUpdated, committed, models.CollaboratorRoleUpdatedPayload{
			TaskID:         committed.ID,
			CollaboratorID: collaboratorID,
			Role:           role,
		})
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", params.TaskID).
			Str("collaborator_id", collaboratorID).
			Msg("failed to update collaborator role")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("collaborator_id", collaboratorID).
		Str("role", string(role)).
		Msg("updated collaborator role")
	return task, nil
}

func (s *taskServiceImpl) UnshareTask(ctx context.Context, actorID, taskID, collaboratorID string) (*models.Task, error) {
	err := s.ensureActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	task, err := s.store.UpdateTask(ctx, taskID, func(task *models.Task) error {
		err := access.Authorize(actorID, task, access.OpManageCollaborator).Err()
		if err != nil {
			return err
		}
		if !task.RemoveCollaborator(collaboratorID) {
			return fmt.Errorf("%w: user %s", models.ErrCollaboratorNotFound, collaboratorID)
		}
		return nil
	}, func(committed *models.Task) {
		s.publish(models.EventCollaboratorRemoved, committed, models.CollaboratorRemovedPayload{
			TaskID:         committed.ID,
			CollaboratorID: collaboratorID,
		}, collaboratorID)
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Str("collaborator_id", collaboratorID).
			Msg("failed to remove collaborator")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("collaborator_id", collaboratorID).
		Msg("removed collaborator")
	return task, nil
}

func checkVersion(task *models.Task, expected *int64) error {
	if expected != nil && task.Version != *expected {
		return fmt.Errorf("%w: expected version %d, current %d",
			models.ErrConflict, *expected, task.Version)
	}
	return nil
}

func (s *taskServiceImpl) ensureActor(ctx context.Context, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("%w: no user identity", models.ErrUnauthorized)
	}
	_, err := s.identity.ResolveID(ctx, actorID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.logger.Warn().
				Str("user_id", actorID).
				Msg("unknown actor")
			return fmt.Errorf("%w: unknown user", models.ErrUnauthorized)
		}
		return err
	}
	return nil
}

// precheckOwner rejects non-owners before any collaborator lookup, so
// denied callers can't probe which emails exist. The store transaction
// checks again.
func (s *taskServiceImpl) precheckOwner(ctx context.Context, actorID, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return access.Authorize(actorID, task, access.OpManageCollaborator).Err()
}

func (s *taskServiceImpl) publish(kind models.EventKind, task *models.Task, payload any, extraAudience ...string) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Str("event", string(kind)).
			Msg("failed to marshal event payload")
		return
	}

	audience := task.Members()
	for _, userID := range extraAudience {
		if !slices.Contains(audience, userID) {
			audience = append(audience, userID)
		}
	}

	s.publisher.Publish(models.ChangeEvent{
		Kind:     kind,
		TaskID:   task.ID,
		Version:  task.Version,
		Payload:  data,
		Audience: audience,
	})
	s.logger.Debug().
		Str("task_id", task.ID).
		Str("event", string(kind)).
		Int64("version", task.Version).
		Msg("published change")
}

func (s *taskServiceImpl) views(ctx context.Context, tasks []*models.Task) ([]*models.TaskView, error) {
	var userIDs []string
	for _, task := range tasks {
		userIDs = append(userIDs, task.Members()...)
	}
	slices.Sort(userIDs)
	userIDs = slices.Compact(userIDs)

	users, err := s.identity.Summaries(ctx, userIDs)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("count", len(userIDs)).
			Msg("failed to resolve users")
		return nil, err
	}

	views := make([]*models.TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, newTaskView(task, users))
	}
	return views, nil
}

func newTaskView(task *models.Task, users map[string]models.UserSummary) *models.TaskView {
	summary := func(userID string) models.UserSummary {
		if u, ok := users[userID]; ok {
			return u
		}
		return models.UserSummary{ID: userID}
	}

	collaborators := make([]models.CollaboratorView, 0, len(task.Collaborators))
	for _, c := range task.Collaborators {
		collaborators = append(collaborators, models.CollaboratorView{
			User: summary(c.UserID),
			Role: c.Role,
		})
	}
	return &models.TaskView{
		ID:            task.ID,
		Owner:         summary(task.OwnerID),
		Title:         task.Title,
		Description:   task.Description,
		DueDate:       task.DueDate,
		Priority:      task.Priority,
		IsCompleted:   task.IsCompleted,
		Collaborators: collaborators,
		Version:       task.Version,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}
}

func validateContent(content TaskContent) error {
	if content.Title != nil && strings.TrimSpace(*content.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", models.ErrInvalidInput)
	}
	if content.Priority != nil {
		_, err := models.ParsePriority(*content.Priority)
		if err != nil {
			return err
		}
	}
	if content.ClearDueDate && content.DueDate != nil {
		return fmt.Errorf("%w: due date can't be set and cleared at once", models.ErrInvalidInput)
	}
	return nil
}

// applyContent expects content to have passed validateContent.
func applyContent(task *models.Task, content TaskContent) {
	if content.Title != nil {
		task.Title = *content.Title
	}
	if content.Description != nil {
		task.Description = *content.Description
	}
	if content.DueDate != nil {
		due := *content.DueDate
		task.DueDate = &due
	}
	if content.ClearDueDate {
		task.DueDate = nil
	}
	if content.Priority != nil {
		task.Priority, _ = models.ParsePriority(*content.Priority)
	}
	if content.IsCompleted != nil {
		task.IsCompleted = *content.IsCompleted
	}
}
