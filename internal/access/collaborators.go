package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adanyl0v/go-todo-share/internal/models"
)

// Resolver maps collaborator references to known users. Both methods
// return models.ErrUserNotFound for unknown users.
type Resolver interface {
	ResolveEmail(ctx context.Context, email string) (*models.User, error)
	ResolveID(ctx context.Context, userID string) (*models.User, error)
}

// CollaboratorRef is a collaborator as submitted by a client. Email wins
// over UserID when both are set.
type CollaboratorRef struct {
	UserID string
	Email  string
	Role   string
}

type Engine struct {
	resolver Resolver
}

func NewEngine(resolver Resolver) *Engine {
	return &Engine{resolver: resolver}
}

// ResolveCollaborators turns refs into collaborator entries for a task
// owned by ownerID, keeping the submitted order.
func (e *Engine) ResolveCollaborators(ctx context.Context, ownerID string, refs []CollaboratorRef) ([]models.Collaborator, error) {
	collaborators := make([]models.Collaborator, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		c, err := e.ResolveCollaborator(ctx, ownerID, ref)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[c.UserID]; ok {
			return nil, fmt.Errorf("%w: user %s listed twice", models.ErrDuplicateCollaborator, c.UserID)
		}
		seen[c.UserID] = struct{}{}
		collaborators = append(collaborators, c)
	}
	return collaborators, nil
}

func (e *Engine) ResolveCollaborator(ctx context.Context, ownerID string, ref CollaboratorRef) (models.Collaborator, error) {
	role, err := models.ParseRole(ref.Role)
	if err != nil {
		return models.Collaborator{}, err
	}

	user, err := e.resolve(ctx, ref)
	if err != nil {
		return models.Collaborator{}, err
	}
	if user.ID == ownerID {
		return models.Collaborator{}, fmt.Errorf("%w: the owner cannot be a collaborator", models.ErrInvalidInput)
	}
	return models.Collaborator{UserID: user.ID, Role: role}, nil
}

func (e *Engine) resolve(ctx context.Context, ref CollaboratorRef) (*models.User, error) {
	email := strings.TrimSpace(ref.Email)
	userID := strings.TrimSpace(ref.UserID)

	var (
		user *models.User
		err  error
		key  string
	)
	switch {
	case email != "":
		key = "email " + email
		user, err = e.resolver.ResolveEmail(ctx, email)
	case userID != "":
		key = "id " + userID
		user, err = e.resolver.ResolveID(ctx, userID)
	default:
		return nil, fmt.Errorf("%w: collaborator must have user id or email", models.ErrInvalidInput)
	}
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: no user with %s", models.ErrCollaboratorNotFound, key)
		}
		return nil, err
	}
	return user, nil
}

// ValidateAddition checks c against the current state of task.
func ValidateAddition(task *models.Task, c models.Collaborator) error {
	if task.IsOwner(c.UserID) {
		return fmt.Errorf("%w: the owner cannot be a collaborator", models.ErrInvalidInput)
	}
	if _, ok := task.Collaborator(c.UserID); ok {
		return fmt.Errorf("%w: user %s", models.ErrDuplicateCollaborator, c.UserID)
	}
	return nil
}
