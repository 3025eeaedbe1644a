package models

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrTaskNotFound          = errors.New("task not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrCollaboratorNotFound  = errors.New("collaborator not found")
	ErrDuplicateCollaborator = errors.New("collaborator already added")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("task was modified concurrently")
)
