package models

import (
	"encoding/json"
	"slices"
)

type EventKind string

const (
	EventTaskCreated             EventKind = "task:created"
	EventTaskUpdated             EventKind = "task:updated"
	EventTaskDeleted             EventKind = "task:deleted"
	EventCollaboratorAdded       EventKind = "task:collaboratorAdded"
	EventCollaboratorRoleUpdated EventKind = "task:collaboratorRoleUpdated"
	EventCollaboratorRemoved     EventKind = "task:collaboratorRemoved"
)

// ChangeEvent describes one committed mutation. Audience lists every user
// entitled to see it and is used for routing only.
type ChangeEvent struct {
	Kind     EventKind       `json:"kind"`
	TaskID   string          `json:"taskId"`
	Version  int64           `json:"version"`
	Payload  json.RawMessage `json:"payload"`
	Audience []string        `json:"audience,omitempty"`
}

func (e *ChangeEvent) Concerns(userID string) bool {
	return slices.Contains(e.Audience, userID)
}

type TaskDeletedPayload struct {
	ID string `json:"id"`
}

type CollaboratorAddedPayload struct {
	TaskID string `json:"taskId"`
	UserID string `json:"user"`
	Role   Role   `json:"role"`
}

type CollaboratorRoleUpdatedPayload struct {
	TaskID         string `json:"taskId"`
	CollaboratorID string `json:"collaboratorId"`
	Role           Role   `json:"role"`
}

type CollaboratorRemovedPayload struct {
	TaskID         string `json:"taskId"`
	CollaboratorID string `json:"collaboratorId"`
}
