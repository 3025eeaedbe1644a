package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// ParsePriority returns PriorityMedium for an empty string.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.TrimSpace(s)); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
	}
}

type Role string

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole defaults an empty role to RoleViewer and rejects anything
// other than editor or viewer.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RoleViewer, nil
	case RoleEditor, RoleViewer:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

type Collaborator struct {
	UserID string `json:"user"`
	Role   Role   `json:"role"`
}

type Task struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"user"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	DueDate       *time.Time     `json:"dueDate,omitempty"`
	Priority      Priority       `json:"priority"`
	IsCompleted   bool           `json:"isCompleted"`
	Collaborators []Collaborator `json:"collaborators"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (t *Task) IsOwner(userID string) bool {
	return userID != "" && t.OwnerID == userID
}

// Collaborator returns the entry for userID, if any.
func (t *Task) Collaborator(userID string) (Collaborator, bool) {
	i := t.collaboratorIndex(userID)
	if i < 0 {
		return Collaborator{}, false
	}
	return t.Collaborators[i], true
}

func (t *Task) AddCollaborator(c Collaborator) {
	t.Collaborators = append(t.Collaborators, c)
}

// SetCollaboratorRole reports false if userID is not a collaborator.
func (t *Task) SetCollaboratorRole(userID string, role Role) bool {
	i := t.collaboratorIndex(userID)
	if i < 0 {
		return false
	}
	t.Collaborators[i].Role = role
	return true
}

// RemoveCollaborator keeps the insertion order of the remaining entries.
func (t *Task) RemoveCollaborator(userID string) bool {
	i := t.collaboratorIndex(userID)
	if i < 0 {
		return false
	}
	t.Collaborators = slices.Delete(t.Collaborators, i, i+1)
	return true
}

// Members returns the owner followed by every collaborator.
func (t *Task) Members() []string {
	members := make([]string, 0, len(t.Collaborators)+1)
	members = append(members, t.OwnerID)
	for _, c := range t.Collaborators {
		members = append(members, c.UserID)
	}
	return members
}

func (t *Task) Clone() *Task {
	clone := *t
	clone.Collaborators = slices.Clone(t.Collaborators)
	if clone.Collaborators == nil {
		clone.Collaborators = []Collaborator{}
	}
	if t.DueDate != nil {
		due := *t.DueDate
		clone.DueDate = &due
	}
	return &clone
}

func (t *Task) collaboratorIndex(userID string) int {
	return slices.IndexFunc(t.Collaborators, func(c Collaborator) bool {
		return c.UserID == userID
	})
}

// TaskView is a task with owner and collaborator identities resolved
// for display.
type TaskView struct {
	ID            string             `json:"id"`
	Owner         UserSummary        `json:"user"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	DueDate       *time.Time         `json:"dueDate,omitempty"`
	Priority      Priority           `json:"priority"`
	IsCompleted   bool               `json:"isCompleted"`
	Collaborators []CollaboratorView `json:"collaborators"`
	Version       int64              `json:"version"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

type CollaboratorView struct {
	User UserSummary `json:"user"`
	Role Role        `json:"role"`
}
