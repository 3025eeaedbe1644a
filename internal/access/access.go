// Package access decides who may read, edit or re-share a task and
// validates collaborator lists before they reach the store.
package access

import (
	"fmt"

	"github.com/adanyl0v/go-todo-share/internal/models"
)

type Operation int

const (
	OpRead Operation = iota
	OpUpdateContent
	OpUpdateCollaborators
	OpDelete
	OpManageCollaborator
)

func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpUpdateContent:
		return "update content"
	case OpUpdateCollaborators:
		return "update collaborator list"
	case OpDelete:
		return "delete"
	case OpManageCollaborator:
		return "manage collaborators"
	default:
		return fmt.Sprintf("operation(%d)", int(op))
	}
}

// Relation is the standing of an actor towards one task.
type Relation int

const (
	RelationNone Relation = iota
	RelationViewer
	RelationEditor
	RelationOwner
)

func (r Relation) String() string {
	switch r {
	case RelationOwner:
		return "owner"
	case RelationEditor:
		return "editor"
	case RelationViewer:
		return "viewer"
	default:
		return "none"
	}
}

func RelationOf(actorID string, task *models.Task) Relation {
	if task.IsOwner(actorID) {
		return RelationOwner
	}
	c, ok := task.Collaborator(actorID)
	if !ok || actorID == "" {
		return RelationNone
	}
	if c.Role == models.RoleEditor {
		return RelationEditor
	}
	return RelationViewer
}

type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns nil for an allowed decision and an error wrapping
// models.ErrForbidden otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
}

var allowed = Decision{Allowed: true}

// Authorize is a total function of actor, task and operation.
func Authorize(actorID string, task *models.Task, op Operation) Decision {
	rel := RelationOf(actorID, task)
	switch op {
	case OpRead:
		if rel != RelationNone {
			return allowed
		}
		return Decision{Reason: "you do not have access to this task"}
	case OpUpdateContent:
		if rel == RelationOwner || rel == RelationEditor {
			return allowed
		}
		return Decision{Reason: "you do not have permission to edit this task"}
	case OpUpdateCollaborators, OpManageCollaborator:
		if rel == RelationOwner {
			return allowed
		}
		return Decision{Reason: "only the owner can manage collaborators"}
	case OpDelete:
		if rel == RelationOwner {
			return allowed
		}
		return Decision{Reason: "only the owner can delete this task"}
	default:
		return Decision{Reason: "unknown operation " + op.String()}
	}
}
