package access

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-todo-share/internal/models"
)

type fakeResolver map[string]*models.User

func (r fakeResolver) ResolveEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range r {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (r fakeResolver) ResolveID(_ context.Context, userID string) (*models.User, error) {
	u, ok := r[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func newTestEngine() *Engine {
	return NewEngine(fakeResolver{
		"u1": {ID: "u1", Email: "one@example.com"},
		"u2": {ID: "u2", Email: "two@example.com"},
		"u3": {ID: "u3", Email: "three@example.com"},
	})
}

func TestResolveCollaborators(t *testing.T) {
	engine := newTestEngine()

	got, err := engine.ResolveCollaborators(context.Background(), "u1", []CollaboratorRef{
		{Email: "THREE@example.com", Role: "editor"},
		{UserID: "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.Collaborator{
		{UserID: "u3", Role: models.RoleEditor},
		{UserID: "u2", Role: models.RoleViewer},
	}, got)
}

func TestResolveCollaboratorsErrors(t *testing.T) {
	tests := []struct {
		name string
		refs []CollaboratorRef
		want error
	}{
		{
			name: "unknown email",
			refs: []CollaboratorRef{{Email: "nobody@example.com"}},
			want: models.ErrCollaboratorNotFound,
		},
		{
			name: "unknown id",
			refs: []CollaboratorRef{{UserID: "u9"}},
			want: models.ErrCollaboratorNotFound,
		},
		{
			name: "empty reference",
			refs: []CollaboratorRef{{Role: "viewer"}},
			want: models.ErrInvalidInput,
		},
		{
			name: "owner",
			refs: []CollaboratorRef{{UserID: "u1"}},
			want: models.ErrInvalidInput,
		},
		{
			name: "bad role",
			refs: []CollaboratorRef{{UserID: "u2", Role: "admin"}},
			want: models.ErrInvalidInput,
		},
		{
			name: "listed twice",
			refs: []CollaboratorRef{{UserID: "u2"}, {Email: "two@example.com", Role: "editor"}},
			want: models.ErrDuplicateCollaborator,
		},
	}
	engine := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.ResolveCollaborators(context.Background(), "u1", tt.refs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEmailWinsOverID(t *testing.T) {
	c, err := newTestEngine().ResolveCollaborator(context.Background(), "u1", CollaboratorRef{
		UserID: "u2",
		Email:  "three@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "u3", c.UserID)
}

func TestValidateAddition(t *testing.T) {
	task := &models.Task{
		ID:            "t1",
		OwnerID:       "u1",
		Collaborators: []models.Collaborator{{UserID: "u2", Role: models.RoleViewer}},
	}

	assert.NoError(t, ValidateAddition(task, models.Collaborator{UserID: "u3"}))
	assert.ErrorIs(t, ValidateAddition(task, models.Collaborator{UserID: "u2"}), models.ErrDuplicateCollaborator)
	assert.ErrorIs(t, ValidateAddition(task, models.Collaborator{UserID: "u1"}), models.ErrInvalidInput)
}
