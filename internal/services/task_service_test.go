package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-todo-share/internal/access"
	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
	"github.com/adanyl0v/go-todo-share/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) Publish(event models.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []models.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ChangeEvent(nil), p.events...)
}

func (p *recordingPublisher) Last() models.ChangeEvent {
	events := p.Events()
	return events[len(events)-1]
}

type fixture struct {
	svc       services.TaskService
	tasks     *memory.TaskStore
	publisher *recordingPublisher
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()

	users := memory.NewUserStore()
	for _, id := range userIDs {
		require.NoError(t, users.CreateUser(context.Background(), &models.User{
			ID:       id,
			Username: id,
			Email:    id + "@example.com",
		}))
	}
	identity, err := services.NewIdentityService(zerolog.Nop(), users, 16)
	require.NoError(t, err)

	f := &fixture{
		tasks:     memory.NewTaskStore(),
		publisher: &recordingPublisher{},
	}
	f.svc = services.NewTaskService(zerolog.Nop(), f.tasks, identity, f.publisher)
	return f
}

func ptr[T any](v T) *T {
	return &v
}

func taskIDs(views []*models.TaskView) []string {
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")

	// A
	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{Title: "Write report"})
	require.NoError(t, err)

	list, err := f.svc.ListTasks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, task.ID, list[0].ID)
	assert.Equal(t, models.PriorityMedium, list[0].Priority)
	assert.False(t, list[0].IsCompleted)
	assert.Equal(t, "u1", list[0].Owner.ID)
	assert.Equal(t, "u1@example.com", list[0].Owner.Email)
	assert.Equal(t, models.EventTaskCreated, f.publisher.Last().Kind)

	// B
	_, err = f.svc.ShareTask(ctx, "u1", services.ShareTaskParams{
		TaskID:       task.ID,
		Collaborator: access.CollaboratorRef{UserID: "u2", Role: "viewer"},
	})
	require.NoError(t, err)

	list, err = f.svc.ListTasks(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, taskIDs(list))

	before, err := f.tasks.GetTask(ctx, task.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateTask(ctx, "u2", services.UpdateTaskParams{
		TaskID:  task.ID,
		Content: services.TaskContent{Title: ptr("Hijacked")},
	})
	assert.ErrorIs(t, err, models.ErrForbidden)
	after, err := f.tasks.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// C
	_, err = f.svc.UpdateCollaboratorRole(ctx, "u1", services.UpdateCollaboratorRoleParams{
		TaskID:         task.ID,
		CollaboratorID: "u2",
		Role:           "editor",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventCollaboratorRoleUpdated, f.publisher.Last().Kind)

	updated, err := f.svc.UpdateTask(ctx, "u2", services.UpdateTaskParams{
		TaskID:  task.ID,
		Content: services.TaskContent{Title: ptr("Write final report")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Write final report", updated.Title)
	for _, actor := range []string{"u1", "u2"} {
		list, err = f.svc.ListTasks(ctx, actor)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Write final report", list[0].Title)
	}
	event := f.publisher.Last()
	assert.Equal(t, models.EventTaskUpdated, event.Kind)
	assert.Equal(t, task.ID, event.TaskID)
	assert.Equal(t, updated.Version, event.Version)
	assert.ElementsMatch(t, []string{"u1", "u2"}, event.Audience)

	// D
	collaboratorsBefore := updated.Collaborators
	updated, err = f.svc.UpdateTask(ctx, "u2", services.UpdateTaskParams{
		TaskID:        task.ID,
		Content:       services.TaskContent{Description: ptr("with appendix")},
		Collaborators: &[]access.CollaboratorRef{},
	})
	require.NoError(t, err)
	assert.Equal(t, "with appendix", updated.Description)
	assert.Equal(t, collaboratorsBefore, updated.Collaborators)

	// E
	require.NoError(t, f.svc.DeleteTask(ctx, "u1", task.ID))
	for _, actor := range []string{"u1", "u2"} {
		list, err = f.svc.ListTasks(ctx, actor)
		require.NoError(t, err)
		assert.Empty(t, list)
	}
	event = f.publisher.Last()
	assert.Equal(t, models.EventTaskDeleted, event.Kind)
	assert.JSONEq(t, `{"id":"`+task.ID+`"}`, string(event.Payload))
}

func TestNonEditorMutationsAreForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "owner", "viewer", "stranger", "other")

	task, err := f.svc.CreateTask(ctx, "owner", services.CreateTaskParams{
		Title:         "Plan",
		Collaborators: []access.CollaboratorRef{{UserID: "viewer"}},
	})
	require.NoError(t, err)
	published := len(f.publisher.Events())

	for _, actor := range []string{"viewer", "stranger"} {
		t.Run(actor, func(t *testing.T) {
			_, err := f.svc.UpdateTask(ctx, actor, services.UpdateTaskParams{
				TaskID:  task.ID,
				Content: services.TaskContent{IsCompleted: ptr(true)},
			})
			assert.ErrorIs(t, err, models.ErrForbidden)

			err = f.svc.DeleteTask(ctx, actor, task.ID)
			assert.ErrorIs(t, err, models.ErrForbidden)

			_, err = f.svc.ShareTask(ctx, actor, services.ShareTaskParams{
				TaskID:       task.ID,
				Collaborator: access.CollaboratorRef{Email: "nobody@example.com"},
			})
			assert.ErrorIs(t, err, models.ErrForbidden, "denied callers must not learn whether an email exists")

			_, err = f.svc.UpdateCollaboratorRole(ctx, actor, services.UpdateCollaboratorRoleParams{
				TaskID:         task.ID,
				CollaboratorID: "viewer",
				Role:           "editor",
			})
			assert.ErrorIs(t, err, models.ErrForbidden)

			_, err = f.svc.UnshareTask(ctx, actor, task.ID, "viewer")
			assert.ErrorIs(t, err, models.ErrForbidden)
		})
	}

	got, err := f.tasks.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, got)
	assert.Len(t, f.publisher.Events(), published)

	_, err = f.svc.GetTask(ctx, "stranger", task.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestUnknownActorIsUnauthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")

	_, err := f.svc.ListTasks(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.CreateTask(ctx, "ghost", services.CreateTaskParams{Title: "x"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestListIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")

	for _, title := range []string{"a", "b", "c"} {
		_, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{
			Title:         title,
			Collaborators: []access.CollaboratorRef{{UserID: "u2", Role: "editor"}},
		})
		require.NoError(t, err)
	}

	first, err := f.svc.ListTasks(ctx, "u1")
	require.NoError(t, err)
	second, err := f.svc.ListTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"c", "b", "a"}, []string{first[0].Title, first[1].Title, first[2].Title})
}

func TestCreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2", "u3")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{
		Title:       "Ship it",
		Description: "release notes",
		Priority:    "High",
		IsCompleted: true,
		Collaborators: []access.CollaboratorRef{
			{Email: "u3@example.com", Role: "editor"},
			{UserID: "u2"},
		},
	})
	require.NoError(t, err)

	view, err := f.svc.GetTask(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ship it", view.Title)
	assert.Equal(t, "release notes", view.Description)
	assert.Equal(t, models.PriorityHigh, view.Priority)
	assert.True(t, view.IsCompleted)
	require.Len(t, view.Collaborators, 2)
	assert.Equal(t, "u3", view.Collaborators[0].User.ID)
	assert.Equal(t, models.RoleEditor, view.Collaborators[0].Role)
	assert.Equal(t, "u2", view.Collaborators[1].User.ID)
	assert.Equal(t, models.RoleViewer, view.Collaborators[1].Role)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")

	tests := []struct {
		name   string
		params services.CreateTaskParams
		want   error
	}{
		{"blank title", services.CreateTaskParams{Title: "   "}, models.ErrInvalidInput},
		{"bad priority", services.CreateTaskParams{Title: "x", Priority: "Urgent"}, models.ErrInvalidInput},
		{"self collaborator", services.CreateTaskParams{
			Title:         "x",
			Collaborators: []access.CollaboratorRef{{UserID: "u1"}},
		}, models.ErrInvalidInput},
		{"unknown collaborator", services.CreateTaskParams{
			Title:         "x",
			Collaborators: []access.CollaboratorRef{{Email: "nobody@example.com"}},
		}, models.ErrCollaboratorNotFound},
		{"duplicate collaborator", services.CreateTaskParams{
			Title:         "x",
			Collaborators: []access.CollaboratorRef{{UserID: "u2"}, {UserID: "u2"}},
		}, models.ErrDuplicateCollaborator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTask(ctx, "u1", tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.publisher.Events())
}

func TestShareDuplicateKeepsList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{
		Title:         "x",
		Collaborators: []access.CollaboratorRef{{UserID: "u2"}},
	})
	require.NoError(t, err)

	_, err = f.svc.ShareTask(ctx, "u1", services.ShareTaskParams{
		TaskID:       task.ID,
		Collaborator: access.CollaboratorRef{Email: "u2@example.com", Role: "editor"},
	})
	assert.ErrorIs(t, err, models.ErrDuplicateCollaborator)

	got, err := f.tasks.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, got.Collaborators, 1)
	assert.Equal(t, models.RoleViewer, got.Collaborators[0].Role)
}

func TestShareAndUnshareEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{Title: "x"})
	require.NoError(t, err)

	_, err = f.svc.ShareTask(ctx, "u1", services.ShareTaskParams{
		TaskID:       task.ID,
		Collaborator: access.CollaboratorRef{Email: "U2@example.com", Role: "editor"},
	})
	require.NoError(t, err)

	event := f.publisher.Last()
	assert.Equal(t, models.EventCollaboratorAdded, event.Kind)
	var added models.CollaboratorAddedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &added))
	assert.Equal(t, models.CollaboratorAddedPayload{TaskID: task.ID, UserID: "u2", Role: models.RoleEditor}, added)

	updated, err := f.svc.UnshareTask(ctx, "u1", task.ID, "u2")
	require.NoError(t, err)
	assert.Empty(t, updated.Collaborators)

	event = f.publisher.Last()
	assert.Equal(t, models.EventCollaboratorRemoved, event.Kind)
	assert.True(t, event.Concerns("u2"), "the removed collaborator must hear about the removal")

	_, err = f.svc.UnshareTask(ctx, "u1", task.ID, "u2")
	assert.ErrorIs(t, err, models.ErrCollaboratorNotFound)

	_, err = f.svc.UpdateCollaboratorRole(ctx, "u1", services.UpdateCollaboratorRoleParams{
		TaskID:         task.ID,
		CollaboratorID: "u2",
		Role:           "editor",
	})
	assert.ErrorIs(t, err, models.ErrCollaboratorNotFound)

	_, err = f.svc.UpdateCollaboratorRole(ctx, "u1", services.UpdateCollaboratorRoleParams{
		TaskID: task.ID,
		Email:  "u2@example.com",
		Role:   "admin",
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestOwnerReplacesCollaborators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2", "u3")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{
		Title:         "x",
		Collaborators: []access.CollaboratorRef{{UserID: "u2"}},
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:        task.ID,
		Collaborators: &[]access.CollaboratorRef{{UserID: "u3", Role: "editor"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.Collaborator{{UserID: "u3", Role: models.RoleEditor}}, updated.Collaborators)
	assert.Equal(t, "u1", updated.OwnerID)

	event := f.publisher.Last()
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, event.Audience)
}

func TestUpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{Title: "x"})
	require.NoError(t, err)

	_, err = f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:          task.ID,
		Content:         services.TaskContent{Title: ptr("y")},
		ExpectedVersion: ptr(task.Version + 1),
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	updated, err := f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:          task.ID,
		Content:         services.TaskContent{Title: ptr("y")},
		ExpectedVersion: ptr(task.Version),
	})
	require.NoError(t, err)
	assert.Equal(t, task.Version+1, updated.Version)
}

func TestUpdateDueDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{Title: "x"})
	require.NoError(t, err)
	due := task.CreatedAt.Add(48 * time.Hour)

	updated, err := f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:  task.ID,
		Content: services.TaskContent{DueDate: &due},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.DueDate)
	assert.True(t, due.Equal(*updated.DueDate))

	updated, err = f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:  task.ID,
		Content: services.TaskContent{ClearDueDate: true},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.DueDate)

	_, err = f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:  task.ID,
		Content: services.TaskContent{DueDate: &due, ClearDueDate: true},
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEmptyUpdateDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{
		Title:         "x",
		Collaborators: []access.CollaboratorRef{{UserID: "u2"}},
	})
	require.NoError(t, err)
	published := len(f.publisher.Events())

	got, err := f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{TaskID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, task.Version, got.Version)
	assert.Len(t, f.publisher.Events(), published)

	_, err = f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:          task.ID,
		ExpectedVersion: ptr(task.Version + 98),
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.svc.UpdateTask(ctx, "u2", services.UpdateTaskParams{TaskID: task.ID})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestOwnershipIsImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", "u2")

	task, err := f.svc.CreateTask(ctx, "u1", services.CreateTaskParams{
		Title:         "x",
		Collaborators: []access.CollaboratorRef{{UserID: "u2", Role: "editor"}},
	})
	require.NoError(t, err)

	steps := []services.UpdateTaskParams{
		{TaskID: task.ID, Content: services.TaskContent{Title: ptr("a")}},
		{TaskID: task.ID, Collaborators: &[]access.CollaboratorRef{{UserID: "u2", Role: "editor"}}},
		{TaskID: task.ID, Content: services.TaskContent{IsCompleted: ptr(true)}},
	}
	for _, actor := range []string{"u1", "u2"} {
		for _, params := range steps {
			updated, err := f.svc.UpdateTask(ctx, actor, params)
			require.NoError(t, err)
			assert.Equal(t, "u1", updated.OwnerID)
		}
	}
}

func TestMissingTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1")

	_, err := f.svc.GetTask(ctx, "u1", "missing")
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
	_, err = f.svc.UpdateTask(ctx, "u1", services.UpdateTaskParams{
		TaskID:  "missing",
		Content: services.TaskContent{Title: ptr("x")},
	})
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
	assert.ErrorIs(t, f.svc.DeleteTask(ctx, "u1", "missing"), models.ErrTaskNotFound)
}

func TestConcurrentSharesKeepEveryCollaborator(t *testing.T) {
	ctx := context.Background()
	ids := []string{"owner"}
	for i := range 10 {
		ids = append(ids, "user"+string(rune('a'+i)))
	}
	f := newFixture(t, ids...)

	task, err := f.svc.CreateTask(ctx, "owner", services.CreateTaskParams{Title: "x"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range ids[1:] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ShareTask(ctx, "owner", services.ShareTaskParams{
				TaskID:       task.ID,
				Collaborator: access.CollaboratorRef{UserID: id},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.tasks.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, got.Collaborators, len(ids)-1)

	var versions []int64
	for _, event := range f.publisher.Events() {
		if event.Kind == models.EventCollaboratorAdded {
			versions = append(versions, event.Version)
		}
	}
	assert.IsIncreasing(t, versions)
}
