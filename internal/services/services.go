package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adanyl0v/go-todo-share/internal/access"
	"github.com/adanyl0v/go-todo-share/internal/models"
)

var (
	ErrUserNotFound         = models.ErrUserNotFound
	ErrUserAlreadyExists    = models.ErrUserAlreadyExists
	ErrUserPasswordMismatch = errors.New("user password mismatch")
)

type AuthService interface {
	// Register creates a user with the given username, email and
	// password and issues an access token for it.
	//
	// It returns ErrUserAlreadyExists if the email is taken.
	Register(ctx context.Context, params RegisterParams) (*LoginResult, error)

	// Login authenticates the user by email and password.
	//
	// It returns ErrUserNotFound if the user with the given
	// email doesn't exist or ErrUserPasswordMismatch if the
	// given password doesn't match the user's password.
	Login(ctx context.Context, params LoginParams) (*LoginResult, error)

	// ParseAccessToken parses the given JWT token and returns the
	// registered claims, whose subject is the user ID, or an error
	// wrapping jwt.ErrTokenExpired if the token is expired.
	ParseAccessToken(token string) (*jwt.RegisteredClaims, error)
}

// IdentityService resolves users for the collaboration core. Users are
// immutable from the core's perspective, so lookups may be cached.
type IdentityService interface {
	access.Resolver

	// Summaries returns display records keyed by user ID. Unknown IDs
	// are omitted.
	Summaries(ctx context.Context, userIDs []string) (map[string]models.UserSummary, error)
}

// TaskService is the collaboration core. Every method returns
// models.ErrUnauthorized if actorID is not a known user.
type TaskService interface {
	// ListTasks returns every task actorID owns or collaborates on,
	// newest first.
	ListTasks(ctx context.Context, actorID string) ([]*models.TaskView, error)

	// GetTask returns one task the actor may read.
	GetTask(ctx context.Context, actorID, taskID string) (*models.TaskView, error)

	// CreateTask makes actorID the owner of a new task.
	CreateTask(ctx context.Context, actorID string, params CreateTaskParams) (*models.Task, error)

	// UpdateTask applies content changes for the owner or an editor.
	// The collaborator list is replaced only when the actor is the owner.
	UpdateTask(ctx context.Context, actorID string, params UpdateTaskParams) (*models.Task, error)

	// DeleteTask removes the task. Owner only.
	DeleteTask(ctx context.Context, actorID, taskID string) error

	// ShareTask adds one collaborator. Owner only.
	ShareTask(ctx context.Context, actorID string, params ShareTaskParams) (*models.Task, error)

	// UpdateCollaboratorRole changes the role of an existing collaborator.
	// Owner only.
	UpdateCollaboratorRole(ctx context.Context, actorID string, params UpdateCollaboratorRoleParams) (*models.Task, error)

	// UnshareTask removes one collaborator. Owner only.
	UnshareTask(ctx context.Context, actorID, taskID, collaboratorID string) (*models.Task, error)
}

// MutateFunc runs inside the store's transaction against the locked,
// freshly read task. Returning an error aborts without writing.
type MutateFunc func(task *models.Task) error

// CommitHook runs after a successful commit while the task is still
// locked, so hooks observe commits in order.
type CommitHook func(task *models.Task)

type TaskStore interface {
	// CreateTask assigns the ID, version and timestamps.
	CreateTask(ctx context.Context, task *models.Task, onCommit CommitHook) (*models.Task, error)

	// GetTask returns ErrTaskNotFound if the task doesn't exist.
	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// ListTasksByMember returns tasks owned by or shared with userID.
	ListTasksByMember(ctx context.Context, userID string) ([]*models.Task, error)

	// UpdateTask reads the task under a write lock, applies mutate and
	// persists the result with an incremented version.
	UpdateTask(ctx context.Context, taskID string, mutate MutateFunc, onCommit CommitHook) (*models.Task, error)

	// DeleteTask reads the task under a write lock, runs check and
	// deletes it.
	DeleteTask(ctx context.Context, taskID string, check MutateFunc, onCommit CommitHook) error
}

type UserStore interface {
	// CreateUser returns ErrUserAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Publisher receives every committed change. Implementations must not
// block; delivery problems are theirs to handle.
type Publisher interface {
	Publish(event models.ChangeEvent)
}

type RegisterParams struct {
	Username string
	Email    string
	Password string
}

type LoginParams struct {
	Email    string
	Password string
}

type LoginResult struct {
	User                 *models.User
	AccessToken          string
	AccessTokenExpiresAt time.Time
}

type CreateTaskParams struct {
	Title         string
	Description   string
	DueDate       *time.Time
	Priority      string
	IsCompleted   bool
	Collaborators []access.CollaboratorRef
}

// TaskContent holds the content fields an editor may change. Nil means
// unchanged.
type TaskContent struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	ClearDueDate bool
	Priority     *string
	IsCompleted  *bool
}

func (c TaskContent) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.DueDate == nil &&
		!c.ClearDueDate && c.Priority == nil && c.IsCompleted == nil
}

type UpdateTaskParams struct {
	TaskID  string
	Content TaskContent

	// Collaborators replaces the whole list when the actor is the owner
	// and is ignored otherwise.
	Collaborators *[]access.CollaboratorRef

	// ExpectedVersion makes the update conditional.
	ExpectedVersion *int64
}

type ShareTaskParams struct {
	TaskID       string
	Collaborator access.CollaboratorRef
}

type UpdateCollaboratorRoleParams struct {
	TaskID         string
	CollaboratorID string
	// Email identifies the collaborator instead of CollaboratorID when set.
	Email string
	Role  string
}
