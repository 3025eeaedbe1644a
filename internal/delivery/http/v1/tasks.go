package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-share/internal/access"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

type collaboratorRequest struct {
	User  string `json:"user"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r collaboratorRequest) ref() access.CollaboratorRef {
	return access.CollaboratorRef{
		UserID: r.User,
		Email:  r.Email,
		Role:   r.Role,
	}
}

func collaboratorRefs(reqs []collaboratorRequest) []access.CollaboratorRef {
	refs := make([]access.CollaboratorRef, len(reqs))
	for i, r := range reqs {
		refs[i] = r.ref()
	}
	return refs
}

type createTaskRequest struct {
	Title         string                `json:"title" binding:"required,max=255"`
	Description   string                `json:"description"`
	DueDate       *time.Time            `json:"dueDate"`
	Priority      string                `json:"priority"`
	IsCompleted   bool                  `json:"isCompleted"`
	Collaborators []collaboratorRequest `json:"collaborators"`
}

// optionalTime tells an absent field apart from an explicit null.
type optionalTime struct {
	Set  bool
	Time *time.Time
}

func (t *optionalTime) UnmarshalJSON(data []byte) error {
	t.Set = true
	if bytes.Equal(data, []byte("null")) {
		t.Time = nil
		return nil
	}
	var v time.Time
	err := json.Unmarshal(data, &v)
	if err != nil {
		return err
	}
	t.Time = &v
	return nil
}

type updateTaskRequest struct {
	Title         *string                `json:"title" binding:"omitempty,max=255"`
	Description   *string                `json:"description"`
	DueDate       optionalTime           `json:"dueDate"`
	Priority      *string                `json:"priority"`
	IsCompleted   *bool                  `json:"isCompleted"`
	Collaborators *[]collaboratorRequest `json:"collaborators"`
}

func (r updateTaskRequest) params(taskID string) services.UpdateTaskParams {
	params := services.UpdateTaskParams{
		TaskID: taskID,
		Content: services.TaskContent{
			Title:       r.Title,
			Description: r.Description,
			Priority:    r.Priority,
			IsCompleted: r.IsCompleted,
		},
	}
	if r.DueDate.Set {
		if r.DueDate.Time == nil {
			params.Content.ClearDueDate = true
		} else {
			params.Content.DueDate = r.DueDate.Time
		}
	}
	if r.Collaborators != nil {
		refs := collaboratorRefs(*r.Collaborators)
		params.Collaborators = &refs
	}
	return params
}

func (h *handlerImpl) HandleGetTasks(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)

	tasks, err := h.tasks.ListTasks(c, userID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to list tasks")
		abort(c, newServiceError(err))
		return
	}

	h.logger.Info().
		Int("count", len(tasks)).
		Msg("fetched tasks")
	respond(c, http.StatusOK, tasks, "Tasks fetched")
}

func (h *handlerImpl) HandleGetTask(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)

	task, err := h.tasks.GetTask(c, userID, c.Param("id"))
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", c.Param("id")).
			Msg("failed to get task")
		abort(c, newServiceError(err))
		return
	}

	setETag(c, task.Version)
	respond(c, http.StatusOK, task, "Task fetched")
}

func (h *handlerImpl) HandleCreateTask(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)

	var req createTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.CreateTask(c, userID, services.CreateTaskParams{
		Title:         req.Title,
		Description:   req.Description,
		DueDate:       req.DueDate,
		Priority:      req.Priority,
		IsCompleted:   req.IsCompleted,
		Collaborators: collaboratorRefs(req.Collaborators),
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to create task")
		abort(c, newServiceError(err))
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Msg("created task")
	setETag(c, task.Version)
	respond(c, http.StatusCreated, task, "Task created")
}

func (h *handlerImpl) HandleUpdateTask(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)
	taskID := c.Param("id")

	var req updateTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	params := req.params(taskID)
	params.ExpectedVersion, err = parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to parse If-Match header")
		abort(c, newBadRequestError(errInvalidIfMatch.Error()))
		return
	}

	task, err := h.tasks.UpdateTask(c, userID, params)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to update task")
		abort(c, newServiceError(err))
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Msg("updated task")
	setETag(c, task.Version)
	respond(c, http.StatusOK, task, "Task updated")
}

func (h *handlerImpl) HandleDeleteTask(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)
	taskID := c.Param("id")

	err := h.tasks.DeleteTask(c, userID, taskID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to delete task")
		abort(c, newServiceError(err))
		return
	}

	h.logger.Info().
		Str("task_id", taskID).
		Msg("deleted task")
	respond(c, http.StatusOK, nil, "Task deleted")
}

func setETag(c *gin.Context, version int64) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// parseIfMatch accepts a version as returned in ETag, quoted or not. An
// empty header means the update is unconditional.
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}
	header = strings.TrimPrefix(header, "W/")
	header = strings.Trim(header, `"`)

	version, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return nil, err
	}
	return &version, nil
}
