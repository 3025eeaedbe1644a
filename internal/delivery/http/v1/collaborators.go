package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-share/internal/services"
)

// updateCollaboratorRoleRequest picks the collaborator by Email when set,
// otherwise by the path. An empty Role means viewer.
type updateCollaboratorRoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *handlerImpl) HandleAddCollaborator(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)
	taskID := c.Param("id")

	var req collaboratorRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.ShareTask(c, userID, services.ShareTaskParams{
		TaskID:       taskID,
		Collaborator: req.ref(),
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to add collaborator")
		abort(c, newServiceError(err))
		return
	}

	setETag(c, task.Version)
	respond(c, http.StatusCreated, task, "Collaborator added")
}

func (h *handlerImpl) HandleUpdateCollaboratorRole(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)
	taskID := c.Param("id")

	var req updateCollaboratorRoleRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.UpdateCollaboratorRole(c, userID, services.UpdateCollaboratorRoleParams{
		TaskID:         taskID,
		CollaboratorID: c.Param("collaboratorId"),
		Email:          req.Email,
		Role:           req.Role,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to update collaborator role")
		abort(c, newServiceError(err))
		return
	}

	setETag(c, task.Version)
	respond(c, http.StatusOK, task, "Collaborator role updated")
}

func (h *handlerImpl) HandleRemoveCollaborator(c *gin.Context) {
	userID, _ := getStringFromContext(c, userIDCtxKey)
	taskID := c.Param("id")

	task, err := h.tasks.UnshareTask(c, userID, taskID, c.Param("collaboratorId"))
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to remove collaborator")
		abort(c, newServiceError(err))
		return
	}

	setETag(c, task.Version)
	respond(c, http.StatusOK, task, "Collaborator removed")
}
