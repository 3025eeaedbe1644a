package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

var (
	errInvalidRequestBody = errors.New("invalid request body")
	errInvalidIfMatch     = errors.New("invalid If-Match header")
)

// envelope wraps every response body.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
	})
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newAPIError(code int, message string) apiError {
	return apiError{
		Code:    code,
		Message: message,
	}
}

func (e apiError) Error() string {
	return e.Message
}

func abort(c *gin.Context, err apiError) {
	c.AbortWithStatusJSON(err.Code, envelope{
		StatusCode: err.Code,
		Data:       nil,
		Message:    err.Message,
	})
}

func newStatusTextError(status int) apiError {
	return newAPIError(status, http.StatusText(status))
}

func newBadRequestError(message string) apiError {
	return newAPIError(http.StatusBadRequest, message)
}

func newUnauthorizedError(message string) apiError {
	return newAPIError(http.StatusUnauthorized, message)
}

func newConflictError(message string) apiError {
	return newAPIError(http.StatusConflict, message)
}

// newServiceError maps domain errors to responses. Unknown errors become
// a generic 500 so internals never leak.
func newServiceError(err error) apiError {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return newUnauthorizedError(err.Error())
	case errors.Is(err, models.ErrForbidden):
		return newAPIError(http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrTaskNotFound),
		errors.Is(err, models.ErrCollaboratorNotFound):
		return newAPIError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrDuplicateCollaborator):
		return newBadRequestError(err.Error())
	case errors.Is(err, models.ErrConflict),
		errors.Is(err, services.ErrUserAlreadyExists):
		return newConflictError(err.Error())
	default:
		return newStatusTextError(http.StatusInternalServerError)
	}
}
