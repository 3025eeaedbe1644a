package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

const accessTokenCookie = "access_token"

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email,max=255"`
	Password string `json:"password" form:"password" binding:"required,min=6,max=255"`
}

type registerRequest struct {
	Username string `json:"username" form:"username" binding:"required,max=255"`
	loginRequest
}

type loginResponse struct {
	AccessToken string             `json:"accessToken"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	User        models.UserSummary `json:"user"`
}

func newLoginResponse(result *services.LoginResult) loginResponse {
	return loginResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.AccessTokenExpiresAt,
		User:        result.User.Summary(),
	}
}

func (h *handlerImpl) HandleLogin(c *gin.Context) {
	var req loginRequest
	err := c.ShouldBind(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind request body")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	result, err := h.auth.Login(c, services.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to login")
		switch {
		case errors.Is(err, services.ErrUserNotFound),
			errors.Is(err, services.ErrUserPasswordMismatch):
			abort(c, newUnauthorizedError("invalid email or password"))
		default:
			abort(c, newStatusTextError(http.StatusInternalServerError))
		}
		return
	}

	setAccessTokenCookie(c, result.AccessToken, time.Until(result.AccessTokenExpiresAt))
	respond(c, http.StatusOK, newLoginResponse(result), "Logged in")
}

func (h *handlerImpl) HandleRegister(c *gin.Context) {
	var req registerRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}
	h.logger.Info().
		Str("email", req.Email).
		Msg("register request")

	result, err := h.auth.Register(c, services.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to register user")
		switch {
		case errors.Is(err, services.ErrUserAlreadyExists):
			abort(c, newConflictError(services.ErrUserAlreadyExists.Error()))
		default:
			abort(c, newStatusTextError(http.StatusInternalServerError))
		}
		return
	}

	setAccessTokenCookie(c, result.AccessToken, time.Until(result.AccessTokenExpiresAt))
	respond(c, http.StatusCreated, newLoginResponse(result), "Registered")
}

// HandleLogout only drops the cookie. Access tokens are stateless and
// expire on their own.
func (h *handlerImpl) HandleLogout(c *gin.Context) {
	clearCookie(c, accessTokenCookie)
	respond(c, http.StatusOK, nil, "Logged out")
}

func setAccessTokenCookie(c *gin.Context, token string, maxAge time.Duration) {
	// httpOnly must be false to allow client-side JavaScript
	// to read the cookie and send it in the Authorization header.
	const secure, httpOnly = false, false
	c.SetCookie(accessTokenCookie, token, int(maxAge.Seconds()),
		"/", "", secure, httpOnly)
}

func clearCookie(c *gin.Context, name string) {
	c.SetCookie(name, "", -1,
		"/", "", false, false)
}
