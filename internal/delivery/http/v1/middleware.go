package v1

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDCtxKey = "user_id"

var (
	errTokenRequired = errors.New("access token required")
	errTokenExpired  = errors.New("access token expired")
	errTokenInvalid  = errors.New("invalid access token")
)

// HandleAuthMiddleware takes the access token from the Authorization
// header, the access_token cookie or the token query parameter, in that
// order. Browsers can't set headers on a WebSocket handshake, hence the
// last two.
func (h *handlerImpl) HandleAuthMiddleware(c *gin.Context) {
	accessToken, err := extractAccessToken(c)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("no access token")
		abort(c, newUnauthorizedError(err.Error()))
		return
	}

	claims, err := h.auth.ParseAccessToken(accessToken)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to parse token")
		if errors.Is(err, jwt.ErrTokenExpired) {
			abort(c, newUnauthorizedError(errTokenExpired.Error()))
			return
		}
		abort(c, newUnauthorizedError(errTokenInvalid.Error()))
		return
	}

	c.Set(userIDCtxKey, claims.Subject)
	c.Next()
}

func extractAccessToken(c *gin.Context) (string, error) {
	const authHeader = "Authorization"
	if header := c.GetHeader(authHeader); header != "" {
		const bearerPrefix = "Bearer"
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != bearerPrefix || parts[1] == "" {
			return "", errors.New("invalid authorization header")
		}
		return parts[1], nil
	}

	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token, nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errTokenRequired
}

func getStringFromContext(c *gin.Context, key string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}
