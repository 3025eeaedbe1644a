package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleHealth runs every registered check and answers 503 if any fails.
func (h *handlerImpl) HandleHealth(c *gin.Context) {
	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		err := check(c)
		if err != nil {
			h.logger.Error().
				Err(err).
				Str("check", name).
				Msg("health check failed")
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	respond(c, status, report, http.StatusText(status))
}
