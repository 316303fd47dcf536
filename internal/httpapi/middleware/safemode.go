package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/retailops/controlplane/internal/health"
	"github.com/retailops/controlplane/internal/httpapi/response"
)

const safeModeControlPrefix = "/system-mode/safe"

var writeMethods = map[string]bool{
	"POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// SafeModeGate blocks mutating requests while safe mode is enabled, except
// for the safe-mode control endpoint itself (otherwise nothing could ever
// disable it). A failure to read the safe-mode state fails closed — the
// spec treats an unknown state as if it were enabled.
func SafeModeGate(scorer *health.Scorer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !writeMethods[c.Request.Method] || strings.HasPrefix(c.Request.URL.Path, safeModeControlPrefix) {
			c.Next()
			return
		}

		state, err := scorer.SafeModeStatus(c.Request.Context())
		if err != nil {
			response.Error(c, 503, "SERVICE_IN_SAFE_MODE", "safe mode check failed")
			c.Abort()
			return
		}
		if state != nil && state.SafeMode {
			c.JSON(503, gin.H{"error": "SERVICE_IN_SAFE_MODE", "readOnly": true})
			c.Abort()
			return
		}
		c.Next()
	}
}
