package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retailops/controlplane/internal/httpapi/response"
	"github.com/retailops/controlplane/internal/security"
)

// SecurityGate enforces the per-IP sliding rate limit first, then consults
// the persistent block store for both the client IP and (if authenticated)
// the user id.
func SecurityGate(engine *security.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		userID := ""
		if uid, ok := c.Get(authUserIDKey); ok {
			if parsed, ok := uid.(uuid.UUID); ok && parsed != uuid.Nil {
				userID = parsed.String()
			}
		}

		rateLimited, blocked, err := engine.AllowRequest(c.Request.Context(), ip, userID)
		if err != nil {
			response.Error(c, 503, "SECURITY_CHECK_FAILED", "security check failed")
			c.Abort()
			return
		}
		if rateLimited {
			response.Error(c, 429, "RATE_LIMITED", "too many requests")
			c.Abort()
			return
		}
		if blocked {
			response.Error(c, 403, "BLOCKED", "target is blocked")
			c.Abort()
			return
		}
		c.Next()
	}
}
