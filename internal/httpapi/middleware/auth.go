package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/retailops/controlplane/internal/httpapi/response"
	"github.com/retailops/controlplane/internal/platform/ctxutil"
)

const authUserIDKey = "authUserID"

type claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// RequireAdmin accepts either a bearer JWT signed with secret, or the
// static admin API key via X-Admin-Key — mirroring how an operations
// console and a scripted caller both need access to the same endpoints.
func RequireAdmin(secret, adminAPIKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminAPIKey != "" && c.GetHeader("X-Admin-Key") == adminAPIKey {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			response.Error(c, 401, "UNAUTHORIZED", "missing bearer token")
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		token, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			response.Error(c, 401, "UNAUTHORIZED", "invalid token")
			c.Abort()
			return
		}
		cl, ok := token.Claims.(*claims)
		if !ok {
			response.Error(c, 401, "UNAUTHORIZED", "invalid claims")
			c.Abort()
			return
		}

		c.Set(authUserIDKey, parseSubjectUUID(cl.Subject))
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			td.UserID = parseSubjectUUID(cl.Subject)
		}
		c.Next()
	}
}

func parseSubjectUUID(sub string) uuid.UUID {
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil
	}
	return id
}
