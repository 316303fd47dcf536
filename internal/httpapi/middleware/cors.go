package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the operations console origin(s); empty allowOrigins permits
// any origin, matching a dev-friendly default.
func CORS(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(allowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Authorization", "Content-Type", "X-Admin-Key", "Idempotency-Key", "X-Request-ID"}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
