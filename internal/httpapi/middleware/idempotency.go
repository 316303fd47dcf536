package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retailops/controlplane/internal/selfheal/idempotency"
)

const idempotencyKeyHeader = "Idempotency-Key"

type bodyCapture struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (b *bodyCapture) Write(data []byte) (int, error) {
	b.buf.Write(data)
	return b.ResponseWriter.Write(data)
}

// Idempotent wraps a single handler (not the whole chain) so the registry
// caches the exact status/body pair and replays it verbatim to a retried
// caller sharing the same key, without invoking the handler a second time.
func Idempotent(registry *idempotency.Registry, handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			handler(c)
			return
		}

		result, err := registry.Execute(c.Request.Context(), key, func(ctx context.Context) (int, []byte, error) {
			capture := &bodyCapture{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
			c.Writer = capture
			handler(c)
			status := capture.Status()
			if status >= http.StatusInternalServerError {
				return status, capture.buf.Bytes(), fmt.Errorf("handler returned status %d", status)
			}
			return status, capture.buf.Bytes(), nil
		})
		if err != nil {
			// A handler that itself wrote a 5xx response already flushed it
			// through the capture writer before Execute returned the error
			// that frees the key for retry; don't double-write the body.
			if !c.Writer.Written() {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "IDEMPOTENCY_BUSY", "message": err.Error()})
			}
			c.Abort()
			return
		}
		if result.Cached {
			c.Data(result.StatusCode, "application/json", result.Body)
			c.Abort()
		}
	}
}
