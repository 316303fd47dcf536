package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/perf"
)

// Accounting records latency into the performance engine's tracker and
// maintains the total/error counters that feed http.error_rate.
func Accounting(reg *metrics.Registry, latency *perf.LatencyTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		latency.Record(route, elapsedMs)
		reg.Record("http.request_duration_ms", elapsedMs)
		reg.Increment("http.requests_total")
		total := reg.CounterValue("http.requests_total")
		if status >= 500 {
			reg.Increment("http.errors_total")
		}
		errors := reg.CounterValue("http.errors_total")
		if total > 0 {
			reg.Set("http.error_rate", errors/total*100)
		}
		reg.Set("http.p95_latency_ms", latency.P95(route))
	}
}
