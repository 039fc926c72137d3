package httpmiddleware

import (
	"strconv"
	"time"

	"pollqr.local/gee"
	"pollqr.local/internal/platform/metrics"
)

// Metrics records request count, latency and in-flight gauge per route pattern.
func Metrics() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()
		route := ctx.RoutePattern
		if route == "" {
			route = "UNMATCHED"
		}
		defer func() {
			status := ctx.Writer.Status()
			metrics.HTTPRequestsTotal.WithLabelValues(ctx.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(ctx.Method, route).Observe(time.Since(start).Seconds())
		}()
		ctx.Next()
	}
}
