package httpmiddleware

import (
	"go.opentelemetry.io/otel/trace"
	"pollqr.local/gee"
)

// TraceName renames the otelhttp server span to "METHOD /route/:pattern"
// once the router has matched.
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		route := ctx.RoutePattern
		if route == "" {
			route = "UNMATCHED"
		}
		trace.SpanFromContext(ctx.Req.Context()).SetName(ctx.Method + " " + route)
		ctx.Next()
	}
}
