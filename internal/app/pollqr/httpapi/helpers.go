package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"pollqr.local/gee"
	"pollqr.local/internal/app/pollqr"
	"pollqr.local/internal/app/pollqr/render"
	"pollqr.local/internal/app/pollqr/signedlink"
)

// writeError maps domain errors onto the error envelope. Anything unexpected
// becomes a generic 500 and is logged with its cause.
func writeError(ctx *gee.Context, err error) {
	switch {
	case errors.Is(err, pollqr.ErrMissingPollID):
		ctx.AbortWithError(http.StatusBadRequest, "Poll ID is required")
	case errors.Is(err, pollqr.ErrInvalidPollID):
		ctx.AbortWithError(http.StatusBadRequest, "Invalid poll ID format")
	case errors.Is(err, pollqr.ErrInvalidHost):
		ctx.AbortWithError(http.StatusBadRequest, "Invalid host")
	case errors.Is(err, pollqr.ErrInvalidTTL):
		ctx.AbortWithErrorDetails(http.StatusBadRequest, "Invalid expiresInSeconds", map[string]string{
			"expiresInSeconds": "must be a positive number of seconds within the allowed maximum",
		})
	case errors.Is(err, pollqr.ErrInvalidInput):
		ctx.AbortWithError(http.StatusBadRequest, "Invalid input")
	case errors.Is(err, pollqr.ErrPollNotFound):
		ctx.AbortWithError(http.StatusNotFound, "Poll not found")
	default:
		attrs := []any{"err", err, "poll_id", ctx.Param("id"), "route", ctx.RoutePattern}
		var re *render.RenderError
		switch {
		case errors.As(err, &re):
			attrs = append(attrs, "op", re.Op)
		case errors.Is(err, signedlink.ErrMissingKey):
			attrs = append(attrs, "op", "sign")
		}
		slog.ErrorContext(ctx.Req.Context(), "qr request failed", attrs...)
		ctx.AbortWithError(http.StatusInternalServerError, "Internal server error")
	}
}
