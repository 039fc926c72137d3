package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pollqr.local/gee"
	"pollqr.local/internal/app/pollqr"
	"pollqr.local/internal/app/pollqr/signedlink"
)

type LinkVerifier interface {
	Verify(token, signature string) (signedlink.Payload, bool)
}

type AccessResponse struct {
	PollID    string    `json:"pollId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewAccessHandler checks the token and signature carried by a private poll
// link. Every failure gets the same 403 so callers cannot tell tampering from expiry.
func NewAccessHandler(v LinkVerifier) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Param("id")
		if !pollqr.ValidateIdentifier(id) {
			writeError(ctx, pollqr.ErrInvalidPollID)
			return
		}
		ctx.SetHeader("Cache-Control", "private, no-store")

		p, ok := v.Verify(ctx.Query("token"), ctx.Query("signature"))
		if !ok || !strings.EqualFold(p.PollID, id) {
			ctx.AbortWithError(http.StatusForbidden, "invalid or expired link")
			return
		}
		ctx.JSON(http.StatusOK, AccessResponse{PollID: p.PollID, ExpiresAt: p.ExpiresAt().UTC()})
	}
}
