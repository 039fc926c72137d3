package httpapi

import (
	"time"

	"pollqr.local/gee"
	"pollqr.local/internal/platform/httpmiddleware"
	"pollqr.local/internal/platform/ratelimit"
)

// RegisterRoutes mounts the QR and signed-link routes under api (e.g. /api).
// A nil limiter disables rate limiting.
func RegisterRoutes(api *gee.RouterGroup, svc QRService, verifier LinkVerifier, limiter *ratelimit.Limiter) {
	api.GET("/polls/:id/qr", httpmiddleware.RateLimit(limiter, "qr_get", 120, time.Minute), NewGetQRHandler(svc))
	// POST may force a re-render, so it is limited harder than GET.
	api.POST("/polls/:id/qr", httpmiddleware.RateLimit(limiter, "qr_post", 20, time.Minute), NewPostQRHandler(svc))
	api.GET("/polls/:id/access", httpmiddleware.RateLimit(limiter, "access", 60, time.Minute), NewAccessHandler(verifier))
}
