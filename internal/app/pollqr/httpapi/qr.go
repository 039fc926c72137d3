package httpapi

import (
	"context"
	"net/http"

	"pollqr.local/gee"
	"pollqr.local/internal/app/pollqr"
)

type QRService interface {
	FetchOrGenerate(ctx context.Context, req pollqr.Request) (pollqr.Result, error)
	Regenerate(ctx context.Context, req pollqr.Request) (pollqr.Result, error)
}

// QRRequest is the optional POST body. Every field may be omitted.
type QRRequest struct {
	Regenerate       bool   `json:"regenerate,omitempty"`
	ExpiresInSeconds *int64 `json:"expiresInSeconds,omitempty"`
	Host             string `json:"host,omitempty"`
}

func NewGetQRHandler(svc QRService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		res, err := svc.FetchOrGenerate(ctx.Req.Context(), pollqr.Request{
			PollID: ctx.Param("id"),
			Host:   ctx.Req.Host,
		})
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeQR(ctx, http.StatusOK, res)
	}
}

func NewPostQRHandler(svc QRService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var body QRRequest
		if err := ctx.BindOptionalJSON(&body); err != nil {
			return
		}

		req := pollqr.Request{
			PollID:     ctx.Param("id"),
			Host:       body.Host,
			TTLSeconds: body.ExpiresInSeconds,
		}
		if req.Host == "" {
			req.Host = ctx.Req.Host
		}

		if body.Regenerate {
			res, err := svc.Regenerate(ctx.Req.Context(), req)
			if err != nil {
				writeError(ctx, err)
				return
			}
			writeQR(ctx, http.StatusCreated, res)
			return
		}

		res, err := svc.FetchOrGenerate(ctx.Req.Context(), req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeQR(ctx, http.StatusOK, res)
	}
}

func writeQR(ctx *gee.Context, code int, res pollqr.Result) {
	if res.Private {
		// The code embeds a bearer link; keep it out of shared caches.
		ctx.SetHeader("Cache-Control", "private, no-store")
	} else {
		ctx.SetHeader("Cache-Control", "public, max-age=3600")
	}
	if res.CacheHit {
		ctx.SetHeader("X-Cache", "HIT")
	} else {
		ctx.SetHeader("X-Cache", "MISS")
	}
	ctx.JSON(code, res.QR)
}
