package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pollqr.local/internal/platform/config"
)

// New builds the public server on cfg.Addr.
func New(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.Addr, handler)
}

// NewAdmin builds the admin server (metrics, readiness, pprof) on cfg.AdminAddr.
// It should only listen on loopback or an internal network.
func NewAdmin(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.AdminAddr, handler)
}

func newServer(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// RunAll serves every srv until stopCtx is done or one of them fails to
// listen, then shuts all of them down. It returns the first error.
func RunAll(stopCtx context.Context, shutdownTimeout time.Duration, srvs ...*http.Server) error {
	ctx, cancel := context.WithCancel(stopCtx)
	defer cancel()

	errCh := make(chan error, len(srvs))
	for _, srv := range srvs {
		go func() {
			err := RunWithGracefulShutdownContext(srv, shutdownTimeout, ctx)
			if err != nil {
				slog.Error("http server failed", "addr", srv.Addr, "err", err)
				cancel()
			}
			errCh <- err
		}()
	}

	var first error
	for range srvs {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func RunWithGracefulShutdownContext(srv *http.Server, shutdownTimeout time.Duration, stopCtx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		slog.Info("shutting down http server", "addr", srv.Addr, "timeout", shutdownTimeout.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
