package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

const shutdownTimeout = 15 * time.Second

// Start lanza hub y sweeper atados a ctx.
func (a *App) Start(ctx context.Context) {
	a.Hub.Start(ctx)
	a.Sweeper.Start(ctx)
}

// Run levanta background + HTTP y bloquea hasta que ctx termine o el
// listener falle. Al salir hace shutdown ordenado y cierra el store.
func (a *App) Run(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("server"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Start(ctx)

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := a.Close(context.Background()); cerr != nil {
		log.Warn("close failed", logger.Err(cerr))
	}
	return err
}
