package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

type app struct {
	di *dependencyInjector
}

// New constructs the orchestrator app, matching the teacher's
// dapp.New(ctx) *app shape.
func New(ctx context.Context) *app {
	return &app{di: newDI()}
}

// Run starts the Supervisor, Monitor, and admin HTTP server, then blocks
// until ctx is cancelled, tearing everything down in reverse order.
func (a *app) Run(ctx context.Context) error {
	log := a.di.Logger()

	supervisor := a.di.Supervisor(ctx)
	log.Info("supervisor starting...")
	if err := supervisor.Start(ctx); err != nil {
		return err
	}
	log.Info("supervisor running")

	monitorSvc := a.di.Monitor(ctx)
	monitorSvc.Start(ctx)
	log.Info("monitor running")

	server := a.di.Server(ctx)
	go func() {
		log.Info("admin server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server stopped", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	log.Info("orchestrator shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.di.Config().ShutdownTimeout)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	monitorSvc.Stop()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), a.di.Config().DrainTimeout+5*time.Second)
	defer cancelDrain()
	if err := supervisor.Shutdown(drainCtx); err != nil {
		log.Warn("supervisor shutdown reported error", slog.String("error", err.Error()))
	}

	return nil
}
