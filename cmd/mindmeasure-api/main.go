package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/http"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/bootstrap"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/config"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

func main() {
	log := observability.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	observability.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, true)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	handler := httpadapter.NewServer(httpadapter.Services{
		Sessions:  app.Sessions,
		Finalizer: app.Finalizer,
		Reports:   app.Reports,
		Trends:    app.Trends,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Mind Measure API listening", "port", cfg.Port, "mode", cfg.Mode, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	if err := app.Close(); err != nil {
		log.Error("closing stores", "error", err)
	}
}
