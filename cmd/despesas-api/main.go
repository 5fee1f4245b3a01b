package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"despesas/internal/cli"
	"despesas/internal/config"
	"despesas/internal/log"
	"despesas/internal/refapi"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentAPI)

	// The API cannot be its own remote; it serves SQLite unless memory is
	// asked for explicitly.
	if cfg.DataBackend == config.BackendRemote {
		cfg.DataBackend = config.BackendSQLite
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendRes := cli.OpenBackend(ctx, logger, cfg)
	defer cli.CloseBackend(logger, backendRes)

	srv := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           refapi.NewRouter(backendRes.Backend, refapi.Options{Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("API shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting despesas API", "port", cfg.APIPort, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("API server error", log.FieldError, err, "port", cfg.APIPort)
		os.Exit(1)
	}
	logger.Info("API stopped gracefully")
}
