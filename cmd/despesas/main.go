package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"despesas/internal/amqp"
	"despesas/internal/cli"
	apphttp "despesas/internal/http"
	"despesas/internal/log"
	"despesas/internal/notify"
	"despesas/internal/store"
	"despesas/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendRes := cli.OpenBackend(ctx, logger, cfg)
	defer cli.CloseBackend(logger, backendRes)

	st := store.New(backendRes.Backend, logger.WithComponent(log.ComponentStore).Slog())
	hub := notify.NewHub(logger.WithComponent(log.ComponentNotify).Slog())

	// Change fanout to other instances is optional
	var (
		publisher worker.Publisher
		consumer  worker.Consumer
	)
	if cfg.AMQPURL != "" {
		instanceID := uuid.NewString()
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, instanceID, logger.WithComponent(log.ComponentAMQP).Slog())
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher, consumer = client, client
		logger.Info("AMQP change fanout enabled", "exchange", cfg.AMQPExchange, "instance", instanceID)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	changes := worker.NewChangeWorker(st, publisher, hub, logger.WithComponent(log.ComponentAMQP).Slog())
	st.OnChange(changes.HandleLocalChange)

	var wg sync.WaitGroup
	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := changes.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Change consumer stopped", log.FieldError, err)
			}
		}()
	}

	// First load; a failure is shown in the page, not fatal
	if _, err := st.Reload(ctx); err != nil {
		logger.Warn("Initial load failed", log.FieldError, err)
	}

	srv := apphttp.NewServer(st, apphttp.Options{
		Addr:     ":" + cfg.Port,
		PageSize: cfg.PageSize,
		CacheTTL: cfg.CacheTTL,
		Hub:      hub,
		Pinger:   backendRes.Backend,
		Logger:   logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting despesas server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	stop()
	wg.Wait()
	changes.Wait()
	logger.Info("Server stopped gracefully")
}
