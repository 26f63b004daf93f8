package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/callbridge/internal/adapter/driven/gateway/ws"
	repo "github.com/Wyydra/callbridge/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/callbridge/internal/adapter/driven/signaling"
	handler "github.com/Wyydra/callbridge/internal/adapter/driving/http"
	"github.com/Wyydra/callbridge/internal/config"
	"github.com/Wyydra/callbridge/internal/core/service"
	"github.com/Wyydra/callbridge/internal/logger"
	"github.com/Wyydra/callbridge/internal/metrics"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = logger.Bootstrap(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded, using process environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logFile, err := logger.Setup(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}
	defer logFile.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessions := repo.NewCallRegistry()
	m := metrics.New(reg, func() int { return sessions.Count(context.Background()) })

	edge := signaling.NewEdgeClient(signaling.Config{
		BaseURL: cfg.Edge.BaseURL,
		Token:   cfg.Edge.Token,
		Timeout: cfg.Server.RequestTimeout,
		Metrics: m,
	})
	platform := signaling.NewPlatformClient(signaling.Config{
		BaseURL: cfg.Platform.BaseURL,
		Token:   cfg.Platform.Token,
		Timeout: cfg.Server.RequestTimeout,
		Metrics: m,
	}, cfg.Platform.PhoneNumberID)

	hub := ws.NewHub()
	callService := service.NewCallService(sessions, edge, platform, hub)
	h := handler.NewHandler(callService, hub, m, reg, cfg.Webhook)

	go hub.Run()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
	if err := runServer(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Server error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if n := callService.ActiveCalls(drainCtx); n > 0 {
		log.Info().Int("calls", n).Msg("Terminating remaining calls")
		callService.TerminateAll(drainCtx)
	}

	hub.Stop()
	log.Info().Msg("Server exited")
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
