package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/batuhan/mxcomposer/internal/app"
	"github.com/batuhan/mxcomposer/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	log := app.NewLogger(cfg.LogLevel)
	ctx := log.WithContext(context.Background())

	composer, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	if err = composer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start")
	}
	defer func() {
		if err := composer.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop cleanly")
		}
	}()
	if cfg.AccessToken == "" {
		log.Warn().Msg("MXCOMPOSER_ACCESS_TOKEN is not set, all authenticated endpoints will reject requests")
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: composer.Server().Handler(),
	}

	go func() {
		log.Info().Str("listen", cfg.ListenAddr).Strs("backends", composer.Members().Backends()).Msg("mxcomposer listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to shutdown HTTP server cleanly")
	}
}
