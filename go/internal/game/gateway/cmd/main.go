package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lightsout/go/internal/config"
	"github.com/mcdev12/lightsout/go/internal/game"
	"github.com/mcdev12/lightsout/go/internal/game/gateway"
	"github.com/mcdev12/lightsout/go/internal/registry"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.AllowedOrigins = cfg.Gateway.AllowedOrigins
	gatewayConfig.Sessions.Game = cfg.Game

	gatewayConfig.JetStreamConfig.URL = cfg.NATS.URL
	gatewayConfig.JetStreamConfig.StreamName = cfg.NATS.StreamName
	gatewayConfig.JetStreamConfig.SubjectFilter = cfg.NATS.SubjectPrefix + ".>"

	if cfg.Gateway.RegistryURL != "" {
		client := registry.NewClient(&http.Client{Timeout: 15 * time.Second}, cfg.Gateway.RegistryURL)
		gatewayConfig.Sessions.Scores = client
		gatewayConfig.Sessions.Submitters = func(identity string) game.Submitter {
			return registry.NewSubmitter(client, identity, registry.MetadataHash{})
		}
	} else {
		log.Warn().Msg("REGISTRY_URL not set, scores will not be recorded")
	}

	log.Info().
		Int("port", cfg.Gateway.Port).
		Str("registry_url", cfg.Gateway.RegistryURL).
		Str("nats_url", cfg.NATS.URL).
		Msg("starting game gateway")

	gatewayService, err := gateway.NewService(gatewayConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:     gatewayService.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start gateway service (connection manager and event consumer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	stats := gatewayService.ConnectionManager().GetConnectionStats()
	log.Info().
		Int("active_sessions", stats.ActiveSessions).
		Int("connections", stats.TotalConnections).
		Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
	}

	log.Info().Msg("game gateway shutdown complete")
}
