package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/lightsout/go/internal/config"
	"github.com/mcdev12/lightsout/go/internal/registry"
)

func setupServer(services *Services, cfg *config.Config) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services, cfg)
	setupHealthCheck(mux)

	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Registry.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services, cfg *config.Config) {
	if cfg.Registry.AdminToken == "" {
		log.Warn().Msg("REGISTRY_ADMIN_TOKEN not set, clear and pause are disabled")
	}
	registryServicePath, registryServiceHandler := registry.NewRegistryServiceHandler(
		services.Registry,
		connect.WithInterceptors(registry.NewAdminInterceptor(cfg.Registry.AdminToken, cfg.Registry.Owner)),
	)
	mux.Handle(registryServicePath, registryServiceHandler)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
