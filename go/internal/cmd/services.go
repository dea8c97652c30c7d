package main

import (
	"github.com/mcdev12/lightsout/go/internal/config"
	"github.com/mcdev12/lightsout/go/internal/registry"
)

type Services struct {
	Registry *registry.Service
}

func setupServices(repo registry.ScoreRepository, cfg *config.Config) *Services {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	registryApp := registry.NewApp(repo, cfg.Registry.Owner)
	registryService := registry.NewService(registryApp)

	return &Services{
		Registry: registryService,
	}
}
