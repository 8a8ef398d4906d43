package app

import (
	"fmt"
	"log/slog"

	"github.com/subscribr/web/internal/api"
	"github.com/subscribr/web/internal/config"
	"github.com/subscribr/web/internal/events"
	"github.com/subscribr/web/internal/handlers"
	"github.com/subscribr/web/internal/middleware"
	"github.com/subscribr/web/internal/mounts"
	"github.com/subscribr/web/internal/views"
)

func newClient(cfg config.Config) (*api.Client, error) {
	routes, err := api.RoutesByName(cfg.APIRoutes)
	if err != nil {
		return nil, err
	}
	client, err := api.New(cfg.APIBaseURL, api.WithRoutes(routes), api.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, fmt.Errorf("configure api client: %w", err)
	}
	return client, nil
}

// eventSources opens one reconnecting stream per mounted home.
func eventSources(client *api.Client, cfg config.Config) views.EventSourceFunc {
	return func(userID string) (views.EventSource, error) {
		streamURL, err := client.EventsURL(userID)
		if err != nil {
			return nil, err
		}
		return events.NewStream(streamURL, client.HTTPClient(), cfg.EventRetry), nil
	}
}

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup stops the mount sweep and unmounts every home.
func buildDependencies(cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func() error, error) {
	client, err := newClient(cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	registry := mounts.NewRegistry(cfg.MountIdleTTL, logger,
		mounts.WithMaxPerUser(cfg.MountsPerUser),
		mounts.WithMaxTotal(cfg.MaxMounts),
	)
	if err := registry.Start(0); err != nil {
		return handlers.Dependencies{}, nil, err
	}

	deps := handlers.Dependencies{
		Backend:       client,
		Events:        eventSources(client, cfg),
		Mounts:        registry,
		LaunchLimiter: newLimiter(cfg.LaunchLimit),
		MountLimiter:  newLimiter(cfg.MountLimit),
	}
	return deps, registry.Shutdown, nil
}

func newLimiter(limit config.RateLimitConfig) *middleware.IPRateLimiter {
	return middleware.NewIPRateLimiter(limit.Requests, limit.Window, limit.Burst, 0)
}
