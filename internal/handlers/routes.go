package handlers

import (
	"net/http"
	"time"

	"github.com/subscribr/web/internal/middleware"
	"github.com/subscribr/web/internal/views"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Mounts: deps.Mounts}
	launcher := LauncherHandler{Accounts: deps.Backend}
	home := HomeHandler{
		Backend:      deps.Backend,
		Events:       deps.Events,
		Mounts:       deps.Mounts,
		MountLimiter: deps.MountLimiter,
		KeepAlive:    deps.KeepAlive,
	}
	throttle := middleware.Throttle(deps.LaunchLimiter, "launcher")

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/{$}", launcher.Show)
	mux.Handle("/launcher/create", throttle(http.HandlerFunc(launcher.Create)))
	mux.Handle("/launcher/login", throttle(http.HandlerFunc(launcher.Login)))
	mux.HandleFunc("/error", ErrorHandler{}.Show)
	mux.HandleFunc("/users", home.Show)
	mux.HandleFunc("/users/{$}", home.Show)
	mux.HandleFunc("/users/{id}", home.Show)
	mux.HandleFunc("/users/{id}/videos", home.PostVideo)
	mux.HandleFunc("/users/{id}/subscriptions/{target}", home.Subscribe)
	mux.HandleFunc("/users/{id}/subscriptions/{target}/delete", home.Unsubscribe)
	mux.HandleFunc("/users/{id}/notification/dismiss", home.Dismiss)
	mux.HandleFunc("/users/{id}/live", home.Live)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Backend       Backend
	Events        views.EventSourceFunc
	Mounts        MountRegistry
	LaunchLimiter middleware.RateLimiter
	MountLimiter  middleware.RateLimiter
	KeepAlive     time.Duration
}
