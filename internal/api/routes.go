package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Routes holds the backend path templates. {id} is the acting user and
// {target} the user being subscribed to; both are path-escaped on expansion.
// Subscriptions is empty when the backend embeds subscriptions in the user response.
type Routes struct {
	CreateUser    string
	User          string
	Users         string
	Subscriptions string
	PostVideo     string
	Subscribe     string
	Unsubscribe   string
	Events        string
}

// CurrentRoutes is the route set served by the latest backend.
var CurrentRoutes = Routes{
	CreateUser:    "/users/create",
	User:          "/users/{id}",
	Users:         "/users",
	Subscriptions: "/subscriptions/{id}",
	PostVideo:     "/videos/{id}/post-video",
	Subscribe:     "/subscriptions/{id}/subscribe/{target}",
	Unsubscribe:   "/subscriptions/{id}/unsubscribe/{target}",
	Events:        "/subscribe-to-events/{id}",
}

// LegacyRoutes is the route set of the first backend iteration.
var LegacyRoutes = Routes{
	CreateUser:  "/users/create",
	User:        "/users/{id}",
	Users:       "/users",
	PostVideo:   "/users/{id}/post-video",
	Subscribe:   "/users/{id}/subscribe/{target}",
	Unsubscribe: "/subscriptions/{id}/unsubscribe/{target}",
	Events:      "/subscribe/{id}",
}

// RoutesByName resolves a configured route set name.
func RoutesByName(name string) (Routes, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "current":
		return CurrentRoutes, nil
	case "legacy":
		return LegacyRoutes, nil
	default:
		return Routes{}, fmt.Errorf("unknown route set %q", name)
	}
}

func expand(template, id, target string) string {
	return strings.NewReplacer(
		"{id}", url.PathEscape(id),
		"{target}", url.PathEscape(target),
	).Replace(template)
}
