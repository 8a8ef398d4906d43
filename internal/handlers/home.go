package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/subscribr/web/internal/logging"
	"github.com/subscribr/web/internal/middleware"
	"github.com/subscribr/web/internal/views"
)

// DefaultKeepAlive is how often the live relay pings the browser and refreshes its mount.
const DefaultKeepAlive = 30 * time.Second

const liveWriteWait = 10 * time.Second

// HomeHandler serves the user-home page, its form actions and the live
// notification relay. Every request after the first names its mount so it
// reaches the Home that owns the event connection.
type HomeHandler struct {
	Backend      views.Backend
	Events       views.EventSourceFunc
	Mounts       MountRegistry
	MountLimiter middleware.RateLimiter
	Upgrader     websocket.Upgrader
	KeepAlive    time.Duration
}

type homePage struct {
	views.HomeView
	MountID string
}

// ActionPath is the form target of a user-home action.
func (p homePage) ActionPath(action string) string {
	return views.UserHomePath(p.UserID) + "/" + action
}

// LivePath is the WebSocket endpoint of the mount.
func (p homePage) LivePath() string {
	return views.UserHomePath(p.UserID) + "/live?mount=" + url.QueryEscape(p.MountID)
}

func mountURL(userID, mountID string) string {
	return views.UserHomePath(userID) + "?mount=" + url.QueryEscape(mountID)
}

// Show handles GET /users/{id}. Without a live mount it mounts a new Home and
// redirects to the page addressed by the new mount id. HEAD never mounts, and
// mounting is rate limited per client because each mount holds an event stream.
func (h HomeHandler) Show(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := strings.TrimSpace(r.PathValue("id"))

	if mountID := r.URL.Query().Get("mount"); mountID != "" {
		if home, ok := h.Mounts.Get(mountID, userID); ok {
			renderPage(ctx, w, http.StatusOK, "home", homePage{HomeView: home.View(), MountID: mountID})
			return
		}
		logging.FromContext(ctx).Info("mount not found, remounting", "mount_id", mountID, "userId", userID)
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		return
	}
	if !middleware.Allow(w, r, h.MountLimiter, "mount") {
		return
	}

	home := views.NewHome(userID, h.Backend, h.Events)
	nav, ok := home.Mount(ctx)
	if !ok {
		redirect(w, r, nav.Path)
		return
	}

	mountID := h.Mounts.Add(home)
	redirect(w, r, mountURL(userID, mountID))
}

// PostVideo handles POST /users/{id}/videos.
func (h HomeHandler) PostVideo(w http.ResponseWriter, r *http.Request) {
	home, mountID, ok := h.mounted(w, r)
	if !ok {
		return
	}

	home.PostVideo(r.Context(), r.PostFormValue("name"))
	redirect(w, r, mountURL(home.UserID(), mountID))
}

// Subscribe handles POST /users/{id}/subscriptions/{target}.
func (h HomeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	home, mountID, ok := h.mounted(w, r)
	if !ok {
		return
	}

	_ = home.Subscribe(r.Context(), r.PathValue("target"))
	redirect(w, r, mountURL(home.UserID(), mountID))
}

// Unsubscribe handles POST /users/{id}/subscriptions/{target}/delete.
func (h HomeHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	home, mountID, ok := h.mounted(w, r)
	if !ok {
		return
	}

	_ = home.Unsubscribe(r.Context(), r.PathValue("target"))
	redirect(w, r, mountURL(home.UserID(), mountID))
}

// Dismiss handles POST /users/{id}/notification/dismiss.
func (h HomeHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	home, mountID, ok := h.mounted(w, r)
	if !ok {
		return
	}

	home.Dismiss()
	redirect(w, r, mountURL(home.UserID(), mountID))
}

// Live handles GET /users/{id}/live. It relays the mount's notifications to the
// browser as JSON messages until either side goes away. Closing the socket
// does not unmount; idle mounts are left to the registry sweep.
func (h HomeHandler) Live(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	logger := logging.FromContext(r.Context())
	userID := strings.TrimSpace(r.PathValue("id"))
	mountID := r.URL.Query().Get("mount")

	home, ok := h.Mounts.Get(mountID, userID)
	if !ok {
		http.Error(w, "mount not found", http.StatusNotFound)
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	notifications, stop := home.Watch()
	defer stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case n, open := <-notifications:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "unmounted"),
					time.Now().Add(liveWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				logger.Warn("relay notification", "mount_id", mountID, "error", err)
				return
			}
		case <-ticker.C:
			h.Mounts.Touch(mountID)
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h HomeHandler) mounted(w http.ResponseWriter, r *http.Request) (*views.Home, string, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, "", false
	}

	userID := strings.TrimSpace(r.PathValue("id"))
	mountID := r.PostFormValue("mount")

	home, ok := h.Mounts.Get(mountID, userID)
	if !ok {
		logging.FromContext(r.Context()).Info("action on expired mount", "mount_id", mountID, "userId", userID)
		redirect(w, r, views.UserHomePath(userID))
		return nil, "", false
	}
	return home, mountID, true
}
