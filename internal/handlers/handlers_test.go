package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/subscribr/web/internal/api"
	"github.com/subscribr/web/internal/events"
	"github.com/subscribr/web/internal/middleware"
	"github.com/subscribr/web/internal/models"
	"github.com/subscribr/web/internal/mounts"
	"github.com/subscribr/web/internal/views"
)

type stubBackend struct {
	mu sync.Mutex

	createErr   error
	createCalls int
	profiles    map[string]models.Profile
	users       []models.User
	subs        map[string][]models.User

	posts      []models.VideoPost
	subscribed []string
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		profiles: map[string]models.Profile{
			"1": {ID: "1", Username: "alice"},
			"2": {ID: "2", Username: "bob"},
			"3": {ID: "3", Username: "carol"},
		},
		users: []models.User{{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"}, {ID: "3", Username: "carol"}},
		subs:  map[string][]models.User{"1": {{ID: "2", Username: "bob"}}},
	}
}

func (s *stubBackend) CreateUser(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return models.User{}, s.createErr
	}
	return models.User{ID: "7", Username: username}, nil
}

func (s *stubBackend) GetUser(_ context.Context, id string) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return models.Profile{}, &api.StatusError{Op: "get user", StatusCode: http.StatusNotFound}
	}
	return profile, nil
}

func (s *stubBackend) ListUsers(context.Context) ([]models.User, error) {
	return s.users, nil
}

func (s *stubBackend) Subscriptions(_ context.Context, id string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.User(nil), s.subs[id]...), nil
}

func (s *stubBackend) PostVideo(_ context.Context, _ string, post models.VideoPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, post)
	return nil
}

func (s *stubBackend) Subscribe(_ context.Context, _ string, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, target)
	return nil
}

func (s *stubBackend) Unsubscribe(context.Context, string, string) error {
	return nil
}

func newTestMux(t *testing.T, backend *stubBackend, limiter middleware.RateLimiter) (*http.ServeMux, *mounts.Registry) {
	t.Helper()
	registry := mounts.NewRegistry(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = registry.Shutdown() })

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Backend:       backend,
		Mounts:        registry,
		LaunchLimiter: limiter,
		KeepAlive:     time.Hour,
	})
	return mux, registry
}

func serve(mux http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestLauncherRoutes(t *testing.T) {
	cases := []struct {
		name      string
		target    string
		form      url.Values
		createErr error
		want      string
		wantCalls int
	}{
		{name: "emptyName", target: "/launcher/create", form: url.Values{"username": {" "}}, want: "Please enter a name."},
		{name: "created", target: "/launcher/create", form: url.Values{"username": {"dave"}}, want: `href="/users/7"`, wantCalls: 1},
		{name: "duplicate", target: "/launcher/create", form: url.Values{"username": {"alice"}}, createErr: &api.StatusError{Op: "create user", StatusCode: http.StatusConflict}, want: "Duplicate username, please choose another.", wantCalls: 1},
		{name: "login", target: "/launcher/login", form: url.Values{"userId": {"2"}}, want: `href="/users/2"`},
		{name: "loginMissing", target: "/launcher/login", form: url.Values{"userId": {"42"}}, want: "No account found for provided user ID."},
		{name: "loginEmpty", target: "/launcher/login", form: url.Values{}, want: "Please enter a user ID."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := newStubBackend()
			backend.createErr = tc.createErr
			mux, _ := newTestMux(t, backend, nil)

			rec := serve(mux, http.MethodPost, tc.target, tc.form)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("expected body to contain %q:\n%s", tc.want, rec.Body.String())
			}
			if backend.createCalls != tc.wantCalls {
				t.Fatalf("expected %d create calls got %d", tc.wantCalls, backend.createCalls)
			}
		})
	}
}

func TestLauncherShowAndMethods(t *testing.T) {
	mux, _ := newTestMux(t, newStubBackend(), nil)

	rec := serve(mux, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Create User") {
		t.Fatalf("unexpected launcher page %d:\n%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}

	if rec := serve(mux, http.MethodGet, "/launcher/create", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rec.Code)
	}
}

func TestLauncherRateLimit(t *testing.T) {
	limiter := middleware.NewIPRateLimiter(1, time.Hour, 1, time.Hour)
	mux, _ := newTestMux(t, newStubBackend(), limiter)

	form := url.Values{"userId": {"1"}}
	if rec := serve(mux, http.MethodPost, "/launcher/login", form); rec.Code != http.StatusOK {
		t.Fatalf("expected first submission to pass got %d", rec.Code)
	}
	if rec := serve(mux, http.MethodPost, "/launcher/login", form); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
}

func mountHome(t *testing.T, mux http.Handler, userID string) string {
	t.Helper()
	rec := serve(mux, http.MethodGet, "/users/"+userID, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect to the mount got %d", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Path != "/users/"+userID {
		t.Fatalf("unexpected redirect %q", location)
	}
	mountID := location.Query().Get("mount")
	if mountID == "" {
		t.Fatalf("expected mount id in %q", location)
	}
	return mountID
}

func TestHomeFlow(t *testing.T) {
	backend := newStubBackend()
	mux, registry := newTestMux(t, backend, nil)

	mountID := mountHome(t, mux, "1")
	if registry.Len() != 1 {
		t.Fatalf("expected one mount got %d", registry.Len())
	}

	page := serve(mux, http.MethodGet, "/users/1?mount="+mountID, nil)
	if page.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", page.Code)
	}
	body := page.Body.String()
	for _, want := range []string{"Welcome, alice", "bob", "carol", `action="/users/1/subscriptions/3"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected page to contain %q:\n%s", want, body)
		}
	}

	rec := serve(mux, http.MethodPost, "/users/1/subscriptions/3", url.Values{"mount": {mountID}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/users/1?mount="+mountID {
		t.Fatalf("unexpected subscribe response %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if len(backend.subscribed) != 1 || backend.subscribed[0] != "3" {
		t.Fatalf("expected subscribe call for 3 got %v", backend.subscribed)
	}

	rec = serve(mux, http.MethodPost, "/users/1/videos", url.Values{"mount": {mountID}, "name": {"clip1"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect got %d", rec.Code)
	}

	body = serve(mux, http.MethodGet, "/users/1?mount="+mountID, nil).Body.String()
	if !strings.Contains(body, `action="/users/1/subscriptions/3/delete"`) {
		t.Fatalf("expected carol among subscriptions:\n%s", body)
	}
	if !strings.Contains(body, "Video upload has started.") {
		t.Fatalf("expected upload notification:\n%s", body)
	}

	serve(mux, http.MethodPost, "/users/1/notification/dismiss", url.Values{"mount": {mountID}})
	body = serve(mux, http.MethodGet, "/users/1?mount="+mountID, nil).Body.String()
	if strings.Contains(body, "Video upload has started.") {
		t.Fatal("expected notification to be dismissed")
	}
}

func TestHomeRedirects(t *testing.T) {
	mux, _ := newTestMux(t, newStubBackend(), nil)

	for _, target := range []string{"/users", "/users/"} {
		rec := serve(mux, http.MethodGet, target, nil)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/error" {
			t.Fatalf("%s: expected redirect to /error got %d %q", target, rec.Code, rec.Header().Get("Location"))
		}
	}

	rec := serve(mux, http.MethodPost, "/users/1/videos", url.Values{"mount": {"expired"}, "name": {"clip1"}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/users/1" {
		t.Fatalf("expected remount redirect got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	mountID := mountHome(t, mux, "1")
	rec = serve(mux, http.MethodGet, "/users/2?mount="+mountID, nil)
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), "/users/2?mount=") {
		t.Fatalf("expected a fresh mount for another user got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

// countingSource blocks like a real event stream and tracks how many are running.
type countingSource struct {
	running *atomic.Int64
}

func (c countingSource) Run(ctx context.Context, _ func(events.Event)) error {
	c.running.Add(1)
	defer c.running.Add(-1)
	<-ctx.Done()
	return ctx.Err()
}

func TestHomeMountsAreBounded(t *testing.T) {
	var running atomic.Int64
	registry := mounts.NewRegistry(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)), mounts.WithMaxPerUser(3))
	t.Cleanup(func() { _ = registry.Shutdown() })

	open := func(string) (views.EventSource, error) {
		return countingSource{running: &running}, nil
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Backend:   newStubBackend(),
		Events:    open,
		Mounts:    registry,
		KeepAlive: time.Hour,
	})

	for i := 0; i < 100; i++ {
		method := http.MethodGet
		if i%2 == 1 {
			method = http.MethodHead
		}
		rec := serve(mux, method, "/users/1", nil)
		if method == http.MethodHead && rec.Code != http.StatusOK {
			t.Fatalf("expected HEAD to answer 200 without mounting got %d", rec.Code)
		}
	}

	if got := registry.Len(); got != 3 {
		t.Fatalf("expected mounts capped at 3 got %d", got)
	}
	if got := running.Load(); got > 3 {
		t.Fatalf("expected at most 3 open event streams got %d", got)
	}

	before := registry.Len()
	serve(mux, http.MethodHead, "/users/2", nil)
	if registry.Len() != before {
		t.Fatal("expected HEAD not to create a mount")
	}
}

func TestHomeMountRateLimit(t *testing.T) {
	registry := mounts.NewRegistry(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = registry.Shutdown() })

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Backend:      newStubBackend(),
		Mounts:       registry,
		MountLimiter: middleware.NewIPRateLimiter(1, time.Hour, 1, time.Hour),
		KeepAlive:    time.Hour,
	})

	mountID := mountHome(t, mux, "1")

	rec := serve(mux, http.MethodGet, "/users/2", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for a second mount got %d", rec.Code)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected the rejected request not to mount, got %d mounts", registry.Len())
	}

	if rec := serve(mux, http.MethodGet, "/users/1?mount="+mountID, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected an existing mount to render without charging the limiter got %d", rec.Code)
	}
}

func TestErrorPage(t *testing.T) {
	mux, _ := newTestMux(t, newStubBackend(), nil)

	rec := serve(mux, http.MethodGet, "/error", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Oops! Something went wrong.") || !strings.Contains(body, `href="/"`) {
		t.Fatalf("unexpected error page:\n%s", body)
	}
}

func TestHealthHandlerHandle(t *testing.T) {
	mux, _ := newTestMux(t, newStubBackend(), nil)
	mountHome(t, mux, "1")

	rec := serve(mux, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type got %s", got)
	}

	var payload struct {
		Status string `json:"status"`
		Mounts int    `json:"mounts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "ok" || payload.Mounts != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if rec := serve(mux, http.MethodPost, "/healthz", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected method not allowed got %d", rec.Code)
	}
}

func TestLiveRelaysNotifications(t *testing.T) {
	backend := newStubBackend()
	mux, _ := newTestMux(t, backend, nil)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mountID := mountHome(t, mux, "1")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/users/1/live?mount=" + url.QueryEscape(mountID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The relay registers its watcher after the upgrade; retry the action until a message arrives.
	received := make(chan models.Notification, 1)
	go func() {
		var n models.Notification
		if err := conn.ReadJSON(&n); err == nil {
			received <- n
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		serve(mux, http.MethodPost, "/users/1/videos", url.Values{"mount": {mountID}, "name": {"clip1"}})
		select {
		case n := <-received:
			if n.Message != "Video upload has started." || n.Severity != models.SeveritySuccess {
				t.Fatalf("unexpected notification %+v", n)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for relayed notification")
		}
	}
}

func TestLiveUnknownMount(t *testing.T) {
	mux, _ := newTestMux(t, newStubBackend(), nil)

	rec := serve(mux, http.MethodGet, "/users/1/live?mount=missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
