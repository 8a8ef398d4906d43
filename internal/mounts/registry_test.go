package mounts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/subscribr/web/internal/models"
	"github.com/subscribr/web/internal/views"
)

type emptyBackend struct{}

func (emptyBackend) GetUser(context.Context, string) (models.Profile, error) {
	return models.Profile{}, nil
}

func (emptyBackend) Subscriptions(context.Context, string) ([]models.User, error) {
	return nil, nil
}

func (emptyBackend) ListUsers(context.Context) ([]models.User, error) {
	return nil, nil
}

func (emptyBackend) PostVideo(context.Context, string, models.VideoPost) error {
	return nil
}

func (emptyBackend) Subscribe(context.Context, string, string) error {
	return nil
}

func (emptyBackend) Unsubscribe(context.Context, string, string) error {
	return nil
}

func mountedHome(t *testing.T, userID string) *views.Home {
	t.Helper()
	home := views.NewHome(userID, emptyBackend{}, nil)
	if _, ok := home.Mount(context.Background()); !ok {
		t.Fatalf("mount %q failed", userID)
	}
	return home
}

func newTestRegistry(now *time.Time) *Registry {
	r := NewRegistry(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.NowFunc = func() time.Time { return *now }
	return r
}

func TestRegistryGetChecksOwner(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := newTestRegistry(&now)

	id := r.Add(mountedHome(t, "1"))
	if id == "" {
		t.Fatal("expected mount id")
	}

	if _, ok := r.Get(id, "1"); !ok {
		t.Fatal("expected mount to be found")
	}
	if _, ok := r.Get(id, "2"); ok {
		t.Fatal("expected mount of another user to be hidden")
	}
	if _, ok := r.Get("missing", "1"); ok {
		t.Fatal("expected unknown mount to be missing")
	}
}

func TestRegistrySweepRemovesIdleMounts(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := newTestRegistry(&now)

	idleHome := mountedHome(t, "1")
	idle := r.Add(idleHome)
	active := r.Add(mountedHome(t, "2"))

	now = now.Add(45 * time.Second)
	if !r.Touch(active) {
		t.Fatal("expected touch to find the active mount")
	}

	now = now.Add(30 * time.Second)
	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("expected 1 mount swept got %d", removed)
	}

	if _, ok := r.Get(idle, "1"); ok {
		t.Fatal("expected idle mount to be removed")
	}
	if idleHome.State() != views.HomeUnmounted {
		t.Fatalf("expected idle home to be unmounted got %v", idleHome.State())
	}
	if _, ok := r.Get(active, "2"); !ok {
		t.Fatal("expected active mount to survive")
	}
	if r.Touch(idle) {
		t.Fatal("expected touch on a swept mount to fail")
	}
}

func TestRegistryRemoveAndShutdown(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := newTestRegistry(&now)

	first := mountedHome(t, "1")
	second := mountedHome(t, "2")
	id := r.Add(first)
	r.Add(second)

	r.Remove(id)
	if first.State() != views.HomeUnmounted || r.Len() != 1 {
		t.Fatalf("expected first mount removed, state=%v len=%d", first.State(), r.Len())
	}

	if err := r.Start(time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if second.State() != views.HomeUnmounted || r.Len() != 0 {
		t.Fatalf("expected all mounts removed, state=%v len=%d", second.State(), r.Len())
	}
}

func TestRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)), WithMaxPerUser(2), WithMaxTotal(3))
	r.NowFunc = func() time.Time { return now }

	first := mountedHome(t, "1")
	firstID := r.Add(first)
	now = now.Add(time.Second)
	secondID := r.Add(mountedHome(t, "1"))
	now = now.Add(time.Second)

	// Using the first mount makes the second one the eviction candidate.
	r.Touch(firstID)
	now = now.Add(time.Second)
	r.Add(mountedHome(t, "1"))

	if r.Len() != 2 {
		t.Fatalf("expected per-user cap of 2 got %d mounts", r.Len())
	}
	if _, ok := r.Get(secondID, "1"); ok {
		t.Fatal("expected least recently used mount to be evicted")
	}
	if _, ok := r.Get(firstID, "1"); !ok || first.State() == views.HomeUnmounted {
		t.Fatal("expected recently used mount to survive")
	}

	now = now.Add(time.Second)
	r.Add(mountedHome(t, "2"))
	now = now.Add(time.Second)
	r.Add(mountedHome(t, "3"))
	if r.Len() != 3 {
		t.Fatalf("expected total cap of 3 got %d mounts", r.Len())
	}
}
