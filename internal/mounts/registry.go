// Package mounts tracks the live User-home mounts of the web frontend.
package mounts

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/subscribr/web/internal/views"
)

// Defaults for a Registry.
const (
	DefaultIdleTTL    = 10 * time.Minute
	DefaultMaxPerUser = 8
	DefaultMaxTotal   = 1000
)

type entry struct {
	home     *views.Home
	lastSeen time.Time
}

// Registry maps mount ids to mounted homes. Browser requests carry the mount id
// so follow-up actions reach the same Home and its event connection.
type Registry struct {
	ttl        time.Duration
	maxPerUser int
	maxTotal   int
	logger     *slog.Logger

	// NowFunc allows tests to control the clock.
	NowFunc func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	scheduler gocron.Scheduler
}

// Option customises a Registry.
type Option func(*Registry)

// WithMaxPerUser caps the live mounts of one user.
func WithMaxPerUser(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPerUser = n
		}
	}
}

// WithMaxTotal caps the live mounts of the whole process.
func WithMaxTotal(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxTotal = n
		}
	}
}

// NewRegistry creates an empty registry. A non-positive ttl selects DefaultIdleTTL.
func NewRegistry(ttl time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		ttl:        ttl,
		maxPerUser: DefaultMaxPerUser,
		maxTotal:   DefaultMaxTotal,
		logger:     logger,
		NowFunc:    time.Now,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a mounted home and returns its mount id. When the user or the
// process is at its cap, the least recently used mount is unmounted first.
func (r *Registry) Add(home *views.Home) string {
	id := uuid.NewString()
	userID := home.UserID()

	var evicted []*views.Home
	r.mu.Lock()
	for r.countLocked(userID) >= r.maxPerUser {
		evicted = append(evicted, r.evictOldestLocked(userID))
	}
	for len(r.entries) >= r.maxTotal {
		evicted = append(evicted, r.evictOldestLocked(""))
	}
	r.entries[id] = &entry{home: home, lastSeen: r.NowFunc()}
	r.mu.Unlock()

	for _, old := range evicted {
		old.Unmount()
	}
	if len(evicted) > 0 {
		r.logger.Info("mounts evicted", "count", len(evicted), "userId", userID)
	}
	r.logger.Debug("mount added", "mount_id", id, "userId", userID)
	return id
}

func (r *Registry) countLocked(userID string) int {
	n := 0
	for _, e := range r.entries {
		if e.home.UserID() == userID {
			n++
		}
	}
	return n
}

// evictOldestLocked removes the least recently used mount, restricted to
// userID when it is non-empty. The caller must ensure a candidate exists.
func (r *Registry) evictOldestLocked(userID string) *views.Home {
	var (
		oldestID string
		oldest   *entry
	)
	for id, e := range r.entries {
		if userID != "" && e.home.UserID() != userID {
			continue
		}
		if oldest == nil || e.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, e
		}
	}
	delete(r.entries, oldestID)
	return oldest.home
}

// Get returns the home mounted under id for userID and marks it as used.
// A mount belonging to another user is reported as missing.
func (r *Registry) Get(id, userID string) (*views.Home, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.home.UserID() != userID {
		return nil, false
	}
	e.lastSeen = r.NowFunc()
	return e.home, true
}

// Touch marks a mount as used. It reports false when the mount is gone.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if ok {
		e.lastSeen = r.NowFunc()
	}
	return ok
}

// Remove unmounts and forgets a mount.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		e.home.Unmount()
	}
}

// Len reports the number of live mounts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep unmounts every mount idle for longer than the ttl and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.NowFunc().Add(-r.ttl)

	var idle []*views.Home
	r.mu.Lock()
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.home)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, home := range idle {
		home.Unmount()
	}
	if len(idle) > 0 {
		r.logger.Info("idle mounts swept", "count", len(idle))
	}
	return len(idle)
}

// Start schedules Sweep every interval. A non-positive interval sweeps at half the ttl.
func (r *Registry) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = r.ttl / 2
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create mount scheduler: %w", err)
	}
	if _, err := scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(func() {
		r.Sweep()
	})); err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule mount sweep: %w", err)
	}

	r.mu.Lock()
	r.scheduler = scheduler
	r.mu.Unlock()

	scheduler.Start()
	return nil
}

// Shutdown stops the sweep and unmounts everything.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	scheduler := r.scheduler
	r.scheduler = nil
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.home.Unmount()
	}

	if scheduler == nil {
		return nil
	}
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stop mount scheduler: %w", err)
	}
	return nil
}
