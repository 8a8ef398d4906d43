package views

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/subscribr/web/internal/events"
	"github.com/subscribr/web/internal/logging"
	"github.com/subscribr/web/internal/models"
)

// User-home messages shown to the user.
const (
	MsgVideoNameRequired = "Please provide a video name."
	MsgUploadStarted     = "Video upload has started."
	MsgUploadFailed      = "Error uploading video."
)

// ErrEmptyTarget is returned when a subscription action names no user.
var ErrEmptyTarget = errors.New("target user id must not be empty")

// HomeState is the lifecycle position of one User-home mount.
type HomeState int

const (
	HomeUninitialized HomeState = iota
	HomeLoading
	HomeReady
	HomeRedirected
	HomeUnmounted
)

func (s HomeState) String() string {
	switch s {
	case HomeUninitialized:
		return "uninitialized"
	case HomeLoading:
		return "loading"
	case HomeReady:
		return "ready"
	case HomeRedirected:
		return "redirected"
	case HomeUnmounted:
		return "unmounted"
	default:
		return "unknown"
	}
}

// Backend is what the User-home needs from the REST API.
type Backend interface {
	GetUser(ctx context.Context, id string) (models.Profile, error)
	Subscriptions(ctx context.Context, id string) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	PostVideo(ctx context.Context, id string, post models.VideoPost) error
	Subscribe(ctx context.Context, id, target string) error
	Unsubscribe(ctx context.Context, id, target string) error
}

// EventSource delivers a user's notification events until ctx is cancelled.
type EventSource interface {
	Run(ctx context.Context, handle func(events.Event)) error
}

// EventSourceFunc opens the event source for a user.
type EventSourceFunc func(userID string) (EventSource, error)

// HomeView is a consistent snapshot of a Home for rendering.
type HomeView struct {
	State         HomeState
	UserID        string
	Username      string
	Subscriptions []models.User
	Candidates    []models.User
	VideoName     string
	Notification  *models.Notification
}

// Home is one mount of a user's home page: profile, subscriptions, the user
// directory, the current notification and the live event connection.
// Actions and inbound events may arrive concurrently; all state is guarded by mu.
type Home struct {
	userID     string
	backend    Backend
	openEvents EventSourceFunc
	now        func() time.Time

	mu            sync.Mutex
	state         HomeState
	username      string
	subscriptions []models.User
	directory     []models.User
	videoName     string
	notification  *models.Notification
	watchers      map[chan models.Notification]struct{}
	cancelStream  context.CancelFunc
	streamDone    chan struct{}
}

// NewHome prepares an unmounted home for userID. openEvents may be nil, in which
// case no live connection is opened.
func NewHome(userID string, backend Backend, openEvents EventSourceFunc) *Home {
	return &Home{
		userID:     strings.TrimSpace(userID),
		backend:    backend,
		openEvents: openEvents,
		now:        time.Now,
		watchers:   make(map[chan models.Notification]struct{}),
	}
}

// UserID is the identifier the home was mounted for.
func (h *Home) UserID() string {
	return h.userID
}

// Mount opens the event connection and loads profile, subscriptions and the
// user directory concurrently. A failed fetch is logged and leaves its section
// empty. Without a user id the mount is redirected to the error page and
// Mount reports false.
func (h *Home) Mount(ctx context.Context) (Navigation, bool) {
	h.mu.Lock()
	switch h.state {
	case HomeUninitialized:
	case HomeRedirected:
		h.mu.Unlock()
		return Navigation{Path: ErrorPath}, false
	default:
		h.mu.Unlock()
		return Navigation{}, true
	}
	if h.userID == "" {
		h.state = HomeRedirected
		h.mu.Unlock()
		return Navigation{Path: ErrorPath}, false
	}
	h.state = HomeLoading
	h.mu.Unlock()

	h.openStream(ctx)

	var g errgroup.Group
	g.Go(func() error {
		h.loadProfile(ctx)
		return nil
	})
	g.Go(func() error {
		h.loadSubscriptions(ctx)
		return nil
	})
	g.Go(func() error {
		h.loadDirectory(ctx)
		return nil
	})
	_ = g.Wait()

	h.mu.Lock()
	if h.state == HomeLoading {
		h.state = HomeReady
	}
	h.mu.Unlock()

	return Navigation{}, true
}

// Unmount closes the event connection and every watcher. Responses arriving
// afterwards are dropped.
func (h *Home) Unmount() {
	h.mu.Lock()
	if h.state == HomeUnmounted {
		h.mu.Unlock()
		return
	}
	h.state = HomeUnmounted
	cancel, done := h.cancelStream, h.streamDone
	for ch := range h.watchers {
		delete(h.watchers, ch)
		close(ch)
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// State reports the lifecycle position.
func (h *Home) State() HomeState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PostVideo starts an upload named name. Completion is announced later on the event stream.
func (h *Home) PostVideo(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		h.raise(MsgVideoNameRequired, models.SeverityError)
		return false
	}

	err := h.backend.PostVideo(ctx, h.userID, models.VideoPost{Name: name, VideoUploaderID: h.userID})
	if err != nil {
		logging.FromContext(ctx).Error("Error uploading video", "userId", h.userID, "video", name, "error", err)
		h.mu.Lock()
		h.videoName = name
		h.mu.Unlock()
		h.raise(MsgUploadFailed, models.SeverityError)
		return false
	}

	h.mu.Lock()
	h.videoName = ""
	h.mu.Unlock()
	h.raise(MsgUploadStarted, models.SeveritySuccess)
	return true
}

// Subscribe follows target. The subscription list changes only after the call
// succeeds; failures are logged and returned.
func (h *Home) Subscribe(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrEmptyTarget
	}

	if err := h.backend.Subscribe(ctx, h.userID, target); err != nil {
		logging.FromContext(ctx).Error("Error subscribing to user", "userId", h.userID, "target", target, "error", err)
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if indexOf(h.subscriptions, target) >= 0 {
		return nil
	}
	user := models.User{ID: target}
	if i := indexOf(h.directory, target); i >= 0 {
		user = h.directory[i]
	}
	h.subscriptions = append(h.subscriptions, user)
	return nil
}

// Unsubscribe stops following target, removing it from the subscription list on success.
func (h *Home) Unsubscribe(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrEmptyTarget
	}

	if err := h.backend.Unsubscribe(ctx, h.userID, target); err != nil {
		logging.FromContext(ctx).Error("Error unsubscribing from user", "userId", h.userID, "target", target, "error", err)
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.subscriptions[:0]
	for _, sub := range h.subscriptions {
		if normalizeID(sub.ID) != target {
			kept = append(kept, sub)
		}
	}
	h.subscriptions = kept
	return nil
}

// HandleEvent turns a stream event into the current notification.
func (h *Home) HandleEvent(ev events.Event) {
	n, ok := events.Notify(ev, h.now())
	if !ok {
		return
	}
	h.notify(n)
}

// Dismiss clears the current notification.
func (h *Home) Dismiss() {
	h.mu.Lock()
	h.notification = nil
	h.mu.Unlock()
}

// Notification returns the current notification, if any.
func (h *Home) Notification() (models.Notification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.notification == nil {
		return models.Notification{}, false
	}
	return *h.notification, true
}

// Subscriptions returns a copy of the subscription list.
func (h *Home) Subscriptions() []models.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.User(nil), h.subscriptions...)
}

// Candidates returns directory entries that are neither the current user nor
// already subscribed to.
func (h *Home) Candidates() []models.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.candidatesLocked()
}

// Watch registers for notifications raised from now on. The returned function
// unregisters; the channel is closed on unregister or unmount. Slow watchers
// miss notifications rather than block the home.
func (h *Home) Watch() (<-chan models.Notification, func()) {
	ch := make(chan models.Notification, 8)

	h.mu.Lock()
	if h.state == HomeUnmounted {
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	}
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.watchers[ch]; ok {
				delete(h.watchers, ch)
				close(ch)
			}
		})
	}
}

// View snapshots the home for rendering.
func (h *Home) View() HomeView {
	h.mu.Lock()
	defer h.mu.Unlock()

	view := HomeView{
		State:         h.state,
		UserID:        h.userID,
		Username:      h.username,
		Subscriptions: append([]models.User(nil), h.subscriptions...),
		Candidates:    h.candidatesLocked(),
		VideoName:     h.videoName,
	}
	if h.notification != nil {
		n := *h.notification
		view.Notification = &n
	}
	return view
}

func (h *Home) candidatesLocked() []models.User {
	self := normalizeID(h.userID)
	out := make([]models.User, 0, len(h.directory))
	for _, user := range h.directory {
		id := normalizeID(user.ID)
		if id == self || indexOf(h.subscriptions, id) >= 0 {
			continue
		}
		out = append(out, user)
	}
	return out
}

func (h *Home) openStream(ctx context.Context) {
	if h.openEvents == nil {
		return
	}

	logger := logging.FromContext(ctx).With("userId", h.userID)
	source, err := h.openEvents(h.userID)
	if err != nil {
		logger.Error("open notification stream", "error", err)
		return
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	h.mu.Lock()
	if h.state == HomeUnmounted {
		h.mu.Unlock()
		cancel()
		return
	}
	h.cancelStream = cancel
	h.streamDone = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		if err := source.Run(streamCtx, h.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("notification stream ended", "error", err)
		}
	}()
}

func (h *Home) loadProfile(ctx context.Context) {
	profile, err := h.backend.GetUser(ctx, h.userID)
	if err != nil {
		logging.FromContext(ctx).Error("Error fetching user data", "userId", h.userID, "error", err)
		return
	}
	h.update(func() { h.username = profile.Username })
}

func (h *Home) loadSubscriptions(ctx context.Context) {
	subscriptions, err := h.backend.Subscriptions(ctx, h.userID)
	if err != nil {
		logging.FromContext(ctx).Error("Error fetching user subscriptions", "userId", h.userID, "error", err)
		return
	}
	h.update(func() { h.subscriptions = subscriptions })
}

func (h *Home) loadDirectory(ctx context.Context) {
	users, err := h.backend.ListUsers(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("Error fetching other users", "error", err)
		return
	}
	h.update(func() { h.directory = users })
}

func (h *Home) update(apply func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HomeUnmounted {
		return
	}
	apply()
}

func (h *Home) raise(message string, severity models.Severity) {
	h.notify(models.Notification{Message: message, Severity: severity, CreatedAt: h.now()})
}

func (h *Home) notify(n models.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HomeUnmounted {
		return
	}
	h.notification = &n
	for ch := range h.watchers {
		select {
		case ch <- n:
		default:
		}
	}
}

func indexOf(users []models.User, id string) int {
	for i, user := range users {
		if normalizeID(user.ID) == id {
			return i
		}
	}
	return -1
}

func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
