// Package views holds the presentation state of the Subscribr pages,
// independent of how they are rendered.
package views

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/subscribr/web/internal/api"
	"github.com/subscribr/web/internal/logging"
	"github.com/subscribr/web/internal/models"
)

// Launcher messages shown to the user.
const (
	MsgNameRequired      = "Please enter a name."
	MsgDuplicateUsername = "Duplicate username, please choose another."
	MsgCreateFailed      = "Failed to create user."
	MsgUserIDRequired    = "Please enter a user ID."
	MsgInvalidUserID     = "Invalid user ID."
	MsgAccountNotFound   = "No account found for provided user ID."
	MsgLoginFailed       = "Failed to log in."
)

// Paths of the three pages.
const (
	LauncherPath = "/"
	ErrorPath    = "/error"
)

// UserHomePath is the page of the user identified by id.
func UserHomePath(id string) string {
	return "/users/" + url.PathEscape(id)
}

// Navigation describes where the browser goes after an action. NewContext asks
// for the page to open in a new browser tab.
type Navigation struct {
	Path       string
	NewContext bool
}

// Accounts is what the launcher needs from the backend.
type Accounts interface {
	CreateUser(ctx context.Context, username string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.Profile, error)
}

// Launcher is the registration and login form.
type Launcher struct {
	accounts Accounts

	NameInput   string
	UserIDInput string

	alert *models.Notification
}

// NewLauncher returns an empty launcher form.
func NewLauncher(accounts Accounts) *Launcher {
	return &Launcher{accounts: accounts}
}

// CreateUser registers NameInput. On success the input is cleared and the new
// user's home is opened in a new context.
func (l *Launcher) CreateUser(ctx context.Context) (Navigation, bool) {
	name := strings.TrimSpace(l.NameInput)
	if name == "" {
		l.fail(MsgNameRequired)
		return Navigation{}, false
	}

	user, err := l.accounts.CreateUser(ctx, name)
	if err != nil {
		logging.FromContext(ctx).Warn("create user failed", "username", name, "error", err)
		if errors.Is(err, api.ErrConflict) {
			l.fail(MsgDuplicateUsername)
		} else {
			l.fail(MsgCreateFailed)
		}
		return Navigation{}, false
	}

	l.NameInput = ""
	l.alert = nil
	return Navigation{Path: UserHomePath(user.ID), NewContext: true}, true
}

// LoginUser looks up UserIDInput and opens that user's home in a new context.
func (l *Launcher) LoginUser(ctx context.Context) (Navigation, bool) {
	id := strings.TrimSpace(l.UserIDInput)
	if id == "" {
		l.fail(MsgUserIDRequired)
		return Navigation{}, false
	}

	profile, err := l.accounts.GetUser(ctx, id)
	if err != nil {
		logging.FromContext(ctx).Warn("login failed", "userId", id, "error", err)
		switch {
		case errors.Is(err, api.ErrBadRequest):
			l.fail(MsgInvalidUserID)
		case errors.Is(err, api.ErrNotFound):
			l.fail(MsgAccountNotFound)
		default:
			l.fail(MsgLoginFailed)
		}
		return Navigation{}, false
	}

	l.UserIDInput = ""
	l.alert = nil
	return Navigation{Path: UserHomePath(profile.ID), NewContext: true}, true
}

// Alert returns the pending error message, if any.
func (l *Launcher) Alert() (models.Notification, bool) {
	if l.alert == nil {
		return models.Notification{}, false
	}
	return *l.alert, true
}

// DismissAlert closes the pending message.
func (l *Launcher) DismissAlert() {
	l.alert = nil
}

func (l *Launcher) fail(message string) {
	l.alert = &models.Notification{Message: message, Severity: models.SeverityError}
}
