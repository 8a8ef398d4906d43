package handlers

import (
	"github.com/subscribr/web/internal/views"
)

// Backend is the REST surface used by the launcher and user-home pages.
type Backend interface {
	views.Accounts
	views.Backend
}

// MountRegistry keeps User-home mounts alive between browser requests.
type MountRegistry interface {
	Add(home *views.Home) string
	Get(id, userID string) (*views.Home, bool)
	Touch(id string) bool
	Len() int
}
