package handlers

import (
	"net/http"

	"github.com/subscribr/web/internal/models"
	"github.com/subscribr/web/internal/views"
)

// LauncherHandler serves the registration and login forms.
type LauncherHandler struct {
	Accounts views.Accounts
}

type launcherPage struct {
	NameInput   string
	UserIDInput string
	Alert       *models.Notification
	Open        string
}

// Show handles GET /.
func (h LauncherHandler) Show(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.render(w, r, views.NewLauncher(h.Accounts), "")
}

// Create handles POST /launcher/create.
func (h LauncherHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	launcher := views.NewLauncher(h.Accounts)
	launcher.NameInput = r.PostFormValue("username")

	nav, ok := launcher.CreateUser(r.Context())
	h.respond(w, r, launcher, nav, ok)
}

// Login handles POST /launcher/login.
func (h LauncherHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	launcher := views.NewLauncher(h.Accounts)
	launcher.UserIDInput = r.PostFormValue("userId")

	nav, ok := launcher.LoginUser(r.Context())
	h.respond(w, r, launcher, nav, ok)
}

func (h LauncherHandler) respond(w http.ResponseWriter, r *http.Request, launcher *views.Launcher, nav views.Navigation, ok bool) {
	if !ok {
		h.render(w, r, launcher, "")
		return
	}
	if !nav.NewContext {
		redirect(w, r, nav.Path)
		return
	}
	h.render(w, r, launcher, nav.Path)
}

func (h LauncherHandler) render(w http.ResponseWriter, r *http.Request, launcher *views.Launcher, open string) {
	page := launcherPage{
		NameInput:   launcher.NameInput,
		UserIDInput: launcher.UserIDInput,
		Open:        open,
	}
	if alert, ok := launcher.Alert(); ok {
		page.Alert = &alert
	}
	renderPage(r.Context(), w, http.StatusOK, "launcher", page)
}
