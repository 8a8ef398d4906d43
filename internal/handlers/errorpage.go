package handlers

import (
	"net/http"

	"github.com/subscribr/web/internal/views"
)

// ErrorHandler serves the fallback page.
type ErrorHandler struct{}

// Show handles GET /error.
func (ErrorHandler) Show(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var view views.ErrorView
	renderPage(r.Context(), w, http.StatusOK, "error", struct {
		Title string
		Home  string
	}{Title: view.Title(), Home: view.GoHome().Path})
}
