package api

import (
	"net/http"

	"github.com/go-chi/render"
)

// Health reports whether scans can currently be accepted.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.scanner.Available(r.Context()); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}
