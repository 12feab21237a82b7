// Package httpapi exposes the LINE webhook over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// NewRouter wires all routes behind the request logging middleware.
func NewRouter(h *Handler, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogging(log))
	RegisterRoutes(r, h)
	return r
}

// RegisterRoutes wires the health check and the webhook endpoint.
func RegisterRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/callback", h.HandleCallback).Methods(http.MethodPost)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
