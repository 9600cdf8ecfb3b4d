package rest

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the passkey routes.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/passkey/register", h.BeginRegistration)
	r.Post("/passkey/register/verify", h.FinishRegistration)
	r.Post("/passkey/authenticate", h.BeginAuthentication)
	r.Post("/passkey/authenticate/verify", h.FinishAuthentication)
	r.Get("/healthz", h.Health)
	return r
}
