package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fellis.eu/internal/obs"
)

// NewRouter wires the routes: public auth endpoints, the authenticated
// privacy surface, health, and metrics.
func NewRouter(h *Handlers, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.Instrument)
	r.Use(RateLimit(20, 40))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Post("/api/register", h.register)
	r.Post("/api/login", h.login)
	r.Post("/api/refresh", h.refresh)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuth(jwtSecret))

		r.Post("/api/logout", h.logout)

		r.Get("/auth/facebook", h.oauthStart)
		r.Get("/auth/facebook/callback", h.oauthCallback)

		r.Get("/api/consents", h.consentStatus)
		r.Post("/api/consents/{purpose}", h.grantConsent)
		r.Delete("/api/consents/{purpose}", h.withdrawConsent)

		r.Post("/api/erasure/source", h.eraseSource)
		r.Post("/api/erasure/account", h.eraseAccount)

		r.Get("/api/export", h.exportData)
	})

	return r
}
