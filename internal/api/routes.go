package api

import (
	"net/http"

	"diary/internal/auth"
	"diary/internal/logger"
	"diary/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	Sessions     *auth.Manager
	Log          *logger.Logger
	RequireAuth  bool
	LoginLimiter *middleware.IPRateLimiter
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only set it when a reverse proxy in front overwrites those headers.
	TrustProxy bool
}

// NewRouter mounts the diary pages. Entry and user creation sit behind the
// auth gate, which is a pass-through unless opts.RequireAuth is set.
func NewRouter(h *Handlers, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logging(opts.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/healthz", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(opts.Sessions, opts.Log))

		r.Get("/", h.ShowDays)
		r.Get("/{year}/{month}", h.ShowDays)
		r.Get("/show_entries/{year}/{month}/{day}", h.ShowEntries)
		r.Get("/entry_page/{year}/{month}/{day}", h.EntryPage)
		r.Get("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			if opts.LoginLimiter != nil {
				r.Use(opts.LoginLimiter.LimitPOST)
			}
			r.Get("/login", h.Login)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(opts.RequireAuth))
			r.Post("/add_entry/{date}", h.AddEntry)
			r.Post("/add_user", h.AddUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return r
}
