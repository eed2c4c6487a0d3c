package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cvchi "github.com/codevault/codevault/middleware/chi"
	"github.com/codevault/codevault/ratelimit"
)

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID, a.observe, chimw.Recoverer)

	r.NotFound(a.handleNotFound)
	r.MethodNotAllowed(a.handleMethodNotAllowed)

	r.Get("/", a.handleIndex)
	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Post("/register", a.handleRegister)
	ipKey := ratelimit.RemoteIP
	if a.cfg.TrustProxyHeaders {
		ipKey = ratelimit.GetClientIP
	}
	r.With(ratelimit.Middleware(a.limiter, &ratelimit.Config{KeyFunc: ipKey, Logger: a.log})).
		Post("/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(cvchi.Authenticate(a.vault, nil))

		r.Get("/me", a.handleMe)

		r.Route("/admin", func(r chi.Router) {
			r.Use(cvchi.RequireAdmin(a.vault, nil))
			r.Get("/users", a.handleListUsers)
			r.Delete("/delete/{id}", a.handleDeleteUser)
			r.Put("/users/{id}/role", a.handleSetRole)
		})

		r.Route("/snippets", func(r chi.Router) {
			r.Post("/add", a.handleCreateSnippet)
			r.Get("/my", a.handleListSnippets)
			r.Get("/favorites", a.handleListFavorites)
			r.Get("/search", a.handleSearchSnippets)
			r.Get("/{id}", a.handleGetSnippet)
			r.Put("/update/{id}", a.handleUpdateSnippet)
			r.Delete("/delete/{id}", a.handleDeleteSnippet)
			r.Post("/favorite/{id}", a.handleToggleFavorite)
		})
	})

	return r
}
