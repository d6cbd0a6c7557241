package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler, auth *APIKeyAuth) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)

	r.Get("/health", h.Health)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/{id}", h.GetTask)
		r.Group(func(r chi.Router) {
			r.Use(auth.Require)
			r.Post("/", h.CreateTask)
			r.Post("/{id}/retry", h.RetryTask)
		})
	})

	r.Route("/reader-tests", func(r chi.Router) {
		r.Get("/{id}", h.GetReaderTest)
		r.With(auth.Require).Put("/{id}", h.SetReaderTestTotal)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
