package http

import (
	"net/http"

	"github.com/atinyakov/GophFill/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the autofill API.
//
// Routes:
//
//	GET    /api/health              → Health
//	POST   /api/fill                → fillHandler.Create
//	PUT    /api/fill/{id}/query     → fillHandler.Query
//	GET    /api/fill/{id}/results   → fillHandler.Results
//	GET    /api/fill/{id}/ws        → fillHandler.Stream
//	POST   /api/fill/{id}/select    → fillHandler.Select
//	DELETE /api/fill/{id}           → fillHandler.Cancel
//	GET    /api/matches             → matchHandler.List
//	DELETE /api/matches             → matchHandler.Clear
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") rejects non-JSON bodies
//  2. CertAuth enforces TLS client certificates when requireCert is set, admitting only
//     the named bridges when any are given
//  3. WithRequestLogging(logger) logs every request with the calling bridge
func NewRouter(
	fillHandler *FillHandler,
	matchHandler *MatchHandler,
	logger *zap.Logger,
	requireCert bool,
	bridges ...string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	if requireCert {
		r.Use(middleware.CertAuth(bridges...))
	}
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", Health)

		r.Post("/fill", fillHandler.Create)
		r.Route("/fill/{id}", func(r chi.Router) {
			r.Put("/query", fillHandler.Query)
			r.Get("/results", fillHandler.Results)
			r.Get("/ws", fillHandler.Stream)
			r.Post("/select", fillHandler.Select)
			r.Delete("/", fillHandler.Cancel)
		})

		r.Get("/matches", matchHandler.List)
		r.Delete("/matches", matchHandler.Clear)
	})

	return r
}
