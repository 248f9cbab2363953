package app

import (
	"net/http"

	"github.com/driverjobs/formrelay/internal/handler"
	"github.com/driverjobs/formrelay/internal/middleware"
	"github.com/driverjobs/formrelay/internal/security"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	if app.config.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(app.logger))
	r.Use(security.HeadersMiddleware)
	r.Use(middleware.CORS(app.config.Cors.AllowedOrigins, app.logger))

	errorHandler := handler.NewErrorHandler(app.logger)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// Health checks
	r.Get("/api/health", handler.Health(app.started))
	r.Get("/healthcheck", handler.Healthcheck)

	// Submissions share one rate limit budget per client
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(app.limiter, app.logger))

		applicationHandler := handler.NewApplicationHandler(app.logger, app.uploads, app.dispatcher)
		r.Post("/api/submit-application", applicationHandler.Submit)

		hiringHandler := handler.NewHiringHandler(app.logger, app.dispatcher)
		r.Post("/api/company-hiring", hiringHandler.Submit)
	})

	return r
}
