package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleConfig)

		// Event stream stays outside the rate limit; it is one long request.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			if s.cfg.API.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.API.RateLimit.RequestsPerMinute,
				))
			}

			r.Put("/token", s.handleSetToken)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/discover", s.handleDiscoverProjects)
				r.Put("/order", s.handleReorderProjects)

				r.Route("/{vcs}/{user}/{repo}", func(r chi.Router) {
					r.Post("/track", s.handleTrackProject)
					r.Put("/enabled", s.handleSetEnabled)
					r.Put("/excluded", s.handleSetExcluded)
					r.Put("/collapsed", s.handleSetCollapsed)
					r.Put("/hidden-jobs", s.handleSetHiddenJobs)
					r.Put("/include-build-jobs", s.handleSetIncludeBuildJobs)
					r.Get("/data", s.handleProjectData)
					r.Post("/sync", s.handleSyncProject)
				})
			})
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}

	origins := s.cfg.API.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
