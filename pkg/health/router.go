package health

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router mounts the probe endpoints:
//
//	GET /live   always OK
//	GET /ready  runs checks
//	GET /stats  JSON of every WithStats source (only when one is registered)
//
// Mount it under any prefix, e.g. r.Mount("/health", health.Router(checks)).
func Router(checks Checks, opts ...Option) chi.Router {
	cfg := newConfig(opts...)

	r := chi.NewRouter()
	r.Use(middleware.NoCache)
	r.Get("/live", LivenessHandler())
	r.Get("/ready", readinessHandler(checks, cfg))
	if len(cfg.stats) > 0 {
		r.Get("/stats", statsHandler(cfg))
	}
	return r
}
