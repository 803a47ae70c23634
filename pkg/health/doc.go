// Package health serves liveness, readiness and stats endpoints for
// processes running snapshot caches.
//
// [Router] returns a chi router with /live, /ready and, when [WithStats] is
// used, /stats. Checks run in parallel under a shared timeout.
//
//	c, _ := snapshot.Open(store, "cache.json", cache.DefaultConfig())
//
//	r := chi.NewRouter()
//	r.Mount("/health", health.Router(
//	    health.Checks{"snapshot": c.Healthcheck()},
//	    health.WithStats("snapshot", func() any { return c.Stats() }),
//	    health.WithLogger(log),
//	))
//
// Responses are plain text ("OK" / "Service Unavailable") unless the client
// sends Accept: application/json or ?format=json:
//
//	{
//	  "status": "unhealthy",
//	  "checks": {
//	    "snapshot": {"status": "unhealthy", "error": "snapshot: initial load in progress", "duration": "3µs"}
//	  }
//	}
package health
