package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/observability"
	"github.com/go-chi/chi/v5"
)

// MetricsMiddleware observes request latency keyed by chi route pattern, so
// /v1/admin/accounts/{mobile}/block is one series rather than one per mobile.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseRecorder(w)
		next.ServeHTTP(rw, r)
		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

// routePattern must run after the router has matched. Unmatched paths
// collapse to a single label.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
