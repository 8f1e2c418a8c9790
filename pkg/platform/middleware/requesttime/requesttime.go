// Package requesttime pins "now" once per request so the history rows,
// audit events and notifications written by one call share a timestamp.
package requesttime

import (
	"net/http"
	"time"

	"regflow/pkg/requestcontext"
)

// Middleware stamps each request with clock(), in UTC. A nil clock means
// time.Now.
func Middleware(clock func() time.Time) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), clock().UTC())))
		})
	}
}
