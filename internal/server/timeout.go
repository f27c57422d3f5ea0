package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds each delivery's processing time. Cancellation
// is cooperative: the pipeline's blocking points (dereference, commit)
// observe the request context.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
