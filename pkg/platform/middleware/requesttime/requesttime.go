// Package requesttime captures one "now" per request so envelopes and logs
// written while serving it share a timestamp.
package requesttime

import (
	"net/http"
	"time"

	"domainreader/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request
// and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
