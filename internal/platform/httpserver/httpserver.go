package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server. The write timeout leaves headroom over the
// per-resolution query timeout so slow queries end with a response body.
func New(addr string, handler http.Handler, queryTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      queryTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
