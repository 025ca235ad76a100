// Package httpserver builds the castline HTTP server from configuration.
package httpserver

import (
	"net/http"
	"time"

	"castline/internal/platform/config"
)

// New sizes the write timeout past the per-request timeout so the timeout
// middleware, not the server, answers slow requests.
func New(cfg config.Server, handler http.Handler) *http.Server {
	write := cfg.RequestTimeout + 5*time.Second
	if cfg.RequestTimeout <= 0 {
		write = 60 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
}
