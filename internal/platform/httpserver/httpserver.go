// Package httpserver builds the process's http.Server. Handler timeouts are
// middleware concerns; this layer only bounds the connection itself.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	// writeTimeout leaves headroom over the 30s handler timeout so slow
	// payment-provider calls surface as request errors, not dropped
	// connections.
	writeTimeout = 35 * time.Second
	idleTimeout  = 2 * time.Minute
)

// New returns the server for the checkout API.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
