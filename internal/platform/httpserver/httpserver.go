package httpserver

import (
	"net/http"
	"time"

	"archivist/internal/platform/config"
)

// writeGrace leaves room to send the timeout response after a handler's
// request deadline has passed.
const writeGrace = 5 * time.Second

// New builds the API server. The write timeout follows the per-request
// deadline so slow handlers end with a JSON timeout rather than a reset.
func New(cfg config.Server, handler http.Handler) *http.Server {
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout + writeGrace,
		IdleTimeout:       60 * time.Second,
	}
}
