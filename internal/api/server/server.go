package server

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"github.com/resizr/resizr/internal/config"
)

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// New builds the HTTP server for the given router. Timeouts come from
// configuration; unset values fall back to the defaults above. The write
// timeout bounds file downloads, so it should stay well above the read one.
func New(cfg config.Server, router *ginext.Engine) *http.Server {
	read := cfg.ReadTimeout
	if read == 0 {
		read = defaultReadTimeout
	}
	write := cfg.WriteTimeout
	if write == 0 {
		write = defaultWriteTimeout
	}
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = defaultIdleTimeout
	}

	return &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       read,
		WriteTimeout:      write,
		IdleTimeout:       idle,
		ReadHeaderTimeout: read,
	}
}
