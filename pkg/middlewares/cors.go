package middlewares

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
)

type CorsMw struct {
	h http.Handler
}

// CorsOptions allows browser dashboards on origins to read node state and
// send commands
func CorsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", DefaultCorrelationHeader},
		ExposedHeaders: []string{TxnIDHeader, DefaultCorrelationHeader},
		MaxAge:         600,
	}
}

func NewCorsMw(opts cors.Options) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewCors(opts, next)
	}
}

// Called once for each middleware chain
func NewCors(opts cors.Options, next http.Handler) *CorsMw {
	c := cors.New(opts)

	return &CorsMw{
		h: c.Handler(next),
	}
}

func (mw *CorsMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		logging.Logger(r.Context()).Debugf("cross origin %s request from %s", r.Method, origin)
	}

	mw.h.ServeHTTP(rw, r)
}
