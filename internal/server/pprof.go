package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const pprofPath = "/debug/pprof"

// profiles are served from chi, mounted one level above pprofPath
func withPProf(router chi.Router) {
	router.Mount("/debug", middleware.Profiler())
}
