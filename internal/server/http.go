package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const shutdownTimeout = 5 * time.Second

type ServerManagerCtx struct {
	logger   zerolog.Logger
	config   Config
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
}

func New(config *Config) *ServerManagerCtx {
	logger := log.With().Str("module", "server").Logger()
	conf := config.withDefaultValues()

	router := chi.NewRouter()
	router.Use(middleware.RequestID) // Create a request ID for each request

	// get real users ip
	if conf.Proxy {
		router.Use(middleware.RealIP)
	}

	// add http logger
	router.Use(middleware.RequestLogger(&logformatter{logger}))
	router.Use(middleware.Recoverer) // Recover from panics without crashing server

	// serve static files
	if conf.Static != "" {
		files := http.FileServer(afero.NewHttpFs(conf.Fs).Dir(conf.Static))
		router.Get("/*", files.ServeHTTP)
		router.Head("/*", files.ServeHTTP)
		logger.Info().Str("static", conf.Static).Msg("serving static files")
	}

	// mount pprof endpoint
	if conf.PProf {
		withPProf(router)
		logger.Info().Msgf("with pprof endpoint at %s", pprofPath)
	}

	// use custom 404
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "404 not found", http.StatusNotFound)
	})

	return &ServerManagerCtx{
		logger: logger,
		config: conf,
		router: router,
		server: &http.Server{
			Addr:              conf.Bind,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener synchronously, so a taken port is reported
// to the caller, and serves in the background.
func (s *ServerManagerCtx) Start() error {
	listener, err := net.Listen("tcp", s.config.Bind)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", s.config.Bind, err)
	}
	s.listener = listener

	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.logger.Warn().Msg("TLS support is provided for convenience, but you should never use it in production. Use a reverse proxy (apache nginx caddy) instead!")
		go func() {
			if err := s.server.ServeTLS(listener, s.config.SSLCert, s.config.SSLKey); !errors.Is(err, http.ErrServerClosed) {
				s.logger.Panic().Err(err).Msg("unable to start https server")
			}
		}()
		s.logger.Info().Msgf("https listening on %s", listener.Addr())
	} else {
		go func() {
			if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
				s.logger.Panic().Err(err).Msg("unable to start http server")
			}
		}()
		s.logger.Info().Msgf("http listening on %s", listener.Addr())
	}

	return nil
}

// Addr is the bound address, empty before Start.
func (s *ServerManagerCtx) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// OnShutdown registers fn to run as soon as Shutdown begins. Handlers
// that never finish on their own (streams) must return once it ran.
func (s *ServerManagerCtx) OnShutdown(fn func()) {
	s.server.RegisterOnShutdown(fn)
}

func (s *ServerManagerCtx) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *ServerManagerCtx) Handle(pattern string, handler http.Handler) {
	s.router.Handle(pattern, handler)
}

func (s *ServerManagerCtx) Mount(fn func(r chi.Router)) {
	fn(s.router)
}

func (s *ServerManagerCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
