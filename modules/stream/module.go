package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-preview/pkg/broadcaster"
	"github.com/m1k1o/go-preview/pkg/mjpeg"
)

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string
	config     Config

	manager *broadcaster.ManagerCtx
	viewers atomic.Int64

	// cancelled when viewers must leave
	ctx    context.Context
	cancel context.CancelFunc
}

func New(pathPrefix string, config *Config) (*ModuleCtx, error) {
	if config.Source == nil {
		return nil, errors.New("frame source is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	module := &ModuleCtx{
		logger:     log.With().Str("module", "stream").Logger(),
		pathPrefix: pathPrefix,
		config:     config.withDefaultValues(),

		ctx:    ctx,
		cancel: cancel,
	}

	module.manager = broadcaster.New(module.config.Source, &module.config.Config)
	return module, nil
}

func (m *ModuleCtx) Start() error {
	return m.manager.Start()
}

// CloseViewers ends every running stream; new viewers are refused.
func (m *ModuleCtx) CloseViewers() {
	m.cancel()
}

func (m *ModuleCtx) Shutdown() {
	m.CloseViewers()
	m.manager.Stop()
}

func (m *ModuleCtx) Broadcaster() *broadcaster.ManagerCtx {
	return m.manager
}

func (m *ModuleCtx) Viewers() int64 {
	return m.viewers.Load()
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, m.pathPrefix) {
		http.NotFound(w, r)
		return
	}

	if m.ctx.Err() != nil {
		http.Error(w, "503 stream is shutting down", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	logger := m.logger.With().
		Str("viewer", uuid.NewString()).
		Str("remote", r.RemoteAddr).
		Logger()

	logger.Info().Int64("viewers", m.viewers.Add(1)).Msg("viewer connected")
	defer func() {
		logger.Info().Int64("viewers", m.viewers.Add(-1)).Msg("viewer disconnected")
	}()

	latest := func() []byte {
		return m.manager.Latest()
	}

	if err := mjpeg.Serve(ctx, w, latest, m.manager.Interval()); err != nil {
		logger.Debug().Err(err).Msg("stream write failed")
	}
}
