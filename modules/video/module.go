package video

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-preview/pkg/filestream"
)

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string
	config     Config

	manager *filestream.ManagerCtx
}

func New(pathPrefix string, config *Config) *ModuleCtx {
	module := &ModuleCtx{
		logger:     log.With().Str("module", "video").Logger(),
		pathPrefix: pathPrefix,
		config:     config.withDefaultValues(),
	}

	module.manager = filestream.New(&module.config.Config)
	return module
}

// nothing to release, every request owns its file handle
func (m *ModuleCtx) Shutdown() {

}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, m.pathPrefix) {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "405 method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.logger.Debug().
		Str("remote", r.RemoteAddr).
		Str("range", r.Header.Get("Range")).
		Msg("video requested")

	m.manager.ServeHTTP(w, r)
}
