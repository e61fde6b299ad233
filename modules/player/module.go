package player

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

//go:embed player.html
var playHTML string

var playTemplate = template.Must(template.New("player").Parse(playHTML))

type ModuleCtx struct {
	logger zerolog.Logger
	config Config
	page   []byte
}

func New(config *Config) (*ModuleCtx, error) {
	module := &ModuleCtx{
		logger: log.With().Str("module", "player").Logger(),
		config: config.withDefaultValues(),
	}

	var buf bytes.Buffer
	if err := playTemplate.Execute(&buf, module.config); err != nil {
		return nil, err
	}

	module.page = buf.Bytes()
	return module, nil
}

func (m *ModuleCtx) Shutdown() {

}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if _, err := w.Write(m.page); err != nil {
		m.logger.Debug().Err(err).Msg("unable to write page")
	}
}
