package serve

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-preview/internal/server"
	"github.com/m1k1o/go-preview/modules"
	"github.com/m1k1o/go-preview/modules/player"
	"github.com/m1k1o/go-preview/modules/stream"
	"github.com/m1k1o/go-preview/modules/video"
	"github.com/m1k1o/go-preview/pkg/broadcaster"
	"github.com/m1k1o/go-preview/pkg/capture"
	"github.com/m1k1o/go-preview/pkg/filestream"
)

func NewCommand() *Main {
	return &Main{
		Config: &Config{},
	}
}

type Main struct {
	Config *Config

	logger zerolog.Logger
	server *server.ServerManagerCtx
	video  *video.ModuleCtx
	stream *stream.ModuleCtx
	player *player.ModuleCtx

	// shut down in order, after the server
	modules []modules.Module
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

// Start wires the modules of the selected mode and starts listening.
func (main *Main) Start() (err error) {
	config := main.Config

	if err := config.Validate(); err != nil {
		return err
	}

	// release the frame source when wiring fails half way
	defer func() {
		if err != nil && main.stream != nil {
			main.stream.Shutdown()
		}
	}()

	mode := player.ModeStream
	static := config.Static

	if config.Video != "" {
		mode = player.ModeVideo

		path, err := filepath.Abs(config.Video)
		if err != nil {
			return fmt.Errorf("unable to resolve video path: %w", err)
		}

		// siblings of the video are reachable next to it
		if static == "" {
			static = filepath.Dir(path)
		}

		main.video = video.New("/video", &video.Config{
			Config: filestream.Config{
				Path: path,
			},
		})
	} else {
		source := config.Source
		if source == nil {
			var err error
			if source, err = main.frameSource(); err != nil {
				return err
			}
		}

		main.stream, err = stream.New("/stream", &stream.Config{
			Config: broadcaster.Config{
				FPS: config.Camera.FPS,
			},
			Source: source,
		})
		if err != nil {
			return err
		}
	}

	main.player, err = player.New(&player.Config{
		Mode:  mode,
		Title: config.Title,
	})
	if err != nil {
		return err
	}

	main.server = server.New(&server.Config{
		Bind:    config.Bind(),
		Static:  static,
		SSLCert: config.Cert,
		SSLKey:  config.Key,
		Proxy:   config.Proxy,
		PProf:   config.PProf,
	})

	main.server.Mount(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			//nolint
			_, _ = w.Write([]byte("pong"))
		})
	})

	main.modules = append(main.modules, main.player)
	main.server.Handle("/", main.player)
	main.server.Handle("/index.html", main.player)
	main.logger.Info().Str("mode", mode).Msg("player registered")

	if main.video != nil {
		main.modules = append(main.modules, main.video)
		main.server.Handle("/video", main.video)
		main.server.Handle("/video*", main.video)
		main.logger.Info().Str("video", config.Video).Msg("video registered")
	}

	if main.stream != nil {
		if err := main.stream.Start(); err != nil {
			return err
		}

		// endless responses would hold the server shutdown
		main.server.OnShutdown(main.stream.CloseViewers)
		main.modules = append(main.modules, main.stream)

		main.server.Handle("/stream", main.stream)
		main.server.Handle("/stream*", main.stream)
		main.logger.Info().Float64("fps", main.stream.Broadcaster().FPS()).Msg("stream registered")
	}

	if err := main.server.Start(); err != nil {
		return err
	}

	main.logger.Info().Msgf("preview ready at http://%s/", main.server.Addr())
	return nil
}

func (main *Main) frameSource() (broadcaster.Source, error) {
	camera := main.Config.Camera

	switch camera.Source {
	case SourceDirectory:
		source, err := capture.NewDirectory(afero.NewOsFs(), camera.Directory)
		if err != nil {
			return nil, fmt.Errorf("unable to use camera directory: %w", err)
		}
		main.logger.Info().Str("directory", camera.Directory).Msg("capturing from directory")
		return source, nil
	default:
		main.logger.Info().Str("binary", camera.FFmpegBinary).Msg("capturing from command")
		return capture.NewCommand(camera.commandConfig()), nil
	}
}

// Addr is the address the server listens on.
func (main *Main) Addr() string {
	if main.server == nil {
		return ""
	}
	return main.server.Addr()
}

func (main *Main) Shutdown() {
	if main.server != nil {
		err := main.server.Shutdown()
		main.logger.Err(err).Msg("http manager shutdown")
	}

	for _, module := range main.modules {
		module.Shutdown()
	}
	main.modules = nil

	main.logger.Info().Msg("modules shutdown")
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	if err := main.Start(); err != nil {
		main.logger.Fatal().Err(err).Msg("unable to start preview server")
	}
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.Shutdown()
	main.logger.Info().Msg("shutdown complete")
}
