package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-preview/internal/serve"
)

func init() {
	service := serve.NewCommand()

	command := &cobra.Command{
		Use:   "serve",
		Short: "serve preview server",
		Long:  `serve a video file (--video) or a live camera (--camera) over http`,
		Run:   service.Run,
	}

	configs := []Config{
		service.Config,
	}

	cobra.OnInitialize(func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		service.Preflight()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
