package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default configuration path
const defCfgPath = "/etc/preview/"

// ENV prefix for configuration
const envPrefix = "PREVIEW"

var rootCmd = &cobra.Command{
	Use:     "preview",
	Short:   "Media preview server CLI.",
	Long:    `Serve a video file with seeking, or a live camera as MJPEG, to browsers on the local network.`,
	Version: "1.0.0",
}

var onConfigLoad []func()

type Config interface {
	Init(cmd *cobra.Command) error
	Set()
}

func init() {
	var cfgFile string
	var logConfig logConfig

	cobra.OnInitialize(func() {
		initConfiguration(cfgFile, defCfgPath, envPrefix)
		logConfig.Set()
		initLogging(logConfig)

		file := viper.ConfigFileUsed()
		if file != "" {
			viper.OnConfigChange(func(e fsnotify.Event) {
				log.Info().Str("op", e.Op.String()).Msg("config file reloaded")

				for _, loadConfig := range onConfigLoad {
					loadConfig()
				}
			})

			viper.WatchConfig()

			log.Info().Str("config", file).Msg("preflight complete with config file")
		} else {
			log.Warn().Msg("preflight complete without config file")
		}
	})

	// only the log level can change while running
	onConfigLoad = append(onConfigLoad, func() {
		setLogLevel(viper.GetString("log.level"))
	})

	// config file
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	if err := logConfig.Init(rootCmd); err != nil {
		log.Panic().Err(err).Msg("unable to init log configuration")
	}
}

func Execute() error {
	return rootCmd.Execute()
}

//
// Configuration initialization
//

func initConfiguration(cfgFile string, defCfgPath string, envPrefix string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")

		if runtime.GOOS == "linux" && defCfgPath != "" {
			viper.AddConfigPath(defCfgPath)
		}

		viper.AddConfigPath(".")
	}

	if envPrefix != "" {
		viper.SetEnvPrefix(envPrefix)

		// camera.ffmpeg-binary is read from PREVIEW_CAMERA_FFMPEG_BINARY
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

		viper.AutomaticEnv()
	}

	err := viper.ReadInConfig()
	if err != nil && cfgFile != "" {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
}

//
// Logging initialization
//

type logConfig struct {
	Level      string
	Console    bool
	JSON       bool
	File       string
	MaxAge     int // days
	MaxSize    int // megabytes
	MaxBackups int
	Compress   bool
}

func (logConfig) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("log.level", "", "set log level (trace, debug, info, warn, error)")
	if err := viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log.level")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.console", true, "enable console logging")
	if err := viper.BindPFlag("log.console", cmd.PersistentFlags().Lookup("log.console")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.json", false, "write console logs as json instead of human readable text")
	if err := viper.BindPFlag("log.json", cmd.PersistentFlags().Lookup("log.json")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("log.file", "", "enable file logging and specify its path")
	if err := viper.BindPFlag("log.file", cmd.PersistentFlags().Lookup("log.file")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxage", 0, "max age in days to keep a logfile")
	if err := viper.BindPFlag("log.maxage", cmd.PersistentFlags().Lookup("log.maxage")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxsize", 100, "max size in MB of the logfile before it's rolled")
	if err := viper.BindPFlag("log.maxsize", cmd.PersistentFlags().Lookup("log.maxsize")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxbackups", 0, "max number of rolled files to keep")
	if err := viper.BindPFlag("log.maxbackups", cmd.PersistentFlags().Lookup("log.maxbackups")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.compress", false, "gzip rolled logfiles")
	if err := viper.BindPFlag("log.compress", cmd.PersistentFlags().Lookup("log.compress")); err != nil {
		return err
	}

	return nil
}

func (c *logConfig) Set() {
	c.Level = viper.GetString("log.level")
	c.Console = viper.GetBool("log.console")
	c.JSON = viper.GetBool("log.json")
	c.File = viper.GetString("log.file")
	c.MaxAge = viper.GetInt("log.maxage")
	c.MaxSize = viper.GetInt("log.maxsize")
	c.MaxBackups = viper.GetInt("log.maxbackups")
	c.Compress = viper.GetBool("log.compress")
}

func initLogging(config logConfig) {
	var writers []io.Writer

	if config.Console {
		if config.JSON {
			writers = append(writers, os.Stderr)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out: os.Stderr,
			})
		}
	}

	if config.File != "" {
		logger := &lumberjack.Logger{
			Filename:   config.File,
			MaxAge:     config.MaxAge,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			Compress:   config.Compress,
		}

		// rotate in response to SIGHUP
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGHUP)

		go func() {
			for range c {
				if err := logger.Rotate(); err != nil {
					log.Err(err).Msg("unable to rotate logfile")
				}
			}
		}()

		writers = append(writers, logger)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(io.MultiWriter(writers...))

	setLogLevel(config.Level)

	log.Info().
		Bool("console", config.Console).
		Str("file", config.File).
		Int("maxage", config.MaxAge).
		Int("maxsize", config.MaxSize).
		Int("maxbackups", config.MaxBackups).
		Msg("logging configured")
}

func setLogLevel(value string) {
	if value == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}

	level, err := zerolog.ParseLevel(value)
	if err != nil {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Str("log-level", value).Msg("unknown log level")
		return
	}

	zerolog.SetGlobalLevel(level)
}
