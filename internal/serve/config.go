package serve

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/m1k1o/go-preview/pkg/broadcaster"
	"github.com/m1k1o/go-preview/pkg/capture"
)

const (
	SourceCommand   = "command"
	SourceDirectory = "directory"
)

type Camera struct {
	Enabled bool

	Source      string // SourceCommand or SourceDirectory
	Index       int
	Device      string
	InputFormat string
	Width       int
	Height      int
	FPS         float64

	FFmpegBinary string
	Directory    string
}

// ffmpeg emits at the floored broadcaster rate even without a device rate
func (c Camera) commandConfig() *capture.CommandConfig {
	return &capture.CommandConfig{
		Binary:      c.FFmpegBinary,
		InputFormat: c.InputFormat,
		Device:      c.Device,
		Index:       c.Index,
		Width:       c.Width,
		Height:      c.Height,
		FPS:         c.FPS,
		Rate:        math.Max(c.FPS, broadcaster.MinFPS),
	}
}

type Config struct {
	Host   string
	Port   int
	Static string
	Cert   string
	Key    string
	Proxy  bool
	PProf  bool

	Title  string
	Video  string
	Camera Camera

	// replaces the configured camera when set
	Source broadcaster.Source
}

func (Config) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("host", "127.0.0.1", "host to bind, keep loopback for local-only access")
	if err := viper.BindPFlag("host", cmd.PersistentFlags().Lookup("host")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("port", 17861, "port to serve preview on")
	if err := viper.BindPFlag("port", cmd.PersistentFlags().Lookup("port")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("static", "", "path to static files served for unknown paths")
	if err := viper.BindPFlag("static", cmd.PersistentFlags().Lookup("static")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("cert", "", "path to the SSL cert")
	if err := viper.BindPFlag("cert", cmd.PersistentFlags().Lookup("cert")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("key", "", "path to the SSL key")
	if err := viper.BindPFlag("key", cmd.PersistentFlags().Lookup("key")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("proxy", false, "allow reverse proxies")
	if err := viper.BindPFlag("proxy", cmd.PersistentFlags().Lookup("proxy")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("pprof", false, "enable pprof endpoint available at /debug/pprof")
	if err := viper.BindPFlag("pprof", cmd.PersistentFlags().Lookup("pprof")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("title", "Preview", "title of the index page")
	if err := viper.BindPFlag("title", cmd.PersistentFlags().Lookup("title")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("video", "", "video file to serve with byte range support")
	if err := viper.BindPFlag("video", cmd.PersistentFlags().Lookup("video")); err != nil {
		return err
	}

	//
	// camera
	//

	cmd.PersistentFlags().Bool("camera", false, "capture from a camera and stream as MJPEG")
	if err := viper.BindPFlag("camera.enabled", cmd.PersistentFlags().Lookup("camera")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("camera.source", SourceCommand, "frame source: command or directory")
	if err := viper.BindPFlag("camera.source", cmd.PersistentFlags().Lookup("camera.source")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("camera.index", 0, "camera index, used when no device is given")
	if err := viper.BindPFlag("camera.index", cmd.PersistentFlags().Lookup("camera.index")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("camera.device", "", "capture device passed to ffmpeg as input")
	if err := viper.BindPFlag("camera.device", cmd.PersistentFlags().Lookup("camera.device")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("camera.input-format", "", "ffmpeg input format of the capture device")
	if err := viper.BindPFlag("camera.input-format", cmd.PersistentFlags().Lookup("camera.input-format")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("camera.width", 0, "optional capture width")
	if err := viper.BindPFlag("camera.width", cmd.PersistentFlags().Lookup("camera.width")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("camera.height", 0, "optional capture height")
	if err := viper.BindPFlag("camera.height", cmd.PersistentFlags().Lookup("camera.height")); err != nil {
		return err
	}

	cmd.PersistentFlags().Float64("camera.fps", 24, "target capture fps")
	if err := viper.BindPFlag("camera.fps", cmd.PersistentFlags().Lookup("camera.fps")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("camera.ffmpeg-binary", "ffmpeg", "ffmpeg binary used by the command source")
	if err := viper.BindPFlag("camera.ffmpeg-binary", cmd.PersistentFlags().Lookup("camera.ffmpeg-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("camera.directory", "", "directory of JPEG files cycled by the directory source")
	if err := viper.BindPFlag("camera.directory", cmd.PersistentFlags().Lookup("camera.directory")); err != nil {
		return err
	}

	return nil
}

func (c *Config) Set() {
	c.Host = viper.GetString("host")
	c.Port = viper.GetInt("port")
	c.Static = viper.GetString("static")
	c.Cert = viper.GetString("cert")
	c.Key = viper.GetString("key")
	c.Proxy = viper.GetBool("proxy")
	c.PProf = viper.GetBool("pprof")

	c.Title = viper.GetString("title")
	c.Video = viper.GetString("video")

	c.Camera.Enabled = viper.GetBool("camera.enabled")
	c.Camera.Source = viper.GetString("camera.source")
	c.Camera.Index = viper.GetInt("camera.index")
	c.Camera.Device = viper.GetString("camera.device")
	c.Camera.InputFormat = viper.GetString("camera.input-format")
	c.Camera.Width = viper.GetInt("camera.width")
	c.Camera.Height = viper.GetInt("camera.height")
	c.Camera.FPS = viper.GetFloat64("camera.fps")
	c.Camera.FFmpegBinary = viper.GetString("camera.ffmpeg-binary")
	c.Camera.Directory = viper.GetString("camera.directory")
}

// Validate reports a configuration that cannot select exactly one mode.
func (c *Config) Validate() error {
	live := c.Camera.Enabled || c.Source != nil

	if c.Video != "" && live {
		return errors.New("video and camera are mutually exclusive, select one mode")
	}

	if c.Video == "" && !live {
		return errors.New("no mode selected, use --video <file> or --camera")
	}

	if c.Source == nil && live {
		switch c.Camera.Source {
		case "", SourceCommand:
		case SourceDirectory:
			if c.Camera.Directory == "" {
				return errors.New("camera.directory is required for the directory source")
			}
		default:
			return fmt.Errorf("unknown camera source %q", c.Camera.Source)
		}
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	return nil
}

func (c *Config) Bind() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
