// Package capture provides frame sources for the broadcaster.
package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
)

// ErrClosed is returned by Pull once the source has been closed.
var ErrClosed = errors.New("capture source closed")

// Func adapts an in-process supplier returning one encoded frame, or nil
// when no frame is available.
type Func func() []byte

func (f Func) Pull(ctx context.Context) ([]byte, error) {
	return f(), nil
}

type CommandConfig struct {
	Binary      string  // executable writing an MJPEG stream to stdout
	InputFormat string  // ffmpeg input format of the device
	Device      string  // capture device passed as ffmpeg input
	Index       int     // camera index, used to derive Device when empty
	Width       int     // optional capture width hint
	Height      int     // optional capture height hint
	FPS         float64 // optional capture rate hint
	Rate        float64 // rate frames are emitted at, defaults to FPS
	Quality     int     // ffmpeg -q:v, lower is better
	Args        []string
}

func (c CommandConfig) withDefaultValues() CommandConfig {
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = defaultInputFormat()
	}
	if c.Device == "" {
		c.Device = defaultDevice(c.Index)
	}
	if c.Quality <= 0 {
		c.Quality = 5
	}
	return c
}

// command line for the capture process; Args replaces it entirely
func (c CommandConfig) arguments() []string {
	if len(c.Args) > 0 {
		return c.Args
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", c.InputFormat,
	}

	if c.FPS > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(c.FPS, 'f', -1, 64))
	}
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}

	args = append(args, "-i", c.Device)

	// frames are pulled one by one, so the output must not outrun the
	// reader or the pipe fills with stale frames
	rate := c.Rate
	if rate <= 0 {
		rate = c.FPS
	}
	if rate > 0 {
		args = append(args, "-r", strconv.FormatFloat(rate, 'f', -1, 64))
	}

	return append(args,
		"-f", "mjpeg",
		"-q:v", strconv.Itoa(c.Quality),
		"-",
	)
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

func defaultDevice(index int) string {
	switch runtime.GOOS {
	case "darwin":
		return strconv.Itoa(index)
	case "windows":
		return "video=" + strconv.Itoa(index)
	default:
		return "/dev/video" + strconv.Itoa(index)
	}
}
