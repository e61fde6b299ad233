package broadcaster

import (
	"context"
	"time"
)

// MinFPS is the lowest capture rate, lower or non-positive values are raised to it.
const MinFPS = 0.1

// Frame is one encoded image. It must not be modified once published.
type Frame []byte

// Source yields frames on demand. Pull may block for up to one capture
// cycle and may fail transiently; an empty frame is treated like a failure.
// A Source that also implements io.Closer is closed when the manager stops.
type Source interface {
	Pull(ctx context.Context) ([]byte, error)
}

type Config struct {
	FPS         float64       // target capture rate, frames per second
	StopTimeout time.Duration // how long Stop waits for the capture worker to exit
}

func (c Config) withDefaultValues() Config {
	if c.FPS < MinFPS {
		c.FPS = MinFPS
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = time.Second
	}
	return c
}

type Stats struct {
	Published     uint64    // frames that replaced the latest frame
	Empty         uint64    // pulls that returned no data
	Failed        uint64    // pulls that returned an error
	LastPublished time.Time // zero until the first real frame
}

type Manager interface {
	Start() error
	Stop()

	Latest() Frame
	Interval() time.Duration
	Stats() Stats
}
