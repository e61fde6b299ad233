package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-preview/internal/utils"
)

// how many times a capture process start is attempted within one pull
const startAttempts = 3

// delay between two start attempts
const startDelay = 200 * time.Millisecond

// how long Wait keeps pipes open after the process was killed
const waitDelay = time.Second

// how long Close waits for the capture process to be reaped
const closeTimeout = 2 * time.Second

// CommandCtx pulls frames from a long running capture process that writes
// an MJPEG stream to stdout. The process is started on the first Pull and
// restarted on the next Pull after it dies.
type CommandCtx struct {
	logger zerolog.Logger
	config CommandConfig

	ctx    context.Context
	cancel context.CancelFunc

	pullMu sync.Mutex // serializes Pull

	mu     sync.Mutex
	closed bool
	cmd    *exec.Cmd
	read   *io.PipeReader
	frames *FrameReader
	exited chan struct{}
}

func NewCommand(config *CommandConfig) *CommandCtx {
	ctx, cancel := context.WithCancel(context.Background())

	return &CommandCtx{
		logger: log.With().Str("module", "capture").Str("submodule", "command").Logger(),
		config: config.withDefaultValues(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *CommandCtx) Pull(ctx context.Context) ([]byte, error) {
	c.pullMu.Lock()
	defer c.pullMu.Unlock()

	frames, err := c.running(ctx)
	if err != nil {
		return nil, err
	}

	frame, err := frames.Next()
	if err != nil {
		c.kill()
		return nil, fmt.Errorf("unable to read frame: %w", err)
	}

	return frame, nil
}

// Close kills the capture process. It does not wait for a pending Pull.
func (c *CommandCtx) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	exited := c.exited
	if c.read != nil {
		_ = c.read.Close()
	}
	c.mu.Unlock()

	if exited == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("capture process did not exit within %s", closeTimeout)
	}
}

func (c *CommandCtx) running(ctx context.Context) (*FrameReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.frames != nil {
		return c.frames, nil
	}

	err := retry.Do(
		c.start,
		retry.Context(ctx),
		retry.Attempts(startAttempts),
		retry.Delay(startDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().Err(err).Uint("attempt", n+1).Msg("capture start failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to start capture: %w", err)
	}

	return c.frames, nil
}

// start must be called with mu held.
func (c *CommandCtx) start() error {
	args := c.config.arguments()

	cmd := exec.CommandContext(c.ctx, c.config.Binary, args...)
	cmd.Stderr = utils.LogWriter(c.logger, zerolog.WarnLevel)
	cmd.SysProcAttr = processGroup()
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay

	read, write := io.Pipe()
	cmd.Stdout = write

	if err := cmd.Start(); err != nil {
		_ = read.Close()
		_ = write.Close()
		return err
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		c.logger.Info().Err(err).Int("pid", cmd.Process.Pid).Msg("capture process exited")
		_ = write.Close()
		close(exited)
	}()

	c.cmd = cmd
	c.read = read
	c.frames = NewFrameReader(read)
	c.exited = exited

	c.logger.Info().
		Str("binary", c.config.Binary).
		Strs("args", args).
		Int("pid", cmd.Process.Pid).
		Msg("capture process started")

	return nil
}

func (c *CommandCtx) kill() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return
	}

	// fails harmlessly when the process has already exited
	if err := killProcessGroup(c.cmd); err != nil {
		c.logger.Debug().Err(err).Msg("unable to kill capture process")
	}
	_ = c.read.Close()

	c.cmd = nil
	c.read = nil
	c.frames = nil
}
