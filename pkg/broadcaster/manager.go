package broadcaster

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// 1x1 grayscale JPEG served until the first real frame arrives.
//
//go:embed placeholder.jpg
var placeholder []byte

// Placeholder returns the frame served before any capture succeeded.
func Placeholder() Frame {
	return Frame(placeholder)
}

type ManagerCtx struct {
	logger   zerolog.Logger
	config   Config
	source   Source
	interval time.Duration

	latest atomic.Pointer[Frame]

	published     atomic.Uint64
	empty         atomic.Uint64
	failed        atomic.Uint64
	lastPublished atomic.Int64

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      conc.WaitGroup
}

func New(source Source, config *Config) *ManagerCtx {
	cfg := config.withDefaultValues()

	m := &ManagerCtx{
		logger:   log.With().Str("module", "broadcaster").Str("submodule", "manager").Logger(),
		config:   cfg,
		source:   source,
		interval: time.Duration(math.Round(float64(time.Second) / cfg.FPS)),
	}

	if m.interval < time.Millisecond {
		m.interval = time.Millisecond
	}

	frame := Placeholder()
	m.latest.Store(&frame)
	return m
}

func (m *ManagerCtx) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return errors.New("has already stopped")
	}

	if m.started {
		return errors.New("has already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.started = true

	m.wg.Go(func() {
		m.capture(ctx)
	})

	m.logger.Info().
		Float64("fps", m.config.FPS).
		Dur("interval", m.interval).
		Msg("capture started")

	return nil
}

func (m *ManagerCtx) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	if closer, ok := m.source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to close frame source")
		}
	}

	if !started {
		return
	}

	done := make(chan struct{})
	go func() {
		if recovered := m.wg.WaitAndRecover(); recovered != nil {
			m.logger.Error().Str("panic", recovered.String()).Msg("capture worker panicked")
		}
		close(done)
	}()

	select {
	case <-done:
		stats := m.Stats()
		m.logger.Info().
			Uint64("published", stats.Published).
			Uint64("empty", stats.Empty).
			Uint64("failed", stats.Failed).
			Msg("capture stopped")
	case <-time.After(m.config.StopTimeout):
		m.logger.Warn().Dur("timeout", m.config.StopTimeout).Msg("capture worker did not exit in time")
	}
}

// Latest never blocks and always returns a complete frame.
func (m *ManagerCtx) Latest() Frame {
	return *m.latest.Load()
}

func (m *ManagerCtx) Interval() time.Duration {
	return m.interval
}

func (m *ManagerCtx) FPS() float64 {
	return m.config.FPS
}

func (m *ManagerCtx) Stats() Stats {
	stats := Stats{
		Published: m.published.Load(),
		Empty:     m.empty.Load(),
		Failed:    m.failed.Load(),
	}

	if nsec := m.lastPublished.Load(); nsec != 0 {
		stats.LastPublished = time.Unix(0, nsec)
	}

	return stats
}

func (m *ManagerCtx) capture(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		// a panicking source only loses its own cycle
		var pc panics.Catcher
		pc.Try(func() { m.pull(ctx) })
		if recovered := pc.Recovered(); recovered != nil {
			m.failed.Add(1)
			m.logger.Error().Str("panic", recovered.String()).Msg("frame pull panicked")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *ManagerCtx) pull(ctx context.Context) {
	data, err := m.source.Pull(ctx)
	if err != nil {
		m.failed.Add(1)
		m.logger.Trace().Err(err).Msg("frame pull failed")
		return
	}

	if len(data) == 0 {
		m.empty.Add(1)
		return
	}

	frame := Frame(data)
	m.latest.Store(&frame)
	m.published.Add(1)
	m.lastPublished.Store(time.Now().UnixNano())
}
