package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sampler produces alternating slog key-value pairs describing a
// component's current health.
type Sampler interface {
	Sample() []any
}

// SamplerFunc is a function adapter for Sampler.
type SamplerFunc func() []any

func (f SamplerFunc) Sample() []any {
	return f()
}

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration // Report interval (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
	}
}

type namedSampler struct {
	name    string
	sampler Sampler
}

// Monitor periodically logs a health report for each registered
// component.
type Monitor struct {
	cfg      Config
	logger   *slog.Logger
	samplers []namedSampler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Monitor.
func New(cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:    cfg,
		logger: logger,
	}
}

// Register adds a sampler under the given component name. Register
// before Start; samplers are not guarded against concurrent mutation.
func (m *Monitor) Register(name string, s Sampler) {
	m.samplers = append(m.samplers, namedSampler{name: name, sampler: s})
}

// Start begins the reporting loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("monitor started",
		"interval", m.cfg.Interval,
		"components", len(m.samplers),
	)

	return nil
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main reporting loop.
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// Report immediately on start.
	m.report()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.report()
		}
	}
}

// report logs one line per registered component.
func (m *Monitor) report() {
	for _, ns := range m.samplers {
		args := append([]any{"component", ns.name}, ns.sampler.Sample()...)
		m.logger.Info("health report", args...)
	}
}
