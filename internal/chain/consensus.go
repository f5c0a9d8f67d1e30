// Package chain tracks the Sia consensus state reported by the swap service.
package chain

import (
	"context"
	"sync"
	"time"

	"github.com/Klingon-tech/embarcadero/internal/backend"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// DefaultInterval matches the refresh rate of the swap web UI.
const DefaultInterval = 10 * time.Second

// Source returns the current consensus state.
type Source interface {
	Consensus(ctx context.Context) (*backend.Consensus, error)
}

// Reading is one consensus observation.
type Reading struct {
	Synced       bool      `json:"synced"`
	Height       uint64    `json:"height"`
	CurrentBlock string    `json:"current_block"`
	ObservedAt   time.Time `json:"observed_at"`
}

// ReadingHandler is called with every successful reading.
type ReadingHandler func(Reading)

// Monitor polls the consensus endpoint and keeps the last reading.
type Monitor struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	log      *logging.Logger

	mu       sync.RWMutex
	last     *Reading
	lastErr  error
	handlers []ReadingHandler
}

// MonitorConfig holds configuration for the Monitor.
type MonitorConfig struct {
	Source   Source
	Interval time.Duration // default 10s
	Timeout  time.Duration // per request, default Interval
	Logger   *logging.Logger
}

// NewMonitor creates a consensus monitor.
func NewMonitor(cfg *MonitorConfig) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("consensus")
	}

	return &Monitor{
		source:   cfg.Source,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// OnReading registers a handler for new readings. Register before Run.
func (m *Monitor) OnReading(h ReadingHandler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

// Latest returns the last successful reading.
func (m *Monitor) Latest() (Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Reading{}, false
	}
	return *m.last, true
}

// Err returns the error of the last poll, nil if it succeeded.
func (m *Monitor) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("Consensus monitor started", "interval", m.interval)
	defer m.log.Info("Consensus monitor stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll fetches one reading and notifies handlers.
func (m *Monitor) Poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	c, err := m.source.Consensus(pollCtx)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		if ctx.Err() == nil {
			m.log.Debug("Consensus poll failed", "error", err)
		}
		return
	}

	reading := Reading{
		Synced:       c.Synced,
		Height:       c.Height,
		CurrentBlock: c.CurrentBlock,
		ObservedAt:   time.Now(),
	}

	m.mu.Lock()
	prev := m.last
	m.last = &reading
	m.lastErr = nil
	handlers := append([]ReadingHandler(nil), m.handlers...)
	m.mu.Unlock()

	if prev == nil || prev.Height != reading.Height || prev.Synced != reading.Synced {
		m.log.Debug("Consensus updated", "height", reading.Height, "synced", reading.Synced)
	}
	for _, h := range handlers {
		h(reading)
	}
}
