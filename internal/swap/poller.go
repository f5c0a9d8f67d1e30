package swap

import (
	"context"
	"sync"
	"time"

	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// PollerState is the state of a Poller.
type PollerState string

const (
	PollerIdle    PollerState = "idle"
	PollerPolling PollerState = "polling"
)

// DefaultPollInterval is how often a pending swap is re-summarized.
const DefaultPollInterval = 5 * time.Second

// Poller runs a single recurring tick while started. Start and Stop are
// idempotent; at most one ticker is live per Poller.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	tick     func(ctx context.Context)
	log      *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PollerConfig holds configuration for the Poller.
type PollerConfig struct {
	Interval time.Duration // default 5s
	Timeout  time.Duration // per tick, default 30s
	Tick     func(ctx context.Context)
	Logger   *logging.Logger
}

// NewPoller creates an idle poller.
func NewPoller(cfg *PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("poller")
	}
	return &Poller{
		interval: interval,
		timeout:  timeout,
		tick:     cfg.Tick,
		log:      log,
	}
}

// Start begins ticking. It returns false if already polling.
func (p *Poller) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(ctx)

	p.log.Debug("Polling started", "interval", p.interval)
	return true
}

// Stop cancels the ticker without waiting for an in-flight tick. It
// returns false if already idle.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return false
	}
	p.cancel()
	p.cancel = nil

	p.log.Debug("Polling stopped")
	return true
}

// State returns the current state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return PollerPolling
	}
	return PollerIdle
}

// Close stops polling and waits for the tick goroutine to exit. Must not
// be called from inside a tick.
func (p *Poller) Close() {
	p.Stop()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.runTick(ctx)
		}
	}
}

func (p *Poller) runTick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()
	if p.tick != nil {
		p.tick(ctx)
	}
}
