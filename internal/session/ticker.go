package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/clockin/internal/log"
)

// Ticker re-emits the session at a fixed interval to refresh the elapsed time display.
//
// Each start captures a generation number in the tick loop, stopping (or
// starting again) bumps the generation so stale loops exit without emitting.
type Ticker struct {
	target   interface{ Tick() }
	interval time.Duration
	logger   log.Logger

	mu  sync.Mutex
	gen uint64
}

// TickerConfig is the configuration of the ticker.
type TickerConfig struct {
	Target   interface{ Tick() }
	Interval time.Duration
	Logger   log.Logger
}

func (c *TickerConfig) defaults() error {
	if c.Target == nil {
		return fmt.Errorf("target is required")
	}

	if c.Interval <= 0 {
		c.Interval = time.Second
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "session.Ticker"})

	return nil
}

// NewTicker returns a stopped ticker.
func NewTicker(cfg TickerConfig) (*Ticker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Ticker{
		target:   cfg.Target,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}, nil
}

// Start starts ticking, a previous tick loop is stopped.
func (t *Ticker) Start() {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	go t.loop(gen)
}

// Stop stops ticking. A tick already being delivered when Stop is called may
// still land, no new one is started afterwards.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
}

// Run ticks until the context is done.
func (t *Ticker) Run(ctx context.Context) error {
	t.Start()
	<-ctx.Done()
	t.Stop()
	t.logger.Debugf("Ticker stopped")

	return nil
}

func (t *Ticker) loop(gen uint64) {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for range tk.C {
		if !t.emit(gen) {
			return
		}
	}
}

func (t *Ticker) emit(gen uint64) bool {
	t.mu.Lock()
	live := gen == t.gen
	t.mu.Unlock()

	if !live {
		return false
	}

	// Out of the lock, the target may call back Start or Stop.
	t.target.Tick()

	return true
}
