// Package pipeline runs the scheduled ingestion and arbitrage cycles.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/candlesync/internal/metrics"
)

// Job is one poller cycle. It receives a context that survives shutdown of
// the poller but is bounded by the cycle timeout.
type Job func(ctx context.Context)

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithClock replaces the wall clock.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithCycleTimeout bounds each cycle. The default is the interval.
func WithCycleTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.cycleTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// Poller runs a Job immediately and then on every tick. A tick that arrives
// while the previous cycle is still running is dropped, so cycles never
// overlap or queue up.
type Poller struct {
	name         string
	interval     time.Duration
	cycleTimeout time.Duration
	job          Job
	clock        Clock
	logger       *slog.Logger

	trigger chan struct{}
	busy    atomic.Bool
	cycles  sync.WaitGroup
}

// NewPoller creates a poller. interval must be positive.
func NewPoller(name string, interval time.Duration, job Job, opts ...PollerOption) *Poller {
	p := &Poller{
		name:         name,
		interval:     interval,
		cycleTimeout: interval,
		job:          job,
		clock:        RealClock{},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		trigger:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "poller"), slog.String("poller", name))
	return p
}

// Name returns the poller's name.
func (p *Poller) Name() string {
	return p.name
}

// Busy reports whether a cycle is in flight.
func (p *Poller) Busy() bool {
	return p.busy.Load()
}

// Trigger requests an out-of-schedule cycle. It returns false when a
// request is already pending. The request is dropped like a tick if a cycle
// is running when it is picked up.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is done, then waits for the in-flight cycle and
// returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("pipeline: poller %s: non-positive interval %s", p.name, p.interval)
	}
	defer p.cycles.Wait()

	p.logger.Info("poller started", slog.Duration("interval", p.interval))
	p.launch(ctx, "start")

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return ctx.Err()
		case <-ticker.C():
			p.launch(ctx, "tick")
		case <-p.trigger:
			p.launch(ctx, "trigger")
		}
	}
}

// Start runs the poller in the background.
func (p *Poller) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_ = p.Run(ctx)
	}()
	return h
}

// launch starts a cycle unless one is already running.
func (p *Poller) launch(parent context.Context, reason string) {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Warn("previous cycle still running, skipping", slog.String("reason", reason))
		metrics.PollerSkippedTicks.WithLabelValues(p.name).Inc()
		return
	}
	p.cycles.Add(1)
	go func() {
		defer p.cycles.Done()
		defer p.busy.Store(false)
		p.cycle(parent, reason)
	}()
}

func (p *Poller) cycle(parent context.Context, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.cycleTimeout)
	defer cancel()

	start := p.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("cycle panicked", slog.String("reason", reason), slog.Any("panic", r))
		}
		metrics.CycleDuration.WithLabelValues(p.name).Observe(p.clock.Now().Sub(start).Seconds())
	}()

	p.logger.Debug("cycle started", slog.String("reason", reason))
	p.job(ctx)
}

// Handle controls a poller started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the ticker and waits for the in-flight cycle to finish.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the poller has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
