package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs a set of pollers until the context is cancelled.
type Orchestrator struct {
	pollers []*Poller
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator. nil pollers are ignored so
// callers can pass disabled ones unconditionally.
func NewOrchestrator(logger *slog.Logger, pollers ...*Poller) *Orchestrator {
	o := &Orchestrator{logger: logger.With(slog.String("component", "orchestrator"))}
	for _, p := range pollers {
		if p != nil {
			o.pollers = append(o.pollers, p)
		}
	}
	return o
}

// Poller returns the poller with the given name, or nil.
func (o *Orchestrator) Poller(name string) *Poller {
	for _, p := range o.pollers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Run starts every poller in its own goroutine. It returns nil on a clean
// shutdown and the first poller error otherwise.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.pollers) == 0 {
		o.logger.Warn("no pollers enabled")
		<-ctx.Done()
		return nil
	}

	names := make([]string, len(o.pollers))
	for i, p := range o.pollers {
		names[i] = p.Name()
	}
	o.logger.Info("pipeline orchestrator starting", slog.Any("pollers", names))

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range o.pollers {
		g.Go(func() error {
			err := p.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("poller %s: %w", p.Name(), err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
