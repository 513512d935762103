package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/candlesync/internal/arbitrage"
	"github.com/alanyoungcy/candlesync/internal/config"
	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/notify"
	"github.com/alanyoungcy/candlesync/internal/pipeline"
	"github.com/alanyoungcy/candlesync/internal/server"
	"github.com/alanyoungcy/candlesync/internal/server/handler"
	"github.com/alanyoungcy/candlesync/internal/server/ws"
	"github.com/alanyoungcy/candlesync/internal/service"
)

const shutdownTimeout = 5 * time.Second

// components selects what one process runs.
type components struct {
	ingest    bool
	arbitrage bool
	server    bool
}

// IngestMode runs the candle ingestion poller only.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")
	return a.run(ctx, deps, components{ingest: true})
}

// ArbitrageMode runs the arbitrage poller only.
func (a *App) ArbitrageMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting arbitrage mode")
	return a.run(ctx, deps, components{arbitrage: true})
}

// ServerMode runs the HTTP API only. Trigger requests are relayed over the
// signal bus to ingest replicas.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.run(ctx, deps, components{server: true})
}

// FullMode runs every enabled component in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.run(ctx, deps, components{
		ingest:    a.cfg.RunsIngest(),
		arbitrage: a.cfg.RunsArbitrage(),
		server:    a.cfg.RunsServer(),
	})
}

func (a *App) run(ctx context.Context, deps *Dependencies, c components) error {
	g, ctx := errgroup.WithContext(ctx)

	var pollers []*pipeline.Poller
	var ingestPoller *pipeline.Poller
	if c.ingest {
		p, err := a.ingestPoller(deps)
		if err != nil {
			return err
		}
		ingestPoller = p
		pollers = append(pollers, p)
		if deps.SignalBus != nil {
			g.Go(func() error {
				return a.relayTriggers(ctx, deps.SignalBus, p)
			})
		}
	}

	var arbSvc *service.ArbService
	if c.arbitrage || c.server {
		arbSvc = a.arbService(deps)
	}
	if c.arbitrage {
		pairs := config.Pairs(a.cfg.Arbitrage.Symbols)
		pollers = append(pollers, pipeline.NewPoller("arbitrage", a.cfg.Arbitrage.Interval.Duration,
			func(ctx context.Context) { arbSvc.CheckAll(ctx, pairs) },
			pipeline.WithLogger(a.logger),
		))
	}

	if len(pollers) > 0 {
		orch := pipeline.NewOrchestrator(a.logger, pollers...)
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	if c.server {
		var trigger handler.Trigger
		switch {
		case ingestPoller != nil:
			trigger = ingestPoller
		case deps.SignalBus != nil:
			trigger = &busTrigger{bus: deps.SignalBus, logger: a.logger}
		}
		a.startHTTPServer(ctx, g, deps, arbSvc, trigger)
	}

	if len(pollers) == 0 && !c.server {
		a.logger.WarnContext(ctx, "no component enabled; waiting for shutdown")
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) ingestPoller(deps *Dependencies) (*pipeline.Poller, error) {
	interval, err := domain.ParseInterval(a.cfg.Ingest.CandleInterval)
	if err != nil {
		return nil, fmt.Errorf("app: ingest: %w", err)
	}

	cycleTimeout := a.cfg.Ingest.CycleTimeout.Duration
	if cycleTimeout <= 0 {
		cycleTimeout = a.cfg.Ingest.Interval.Duration
	}
	lockTTL := a.cfg.Ingest.LockTTL.Duration
	if lockTTL <= 0 {
		lockTTL = cycleTimeout
	}

	opts := []pipeline.IngestOption{
		pipeline.WithRetention(pipeline.NewRetention(deps.Store, deps.Archiver, pipeline.RetentionConfig{
			Window:     a.cfg.Retention.Window.Duration,
			KeepLatest: a.cfg.Retention.KeepLatest,
		}, a.logger)),
	}
	if deps.PriceCache != nil {
		opts = append(opts, pipeline.WithPriceCache(deps.PriceCache))
	}
	if deps.SignalBus != nil {
		opts = append(opts, pipeline.WithSignalBus(deps.SignalBus))
	}
	if deps.LockManager != nil {
		opts = append(opts, pipeline.WithLocks(deps.LockManager))
	}

	ing := pipeline.NewIngester(
		[]pipeline.CandleSource{deps.Binance, deps.Kucoin},
		deps.Store,
		pipeline.IngestConfig{
			Pairs:    config.Pairs(a.cfg.Ingest.Symbols),
			Interval: interval,
			Limit:    a.cfg.Ingest.Limit,
			LockTTL:  lockTTL,
			Colors: map[domain.Venue]string{
				domain.VenueBinance: a.cfg.Binance.Color,
				domain.VenueKucoin:  a.cfg.Kucoin.Color,
			},
		},
		a.logger,
		opts...,
	)

	job := func(ctx context.Context) {
		report := ing.RunCycle(ctx)
		if report.Failed() > 0 && deps.Notifier.Enabled() {
			if err := deps.Notifier.Notify(ctx, notify.EventIngestFailed, "Ingest cycle failures", describeFailures(report)); err != nil {
				a.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
			}
		}
	}
	return pipeline.NewPoller("ingest", a.cfg.Ingest.Interval.Duration, job,
		pipeline.WithCycleTimeout(cycleTimeout),
		pipeline.WithLogger(a.logger),
	), nil
}

func describeFailures(report pipeline.CycleReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d routines failed", report.Failed(), len(report.Routines))
	for _, rr := range report.Routines {
		if rr.Err != nil {
			fmt.Fprintf(&b, "\n%s %s: %v", rr.Venue, rr.Symbol, rr.Err)
		}
	}
	return b.String()
}

func (a *App) arbService(deps *Dependencies) *service.ArbService {
	var notifier service.Notifier
	if deps.Notifier.Enabled() {
		notifier = deps.Notifier
	}
	return service.NewArbService(deps.Binance, deps.Openbook, deps.PriceCache, deps.SignalBus, notifier,
		service.ArbConfig{
			Fees: arbitrage.Fees{
				VenueA: arbitrage.FeeModel{Rate: a.cfg.Arbitrage.CEXFeeRate},
				VenueB: arbitrage.FeeModel{Rate: a.cfg.Arbitrage.DEXFeeRate, Fixed: a.cfg.Arbitrage.DEXFixedFee},
			},
			Markets: a.cfg.Openbook.Markets,
		}, a.logger)
}

// relayTriggers forwards bus trigger requests from server replicas to the
// local ingest poller.
func (a *App) relayTriggers(ctx context.Context, bus domain.SignalBus, p *pipeline.Poller) error {
	msgs, err := bus.Subscribe(ctx, domain.ChannelIngestTrigger)
	if err != nil {
		a.logger.WarnContext(ctx, "ingest trigger relay disabled", slog.String("error", err.Error()))
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-msgs:
			if !ok {
				return nil
			}
			p.Trigger()
		}
	}
}

// busTrigger requests a cycle from ingest replicas over the signal bus.
type busTrigger struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func (t *busTrigger) Trigger() bool {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.bus.Publish(ctx, domain.ChannelIngestTrigger, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
		t.logger.WarnContext(ctx, "publish ingest trigger failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, arbSvc *service.ArbService, trigger handler.Trigger) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Health, a.logger),
		Candles:  handler.NewCandleHandler(service.NewCandleService(deps.Store, domain.Interval(a.cfg.Ingest.CandleInterval), a.logger), a.logger),
		Pipeline: handler.NewPipelineHandler(trigger, a.logger),
	}
	if arbSvc != nil {
		handlers.Arb = handler.NewArbHandler(arbSvc, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: time.Now().UTC()})
		g.Go(func() error {
			err := hub.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
