package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/metrics"
)

// CandleSource is a venue that serves candles.
type CandleSource interface {
	Venue() domain.Venue
	FetchCandles(ctx context.Context, pair domain.Pair, interval domain.Interval, limit int) ([]domain.Candle, error)
}

// IngestConfig selects what each cycle fetches.
type IngestConfig struct {
	Pairs    []domain.Pair
	Interval domain.Interval
	Limit    int
	// LockTTL bounds the per-routine distributed lock. Usually the cycle timeout.
	LockTTL time.Duration
	// Colors is the display color stored on first sight of a venue record.
	Colors map[domain.Venue]string
}

// RoutineReport is the outcome of one (venue, pair) routine.
type RoutineReport struct {
	Venue    domain.Venue
	Symbol   string
	Fetched  int
	Upserted int
	Failed   int
	Deleted  int64
	Skipped  bool
	Err      error
}

// CycleReport collects every routine of one cycle.
type CycleReport struct {
	Started  time.Time
	Duration time.Duration
	Routines []RoutineReport
}

// Failed counts routines that ended with an error.
func (r CycleReport) Failed() int {
	n := 0
	for _, rr := range r.Routines {
		if rr.Err != nil {
			n++
		}
	}
	return n
}

// IngestOption wires an optional dependency into the Ingester.
type IngestOption func(*Ingester)

// WithPriceCache caches the latest close per venue and symbol.
func WithPriceCache(pc domain.PriceCache) IngestOption {
	return func(i *Ingester) { i.prices = pc }
}

// WithSignalBus publishes a CandleEvent per routine.
func WithSignalBus(bus domain.SignalBus) IngestOption {
	return func(i *Ingester) { i.bus = bus }
}

// WithLocks serialises routines across replicas.
func WithLocks(lm domain.LockManager) IngestOption {
	return func(i *Ingester) { i.locks = lm }
}

// WithRetention sweeps each venue record after its upserts.
func WithRetention(r *Retention) IngestOption {
	return func(i *Ingester) { i.retention = r }
}

// Ingester runs the fetch, normalize, store and retire cycle for every
// configured source and pair.
type Ingester struct {
	sources   []CandleSource
	store     domain.CandleStore
	cfg       IngestConfig
	prices    domain.PriceCache
	bus       domain.SignalBus
	locks     domain.LockManager
	retention *Retention
	now       func() time.Time
	logger    *slog.Logger
}

// NewIngester creates an Ingester.
func NewIngester(sources []CandleSource, store domain.CandleStore, cfg IngestConfig, logger *slog.Logger, opts ...IngestOption) *Ingester {
	i := &Ingester{
		sources: sources,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "ingester")),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Job adapts RunCycle to a poller Job.
func (i *Ingester) Job() Job {
	return func(ctx context.Context) { i.RunCycle(ctx) }
}

// RunCycle runs every routine concurrently and waits for all of them. A
// failing routine never cancels or fails the others.
func (i *Ingester) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{Started: i.now()}
	report.Routines = make([]RoutineReport, 0, len(i.sources)*len(i.cfg.Pairs))
	for _, src := range i.sources {
		for _, pair := range i.cfg.Pairs {
			report.Routines = append(report.Routines, RoutineReport{Venue: src.Venue(), Symbol: pair.Symbol()})
		}
	}

	var g errgroup.Group
	idx := 0
	for _, src := range i.sources {
		for _, pair := range i.cfg.Pairs {
			rr := &report.Routines[idx]
			idx++
			g.Go(func() error {
				i.routine(ctx, src, pair, rr)
				return nil
			})
		}
	}
	_ = g.Wait()
	report.Duration = i.now().Sub(report.Started)

	var fetched, upserted int
	var deleted int64
	for _, rr := range report.Routines {
		fetched += rr.Fetched
		upserted += rr.Upserted
		deleted += rr.Deleted
	}
	i.logger.InfoContext(ctx, "ingest cycle complete",
		slog.Int("routines", len(report.Routines)),
		slog.Int("failed", report.Failed()),
		slog.Int("fetched", fetched),
		slog.Int("upserted", upserted),
		slog.Int64("deleted", deleted),
		slog.Duration("duration", report.Duration),
	)
	return report
}

func (i *Ingester) routine(ctx context.Context, src CandleSource, pair domain.Pair, rr *RoutineReport) {
	venue, symbol := src.Venue(), pair.Symbol()
	log := i.logger.With(slog.String("venue", string(venue)), slog.String("symbol", symbol))

	fail := func(stage string, err error) {
		rr.Err = err
		metrics.IngestFailures.WithLabelValues(string(venue), symbol, stage).Inc()
		log.ErrorContext(ctx, "ingest routine failed", slog.String("stage", stage), slog.String("error", err.Error()))
	}

	if i.locks != nil {
		unlock, err := i.locks.Acquire(ctx, "ingest:"+string(venue)+":"+symbol, i.lockTTL())
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			rr.Skipped = true
			log.DebugContext(ctx, "routine held by another replica")
			return
		case err != nil:
			log.WarnContext(ctx, "ingest lock unavailable, continuing unlocked", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	candles, err := src.FetchCandles(ctx, pair, i.cfg.Interval, i.cfg.Limit)
	if err != nil {
		fail("fetch", err)
		return
	}
	rr.Fetched = len(candles)
	metrics.CandlesFetched.WithLabelValues(string(venue), symbol).Add(float64(len(candles)))

	sym, err := i.store.FindOrCreateSymbol(ctx, symbol, pair.Base+"/"+pair.Quote)
	if err != nil {
		fail("symbol", err)
		return
	}
	rec, err := i.store.FindOrCreateVenueRecord(ctx, venue, sym.ID, i.cfg.Colors[venue])
	if err != nil {
		fail("venue", err)
		return
	}

	for _, c := range candles {
		if err := i.store.UpsertCandle(ctx, rec.ID, c); err != nil {
			rr.Failed++
			metrics.IngestFailures.WithLabelValues(string(venue), symbol, "upsert").Inc()
			log.ErrorContext(ctx, "upsert candle failed",
				slog.Time("open_time", c.OpenTime),
				slog.String("error", err.Error()),
			)
			continue
		}
		rr.Upserted++
	}
	metrics.CandlesUpserted.WithLabelValues(string(venue), symbol).Add(float64(rr.Upserted))

	if len(candles) > 0 {
		i.publishLatest(ctx, log, venue, symbol, candles[len(candles)-1])
	}

	if i.retention != nil {
		n, err := i.retention.Sweep(ctx, rec)
		if err != nil {
			metrics.IngestFailures.WithLabelValues(string(venue), symbol, "retention").Inc()
			log.ErrorContext(ctx, "retention sweep failed", slog.String("error", err.Error()))
		}
		rr.Deleted = n
	}
}

func (i *Ingester) publishLatest(ctx context.Context, log *slog.Logger, venue domain.Venue, symbol string, last domain.Candle) {
	if i.prices != nil {
		if err := i.prices.SetPrice(ctx, domain.PriceKey(venue, symbol), last.Close, last.CloseTime); err != nil {
			log.WarnContext(ctx, "cache latest price failed", slog.String("error", err.Error()))
		}
	}
	if i.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.CandleEvent{Venue: venue, Symbol: symbol, Interval: i.cfg.Interval, Candle: last})
	if err != nil {
		log.WarnContext(ctx, "encode candle event failed", slog.String("error", err.Error()))
		return
	}
	if err := i.bus.Publish(ctx, domain.ChannelCandles, payload); err != nil {
		log.WarnContext(ctx, "publish candle event failed", slog.String("error", err.Error()))
	}
}

func (i *Ingester) lockTTL() time.Duration {
	if i.cfg.LockTTL > 0 {
		return i.cfg.LockTTL
	}
	return time.Minute
}
