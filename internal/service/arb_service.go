package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/candlesync/internal/arbitrage"
	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/metrics"
	"github.com/alanyoungcy/candlesync/internal/notify"
)

// CEXPricer returns a centralized venue's last price.
type CEXPricer interface {
	Venue() domain.Venue
	TickerPrice(ctx context.Context, pair domain.Pair) (float64, error)
}

// DEXPricer returns an order-book mid price for a market address.
type DEXPricer interface {
	Venue() domain.Venue
	MidPrice(ctx context.Context, market string) (float64, error)
}

// Notifier sends alerts. *notify.Notifier implements it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ArbConfig configures ArbService.
type ArbConfig struct {
	Fees arbitrage.Fees
	// Markets maps a symbol such as "SOLUSDC" to its DEX market address.
	Markets map[string]string
}

// LatestArb is the last known arbitrage state of a symbol.
type LatestArb struct {
	Symbol string                  `json:"symbol"`
	Prices map[string]float64      `json:"prices"`
	Result *domain.ArbitrageResult `json:"result,omitempty"`
}

// ArbService fetches both legs, runs the detector and fans the result out.
type ArbService struct {
	cex      CEXPricer
	dex      DEXPricer
	prices   domain.PriceCache
	bus      domain.SignalBus
	notifier Notifier
	cfg      ArbConfig
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.RWMutex
	last map[string]domain.ArbitrageResult
}

// NewArbService creates an ArbService. prices, bus and notifier may be nil.
func NewArbService(cex CEXPricer, dex DEXPricer, prices domain.PriceCache, bus domain.SignalBus, notifier Notifier, cfg ArbConfig, logger *slog.Logger) *ArbService {
	return &ArbService{
		cex:      cex,
		dex:      dex,
		prices:   prices,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "arb_service")),
		last:     make(map[string]domain.ArbitrageResult),
	}
}

// Check fetches the CEX ticker and the DEX mid price concurrently and
// returns the fee-adjusted verdict. Either fetch failing fails the check.
func (s *ArbService) Check(ctx context.Context, pair domain.Pair) (domain.ArbitrageResult, error) {
	symbol := pair.Symbol()
	market, ok := s.cfg.Markets[symbol]
	if !ok || market == "" {
		return domain.ArbitrageResult{}, fmt.Errorf("service: arbitrage %s: %w: no DEX market configured", symbol, domain.ErrNotFound)
	}

	var cexPrice, dexPrice float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.cex.TickerPrice(gctx, pair)
		if err != nil {
			return fmt.Errorf("%s price: %w", s.cex.Venue(), err)
		}
		cexPrice = p
		return nil
	})
	g.Go(func() error {
		p, err := s.dex.MidPrice(gctx, market)
		if err != nil {
			return fmt.Errorf("%s price: %w", s.dex.Venue(), err)
		}
		dexPrice = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ArbitrageResult{}, fmt.Errorf("service: arbitrage %s: %w", symbol, err)
	}

	now := s.now()
	res, err := arbitrage.Detect(symbol, cexPrice, dexPrice, s.cfg.Fees, now)
	if err != nil {
		return domain.ArbitrageResult{}, fmt.Errorf("service: arbitrage %s: %w", symbol, err)
	}
	res.ID = uuid.NewString()
	res.VenueA = s.cex.Venue()
	res.VenueB = s.dex.Venue()

	s.mu.Lock()
	s.last[symbol] = res
	s.mu.Unlock()

	metrics.ArbNetProfit.WithLabelValues(symbol).Set(res.NetProfit)
	s.fanOut(ctx, res, now)

	s.logger.InfoContext(ctx, "arbitrage checked",
		slog.String("symbol", symbol),
		slog.Float64("venue_a_price", res.VenueAPrice),
		slog.Float64("venue_b_price", res.VenueBPrice),
		slog.Float64("net_profit", res.NetProfit),
		slog.Bool("profitable", res.IsProfitable),
	)
	return res, nil
}

// fanOut caches, publishes and notifies. Failures are logged only.
func (s *ArbService) fanOut(ctx context.Context, res domain.ArbitrageResult, now time.Time) {
	if s.prices != nil {
		for venue, price := range map[domain.Venue]float64{res.VenueA: res.VenueAPrice, res.VenueB: res.VenueBPrice} {
			if err := s.prices.SetPrice(ctx, domain.PriceKey(venue, res.Symbol), price, now); err != nil {
				s.logger.WarnContext(ctx, "cache price failed", slog.String("venue", string(venue)), slog.String("error", err.Error()))
			}
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(res)
		if err != nil {
			s.logger.WarnContext(ctx, "encode arbitrage result failed", slog.String("error", err.Error()))
		} else {
			if err := s.bus.Publish(ctx, domain.ChannelArb, payload); err != nil {
				s.logger.WarnContext(ctx, "publish arbitrage result failed", slog.String("error", err.Error()))
			}
			if err := s.bus.StreamAppend(ctx, domain.StreamArb, payload); err != nil {
				s.logger.WarnContext(ctx, "append arbitrage stream failed", slog.String("error", err.Error()))
			}
		}
	}

	if s.notifier != nil && res.IsProfitable {
		msg := fmt.Sprintf("%s: buy %s @ %.6f, sell %s @ %.6f, net %.6f after %.6f fees",
			res.Symbol, res.VenueA, res.VenueAPrice, res.VenueB, res.VenueBPrice, res.NetProfit, res.Fees)
		if err := s.notifier.Notify(ctx, notify.EventArbProfitable, "Arbitrage opportunity", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

// CheckAll runs Check for every pair sequentially and logs failures. It is
// the arbitrage poller's job.
func (s *ArbService) CheckAll(ctx context.Context, pairs []domain.Pair) {
	for _, pair := range pairs {
		if _, err := s.Check(ctx, pair); err != nil {
			s.logger.ErrorContext(ctx, "arbitrage check failed",
				slog.String("symbol", pair.Symbol()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// streamScan bounds how far back Latest searches the shared stream.
const streamScan = 200

// Latest returns the last result for pair seen by this process or, failing
// that, by any replica via the arbitrage stream, plus the cached leg prices.
func (s *ArbService) Latest(ctx context.Context, pair domain.Pair) (LatestArb, error) {
	symbol := pair.Symbol()
	out := LatestArb{Symbol: symbol, Prices: map[string]float64{}}

	s.mu.RLock()
	if res, ok := s.last[symbol]; ok {
		out.Result = &res
	}
	s.mu.RUnlock()

	if out.Result == nil && s.bus != nil {
		res, err := s.latestFromStream(ctx, symbol)
		if err != nil {
			return LatestArb{}, err
		}
		out.Result = res
	}

	if s.prices != nil {
		keys := []string{domain.PriceKey(s.cex.Venue(), symbol), domain.PriceKey(s.dex.Venue(), symbol)}
		prices, err := s.prices.GetPrices(ctx, keys)
		if err != nil {
			return LatestArb{}, fmt.Errorf("service: latest arbitrage %s: %w", symbol, err)
		}
		out.Prices = prices
	} else if out.Result != nil {
		out.Prices[domain.PriceKey(out.Result.VenueA, symbol)] = out.Result.VenueAPrice
		out.Prices[domain.PriceKey(out.Result.VenueB, symbol)] = out.Result.VenueBPrice
	}

	if out.Result == nil && len(out.Prices) == 0 {
		return LatestArb{}, fmt.Errorf("service: latest arbitrage %s: %w", symbol, domain.ErrNotFound)
	}
	return out, nil
}

func (s *ArbService) latestFromStream(ctx context.Context, symbol string) (*domain.ArbitrageResult, error) {
	msgs, err := s.bus.StreamRevRange(ctx, domain.StreamArb, streamScan)
	if err != nil {
		return nil, fmt.Errorf("service: latest arbitrage %s: %w", symbol, err)
	}
	for _, m := range msgs {
		var res domain.ArbitrageResult
		if err := json.Unmarshal(m.Payload, &res); err != nil {
			s.logger.DebugContext(ctx, "skip malformed stream entry", slog.String("id", m.ID))
			continue
		}
		if res.Symbol == symbol {
			return &res, nil
		}
	}
	return nil, nil
}

// IsNotFound reports whether err means "no such symbol or data".
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
