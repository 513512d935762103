package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	s3blob "github.com/alanyoungcy/candlesync/internal/blob/s3"
	"github.com/alanyoungcy/candlesync/internal/cache/redis"
	"github.com/alanyoungcy/candlesync/internal/config"
	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/notify"
	"github.com/alanyoungcy/candlesync/internal/platform/binance"
	"github.com/alanyoungcy/candlesync/internal/platform/httpx"
	"github.com/alanyoungcy/candlesync/internal/platform/kucoin"
	"github.com/alanyoungcy/candlesync/internal/platform/openbook"
	"github.com/alanyoungcy/candlesync/internal/server/handler"
	"github.com/alanyoungcy/candlesync/internal/store/memory"
	"github.com/alanyoungcy/candlesync/internal/store/postgres"
)

// Dependencies bundles what the modes need. Redis-backed fields are nil when
// Redis is disabled; Archiver is nil unless retention archiving is on.
type Dependencies struct {
	Store domain.CandleStore

	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	Archiver domain.SnapshotArchiver

	Binance  *binance.Client
	Kucoin   *kucoin.Client
	Openbook *openbook.Client

	Notifier *notify.Notifier

	// Health is checked by GET /api/health.
	Health map[string]handler.Pinger
}

// pingFunc adapts a health func to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire builds every dependency cfg asks for and returns a cleanup that
// releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- Candle store ---
	switch cfg.Storage.Driver {
	case "memory":
		logger.WarnContext(ctx, "using in-memory store; candles are lost on restart")
		deps.Store = memory.New()
	default:
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pg.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "migrations applied", slog.Any("migrations", applied))
			}
		}
		deps.Store = postgres.NewStore(pg)
		deps.Health["postgres"] = pg
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.PriceCache = redis.NewPriceCache(rc, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.Health["redis"] = rc
	}

	// --- S3 archive ---
	if cfg.RunsIngest() && cfg.Retention.Archive {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(sc))
		deps.Health["s3"] = pingFunc(sc.Health)
	}

	// --- Venues ---
	var binanceHeader http.Header
	if cfg.Binance.APIKey != "" {
		binanceHeader = http.Header{"X-MBX-APIKEY": []string{cfg.Binance.APIKey}}
	}
	deps.Binance = binance.NewClient(cfg.Binance.BaseURL, cfg.Binance.FallbackURL,
		newTransport(cfg.Transport, binanceHeader, logger.With(slog.String("venue", string(domain.VenueBinance)))))
	deps.Kucoin = kucoin.NewClient(cfg.Kucoin.BaseURL,
		newTransport(cfg.Transport, nil, logger.With(slog.String("venue", string(domain.VenueKucoin)))))
	deps.Openbook = openbook.NewClient(cfg.Openbook.BaseURL, cfg.Openbook.Depth,
		newTransport(cfg.Transport, nil, logger.With(slog.String("venue", string(domain.VenueOpenbook)))))

	// --- Notifications ---
	notifyTransport := newTransport(cfg.Transport, nil, logger)
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			notify.DefaultTelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			notifyTransport,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, notifyTransport))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newTransport builds one retrying client per venue so each gets its own
// token bucket.
func newTransport(tc config.TransportConfig, header http.Header, logger *slog.Logger) *httpx.Client {
	return httpx.New(httpx.Options{
		Timeout:           tc.Timeout.Duration,
		RequestsPerSecond: tc.RequestsPerSecond,
		Burst:             tc.Burst,
		Header:            header,
		Retry: httpx.RetryConfig{
			MaxRetries:           tc.MaxRetries,
			InitialDelay:         tc.InitialDelay.Duration,
			MaxDelay:             tc.MaxDelay.Duration,
			BackoffFactor:        tc.BackoffFactor,
			MaxJitter:            tc.MaxJitter.Duration,
			RetryableStatusCodes: tc.RetryableStatusCodes,
		},
	}, logger)
}
