// Package config defines the candlesync configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are
// then optionally overridden by CANDLESYNC_* environment variables.
type Config struct {
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Storage   StorageConfig   `toml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Transport TransportConfig `toml:"transport"`
	Binance   BinanceConfig   `toml:"binance"`
	Kucoin    KucoinConfig    `toml:"kucoin"`
	Openbook  OpenbookConfig  `toml:"openbook"`
	Ingest    IngestConfig    `toml:"ingest"`
	Retention RetentionConfig `toml:"retention"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
}

// StorageConfig selects the candle store backend.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds the archive bucket parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TransportConfig configures the shared retrying HTTP transport.
type TransportConfig struct {
	MaxRetries           int      `toml:"max_retries"`
	InitialDelay         duration `toml:"initial_delay"`
	MaxDelay             duration `toml:"max_delay"`
	BackoffFactor        float64  `toml:"backoff_factor"`
	MaxJitter            duration `toml:"max_jitter"`
	RetryableStatusCodes []int    `toml:"retryable_status_codes"`
	Timeout              duration `toml:"timeout"`
	RequestsPerSecond    float64  `toml:"requests_per_second"`
	Burst                int      `toml:"burst"`
}

// BinanceConfig configures the Binance client.
type BinanceConfig struct {
	BaseURL     string `toml:"base_url"`
	FallbackURL string `toml:"fallback_url"`
	// APIKey is optional; public market data needs none.
	APIKey string `toml:"api_key"`
	Color  string `toml:"color"`
}

// KucoinConfig configures the KuCoin client.
type KucoinConfig struct {
	BaseURL string `toml:"base_url"`
	Color   string `toml:"color"`
}

// OpenbookConfig configures the OpenBook order-book indexer client.
type OpenbookConfig struct {
	BaseURL string `toml:"base_url"`
	Depth   int    `toml:"depth"`
	// Markets maps a symbol such as "SOLUSDC" to its market address.
	Markets map[string]string `toml:"markets"`
}

// IngestConfig configures the candle ingestion poller.
type IngestConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	CandleInterval string   `toml:"candle_interval"`
	Limit          int      `toml:"limit"`
	Symbols        []string `toml:"symbols"`
	// CycleTimeout bounds one cycle. Zero means the poll interval.
	CycleTimeout duration `toml:"cycle_timeout"`
	LockTTL      duration `toml:"lock_ttl"`
}

// RetentionConfig configures the per-venue snapshot sweep.
type RetentionConfig struct {
	Window     duration `toml:"window"`
	KeepLatest int      `toml:"keep_latest"`
	// Archive uploads swept snapshots to S3 before deleting them.
	Archive bool `toml:"archive"`
}

// ArbitrageConfig configures the CEX/DEX arbitrage poller.
type ArbitrageConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	Symbols     []string `toml:"symbols"`
	CEXFeeRate  float64  `toml:"cex_fee_rate"`
	DEXFeeRate  float64  `toml:"dex_fee_rate"`
	DEXFixedFee float64  `toml:"dex_fixed_fee"`
}

// duration wraps time.Duration so TOML strings like "5m" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit requests per RateWindow per client IP; 0 disables. Needs Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config matching config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Storage:  StorageConfig{Driver: "postgres"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "candlesync",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{10 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "candlesync-archive",
			ForcePathStyle: true,
		},
		Transport: TransportConfig{
			MaxRetries:           3,
			InitialDelay:         duration{time.Second},
			MaxDelay:             duration{30 * time.Second},
			BackoffFactor:        2,
			MaxJitter:            duration{time.Second},
			RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
			Timeout:              duration{30 * time.Second},
			RequestsPerSecond:    10,
			Burst:                5,
		},
		Binance: BinanceConfig{
			BaseURL:     "https://api.binance.com",
			FallbackURL: "https://api1.binance.com",
			Color:       "#F0B90B",
		},
		Kucoin: KucoinConfig{
			BaseURL: "https://api.kucoin.com",
			Color:   "#23AF91",
		},
		Openbook: OpenbookConfig{
			BaseURL: "http://localhost:8787",
			Depth:   20,
			Markets: map[string]string{
				"SOLUSDC":  "8BnEgHoWFysVcuFFX7QztDmzuH8r5ZFvyP3sYwn1XTh6",
				"DOGEUSDC": "9tbLkxEjmu31ZRp6wbcqEfdE8QYGYpJruj56tzkQR4gJ",
			},
		},
		Ingest: IngestConfig{
			Enabled:        true,
			Interval:       duration{time.Minute},
			CandleInterval: "1m",
			Limit:          12,
			Symbols:        []string{"BTC-USDC"},
			LockTTL:        duration{2 * time.Minute},
		},
		Retention: RetentionConfig{
			Window:     duration{2 * time.Hour},
			KeepLatest: 12,
		},
		Arbitrage: ArbitrageConfig{
			Enabled:     false,
			Interval:    duration{30 * time.Second},
			Symbols:     []string{"SOL-USDC"},
			CEXFeeRate:  0.001,
			DEXFeeRate:  0.003,
			DEXFixedFee: 0.00001,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        3004,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"arb_profitable", "ingest_failed"},
		},
	}
}

var validModes = map[string]bool{
	"ingest":    true,
	"arbitrage": true,
	"server":    true,
	"full":      true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsIngest reports whether the mode starts the ingestion poller.
func (c *Config) RunsIngest() bool {
	m := strings.ToLower(c.Mode)
	return m == "ingest" || (m == "full" && c.Ingest.Enabled)
}

// RunsArbitrage reports whether the mode starts the arbitrage poller.
func (c *Config) RunsArbitrage() bool {
	m := strings.ToLower(c.Mode)
	return m == "arbitrage" || (m == "full" && c.Arbitrage.Enabled)
}

// RunsServer reports whether the mode starts the HTTP API.
func (c *Config) RunsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || (m == "full" && c.Server.Enabled)
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, arbitrage, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: postgres, memory)", c.Storage.Driver))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Transport.MaxRetries < 0 {
		errs = append(errs, "transport: max_retries must be >= 0")
	}
	if c.Transport.RequestsPerSecond < 0 {
		errs = append(errs, "transport: requests_per_second must be >= 0")
	}

	if c.RunsIngest() {
		if c.Ingest.Interval.Duration <= 0 {
			errs = append(errs, "ingest: interval must be > 0")
		}
		if _, err := domain.ParseInterval(c.Ingest.CandleInterval); err != nil {
			errs = append(errs, "ingest: "+err.Error())
		}
		if c.Ingest.Limit < 1 || c.Ingest.Limit > 1000 {
			errs = append(errs, fmt.Sprintf("ingest: limit must be 1-1000, got %d", c.Ingest.Limit))
		}
		errs = append(errs, pairErrors("ingest", c.Ingest.Symbols)...)
		if c.Retention.Window.Duration <= 0 {
			errs = append(errs, "retention: window must be > 0")
		}
		if c.Retention.KeepLatest < 1 {
			errs = append(errs, "retention: keep_latest must be >= 1")
		}
		if c.Retention.Archive && c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when retention.archive is set")
		}
	}

	if c.RunsArbitrage() {
		if c.Arbitrage.Interval.Duration <= 0 {
			errs = append(errs, "arbitrage: interval must be > 0")
		}
		if c.Openbook.BaseURL == "" {
			errs = append(errs, "openbook: base_url must not be empty")
		}
		errs = append(errs, pairErrors("arbitrage", c.Arbitrage.Symbols)...)
		for _, s := range c.Arbitrage.Symbols {
			pair, err := domain.ParsePair(s)
			if err != nil {
				continue
			}
			if c.Openbook.Markets[pair.Symbol()] == "" {
				errs = append(errs, fmt.Sprintf("openbook: no market address for arbitrage symbol %s", pair.Symbol()))
			}
		}
		if c.Arbitrage.CEXFeeRate < 0 || c.Arbitrage.DEXFeeRate < 0 || c.Arbitrage.DEXFixedFee < 0 {
			errs = append(errs, "arbitrage: fees must be >= 0")
		}
	}

	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration < time.Millisecond {
			errs = append(errs, "server: rate_window must be >= 1ms when rate_limit is set")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func pairErrors(section string, symbols []string) []string {
	if len(symbols) == 0 {
		return []string{section + ": symbols must not be empty"}
	}
	var errs []string
	for _, s := range symbols {
		if _, err := domain.ParsePair(s); err != nil {
			errs = append(errs, section+": "+err.Error())
		}
	}
	return errs
}

// Pairs parses symbols, skipping invalid entries. Validate reports those.
func Pairs(symbols []string) []domain.Pair {
	out := make([]domain.Pair, 0, len(symbols))
	for _, s := range symbols {
		if p, err := domain.ParsePair(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}
