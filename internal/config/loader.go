package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the defaults, then applies
// CANDLESYNC_* environment overrides. A missing file leaves the defaults.
// The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "CANDLESYNC_MODE")
	setStr(&cfg.LogLevel, "CANDLESYNC_LOG_LEVEL")
	setStr(&cfg.Storage.Driver, "CANDLESYNC_STORAGE_DRIVER")

	setStr(&cfg.Postgres.DSN, "CANDLESYNC_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "CANDLESYNC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CANDLESYNC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CANDLESYNC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CANDLESYNC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CANDLESYNC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CANDLESYNC_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CANDLESYNC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CANDLESYNC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CANDLESYNC_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "CANDLESYNC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CANDLESYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CANDLESYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CANDLESYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CANDLESYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CANDLESYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CANDLESYNC_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "CANDLESYNC_REDIS_PRICE_TTL")

	setStr(&cfg.S3.Endpoint, "CANDLESYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CANDLESYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "CANDLESYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CANDLESYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CANDLESYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CANDLESYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CANDLESYNC_S3_FORCE_PATH_STYLE")

	setInt(&cfg.Transport.MaxRetries, "CANDLESYNC_TRANSPORT_MAX_RETRIES")
	setDuration(&cfg.Transport.InitialDelay, "CANDLESYNC_TRANSPORT_INITIAL_DELAY")
	setDuration(&cfg.Transport.MaxDelay, "CANDLESYNC_TRANSPORT_MAX_DELAY")
	setFloat64(&cfg.Transport.BackoffFactor, "CANDLESYNC_TRANSPORT_BACKOFF_FACTOR")
	setDuration(&cfg.Transport.MaxJitter, "CANDLESYNC_TRANSPORT_MAX_JITTER")
	setDuration(&cfg.Transport.Timeout, "CANDLESYNC_TRANSPORT_TIMEOUT")
	setFloat64(&cfg.Transport.RequestsPerSecond, "CANDLESYNC_TRANSPORT_REQUESTS_PER_SECOND")
	setInt(&cfg.Transport.Burst, "CANDLESYNC_TRANSPORT_BURST")

	setStr(&cfg.Binance.BaseURL, "CANDLESYNC_BINANCE_BASE_URL")
	setStr(&cfg.Binance.FallbackURL, "CANDLESYNC_BINANCE_FALLBACK_URL")
	setStr(&cfg.Binance.APIKey, "CANDLESYNC_BINANCE_API_KEY")
	setStr(&cfg.Kucoin.BaseURL, "CANDLESYNC_KUCOIN_BASE_URL")
	setStr(&cfg.Openbook.BaseURL, "CANDLESYNC_OPENBOOK_BASE_URL")
	setInt(&cfg.Openbook.Depth, "CANDLESYNC_OPENBOOK_DEPTH")

	setBool(&cfg.Ingest.Enabled, "CANDLESYNC_INGEST_ENABLED")
	setDuration(&cfg.Ingest.Interval, "CANDLESYNC_INGEST_INTERVAL")
	setStr(&cfg.Ingest.CandleInterval, "CANDLESYNC_INGEST_CANDLE_INTERVAL")
	setInt(&cfg.Ingest.Limit, "CANDLESYNC_INGEST_LIMIT")
	setStringSlice(&cfg.Ingest.Symbols, "CANDLESYNC_INGEST_SYMBOLS")
	setDuration(&cfg.Ingest.CycleTimeout, "CANDLESYNC_INGEST_CYCLE_TIMEOUT")

	setDuration(&cfg.Retention.Window, "CANDLESYNC_RETENTION_WINDOW")
	setInt(&cfg.Retention.KeepLatest, "CANDLESYNC_RETENTION_KEEP_LATEST")
	setBool(&cfg.Retention.Archive, "CANDLESYNC_RETENTION_ARCHIVE")

	setBool(&cfg.Arbitrage.Enabled, "CANDLESYNC_ARBITRAGE_ENABLED")
	setDuration(&cfg.Arbitrage.Interval, "CANDLESYNC_ARBITRAGE_INTERVAL")
	setStringSlice(&cfg.Arbitrage.Symbols, "CANDLESYNC_ARBITRAGE_SYMBOLS")
	setFloat64(&cfg.Arbitrage.CEXFeeRate, "CANDLESYNC_ARBITRAGE_CEX_FEE_RATE")
	setFloat64(&cfg.Arbitrage.DEXFeeRate, "CANDLESYNC_ARBITRAGE_DEX_FEE_RATE")
	setFloat64(&cfg.Arbitrage.DEXFixedFee, "CANDLESYNC_ARBITRAGE_DEX_FIXED_FEE")

	setBool(&cfg.Server.Enabled, "CANDLESYNC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CANDLESYNC_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CANDLESYNC_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CANDLESYNC_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CANDLESYNC_SERVER_RATE_WINDOW")

	setStr(&cfg.Notify.TelegramToken, "CANDLESYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CANDLESYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CANDLESYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CANDLESYNC_NOTIFY_EVENTS")
}

// Each helper only mutates dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
