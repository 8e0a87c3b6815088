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

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPDEPTH_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPDEPTH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.InfoURL, "PERPDEPTH_EXCHANGE_INFO_URL")
	setStr(&cfg.Exchange.WSURL, "PERPDEPTH_EXCHANGE_WS_URL")
	setFloat64(&cfg.Exchange.InfoRPS, "PERPDEPTH_EXCHANGE_INFO_RPS")
	setInt(&cfg.Exchange.InfoBurst, "PERPDEPTH_EXCHANGE_INFO_BURST")
	setDuration(&cfg.Exchange.RefreshInterval, "PERPDEPTH_EXCHANGE_REFRESH_INTERVAL")

	// ── Market ──
	setStr(&cfg.Market.Coin, "PERPDEPTH_MARKET_COIN")
	setInt(&cfg.Market.SigFigs, "PERPDEPTH_MARKET_SIG_FIGS")
	setInt(&cfg.Market.Mantissa, "PERPDEPTH_MARKET_MANTISSA")
	setInt(&cfg.Market.Depth, "PERPDEPTH_MARKET_DEPTH")
	setDuration(&cfg.Market.HighlightTTL, "PERPDEPTH_MARKET_HIGHLIGHT_TTL")
	setInt(&cfg.Market.TapeSize, "PERPDEPTH_MARKET_TAPE_SIZE")

	// ── Fees / margin ──
	setFloat64(&cfg.Fees.MakerRate, "PERPDEPTH_FEES_MAKER_RATE")
	setFloat64(&cfg.Fees.TakerRate, "PERPDEPTH_FEES_TAKER_RATE")
	setFloat64(&cfg.Margin.MaxSlippagePercent, "PERPDEPTH_MARGIN_MAX_SLIPPAGE_PERCENT")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPDEPTH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPDEPTH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPDEPTH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPDEPTH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPDEPTH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPDEPTH_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PERPDEPTH_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.TTL, "PERPDEPTH_REDIS_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PERPDEPTH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PERPDEPTH_S3_REGION")
	setStr(&cfg.S3.Bucket, "PERPDEPTH_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "PERPDEPTH_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "PERPDEPTH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PERPDEPTH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PERPDEPTH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PERPDEPTH_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.PartSizeMB, "PERPDEPTH_S3_PART_SIZE_MB")

	// ── Capture ──
	setBool(&cfg.Capture.Enabled, "PERPDEPTH_CAPTURE_ENABLED")
	setStr(&cfg.Capture.Prefix, "PERPDEPTH_CAPTURE_PREFIX")
	setInt(&cfg.Capture.MaxFrames, "PERPDEPTH_CAPTURE_MAX_FRAMES")
	setDuration(&cfg.Capture.FlushInterval, "PERPDEPTH_CAPTURE_FLUSH_INTERVAL")
	setInt(&cfg.Capture.RetentionDays, "PERPDEPTH_CAPTURE_RETENTION_DAYS")
	setStr(&cfg.Capture.ReplayPrefix, "PERPDEPTH_CAPTURE_REPLAY_PREFIX")
	setFloat64(&cfg.Capture.ReplaySpeed, "PERPDEPTH_CAPTURE_REPLAY_SPEED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PERPDEPTH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PERPDEPTH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PERPDEPTH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PERPDEPTH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PERPDEPTH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PERPDEPTH_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.SharedRateLimit, "PERPDEPTH_SERVER_SHARED_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PERPDEPTH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PERPDEPTH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PERPDEPTH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PERPDEPTH_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "PERPDEPTH_NOTIFY_COOLDOWN")

	// ── Log ──
	setStr(&cfg.Log.Level, "PERPDEPTH_LOG_LEVEL")
	setStr(&cfg.Log.File, "PERPDEPTH_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "PERPDEPTH_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxAgeDays, "PERPDEPTH_LOG_MAX_AGE_DAYS")
	setInt(&cfg.Log.MaxBackups, "PERPDEPTH_LOG_MAX_BACKUPS")
	setBool(&cfg.Log.Compress, "PERPDEPTH_LOG_COMPRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPDEPTH_MODE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
