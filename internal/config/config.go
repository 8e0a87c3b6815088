// Package config defines the top-level configuration for perpdepth and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPDEPTH_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Market   MarketConfig   `toml:"market"`
	Fees     FeesConfig     `toml:"fees"`
	Margin   MarginConfig   `toml:"margin"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Capture  CaptureConfig  `toml:"capture"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
	Mode     string         `toml:"mode"`
}

// ExchangeConfig holds the exchange endpoints and REST throttling.
type ExchangeConfig struct {
	InfoURL         string   `toml:"info_url"`
	WSURL           string   `toml:"ws_url"`
	InfoRPS         float64  `toml:"info_rps"`
	InfoBurst       int      `toml:"info_burst"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// MarketConfig selects the initial subscription and sizes the book.
type MarketConfig struct {
	Coin         string   `toml:"coin"`
	SigFigs      int      `toml:"sig_figs"`
	Mantissa     int      `toml:"mantissa"`
	Depth        int      `toml:"depth"`
	HighlightTTL duration `toml:"highlight_ttl"`
	TapeSize     int      `toml:"tape_size"`
}

// FeesConfig holds fee rates as fractions of notional (0.00045 = 0.045%).
type FeesConfig struct {
	MakerRate float64 `toml:"maker_rate"`
	TakerRate float64 `toml:"taker_rate"`
}

// MarginConfig holds quote defaults.
type MarginConfig struct {
	MaxSlippagePercent float64 `toml:"max_slippage_percent"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	TTL        duration `toml:"ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int    `toml:"part_size_mb"`
}

// CaptureConfig controls raw frame capture and replay.
type CaptureConfig struct {
	Enabled       bool     `toml:"enabled"`
	Prefix        string   `toml:"prefix"`
	MaxFrames     int      `toml:"max_frames"`
	FlushInterval duration `toml:"flush_interval"`
	RetentionDays int      `toml:"retention_days"`
	// ReplayPrefix selects the segments played in replay mode. Empty means
	// every segment under Prefix.
	ReplayPrefix string  `toml:"replay_prefix"`
	ReplaySpeed  float64 `toml:"replay_speed"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is the number of requests per RateWindow per client IP.
	// Zero disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// SharedRateLimit counts requests in Redis so every API process shares
	// one budget per client.
	SharedRateLimit bool `toml:"shared_rate_limit"`
}

// NotifyConfig holds operator alert channels. Events lists the alert
// types to forward; empty forwards all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// Cooldown suppresses repeats of the same event.
	Cooldown duration `toml:"cooldown"`
}

// LogConfig controls the structured logger and optional file rotation.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days"`
	MaxBackups int    `toml:"max_backups"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			InfoURL:         "https://api.hyperliquid.xyz",
			WSURL:           "wss://api.hyperliquid.xyz/ws",
			InfoRPS:         2,
			InfoBurst:       4,
			RefreshInterval: duration{30 * time.Second},
		},
		Market: MarketConfig{
			Coin:         "BTC",
			Depth:        11,
			HighlightTTL: duration{1500 * time.Millisecond},
			TapeSize:     50,
		},
		Fees: FeesConfig{
			MakerRate: 0.00045,
			TakerRate: 0.00015,
		},
		Margin: MarginConfig{
			MaxSlippagePercent: 8,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			KeyPrefix:  "perpdepth:",
			TTL:        duration{10 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "perpdepth-data",
			UseSSL:         false,
			ForcePathStyle: true,
			PartSizeMB:     8,
		},
		Capture: CaptureConfig{
			Enabled:       false,
			Prefix:        "capture",
			MaxFrames:     5000,
			FlushInterval: duration{time.Minute},
			RetentionDays: 14,
			ReplaySpeed:   0,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Cooldown: duration{5 * time.Minute},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxAgeDays: 7,
			MaxBackups: 5,
			Compress:   true,
		},
		Mode: "stream",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"stream": true,
	"replay": true,
}

// validLogLevels enumerates the accepted values for LogConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for internal consistency and returns an
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: stream, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		errs = append(errs, "log: max_size_mb must be positive when file is set")
	}

	// ── Exchange ──
	if mode == "stream" {
		if c.Exchange.InfoURL == "" {
			errs = append(errs, "exchange: info_url must not be empty")
		}
		if c.Exchange.WSURL == "" {
			errs = append(errs, "exchange: ws_url must not be empty")
		}
	}
	if c.Exchange.InfoRPS <= 0 {
		errs = append(errs, "exchange: info_rps must be positive")
	}
	if c.Exchange.InfoBurst <= 0 {
		errs = append(errs, "exchange: info_burst must be positive")
	}
	if c.Exchange.RefreshInterval.Duration <= 0 {
		errs = append(errs, "exchange: refresh_interval must be positive")
	}

	// ── Market ──
	if strings.TrimSpace(c.Market.Coin) == "" {
		errs = append(errs, "market: coin must not be empty")
	}
	if c.Market.SigFigs != 0 && (c.Market.SigFigs < 2 || c.Market.SigFigs > 5) {
		errs = append(errs, fmt.Sprintf("market: sig_figs must be 0 or 2-5, got %d", c.Market.SigFigs))
	}
	switch c.Market.Mantissa {
	case 0:
	case 1, 2, 5:
		if c.Market.SigFigs != 5 {
			errs = append(errs, "market: mantissa requires sig_figs = 5")
		}
	default:
		errs = append(errs, fmt.Sprintf("market: mantissa must be 1, 2 or 5, got %d", c.Market.Mantissa))
	}
	if c.Market.Depth <= 0 {
		errs = append(errs, "market: depth must be positive")
	}
	if c.Market.TapeSize <= 0 {
		errs = append(errs, "market: tape_size must be positive")
	}

	// ── Fees / margin ──
	if c.Fees.MakerRate < 0 || c.Fees.MakerRate >= 1 {
		errs = append(errs, "fees: maker_rate must be in [0, 1)")
	}
	if c.Fees.TakerRate < 0 || c.Fees.TakerRate >= 1 {
		errs = append(errs, "fees: taker_rate must be in [0, 1)")
	}
	if c.Margin.MaxSlippagePercent < 0 || c.Margin.MaxSlippagePercent >= 100 {
		errs = append(errs, "margin: max_slippage_percent must be in [0, 100)")
	}

	// ── Redis ──
	if mode == "stream" && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize <= 0 {
		errs = append(errs, "redis: pool_size must be positive")
	}

	// ── S3 / capture ──
	needsS3 := mode == "replay" || c.Capture.Enabled
	if needsS3 {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Capture.Prefix == "" {
			errs = append(errs, "capture: prefix must not be empty")
		}
	}
	if c.Capture.Enabled {
		if c.Capture.MaxFrames <= 0 {
			errs = append(errs, "capture: max_frames must be positive")
		}
		if c.Capture.FlushInterval.Duration <= 0 {
			errs = append(errs, "capture: flush_interval must be positive")
		}
	}
	if c.Capture.ReplaySpeed < 0 {
		errs = append(errs, "capture: replay_speed must not be negative")
	}

	// ── Server ──
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
