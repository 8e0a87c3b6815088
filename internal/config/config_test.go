package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perpdepth.toml")
	body := `
mode = "stream"

[market]
coin = "ETH"
sig_figs = 5
mantissa = 2
highlight_ttl = "2s"

[server]
port = 9100
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ETH", cfg.Market.Coin)
	assert.Equal(t, 5, cfg.Market.SigFigs)
	assert.Equal(t, 2, cfg.Market.Mantissa)
	assert.Equal(t, 2*time.Second, cfg.Market.HighlightTTL.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, 11, cfg.Market.Depth)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "BTC", cfg.Market.Coin)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PERPDEPTH_MARKET_COIN", "SOL")
	t.Setenv("PERPDEPTH_MARKET_DEPTH", "20")
	t.Setenv("PERPDEPTH_FEES_TAKER_RATE", "0.0004")
	t.Setenv("PERPDEPTH_SERVER_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PERPDEPTH_CAPTURE_FLUSH_INTERVAL", "15s")
	t.Setenv("PERPDEPTH_REDIS_TLS_ENABLED", "true")
	t.Setenv("PERPDEPTH_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "SOL", cfg.Market.Coin)
	assert.Equal(t, 20, cfg.Market.Depth)
	assert.InDelta(t, 0.0004, cfg.Fees.TakerRate, 1e-12)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 15*time.Second, cfg.Capture.FlushInterval.Duration)
	assert.True(t, cfg.Redis.TLSEnabled)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Market.Coin = ""
	cfg.Market.SigFigs = 4
	cfg.Market.Mantissa = 2
	cfg.Log.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "market: coin must not be empty")
	assert.Contains(t, msg, "market: mantissa requires sig_figs = 5")
	assert.Contains(t, msg, `log: unknown level "verbose"`)
}

func TestValidateReplayNeedsBucket(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "bot:123"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "", out.Notify.DiscordWebhookURL)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "", out.S3.AccessKey)
	assert.Equal(t, "hunter2", cfg.Redis.Password)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
