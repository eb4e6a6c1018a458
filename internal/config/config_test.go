package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "worker"
log_level = "debug"

[binary]
profit_percent = 80
settle_retry_delay = "30s"

[[binary.markets]]
currency = "BTC"
pair = "USDT"
min_amount = 5
max_amount = 1000

[[binary.markets]]
currency = "ETH"
pair = "USDT"
min_amount = 1
max_amount = 500
profit_percent = 75

[storage]
driver = "memory"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "worker", cfg.Mode)
	assert.Equal(t, 80.0, cfg.Binary.ProfitPercent)
	assert.Equal(t, 30*time.Second, cfg.Binary.SettleRetryDelay.Duration)
	assert.Equal(t, time.Minute, cfg.Binary.ReconcileEvery.Duration, "default kept")
	require.Len(t, cfg.Binary.Markets, 2)
	assert.Equal(t, 75.0, cfg.Binary.Markets[1].ProfitPercent)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BINOPT_BINARY_PROFIT_PERCENT", "90")
	t.Setenv("BINOPT_BINARY_SETTLE_RETRY_DELAY", "2m")
	t.Setenv("BINOPT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("BINOPT_REDIS_DB", "not-a-number")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, 90.0, cfg.Binary.ProfitPercent)
	assert.Equal(t, 2*time.Minute, cfg.Binary.SettleRetryDelay.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 0, cfg.Redis.DB, "unparseable values are ignored")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Server.JWTSecret = "0123456789abcdef"
	require.NoError(t, cfg.Validate())

	cfg.Mode = "trade"
	cfg.Storage.Driver = "sqlite"
	cfg.Server.JWTSecret = ""
	cfg.Binary.Markets = []MarketConfig{
		{Currency: "BTC", Pair: "USDT", MinAmount: 10, MaxAmount: 5},
		{Currency: "btc", Pair: "usdt"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown mode", "unknown driver", "jwt_secret", "max_amount", "duplicate market"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.JWTSecret = "super-secret-value"
	cfg.Postgres.Password = "pw"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Server.JWTSecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "", out.Redis.Password)
	assert.Equal(t, "super-secret-value", cfg.Server.JWTSecret)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
