package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "universe.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 300, cfg.Cache.TTLSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 250, cfg.Batch.InterItemDelayMs)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 5, cfg.Retry.FailureThreshold)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://r.jina.ai", cfg.Website.JinaBaseURL)
	assert.Equal(t, 15, cfg.Website.TimeoutSecs)
	assert.Equal(t, 30000, cfg.Website.MaxChars)
	assert.False(t, cfg.Website.DisableJina)

	assert.InDelta(t, 40, cfg.Scorer.SizeWeight, 0.001)
	assert.InDelta(t, 30, cfg.Scorer.ServiceWeight, 0.001)
	assert.InDelta(t, 20, cfg.Scorer.GeographyWeight, 0.001)
	assert.InDelta(t, 5, cfg.Scorer.BuyerTypeWeight, 0.001)
	assert.InDelta(t, 5, cfg.Scorer.DataQualityWeight, 0.001)
	assert.InDelta(t, 0.8, cfg.Scorer.GeoMissRelaxed, 0.001)
	assert.InDelta(t, 0.75, cfg.Scorer.CompletenessHigh, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/universe
log:
  level: debug
  format: console
scorer:
  size_weight: 50
  service_weight: 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/universe", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 50, cfg.Scorer.SizeWeight, 0.001)
	assert.InDelta(t, 20, cfg.Scorer.ServiceWeight, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 20, cfg.Scorer.GeographyWeight, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("UNIVERSE_STORE_DRIVER", "postgres")
	t.Setenv("UNIVERSE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("UNIVERSE_SERVER_PORT", "3000")
	t.Setenv("UNIVERSE_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadEnvOnlyKeys(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("UNIVERSE_WEBSITE_JINA_KEY", "jina-test")
	t.Setenv("UNIVERSE_WEBSITE_DISABLE_JINA", "true")
	t.Setenv("UNIVERSE_CACHE_REDIS_ADDR", "localhost:6379")
	t.Setenv("UNIVERSE_CACHE_REDIS_DB", "2")
	t.Setenv("UNIVERSE_STORE_MAX_CONNS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "jina-test", cfg.Website.JinaKey)
	assert.True(t, cfg.Website.DisableJina)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 2, cfg.Cache.RedisDB)
	assert.Equal(t, int32(8), cfg.Store.MaxConns)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "universe.db"
	cfg.Cache.Driver = "memory"
	cfg.Server.Port = 8080
	cfg.Batch.InterItemDelayMs = 250
	return cfg
}

func TestValidateStore_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("store"))
}

func TestValidateStore_Missing(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateAI_RequiresKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("ai")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("ai"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateRedisCache(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Driver = "redis"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.redis_addr is required")

	cfg.Cache.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Cache.Driver = "memcached"
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.driver")
}

func TestValidateNegativeDelay(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.InterItemDelayMs = -1

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inter_item_delay_ms")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
