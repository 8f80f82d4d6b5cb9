package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetRuntimeConfig forgets the cached config file so the next load re-reads it.
func resetRuntimeConfig(t *testing.T) {
	t.Helper()
	runtimeConfigOnce = sync.Once{}
	runtimeConfigErr = nil
	runtimeConfigValues = nil
	runtimeConfigLoaded = false
	runtimeConfigPath = ""
	runtimeConfigPhase = ""
	t.Cleanup(func() { runtimeConfigOnce = sync.Once{} })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	resetRuntimeConfig(t)
	t.Setenv("CONFIG_PHASE", "definitely-missing")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, "swap-ledger.events", cfg.KafkaTopic)
	assert.Equal(t, 10*time.Millisecond, cfg.KafkaBatchTimeout)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Zero(t, cfg.RevalueInterval)
	assert.Equal(t, 500, cfg.RevalueBatch)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	src, err := CurrentConfigSource()
	require.NoError(t, err)
	assert.False(t, src.Loaded)
	assert.Equal(t, "definitely-missing", src.Phase)
}

func TestLoadServerConfig_FileAndEnvPrecedence(t *testing.T) {
	resetRuntimeConfig(t)
	path := writeConfig(t, `
server:
  http_addr: ":9000"
  allowed-origins:
    - https://a.example
    - https://b.example
postgres:
  dsn: postgres://file
kafka:
  brokers: ["k1:9092", "k2:9092"]
redis:
  addr: redis:6379
  cache_ttl: 5s
log_level: debug
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("POSTGRES_DSN", "postgres://env")
	t.Setenv("SERVER_LOG_FORMAT", "json")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://env", cfg.PostgresDSN, "environment must win over the file")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	src, err := CurrentConfigSource()
	require.NoError(t, err)
	assert.True(t, src.Loaded)
}

func TestLoadServerConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"SERVER_READ_TIMEOUT": "soon"}},
		{"negative duration", map[string]string{"SERVER_IDLE_TIMEOUT": "-1s"}},
		{"bad kafka batch timeout", map[string]string{"KAFKA_BATCH_TIMEOUT": "fast"}},
		{"bad redis db", map[string]string{"REDIS_DB": "-2"}},
		{"bad batch", map[string]string{"REVALUE_BATCH_SIZE": "0"}},
		{"interval without prices", map[string]string{"REVALUE_INTERVAL": "1m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRuntimeConfig(t)
			t.Setenv("CONFIG_PHASE", "definitely-missing")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadServerConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadServerConfig_MissingExplicitFile(t *testing.T) {
	resetRuntimeConfig(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := LoadServerConfig()
	assert.Error(t, err)
}

func TestLoadRevalueConfig(t *testing.T) {
	resetRuntimeConfig(t)
	t.Setenv("CONFIG_PHASE", "definitely-missing")
	t.Setenv("REVALUE_PRICE_FILE", "prices.json")
	t.Setenv("REVALUE_LOG_LEVEL", "warn")

	cfg, err := LoadRevalueConfig()
	require.NoError(t, err)
	assert.Equal(t, "prices.json", cfg.PriceFile)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestNormalizeKeySegment(t *testing.T) {
	tests := map[string]string{
		"http_addr":       "HTTP_ADDR",
		"allowed-origins": "ALLOWED_ORIGINS",
		"  cacheTTL ":     "CACHETTL",
		"a..b":            "A_B",
		"__x__":           "X",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeKeySegment(in), "input %q", in)
	}
}
