package config_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"LOG_LEVEL", "LOG_FORMAT", "STORE_TYPE", "SQLITE_PATH", "DATABASE_URL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "PARAMS_FILE",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_INSECURE",
	} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, config.StoreMemory, cfg.StoreType)
	assert.Equal(t, "data/trustengine.db", cfg.SQLitePath)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Empty(t, cfg.ParamsFile)
	assert.False(t, cfg.OTelEnabled)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("STORE_TYPE", "Redis")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PARAMS_FILE", "/etc/trustengine/params.yaml")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_INSECURE", "true")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, config.StoreRedis, cfg.StoreType)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "/etc/trustengine/params.yaml", cfg.ParamsFile)
	assert.True(t, cfg.OTelEnabled)
	assert.True(t, cfg.OTelInsecure)
}

func TestLoad_BadRedisDBIgnored(t *testing.T) {
	t.Setenv("REDIS_DB", "primary")
	assert.Equal(t, 0, config.Load().RedisDB)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)

	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	logger.Warn("tier changed", "account", "alice")
	assert.Contains(t, buf.String(), `"msg":"tier changed"`)

	cfg = &config.Config{LogLevel: "nonsense"}
	assert.True(t, cfg.NewLogger(&buf).Enabled(context.Background(), slog.LevelInfo))
}
