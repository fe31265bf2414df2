package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"DB_ENABLED", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"DB_MAX_CONNS", "DB_MAX_IDLE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"ALERT_EVENT_STREAM", "ALERT_VIEW_STREAM", "ALERT_CONSUMER_GROUP", "ALERT_CONSUMER_NAME",
	"ALERT_BATCH_SIZE", "ALERT_VIEW_CACHE_TTL", "ALERT_IMAGE_MAX_BYTES", "ALERT_IMAGE_TIMEOUT",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearConfigEnv 清空相关环境变量（测试结束后由 t.Setenv 恢复）
func clearConfigEnv(t *testing.T) {
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "owlrd", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "alert:events", cfg.Alert.EventStream)
	assert.Equal(t, "alert:views", cfg.Alert.ViewStream)
	assert.Equal(t, "owl-alerts-group", cfg.Alert.ConsumerGroup)
	assert.True(t, strings.HasPrefix(cfg.Alert.ConsumerName, "owl-alerts-"))
	assert.Equal(t, 10, cfg.Alert.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Alert.ViewCacheTTL)
	assert.Equal(t, int64(5<<20), cfg.Alert.ImageMaxBytes)
	assert.Equal(t, 10*time.Second, cfg.Alert.ImageTimeout)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ALERT_CONSUMER_NAME", "worker-1")
	t.Setenv("ALERT_BATCH_SIZE", "50")
	t.Setenv("ALERT_VIEW_CACHE_TTL", "30s")
	t.Setenv("ALERT_IMAGE_TIMEOUT", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "worker-1", cfg.Alert.ConsumerName)
	assert.Equal(t, 50, cfg.Alert.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Alert.ViewCacheTTL)
	assert.Equal(t, 3*time.Second, cfg.Alert.ImageTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ALERT_BATCH_SIZE", "-1")
	t.Setenv("ALERT_VIEW_CACHE_TTL", "soon")
	t.Setenv("ALERT_IMAGE_MAX_BYTES", "abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Alert.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Alert.ViewCacheTTL)
	assert.Equal(t, int64(5<<20), cfg.Alert.ImageMaxBytes)
}
