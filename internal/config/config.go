package config

import (
	"os"
	"strconv"
	"time"

	"owl-alerts/common/config"

	"github.com/google/uuid"
)

// Config 告警服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig

	// DBEnabled 为 false 时使用内存存储（本地运行）
	DBEnabled bool

	Alert struct {
		// Redis Streams
		EventStream   string // 生命周期事件流，默认 "alert:events"
		ViewStream    string // 已读事件流，默认 "alert:views"
		ConsumerGroup string // 默认 "owl-alerts-group"
		ConsumerName  string // 默认 "owl-alerts-<uuid>"
		BatchSize     int    // 默认 10

		// 已读缓存过期时间，默认 10 分钟
		ViewCacheTTL time.Duration

		// 图片下载
		ImageMaxBytes int64         // 默认 5 MiB
		ImageTimeout  time.Duration // 默认 10 秒
	}

	Log struct {
		Level  string
		Format string
	}
}

const (
	defaultImageMaxBytes = 5 << 20
	defaultImageTimeout  = 10 * time.Second
	defaultViewCacheTTL  = 10 * time.Minute
)

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "owlrd"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Alert.EventStream = getEnv("ALERT_EVENT_STREAM", "alert:events")
	cfg.Alert.ViewStream = getEnv("ALERT_VIEW_STREAM", "alert:views")
	cfg.Alert.ConsumerGroup = getEnv("ALERT_CONSUMER_GROUP", "owl-alerts-group")
	cfg.Alert.ConsumerName = getEnv("ALERT_CONSUMER_NAME", "owl-alerts-"+uuid.NewString())
	cfg.Alert.BatchSize = getEnvInt("ALERT_BATCH_SIZE", 10)
	cfg.Alert.ViewCacheTTL = getEnvDuration("ALERT_VIEW_CACHE_TTL", defaultViewCacheTTL)
	cfg.Alert.ImageMaxBytes = int64(getEnvInt("ALERT_IMAGE_MAX_BYTES", defaultImageMaxBytes))
	cfg.Alert.ImageTimeout = getEnvDuration("ALERT_IMAGE_TIMEOUT", defaultImageTimeout)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 非正数或无法解析时使用默认值
func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

// getEnvDuration 支持 "30s" / "5m" 或纯秒数
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
