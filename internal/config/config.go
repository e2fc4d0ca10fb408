package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Cloudtempmonitor/templogger/common/config"

	"github.com/joho/godotenv"
)

// 触发源
const (
	TriggerSourceRedis = "redis"
	TriggerSourceMQTT  = "mqtt"
)

// DefaultOfflineThreshold 离线判定阈值。历史版本里出现过 120s 和 200s 两个值，
// 这里取仪表盘使用的 200s，可通过 OFFLINE_THRESHOLD 覆盖。
const DefaultOfflineThreshold = 200 * time.Second

// Config 告警通知服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	SMTP     config.SMTPConfig
	Push     config.PushConfig

	// 文档变更触发配置
	Trigger struct {
		Source    string        // redis 或 mqtt
		Stream    string        // Redis Stream 名称
		Group     string        // 消费者组
		Consumer  string        // 消费者名称
		BatchSize int64         // 单次读取条数
		Block     time.Duration // XREADGROUP 阻塞时间
		MQTTTopic string        // MQTT 变更主题
	}

	// 在线/离线对账配置
	Presence struct {
		Enabled          bool
		OfflineThreshold time.Duration
		SweepSpec        string // cron 表达式
	}

	// 幂等保护（默认关闭）
	Idempotency struct {
		Enabled   bool
		TTL       time.Duration
		KeyPrefix string
	}

	Notify struct {
		DefaultTimezone string
		DeviceLinkPath  string // 推送深链，如 /device-details.html?mac=
	}

	Metrics struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（.env 文件可选，环境变量优先）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "templogger")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 10
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "templogger-notifier")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.SMTP.Host = getEnv("SMTP_HOST", "smtp.gmail.com")
	cfg.SMTP.Port = 587
	cfg.SMTP.Timeout = 15 * time.Second
	cfg.SMTP.LoadFromEnv("SMTP")
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	cfg.Push.BaseURL = getEnv("PUSH_BASE_URL", "http://localhost:8089")
	cfg.Push.TTL = time.Hour
	cfg.Push.Timeout = 10 * time.Second
	cfg.Push.BatchSize = 500
	cfg.Push.LoadFromEnv("PUSH")

	cfg.Trigger.Source = strings.ToLower(getEnv("TRIGGER_SOURCE", TriggerSourceRedis))
	cfg.Trigger.Stream = getEnv("TRIGGER_STREAM", "templogger:document-changes")
	cfg.Trigger.Group = getEnv("TRIGGER_GROUP", "alarm-notifier")
	cfg.Trigger.Consumer = getEnv("TRIGGER_CONSUMER", defaultConsumerName())
	cfg.Trigger.BatchSize = int64(getEnvInt("TRIGGER_BATCH_SIZE", 10))
	cfg.Trigger.Block = getEnvDuration("TRIGGER_BLOCK", 5*time.Second)
	cfg.Trigger.MQTTTopic = getEnv("TRIGGER_MQTT_TOPIC", "templogger/changes/#")

	cfg.Presence.Enabled = getEnvBool("PRESENCE_ENABLED", true)
	cfg.Presence.OfflineThreshold = getEnvDuration("OFFLINE_THRESHOLD", DefaultOfflineThreshold)
	cfg.Presence.SweepSpec = getEnv("PRESENCE_SWEEP_SPEC", "@every 1m")

	cfg.Idempotency.Enabled = getEnvBool("IDEMPOTENCY_ENABLED", false)
	cfg.Idempotency.TTL = getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour)
	cfg.Idempotency.KeyPrefix = getEnv("IDEMPOTENCY_PREFIX", "templogger:notified:")

	cfg.Notify.DefaultTimezone = getEnv("DEFAULT_TIMEZONE", "America/Sao_Paulo")
	cfg.Notify.DeviceLinkPath = getEnv("DEVICE_LINK_PATH", "/device-details.html?mac=")

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", ":9102")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Trigger.Source {
	case TriggerSourceRedis, TriggerSourceMQTT:
	default:
		return fmt.Errorf("invalid TRIGGER_SOURCE %q (expected redis or mqtt)", c.Trigger.Source)
	}
	if c.Presence.OfflineThreshold <= 0 {
		return fmt.Errorf("OFFLINE_THRESHOLD must be positive, got %s", c.Presence.OfflineThreshold)
	}
	if c.Push.BatchSize <= 0 || c.Push.BatchSize > 500 {
		c.Push.BatchSize = 500
	}
	return nil
}

func defaultConsumerName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "notifier-1"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration 支持 "90s" 这类 duration，也兼容纯数字（按秒）
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
