package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port  string
	Debug bool

	// 外部桥接服务（可选，BridgeURL 为空时禁用）
	BridgeURL    string
	BridgeSecret string

	// BootNotification 应答中的心跳间隔（秒）
	BootInterval int

	// 存活巡检
	HeartbeatTimeout       time.Duration
	HeartbeatSweepInterval time.Duration
	ZeroPowerTimeout       time.Duration
	GhostSweepInterval     time.Duration

	// 历史与日志容量
	SessionHistoryLimit int
	ActivityLogLimit    int
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Debug:                  getEnvBool("DEBUG", false),
		BridgeURL:              getEnv("BRIDGE_URL", ""),
		BridgeSecret:           getEnv("BRIDGE_SECRET", ""),
		BootInterval:           getEnvInt("BOOT_INTERVAL", 300),
		HeartbeatTimeout:       getEnvDuration("HEARTBEAT_TIMEOUT", 60*time.Second),
		HeartbeatSweepInterval: getEnvDuration("HEARTBEAT_SWEEP_INTERVAL", 10*time.Second),
		ZeroPowerTimeout:       getEnvDuration("ZERO_POWER_TIMEOUT", 30*time.Second),
		GhostSweepInterval:     getEnvDuration("GHOST_SWEEP_INTERVAL", 5*time.Second),
		SessionHistoryLimit:    getEnvInt("SESSION_HISTORY_LIMIT", 1000),
		ActivityLogLimit:       getEnvInt("ACTIVITY_LOG_LIMIT", 50),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
