package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアのバックエンド種別。
const (
	StoreBackendPostgres = "postgres"
	StoreBackendBolt     = "bolt"
	StoreBackendMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreBackend string
	DatabaseURL  string
	BoltPath     string

	// Database pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Transaction
	TxMaxAttempts int
	TxRetryDelay  time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitSharing int

	// Audit
	AuditInterval      time.Duration
	AuditMaxConcurrent int

	// Notification
	NotificationRetentionDays int
	NotificationLabelMaxRunes int

	// Logging
	LogLevel string

	// Server
	ServerPort        string
	WorkerMetricsPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", StoreBackendPostgres))

	var missing []string

	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreBackendBolt:
		cfg.BoltPath = getEnvString("BOLT_PATH", "vaultshare.db")
	case StoreBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q (want postgres, bolt or memory)", cfg.StoreBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.TxMaxAttempts = getEnvInt("TX_MAX_ATTEMPTS", 5)
	cfg.TxRetryDelay = getEnvDuration("TX_RETRY_DELAY", 20*time.Millisecond)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSharing = getEnvInt("RATE_LIMIT_SHARING", 20)
	cfg.AuditInterval = getEnvDuration("AUDIT_INTERVAL", 15*time.Minute)
	cfg.AuditMaxConcurrent = getEnvInt("AUDIT_MAX_CONCURRENT", 4)
	cfg.NotificationRetentionDays = getEnvInt("NOTIFICATION_RETENTION_DAYS", 90)
	cfg.NotificationLabelMaxRunes = getEnvInt("NOTIFICATION_LABEL_MAX_RUNES", 80)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.TxMaxAttempts < 1 {
		return nil, fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1, got %d", cfg.TxMaxAttempts)
	}
	if cfg.AuditMaxConcurrent < 1 {
		return nil, fmt.Errorf("AUDIT_MAX_CONCURRENT must be at least 1, got %d", cfg.AuditMaxConcurrent)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
