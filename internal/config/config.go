package config

import (
	"os"
	"strconv"
	"time"

	"coachbook/internal/database"
	"coachbook/internal/external"
	"coachbook/internal/messaging"
)

// Config holds the full application configuration
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Booking lifecycle knobs
	ProvisionalLockTTL time.Duration
	PaymentWindow      time.Duration
	AutoResolveAfter   time.Duration
	SweepInterval      time.Duration
	CreateDedupWindow  time.Duration
	WebhookDedupWindow time.Duration

	OperatorEmail string

	Database      database.Config
	NATS          messaging.Config
	Payment       external.PaymentConfig
	Notifications external.NotifyConfig
	Elasticsearch ElasticsearchConfig
	Valkey        ValkeyConfig
}

// ElasticsearchConfig configures the audit-trail read-side index
type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	Index      string
	MaxRetries int
	Enabled    bool
}

// ValkeyConfig configures the webhook dedup fast path
type ValkeyConfig struct {
	Addr     string
	Password string
	Enabled  bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		ProvisionalLockTTL: time.Duration(getEnvInt("PROVISIONAL_LOCK_TTL_MIN", 5)) * time.Minute,
		PaymentWindow:      time.Duration(getEnvInt("PAYMENT_WINDOW_HOURS", 24)) * time.Hour,
		AutoResolveAfter:   time.Duration(getEnvInt("AUTO_RESOLVE_AFTER_DAYS", 7)) * 24 * time.Hour,
		SweepInterval:      time.Duration(getEnvInt("SWEEP_INTERVAL_HOURS", 24)) * time.Hour,
		CreateDedupWindow:  time.Duration(getEnvInt("CREATE_DEDUP_WINDOW_HOURS", 24)) * time.Hour,
		WebhookDedupWindow: time.Duration(getEnvInt("WEBHOOK_DEDUP_WINDOW_HOURS", 24)) * time.Hour,

		OperatorEmail: getEnv("OPERATOR_EMAIL", "ops@coachbook.local"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "coachbook"),
			Password:           getEnv("DB_PASSWORD", "coachbook123"),
			DBName:             getEnv("DB_NAME", "coachbook"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "coachbook"),
			ClientID:  getEnv("NATS_CLIENT_ID", "coachbook-api"),
		},

		Payment: external.PaymentConfig{
			BaseURL:    getEnv("PAYMENT_GATEWAY_URL", "https://gateway.example.com/escrow/v1"),
			MerchantID: getEnv("PAYMENT_MERCHANT_ID", ""),
			Secret:     getEnv("PAYMENT_SECRET", ""),
			Timeout:    time.Duration(getEnvInt("PAYMENT_TIMEOUT_SEC", 30)) * time.Second,
		},

		Notifications: external.NotifyConfig{
			BaseURL: getEnv("NOTIFY_SERVICE_URL", "http://localhost:8090"),
			From:    getEnv("NOTIFY_FROM", "no-reply@coachbook.local"),
			Timeout: time.Duration(getEnvInt("NOTIFY_TIMEOUT_SEC", 10)) * time.Second,
		},

		Elasticsearch: ElasticsearchConfig{
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:      getEnv("ELASTICSEARCH_AUDIT_INDEX", "coachbook-audit"),
			MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
			Enabled:    getEnv("ELASTICSEARCH_ENABLED", "true") == "true",
		},

		Valkey: ValkeyConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			Enabled:  getEnv("VALKEY_ENABLED", "true") == "true",
		},
	}
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable value or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
