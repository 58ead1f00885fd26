package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "inbox"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	WorkerID    string

	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	DatabaseURL    string
	DBAutoMigrate  bool
	RedisURL       string
	MongoDBURL     string
	MongoDBName    string
	EncryptionKey  string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Session
	JWTSecret   string
	SessionTTL  time.Duration
	FrontendURL string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Gmail
	GmailPubSubTopic   string
	GmailFetchTimeout  time.Duration
	TokenRefreshMargin time.Duration
	WatchRenewInterval time.Duration

	// OpenAI
	OpenAIAPIKey      string
	LLMModel          string
	LLMMaxTokens      int
	LLMTemperature    float64
	LLMRatePerSec     float64
	LLMTimeout        time.Duration
	CategorizeHardCap int
	ManualCategorize  int

	// Poll scheduler
	SchedulerEnabled bool
	PollInterval     time.Duration
	PollMaxMessages  int
	PollErrorBackoff time.Duration
	PollConcurrency  int

	// Webhook
	WebhookMaxMessages int
	WebhookLogCapacity int
	WebhookDedupTTL    time.Duration

	// Manual triggers
	ManualSyncMax int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		WorkerID:    getEnv("WORKER_ID", generateWorkerID()),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBAutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		RedisURL:       getEnv("REDIS_URL", ""),
		MongoDBURL:     getEnv("MONGODB_URL", ""),
		MongoDBName:    getEnv("MONGODB_DATABASE", "inbox"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 10),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		SessionTTL:  getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		GmailPubSubTopic:   getEnv("GMAIL_PUBSUB_TOPIC", ""),
		GmailFetchTimeout:  getEnvDuration("GMAIL_FETCH_TIMEOUT", 30*time.Second),
		TokenRefreshMargin: getEnvDuration("TOKEN_REFRESH_MARGIN", 60*time.Second),
		WatchRenewInterval: getEnvDuration("WATCH_RENEW_INTERVAL", 24*time.Hour),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:      getEnvInt("LLM_MAX_TOKENS", 10),
		LLMTemperature:    getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMRatePerSec:     getEnvFloat("LLM_RATE_PER_SEC", 2),
		LLMTimeout:        getEnvDuration("LLM_TIMEOUT", 20*time.Second),
		CategorizeHardCap: getEnvInt("CATEGORIZE_HARD_CAP", 4),
		ManualCategorize:  getEnvInt("MANUAL_CATEGORIZE_LIMIT", 3),

		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		PollInterval:     getEnvDuration("POLL_INTERVAL", 5*time.Minute),
		PollMaxMessages:  getEnvInt("POLL_MAX_MESSAGES", 5),
		PollErrorBackoff: getEnvDuration("POLL_ERROR_BACKOFF", time.Minute),
		PollConcurrency:  getEnvInt("POLL_CONCURRENCY", 4),

		WebhookMaxMessages: getEnvInt("WEBHOOK_MAX_MESSAGES", 5),
		WebhookLogCapacity: getEnvInt("WEBHOOK_LOG_CAPACITY", 50),
		WebhookDedupTTL:    getEnvDuration("WEBHOOK_DEDUP_TTL", 5*time.Minute),

		ManualSyncMax: getEnvInt("MANUAL_SYNC_MAX", 100),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.IsProduction() && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.CategorizeHardCap < 1 {
		errs = append(errs, fmt.Errorf("CATEGORIZE_HARD_CAP must be positive, got %d", c.CategorizeHardCap))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5m") or a bare number of seconds.
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
