package config

import (
	"os"
	"strconv"
)

// Config centralizes runtime settings for the API.
type Config struct {
	Port        string
	Environment string

	JWTSecret string

	DatabaseURL string

	PlatformBaseURL    string
	PlatformServiceKey string
	PlatformTimeoutMS  int
	PlatformMaxRetries int

	PollIntervalMS      int
	PollMissingGraceSec int
	PollListLimit       int

	CacheFreshnessMinutes int
	CachePageSize         int
	CacheMaxPages         int
	OrgLookupTTLSeconds   int

	SessionIdleTTLMinutes int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins string

	MetricsEnabled bool
}

func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		PlatformBaseURL:    getEnv("PLATFORM_BASE_URL", "http://localhost:9000"),
		PlatformServiceKey: getEnv("PLATFORM_SERVICE_KEY", ""),
		PlatformTimeoutMS:  getEnvInt("PLATFORM_TIMEOUT_MS", 15000),
		PlatformMaxRetries: getEnvInt("PLATFORM_MAX_RETRIES", 2),

		PollIntervalMS:      getEnvInt("POLL_INTERVAL_MS", 1500),
		PollMissingGraceSec: getEnvInt("POLL_MISSING_GRACE_SECONDS", 120),
		PollListLimit:       getEnvInt("POLL_LIST_LIMIT", 50),

		CacheFreshnessMinutes: getEnvInt("CACHE_FRESHNESS_MINUTES", 30),
		CachePageSize:         getEnvInt("CACHE_PAGE_SIZE", 100),
		CacheMaxPages:         getEnvInt("CACHE_MAX_PAGES", 50),
		OrgLookupTTLSeconds:   getEnvInt("ORG_LOOKUP_TTL_SECONDS", 900),

		SessionIdleTTLMinutes: getEnvInt("SESSION_IDLE_TTL_MINUTES", 60),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_CHANNEL", "riskdash_events"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
