package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Port      string
	Env       string
	LogLevel  string
	RedisURL  string
	RedisPass string
	RedisDB   int

	StoreBackend string

	JWTSecret string
	JWTExpiry time.Duration
	AdminKey  string

	RevealWindow       time.Duration
	RateLimitPerMinute int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		StoreBackend: getEnv("STORE_BACKEND", StoreMemory),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		AdminKey:     os.Getenv("ADMIN_KEY"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if cfg.RevealWindow, err = getEnvDuration("REVEAL_WINDOW", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JWTExpiry, err = getEnvDuration("JWT_EXPIRY", 24*time.Hour); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %s", c.StoreBackend)
	}

	if c.RevealWindow <= 0 {
		return fmt.Errorf("REVEAL_WINDOW must be positive")
	}

	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = "development-secret"
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return d, nil
}
