// Package config loads server settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort          = "8080"
	defaultJWTTTLHours   = 24 * 7
	defaultShutdownSec   = 30
	defaultChannelPrefix = "nexus:chat:room:"
)

// Database holds the connection settings for the chat store.
type Database struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
	// SQLitePath is a file path or ":memory:".
	SQLitePath string
}

// Config is the full server configuration.
type Config struct {
	Port            string
	Database        Database
	JWTSecret       string
	JWTTTL          time.Duration
	AllowedOrigins  []string
	RedisAddr       string
	RedisPassword   string
	ChannelPrefix   string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads the configuration from environment variables, falling back
// to development defaults.
func Load() Config {
	return Config{
		Port: envOr("PORT", defaultPort),
		Database: Database{
			Driver:     strings.ToLower(envOr("DB_DRIVER", "postgres")),
			Host:       envOr("DB_HOST", "localhost"),
			User:       envOr("DB_USER", "postgres"),
			Password:   envOr("DB_PASS", "postgres"),
			Name:       envOr("DB_NAME", "nexus_chat"),
			Port:       envOr("DB_PORT", "5432"),
			SSLMode:    envOr("DB_SSLMODE", "disable"),
			SQLitePath: envOr("SQLITE_PATH", "nexus_chat.db"),
		},
		JWTSecret:       envOr("JWT_SECRET", "your-secret-key"),
		JWTTTL:          time.Duration(envInt("JWT_TTL_HOURS", defaultJWTTTLHours)) * time.Hour,
		AllowedOrigins:  envCSV("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		ChannelPrefix:   envOr("REDIS_CHANNEL_PREFIX", defaultChannelPrefix),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "text"),
		ShutdownTimeout: time.Duration(envInt("SHUTDOWN_TIMEOUT_SEC", defaultShutdownSec)) * time.Second,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envCSV(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
