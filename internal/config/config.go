// Package config validates the environment this process runs with.
package config

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"go.uber.org/zap"
)

// Config holds validated, process-wide configuration (§6 Environment).
type Config struct {
	// Required
	JWTSecret string

	// Media engine / worker pool (§4.1, §6)
	AnnouncedIP string // permitted empty, see SPEC_FULL §9 open question 4
	WorkerCount int

	// HTTP / transport
	Port           string
	AllowedOrigins []string

	// Optional cross-instance fan-out (§2 DOMAIN STACK)
	RedisAddr     string
	RedisPassword string

	// Ops
	DevMode            bool
	LogLevel           string
	CleanupGracePeriod time.Duration

	// Connection rate limiting (internal/ratelimit)
	RateLimitWSPerIP   string
	RateLimitWSPerUser string
}

// Load validates environment variables and returns a ready-to-use Config.
// JWT_SECRET is the only variable whose absence is fatal, matching §6.
func Load() (*Config, error) {
	cfg := &Config{}
	var problems []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	} else if len(cfg.JWTSecret) < 32 {
		problems = append(problems, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	cfg.AnnouncedIP = os.Getenv("ANNOUNCED_IP")
	if cfg.AnnouncedIP == "" {
		logging.Warn(context.Background(), "ANNOUNCED_IP not set; ICE will rely on host candidates only (fine for local testing, not for NAT'd deployments)")
	}

	cfg.Port = getEnvOrDefault("PORT", "8080")
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		problems = append(problems, fmt.Sprintf("PORT must be numeric (got %q)", cfg.Port))
	}

	cfg.AllowedOrigins = strings.Split(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000"), ",")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisAddr != "" && !isValidHostPort(cfg.RedisAddr) {
		problems = append(problems, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got %q)", cfg.RedisAddr))
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	gracePeriod, err := time.ParseDuration(getEnvOrDefault("CLEANUP_GRACE_PERIOD", "5s"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("CLEANUP_GRACE_PERIOD must be a valid duration (got %q): %v", os.Getenv("CLEANUP_GRACE_PERIOD"), err))
	}
	cfg.CleanupGracePeriod = gracePeriod

	cfg.WorkerCount = max(2, runtime.NumCPU())
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			problems = append(problems, fmt.Sprintf("WORKER_COUNT must be a positive integer (got %q)", v))
		} else {
			cfg.WorkerCount = n
		}
	}

	cfg.RateLimitWSPerIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "20-M")
	cfg.RateLimitWSPerUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	if len(problems) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	logValidated(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port > 0 && port <= 65535
}

func logValidated(cfg *Config) {
	logging.Info(context.Background(), "environment configuration validated",
		zap.String("jwt_secret", redact(cfg.JWTSecret)),
		zap.String("port", cfg.Port),
		zap.String("announced_ip", cfg.AnnouncedIP),
		zap.Int("worker_count", cfg.WorkerCount),
		zap.Bool("redis_enabled", cfg.RedisAddr != ""),
		zap.Bool("dev_mode", cfg.DevMode),
		zap.Duration("cleanup_grace_period", cfg.CleanupGracePeriod),
	)
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func redact(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
