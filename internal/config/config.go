// Package config loads the environment-driven knobs documented in the
// external interfaces section: job cadences, alert transports, and the
// deploy-gate toggles. Every lookup has a default so the process boots
// cleanly in development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/retailops/controlplane/internal/platform/logger"
)

func GetEnv(key, fallback string, log *logger.Logger) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func GetEnvAsInt(key string, fallback int, log *logger.Logger) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		if log != nil {
			log.Warn("invalid int env var, using fallback", "key", key, "value", raw, "fallback", fallback)
		}
		return fallback
	}
	return n
}

func GetEnvAsFloat(key string, fallback float64, log *logger.Logger) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if log != nil {
			log.Warn("invalid float env var, using fallback", "key", key, "value", raw, "fallback", fallback)
		}
		return fallback
	}
	return f
}

func GetEnvAsBool(key string, fallback bool, log *logger.Logger) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func GetEnvAsDuration(key string, fallbackMs int, log *logger.Logger) time.Duration {
	ms := GetEnvAsInt(key, fallbackMs, log)
	return time.Duration(ms) * time.Millisecond
}

// Config is the full set of control-plane knobs resolved once at boot.
type Config struct {
	InvariantInterval   time.Duration
	PerfInterval        time.Duration
	SecurityInterval    time.Duration
	HealthInterval      time.Duration
	BackupInterval      time.Duration
	ExecReportCron      string
	IdempotencyCleanInt time.Duration
	RateLimiterCleanInt time.Duration

	AlertWebhookURL     string
	ExecutiveWebhookURL string
	SlackWebhookURL     string
	PagerDutyRoutingKey string

	ShadowDBURL string
	GPGKeyID    string

	RuntimeStage     string
	RunGatesAtBoot   bool
	JWTSecretKey     string
	AdminAPIKey      string
	RedisURL         string
	DatabaseURL      string
	OTelExporterOTLP string
}

func Load(log *logger.Logger) Config {
	return Config{
		InvariantInterval:   GetEnvAsDuration("INVARIANT_INTERVAL_MS", 300_000, log),
		PerfInterval:        GetEnvAsDuration("PERF_INTERVAL_MS", 600_000, log),
		SecurityInterval:    GetEnvAsDuration("SECURITY_INTERVAL_MS", 900_000, log),
		HealthInterval:      GetEnvAsDuration("HEALTH_INTERVAL_MS", 300_000, log),
		BackupInterval:      GetEnvAsDuration("BACKUP_INTERVAL_MS", 86_400_000, log),
		// Five-field cron(5) expression, not a millisecond interval: the
		// executive report is pinned to a wall-clock time of day rather than
		// N milliseconds since process start. Default is 02:00 daily.
		ExecReportCron:      GetEnv("EXEC_REPORT_CRON", "0 2 * * *", log),
		IdempotencyCleanInt: GetEnvAsDuration("IDEMPOTENCY_CLEAN_MS", 3_600_000, log),
		RateLimiterCleanInt: GetEnvAsDuration("RATE_LIMITER_CLEAN_MS", 900_000, log),

		AlertWebhookURL:     GetEnv("ALERT_WEBHOOK_URL", "", log),
		ExecutiveWebhookURL: GetEnv("EXECUTIVE_WEBHOOK_URL", "", log),
		SlackWebhookURL:     GetEnv("SLACK_WEBHOOK_URL", "", log),
		PagerDutyRoutingKey: GetEnv("PAGERDUTY_ROUTING_KEY", "", log),

		ShadowDBURL: GetEnv("SHADOW_DB_URL", "", log),
		GPGKeyID:    GetEnv("GPG_KEY_ID", "", log),

		RuntimeStage:     GetEnv("RUNTIME_STAGE", "development", log),
		RunGatesAtBoot:   GetEnvAsBool("RUN_GATES_AT_BOOT", false, log),
		JWTSecretKey:     GetEnv("JWT_SECRET_KEY", "dev-secret-change-me", log),
		AdminAPIKey:      GetEnv("ADMIN_API_KEY", "", log),
		RedisURL:         GetEnv("REDIS_URL", "redis://127.0.0.1:6379/0", log),
		DatabaseURL:      GetEnv("DATABASE_URL", "", log),
		OTelExporterOTLP: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
	}
}
