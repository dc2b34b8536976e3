package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aliuyar1234/holidaytree/internal/validation"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	StoreDriver string
	DBDSN       string
	SQLitePath  string
	RedisURL    string
	BlobDir     string

	AdminPasswordHash string
	JWTSecret         string
	SessionDays       int

	LogLevel string

	RateLimitRPM   int
	MaxUploadBytes int64

	InviteMaxUses    int
	InviteTTLDays    int
	OrphanGraceHours int
	SlackWebhookURL  string
	SlackTimeoutMS   int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("HT_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("HT_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("HT_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("HT_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("HT_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("HT_BASE_URL is required")
	}

	cfg.StoreDriver = getEnvOrDefault("HT_STORE_DRIVER", DriverSQLite)
	switch cfg.StoreDriver {
	case DriverPostgres:
		cfg.DBDSN = strings.TrimSpace(os.Getenv("HT_DB_DSN"))
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("HT_DB_DSN is required when HT_STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		cfg.SQLitePath = getEnvOrDefault("HT_SQLITE_PATH", "data/holidaytree.db")
	default:
		return nil, fmt.Errorf("HT_STORE_DRIVER must be one of: postgres, sqlite (got: %s)", cfg.StoreDriver)
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("HT_REDIS_URL"))
	cfg.BlobDir = getEnvOrDefault("HT_BLOB_DIR", "data/media")

	cfg.AdminPasswordHash = strings.TrimSpace(os.Getenv("HT_ADMIN_PASSWORD_HASH"))
	if cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("HT_ADMIN_PASSWORD_HASH is required")
	}

	cfg.JWTSecret = os.Getenv("HT_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("HT_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("HT_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("HT_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("HT_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.SessionDays, err = getEnvIntOrDefault("HT_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.SessionDays <= 0 {
		return nil, fmt.Errorf("HT_SESSION_DAYS must be positive (got: %d)", cfg.SessionDays)
	}

	cfg.RateLimitRPM, err = getEnvIntOrDefault("HT_RATE_LIMIT_RPM", 30)
	if err != nil {
		return nil, err
	}

	cfg.MaxUploadBytes, err = getEnvInt64OrDefault("HT_MAX_UPLOAD_BYTES", 15*1024*1024)
	if err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("HT_MAX_UPLOAD_BYTES must be positive (got: %d)", cfg.MaxUploadBytes)
	}

	cfg.InviteMaxUses, err = getEnvIntOrDefault("HT_INVITE_MAX_USES", 3)
	if err != nil {
		return nil, err
	}
	if cfg.InviteMaxUses < 1 || cfg.InviteMaxUses > 100 {
		return nil, fmt.Errorf("HT_INVITE_MAX_USES must be between 1 and 100 (got: %d)", cfg.InviteMaxUses)
	}

	cfg.InviteTTLDays, err = getEnvIntOrDefault("HT_INVITE_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.InviteTTLDays < 0 {
		return nil, fmt.Errorf("HT_INVITE_TTL_DAYS must not be negative (got: %d)", cfg.InviteTTLDays)
	}

	cfg.OrphanGraceHours, err = getEnvIntOrDefault("HT_ORPHAN_GRACE_HOURS", 24)
	if err != nil {
		return nil, err
	}
	if cfg.OrphanGraceHours < 1 {
		return nil, fmt.Errorf("HT_ORPHAN_GRACE_HOURS must be at least 1 (got: %d)", cfg.OrphanGraceHours)
	}

	cfg.SlackWebhookURL = strings.TrimSpace(os.Getenv("HT_SLACK_WEBHOOK_URL"))
	if cfg.SlackWebhookURL != "" {
		if err := validation.ValidateWebhookURL(cfg.SlackWebhookURL); err != nil {
			return nil, fmt.Errorf("HT_SLACK_WEBHOOK_URL: %w", err)
		}
	}

	cfg.SlackTimeoutMS, err = getEnvIntOrDefault("HT_SLACK_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.SlackTimeoutMS <= 0 || cfg.SlackTimeoutMS > 30000 {
		return nil, fmt.Errorf("HT_SLACK_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.SlackTimeoutMS)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"HT_ENV":                 c.Env,
		"HT_HTTP_ADDR":           c.HTTPAddr,
		"HT_BASE_URL":            c.BaseURL,
		"HT_STORE_DRIVER":        c.StoreDriver,
		"HT_DB_DSN":              redactDSN(c.DBDSN),
		"HT_SQLITE_PATH":         c.SQLitePath,
		"HT_REDIS_URL":           redactDSN(c.RedisURL),
		"HT_BLOB_DIR":            c.BlobDir,
		"HT_ADMIN_PASSWORD_HASH": "[REDACTED]",
		"HT_JWT_SECRET":          "[REDACTED]",
		"HT_SESSION_DAYS":        strconv.Itoa(c.SessionDays),
		"HT_LOG_LEVEL":           c.LogLevel,
		"HT_RATE_LIMIT_RPM":      strconv.Itoa(c.RateLimitRPM),
		"HT_MAX_UPLOAD_BYTES":    strconv.FormatInt(c.MaxUploadBytes, 10),
		"HT_INVITE_MAX_USES":     strconv.Itoa(c.InviteMaxUses),
		"HT_INVITE_TTL_DAYS":     strconv.Itoa(c.InviteTTLDays),
		"HT_ORPHAN_GRACE_HOURS":  strconv.Itoa(c.OrphanGraceHours),
		"HT_SLACK_WEBHOOK_URL":   redactSet(c.SlackWebhookURL),
		"HT_SLACK_TIMEOUT_MS":    strconv.Itoa(c.SlackTimeoutMS),
	}
}

func redactSet(v string) string {
	if v == "" {
		return ""
	}
	return "[REDACTED]"
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvInt64OrDefault(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
