// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinJWTSecretBytes is the shortest signing secret accepted at startup.
const MinJWTSecretBytes = 32

type DBConfig struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Config holds all runtime configuration values.
type Config struct {
	Env                  string
	Port                 string
	LogLevel             string
	DB                   DBConfig
	JWT                  JWTConfig
	RefreshTTL           time.Duration
	BcryptCost           int
	TopRoleID            int64
	DefaultRoleID        int64
	InvitationExpiryDays int
	ResetCodeTTL         time.Duration
	ExposeResetCode      bool
	CleanupSchedule      string
	AMQPURL              string
	AuditLogDir          string
	RunMigrations        bool
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Load reads .env (if present) and the process environment. Every missing
// required variable is reported in the returned error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:      envStr("APP_ENV", "development"),
		Port:     must("APP_PORT"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		DB: DBConfig{
			User: must("DB_USER"),
			Pass: os.Getenv("DB_PASS"),
			Host: must("DB_HOST"),
			Port: must("DB_PORT"),
			Name: must("DB_NAME"),
		},
		JWT: JWTConfig{
			Secret:   must("JWT_SECRET"),
			Issuer:   envStr("JWT_ISSUER", "access-control-api"),
			Audience: os.Getenv("JWT_AUDIENCE"),
			TTL:      envMinutes("ACCESS_TOKEN_TTL_MIN", 24*60),
		},
		RefreshTTL:           time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		BcryptCost:           envInt("BCRYPT_COST", 10),
		TopRoleID:            int64(envInt("TOP_ROLE_ID", 1)),
		DefaultRoleID:        int64(envInt("DEFAULT_ROLE_ID", 2)),
		InvitationExpiryDays: envInt("INVITATION_EXPIRY_DAYS", 7),
		ResetCodeTTL:         envDur("RESET_CODE_TTL", 15*time.Minute),
		CleanupSchedule:      envStr("CLEANUP_SCHEDULE", "@every 1h"),
		AMQPURL:              firstEnv("RABBITMQ_URL", "AMQP_URL"),
		AuditLogDir:          envStr("AUDIT_LOG_DIR", "logs"),
		RunMigrations:        envBool("RUN_MIGRATIONS", true),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if len(cfg.JWT.Secret) < MinJWTSecretBytes {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretBytes)
	}
	if cfg.JWT.TTL <= 0 || cfg.RefreshTTL <= 0 {
		return Config{}, errors.New("token TTLs must be positive")
	}
	if cfg.InvitationExpiryDays < 1 || cfg.InvitationExpiryDays > 365 {
		return Config{}, errors.New("INVITATION_EXPIRY_DAYS must be between 1 and 365")
	}
	cfg.ExposeResetCode = envBool("EXPOSE_RESET_CODE", false) && !cfg.IsProduction() && cfg.AMQPURL == ""
	return cfg, nil
}

// DSN builds the MySQL data source name. multiStatements is required by the
// migration driver.
func (d DBConfig) DSN() string {
	auth := d.User
	if d.Pass != "" {
		auth = d.User + ":" + d.Pass
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&multiStatements=true",
		auth, d.Host, d.Port, d.Name)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envMinutes(k string, d int) time.Duration {
	return time.Duration(envInt(k, d)) * time.Minute
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
