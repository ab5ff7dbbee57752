// Package config reads process configuration from the environment, after
// loading .env files when present.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"civic-api/internal/apperr"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Addr        string
	APIBase     string
	CORSOrigins []string

	StoreDriver string
	MongoURI    string
	MongoDB     string

	RateLimitEnabled bool
	RateLimitQPS     int
	DeviceDailyLimit int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailFromName string

	OversightEmail     string
	MunicipalitiesFile string
	GeoIPPath          string

	WorkflowBaseURL string
	WorkflowToken   string
	WorkflowTimeout time.Duration

	ReminderEnabled  bool
	ReminderAfter    time.Duration
	ReminderResend   time.Duration
	ReminderInterval time.Duration

	TLSCert       string
	TLSKey        string
	TLSSelfSigned bool

	// AdminAllowCIDRs guards status updates; empty leaves them open.
	AdminAllowCIDRs []string
}

// LoadDotenv reads .env and data/env/.env without overriding set variables.
func LoadDotenv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

func Load() (*Config, error) {
	c := &Config{
		Addr:        getEnv("ADDR", ":8080"),
		APIBase:     strings.TrimRight(getEnv("API_BASE", "/api"), "/"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "civic"),

		RateLimitEnabled: getEnvAsBool("RATE_LIMIT_ENABLED", false),
		RateLimitQPS:     getEnvAsInt("RATE_LIMIT_QPS", 200),
		DeviceDailyLimit: getEnvAsInt("RATE_LIMIT_DEVICE_DAILY", 20),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "noreply@civic.local"),
		MailFromName: getEnv("MAIL_FROM_NAME", "Civic Issue Reporter"),

		OversightEmail:     getEnv("OVERSIGHT_EMAIL", ""),
		MunicipalitiesFile: getEnv("MUNICIPALITIES_FILE", ""),
		GeoIPPath:          getEnv("GEOIP_DB_PATH", ""),

		WorkflowBaseURL: getEnv("WORKFLOW_BASE_URL", ""),
		WorkflowToken:   getEnv("WORKFLOW_TOKEN", ""),
		WorkflowTimeout: getEnvAsDuration("WORKFLOW_TIMEOUT", 10*time.Second),

		ReminderEnabled:  getEnvAsBool("REMINDER_ENABLED", false),
		ReminderAfter:    getEnvAsDuration("REMINDER_AFTER", 72*time.Hour),
		ReminderResend:   getEnvAsDuration("REMINDER_RESEND", 7*24*time.Hour),
		ReminderInterval: getEnvAsDuration("REMINDER_INTERVAL", time.Hour),

		TLSCert:       getEnv("TLS_CERT_FILE", ""),
		TLSKey:        getEnv("TLS_KEY_FILE", ""),
		TLSSelfSigned: getEnvAsBool("TLS_SELF_SIGNED", false),

		AdminAllowCIDRs: getEnvAsList("ADMIN_ALLOW_CIDRS", nil),
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return nil, apperr.E(apperr.Configuration, "unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.RateLimitQPS <= 0 {
		return nil, apperr.E(apperr.Configuration, "RATE_LIMIT_QPS must be positive")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return nil, apperr.E(apperr.Configuration, "TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return c, nil
}

// SMTPEnabled reports whether e-mail is actually delivered.
func (c *Config) SMTPEnabled() bool { return c.SMTPHost != "" }

func (c *Config) TLSEnabled() bool { return c.TLSCert != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
