// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"xpstore/internal/logger"
)

const (
	DefaultWebhookURL     = "https://n8n-p.blc.am/webhook-test/xp-purchase"
	DefaultWebhookTimeout = 10 * time.Second
	DefaultLocale         = "ru-RU"
	DefaultRetentionDays  = 30
)

// Config is read once at startup and never modified afterwards.
type Config struct {
	Environment string

	// WebhookURL is the fully resolved endpoint, cache-bust parameter included.
	WebhookURL     string
	WebhookTimeout time.Duration

	Locale string

	ServerHost string
	ServerPort string

	LogsDirectory string
	LogFileFormat string
	TimeZone      string

	JournalPath      string
	JournalRetention time.Duration

	AllowedOrigin string
}

//
// --- Utility Helpers ---
//

// GetEnvBasedSetting looks up NAME_DEV / NAME_PROD depending on ENVIRONMENT,
// falling back to NAME.
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if v := os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env))); v != "" {
		return v
	}
	return os.Getenv(base)
}

func settingOr(base, def string) string {
	if v := GetEnvBasedSetting(base); v != "" {
		return v
	}
	return def
}

//
// --- Loaders ---
//

// LoadEnv reads the .env file in the working directory, if present.
func LoadEnv() {
	wd, _ := os.Getwd()
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// Load builds the Config from the environment. now is the load time used for
// the cache-bust parameter.
func Load(now time.Time) (*Config, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	cfg := &Config{
		Environment:   env,
		Locale:        settingOr("STORE_LOCALE", DefaultLocale),
		ServerHost:    settingOr("SERVER_HOST", "127.0.0.1"),
		ServerPort:    settingOr("SERVER_PORT", "5051"),
		LogsDirectory: settingOr("LOGS_DIRECTORY", "./logs"),
		LogFileFormat: settingOr("LOG_FILE_FORMAT", "server_%s.log"),
		TimeZone:      settingOr("TIME_ZONE", "Local"),
		JournalPath:   GetEnvBasedSetting("JOURNAL_DB_PATH"),
		AllowedOrigin: settingOr("ALLOWED_ORIGIN", "*"),
	}

	cacheBust := true
	if raw := GetEnvBasedSetting("WEBHOOK_CACHE_BUST"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_CACHE_BUST %q: %w", raw, err)
		}
		cacheBust = b
	}

	endpoint, err := WebhookEndpoint(settingOr("WEBHOOK_URL", DefaultWebhookURL), cacheBust, now)
	if err != nil {
		return nil, err
	}
	cfg.WebhookURL = endpoint

	cfg.WebhookTimeout, err = secondsSetting("WEBHOOK_TIMEOUT_SECONDS", int(DefaultWebhookTimeout/time.Second))
	if err != nil {
		return nil, err
	}

	days, err := intSetting("JOURNAL_RETENTION_DAYS", DefaultRetentionDays)
	if err != nil {
		return nil, err
	}
	cfg.JournalRetention = time.Duration(days) * 24 * time.Hour

	return cfg, nil
}

// WebhookEndpoint validates base and, when cacheBust is set, appends
// v=<unix millis of now>.
func WebhookEndpoint(base string, cacheBust bool, now time.Time) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid WEBHOOK_URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid WEBHOOK_URL %q: scheme must be http or https", base)
	}
	if cacheBust {
		q := u.Query()
		q.Set("v", strconv.FormatInt(now.UnixMilli(), 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func intSetting(name string, def int) (int, error) {
	raw := GetEnvBasedSetting(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, raw)
	}
	return n, nil
}

func secondsSetting(name string, def int) (time.Duration, error) {
	n, err := intSetting(name, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// LoggerConfig returns the logger settings of c.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		LogsDirectory: c.LogsDirectory,
		LogFileFormat: c.LogFileFormat,
		TimeZone:      c.TimeZone,
	}
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// JournalEnabled reports whether purchase attempts should be recorded.
func (c *Config) JournalEnabled() bool {
	return c.JournalPath != ""
}

// LogCurrentEnvironment logs which environment is running.
func (c *Config) LogCurrentEnvironment() {
	if c.Environment == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in %s environment", c.Environment)
	}
	logger.LogInfo("Webhook endpoint: %s (timeout %v)", c.WebhookURL, c.WebhookTimeout)
	logger.LogInfo("Store locale: %s", c.Locale)
	if c.AllowedOrigin == "*" {
		logger.LogWarn("ALLOWED_ORIGIN not set, using '*' (allow all origins)")
	}
}
