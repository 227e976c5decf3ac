package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
}

const defaultConfigFile = "./calbot.toml"

type Config struct {
	// Model
	AnthropicAPIKey   string  `toml:"anthropic_api_key"`
	ClaudeModel       string  `toml:"claude_model"`
	ClaudeTemperature float64 `toml:"claude_temperature"`

	// Google OAuth client; the first source that is set wins.
	GoogleCredentialsJSON string `toml:"google_credentials_json"`
	GoogleCredentialsFile string `toml:"google_credentials_file"`
	GoogleClientID        string `toml:"google_client_id"`
	GoogleClientSecret    string `toml:"google_client_secret"`

	// Server
	BaseURL      string `toml:"base_url"`
	HTTPPort     int    `toml:"http_port"`
	DevMode      bool   `toml:"dev_mode"`
	CookieSecret string `toml:"cookie_secret"`
	LogLevel     string `toml:"log_level"`

	// Behavior
	Timezone            string  `toml:"timezone"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`

	// Session persistence; empty keeps sessions in memory only.
	DBPath        string `toml:"db_path"`
	SessionMaxAge int    `toml:"session_max_age_days"`

	// In-memory sessions untouched for SessionIdleHours are dropped; MaxSessions caps the
	// registry. Zero disables either limit.
	SessionIdleHours int `toml:"session_idle_hours"`
	MaxSessions      int `toml:"max_sessions"`

	// Notifications
	ResendAPIKey     string `toml:"resend_api_key"`
	EmailFrom        string `toml:"email_from"`
	NotifyEmail      string `toml:"notify_email"`
	NotifyWebhookURL string `toml:"notify_webhook_url"`

	// ConfigFile is the TOML file that was read, if any.
	ConfigFile string `toml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ClaudeModel:         "claude-sonnet-4-20250514",
		ClaudeTemperature:   0.1,
		HTTPPort:            8080,
		LogLevel:            "info",
		Timezone:            "UTC",
		ConfidenceThreshold: 0.7,
		SessionMaxAge:       30,
		SessionIdleHours:    24,
		MaxSessions:         10000,
	}
}

// LoadFromEnv reads CALBOT_CONFIG_FILE (default ./calbot.toml, skipped when absent) and
// then applies environment overrides.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("CALBOT_CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	cfg := Defaults()
	if err := cfg.readFile(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if _, err := toml.Decode(string(data), c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) applyEnv() {
	c.AnthropicAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.ClaudeModel = getEnvOrDefault("CALBOT_CLAUDE_MODEL", c.ClaudeModel)
	c.ClaudeTemperature = getEnvAsFloatOrDefault("CALBOT_CLAUDE_TEMPERATURE", c.ClaudeTemperature)

	c.GoogleCredentialsJSON = getEnvOrDefault("GOOGLE_CREDENTIALS_JSON", c.GoogleCredentialsJSON)
	c.GoogleCredentialsFile = getEnvOrDefault("GOOGLE_CREDENTIALS_FILE", c.GoogleCredentialsFile)
	c.GoogleClientID = getEnvOrDefault("GOOGLE_CLIENT_ID", c.GoogleClientID)
	c.GoogleClientSecret = getEnvOrDefault("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)

	c.HTTPPort = getEnvAsIntOrDefault("CALBOT_HTTP_PORT", c.HTTPPort)
	c.BaseURL = getEnvOrDefault("CALBOT_BASE_URL", c.BaseURL)
	c.DevMode = getEnvAsBoolOrDefault("CALBOT_DEV_MODE", c.DevMode)
	c.CookieSecret = getEnvOrDefault("CALBOT_COOKIE_SECRET", c.CookieSecret)
	c.LogLevel = getEnvOrDefault("CALBOT_LOG_LEVEL", c.LogLevel)

	c.Timezone = getEnvOrDefault("CALBOT_TIMEZONE", c.Timezone)
	c.ConfidenceThreshold = getEnvAsFloatOrDefault("CALBOT_CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)

	c.DBPath = getEnvOrDefault("CALBOT_DB_PATH", c.DBPath)
	c.SessionMaxAge = getEnvAsIntOrDefault("CALBOT_SESSION_MAX_AGE_DAYS", c.SessionMaxAge)
	c.SessionIdleHours = getEnvAsIntOrDefault("CALBOT_SESSION_IDLE_HOURS", c.SessionIdleHours)
	c.MaxSessions = getEnvAsIntOrDefault("CALBOT_MAX_SESSIONS", c.MaxSessions)

	c.ResendAPIKey = getEnvOrDefault("CALBOT_RESEND_API_KEY", c.ResendAPIKey)
	c.EmailFrom = getEnvOrDefault("CALBOT_EMAIL_FROM", c.EmailFrom)
	c.NotifyEmail = getEnvOrDefault("CALBOT_NOTIFY_EMAIL", c.NotifyEmail)
	c.NotifyWebhookURL = getEnvOrDefault("CALBOT_NOTIFY_WEBHOOK_URL", c.NotifyWebhookURL)

	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.HTTPPort)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http port %d is out of range", c.HTTPPort))
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence threshold %.2f must be in (0, 1]", c.ConfidenceThreshold))
	}
	if c.ClaudeTemperature < 0 || c.ClaudeTemperature > 1 {
		errs = append(errs, fmt.Errorf("claude temperature %.2f must be in [0, 1]", c.ClaudeTemperature))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("unknown timezone %q", c.Timezone))
	}
	if c.ResendAPIKey != "" && c.EmailFrom == "" {
		errs = append(errs, errors.New("email from address is required when a Resend API key is set"))
	}
	if c.SessionMaxAge < 0 {
		errs = append(errs, fmt.Errorf("session max age %d must not be negative", c.SessionMaxAge))
	}
	if c.SessionIdleHours < 0 || c.MaxSessions < 0 {
		errs = append(errs, errors.New("session limits must not be negative"))
	}
	return errors.Join(errs...)
}

// Warnings lists settings that are missing but not fatal; the server still starts.
func (c *Config) Warnings() []string {
	var out []string
	if c.AnthropicAPIKey == "" {
		out = append(out, "ANTHROPIC_API_KEY is not set; extraction will fail")
	}
	if c.GoogleCredentialsJSON == "" && c.GoogleCredentialsFile == "" && c.GoogleClientID == "" {
		out = append(out, "no Google OAuth client configured; calendar login is disabled unless ./credentials.json exists")
	}
	if c.CookieSecret == "" {
		out = append(out, "CALBOT_COOKIE_SECRET is not set; logins will not survive a restart")
	}
	return out
}

// ListenAddr is the address the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
